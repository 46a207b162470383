// Package sqlitestore opens the SQLite databases scenecraft keeps on disk (the
// session archive and the response cache) with one set of pragmas, a
// versioned schema, and busy-retry helpers.
//
// Each caller embeds its own schema SQL and version. A database created with a
// different version is rejected with ErrSchemaMismatch; users delete the file
// to adopt the new schema.
package sqlitestore
