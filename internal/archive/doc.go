// Package archive persists exported session snapshots in SQLite so a finished
// session can be inspected or restored after the process exits.
//
// Each record carries a semantic format version. Load accepts any 1.x record
// and rejects the rest with ErrIncompatibleFormat.
package archive
