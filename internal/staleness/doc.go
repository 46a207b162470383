// Package staleness decides whether each stage's slot is absent, fresh or
// stale by comparing recorded provenance with the artifacts currently in the
// store.
package staleness
