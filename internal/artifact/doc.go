// Package artifact defines stage outputs and the per-session store that holds
// them.
//
// An Artifact is immutable: a re-run produces a new one that supersedes the
// old. Its id is a content hash over the stage and payload only, so a re-run
// that yields identical output keeps the same id and does not invalidate
// downstream work. The Store keeps exactly one current artifact per stage, a
// bounded history of superseded ones, and a demotion flag that the
// orchestrator sets when an upstream change leaves the slot stale.
package artifact
