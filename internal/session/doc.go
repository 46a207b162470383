// Package session owns editing sessions.
//
// A Controller is the only surface presentation layers talk to: it reports
// per-stage state, forwards run requests to the session's orchestrator and
// hands out the final video once the whole pipeline is fresh. A Manager keeps
// independent sessions keyed by id; sessions share no mutable state beyond the
// content-addressed blob store.
package session
