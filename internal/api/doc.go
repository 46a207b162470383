// Package api defines the wire-format types shared by the HTTP server and the
// CLI. It translates session, artifact and log records into transport-friendly
// DTOs so consumers never depend on internal types.
//
// # Key Types
//
// SessionSummary / SessionDetail: a session with the freshness of every stage.
//
// StageView / ArtifactView: one stage slot and the artifact it currently holds,
// which is shown even when stale.
//
// RunRequest / RunResponse: a stage run with its overrides and the stages the
// commit demoted.
//
// ErrorResponse: {"error", "kind", "hint"} where kind is the failure marker.
//
// LogEvent / LogStreamResponse: structured log payloads for live tailing.
//
// # Client
//
// Client talks to a running server over HTTP and decodes ErrorResponse bodies
// into *Error values.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Structured records pass through as json.RawMessage to avoid double encoding.
package api
