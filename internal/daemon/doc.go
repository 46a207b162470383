// Package daemon runs the long-lived scenecraft server.
//
// It wires configuration, the pipeline runtime and the log stream hub into a
// single lifecycle with flock-based locking so two servers never share a data
// directory. The HTTP API exposes sessions, stage runs, exports, blobs and a
// log event feed; every failure is reported as {"error", "kind", "hint"} with a
// status derived from the failure marker.
//
// Keep orchestration logic out of this package: stage semantics live in the
// orchestrator and session packages while the daemon handles startup, shutdown
// and transport.
package daemon
