// Package pipeline assembles a running scenecraft instance from configuration:
// provider clients, the shared blob store, the optional response cache, the
// session archive, the session manager and the exporter.
//
// Providers whose credentials are missing stay nil so the stages that need
// them fail with a configuration error instead of at startup.
package pipeline
