// Package services defines shared utilities consumed by the orchestrator, the
// provider integrations, and the API layer.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, run IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that give every failure a
//     stable classification (dependency not ready, run in progress, provider
//     transient or rejected, pipeline incomplete).
//   - HTTPStatus and MarkerName, which translate those markers for the API and
//     CLI surfaces.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
