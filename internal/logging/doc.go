// Package logging assembles structured slog loggers and formatting helpers used
// across scenecraft.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so orchestration code can tag
// log lines with session IDs, stages, run IDs and correlation IDs. A StreamHub
// keeps recent events in memory for the API's event feed, and a no-op logger
// serves tests and wiring code that cannot fail.
package logging
