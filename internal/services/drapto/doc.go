// Package drapto wraps the Drapto Go library for the optional archival AV1
// encode of an exported video.
//
// Library calls Drapto in-process and logs its Reporter callbacks through
// slog. Callers depend on the Encoder interface so tests can substitute a
// fake instead of running the real encoder.
package drapto
