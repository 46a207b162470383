// Package retry implements the bounded exponential backoff applied to every
// provider call: {maxAttempts, backoff: exponential(base, cap)}.
//
// The orchestrator supplies a classifier that decides which failures are worth
// another attempt and may pass along a server-requested Retry-After delay,
// which is honoured but still capped. Sleeps are context-aware so cancelling a
// run stops retrying immediately.
package retry
