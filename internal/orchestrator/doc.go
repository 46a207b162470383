// Package orchestrator runs pipeline stages for one editing session.
//
// Run validates a request against the stage graph, resolves inputs from the
// fresh dependency artifacts (or from user overrides), dispatches to the
// provider for the stage's capability under the retry policy, and commits the
// result with provenance. Committing demotes every downstream slot whose
// recorded upstream ids no longer match. A failed or cancelled run leaves the
// store untouched.
//
// One Orchestrator belongs to one session. A second Run while one is in flight
// fails immediately with services.ErrRunInProgress; there is no queueing.
// Store reads and commits are serialized with an RWMutex, so state queries are
// safe while a provider call is outstanding.
package orchestrator
