// Package provider defines the contract between the orchestrator and the
// external generative services.
//
// Each capability (chat, structured generation, image, audio, video assembly)
// has a typed request/result pair and a single-method interface. Clients never
// retry on their own; they return a *Failure whose Kind tells the orchestrator
// whether the call may be retried (RateLimited, Transient) or must be surfaced
// immediately (AuthFailed, ContentRejected, InvalidInput).
package provider
