// Package llm provides an OpenAI-compatible chat client used by the script,
// structured_json and music (sentiment) stages.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Chat: provider.ChatProvider, free-form text.
// Client.Structure: provider.StructuredProvider, JSON mode.
// Client.CompleteJSON: send system/user prompts, receive a JSON string.
// Client.HealthCheck: verify API key and model availability.
//
// # Failures
//
// Every call is a single attempt. Errors are *provider.Failure values: HTTP
// 401/403 become AuthFailed, 429 RateLimited, 408/5xx and network errors
// Transient, refusals and content-filter stops ContentRejected. Retry is the
// orchestrator's job.
package llm
