// Package config loads, normalizes, and validates scenecraft configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and ELEVENLABS_API_KEY. The Config type centralizes every knob
// the CLI and API server need, from provider endpoints and models to video
// geometry and the retry policy.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
