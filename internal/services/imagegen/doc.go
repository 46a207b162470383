// Package imagegen renders the character stage's composite scene image
// through the OpenAI images API.
package imagegen
