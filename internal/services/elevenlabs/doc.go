// Package elevenlabs renders the music stage's track with the ElevenLabs
// music API (composition plan, then compose).
package elevenlabs
