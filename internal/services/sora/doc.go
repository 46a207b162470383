// Package sora generates the final video with an OpenAI video model.
//
// Client submits a job to /videos, polls it to a terminal state, and downloads
// the clip. Assembler renders one clip per scene beat and joins them with
// ffmpeg, mixing the music track under the clips' own audio.
package sora
