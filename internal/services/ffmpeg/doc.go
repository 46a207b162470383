// Package ffmpeg wraps the ffmpeg binary for video assembly.
//
// Runner renders still-image slides with drawtext captions and concatenates
// clips under a music bed. LocalAssembler implements provider.VideoProvider on
// top of it so the video stage works without a video generation model; the
// sora package reuses Runner.Concat to join generated clips.
//
// Every ffmpeg failure is reported as provider.KindInvalidInput because the
// same inputs fail the same way on a second attempt.
package ffmpeg
