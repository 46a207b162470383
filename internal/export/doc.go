// Package export writes a finished session to the output directory.
//
// The exported folder holds generated_video.mp4 plus the scene record, the
// character image, the music track and the script. When an encoder is
// configured the video is also re-encoded for archival, and when an archive is
// configured the session snapshot is saved so it can be restored later.
package export
