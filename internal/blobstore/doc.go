// Package blobstore keeps generated media (images, audio, video) as
// content-addressed blobs on a go-billy filesystem.
//
// Keys are the sha256 of the bytes, so artifacts can reference blobs by key
// and identical output from a re-run lands on the same blob. Production uses
// an osfs root under the data directory; tests use memfs.
package blobstore
