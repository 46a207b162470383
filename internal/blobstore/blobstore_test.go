package blobstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenecraft/internal/blobstore"
)

func TestPutReadRoundTrip(t *testing.T) {
	store := blobstore.NewMemory()

	ref, err := store.Put([]byte("fake-png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, blobstore.Key([]byte("fake-png")), ref.Key)
	assert.Equal(t, int64(8), ref.Size)

	data, err := store.Read(ref)
	require.NoError(t, err)
	assert.Equal(t, "fake-png", string(data))

	ok, err := store.Exists(ref)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPutIsIdempotent(t *testing.T) {
	store := blobstore.NewMemory()
	first, err := store.Put([]byte("audio"), "audio/mpeg")
	require.NoError(t, err)
	second, err := store.Put([]byte("audio"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPutRejectsEmpty(t *testing.T) {
	_, err := blobstore.NewMemory().Put(nil, "image/png")
	require.Error(t, err)
}

func TestReadMissing(t *testing.T) {
	store := blobstore.NewMemory()
	_, err := store.Read(blobstore.Ref{Key: blobstore.Key([]byte("absent")), MediaType: "image/png"})
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	_, err = store.Read(blobstore.Ref{Key: "../../etc/passwd"})
	require.Error(t, err)
}

func TestReadDetectsCorruption(t *testing.T) {
	fs := memfs.New()
	store := blobstore.New(fs)
	ref, err := store.Put([]byte("original"), "text/plain")
	require.NoError(t, err)

	f, err := fs.Create(filepath.Join(ref.Key[:2], ref.Key+".txt"))
	require.NoError(t, err)
	_, err = f.Write([]byte("tampered"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = store.Read(ref)
	require.Error(t, err)
}

func TestLookupResolvesMediaType(t *testing.T) {
	store := blobstore.NewMemory()
	ref, err := store.Put([]byte("video-bytes"), "video/mp4")
	require.NoError(t, err)

	found, err := store.Lookup(ref.Key)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", found.MediaType)
	assert.Equal(t, ref.Size, found.Size)

	_, err = store.Lookup(blobstore.Key([]byte("nothing")))
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestOSStoreExport(t *testing.T) {
	dir := t.TempDir()
	store, err := blobstore.NewOS(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	ref, err := store.Put([]byte("mp3"), "audio/mpeg")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "blobs", ref.Key[:2], ref.Key+".mp3"))

	dst := filepath.Join(dir, "out", "scene_music.mp3")
	require.NoError(t, store.Export(ref, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "mp3", string(data))
}
