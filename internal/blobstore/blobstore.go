package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// ErrNotFound is returned when no blob exists for a key.
var ErrNotFound = errors.New("blob not found")

// Ref identifies a stored blob. Key is the sha256 of the content.
type Ref struct {
	Key       string `json:"key"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
}

// IsZero reports whether r refers to nothing.
func (r Ref) IsZero() bool { return r.Key == "" }

var extensions = map[string]string{
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/webp":       ".webp",
	"audio/mpeg":       ".mp3",
	"audio/wav":        ".wav",
	"video/mp4":        ".mp4",
	"video/x-matroska": ".mkv",
	"application/json": ".json",
	"text/plain":       ".txt",
}

// Extension returns the file extension used for a media type.
func Extension(mediaType string) string {
	if ext, ok := extensions[strings.ToLower(strings.TrimSpace(mediaType))]; ok {
		return ext
	}
	return ".bin"
}

func mediaTypeFor(ext string) string {
	for mediaType, candidate := range extensions {
		if candidate == ext {
			return mediaType
		}
	}
	return "application/octet-stream"
}

// Store keeps blobs content-addressed on a billy filesystem.
type Store struct {
	fs billy.Filesystem
}

// New wraps an existing filesystem.
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// NewOS stores blobs beneath dir on the host filesystem.
func NewOS(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("blobstore: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create %q: %w", dir, err)
	}
	return New(osfs.New(dir)), nil
}

// NewMemory returns a store backed by an in-memory filesystem.
func NewMemory() *Store {
	return New(memfs.New())
}

// Key returns the content key for data.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validKey(key string) bool {
	if len(key) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

func blobPath(key, mediaType string) string {
	return path.Join(key[:2], key+Extension(mediaType))
}

// Put stores data and returns its reference. Storing identical bytes twice is
// a no-op that returns the same key.
func (s *Store) Put(data []byte, mediaType string) (Ref, error) {
	if len(data) == 0 {
		return Ref{}, errors.New("blobstore: empty blob")
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	ref := Ref{Key: Key(data), MediaType: mediaType, Size: int64(len(data))}
	target := blobPath(ref.Key, mediaType)
	if _, err := s.fs.Stat(target); err == nil {
		return ref, nil
	}
	if err := s.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return Ref{}, fmt.Errorf("blobstore: mkdir %q: %w", path.Dir(target), err)
	}
	tmp := target + ".tmp"
	if err := util.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("blobstore: write %q: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return Ref{}, fmt.Errorf("blobstore: commit %q: %w", target, err)
	}
	return ref, nil
}

// Read returns the bytes for ref and verifies they still hash to its key.
func (s *Store) Read(ref Ref) ([]byte, error) {
	if !validKey(ref.Key) {
		return nil, fmt.Errorf("blobstore: invalid key %q", ref.Key)
	}
	data, err := util.ReadFile(s.fs, blobPath(ref.Key, ref.MediaType))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.Key)
		}
		return nil, fmt.Errorf("blobstore: read %s: %w", ref.Key, err)
	}
	if Key(data) != ref.Key {
		return nil, fmt.Errorf("blobstore: content of %s does not match its key", ref.Key)
	}
	return data, nil
}

// Lookup resolves a bare key to its reference by scanning the key's shard.
func (s *Store) Lookup(key string) (Ref, error) {
	if !validKey(key) {
		return Ref{}, fmt.Errorf("blobstore: invalid key %q", key)
	}
	entries, err := s.fs.ReadDir(key[:2])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Ref{}, fmt.Errorf("blobstore: list shard: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, key) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		return Ref{Key: key, MediaType: mediaTypeFor(path.Ext(name)), Size: entry.Size()}, nil
	}
	return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Exists reports whether ref is stored.
func (s *Store) Exists(ref Ref) (bool, error) {
	if !validKey(ref.Key) {
		return false, nil
	}
	_, err := s.fs.Stat(blobPath(ref.Key, ref.MediaType))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("blobstore: stat %s: %w", ref.Key, err)
	}
}

// Export copies ref to dst on the host filesystem.
func (s *Store) Export(ref Ref, dst string) error {
	data, err := s.Read(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("blobstore: create %q: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("blobstore: export %s: %w", ref.Key, err)
	}
	return nil
}
