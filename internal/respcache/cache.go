package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"scenecraft/internal/artifact"
	"scenecraft/internal/provider"
	"scenecraft/internal/stage"
)

// Entry is one cached stage result.
type Entry struct {
	Fingerprint string           `json:"fingerprint"`
	Stage       stage.ID         `json:"stage"`
	Provider    string           `json:"provider"`
	Payload     artifact.Payload `json:"payload"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Cache stores entries by fingerprint. A miss returns ok=false and no error.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
}

// Fingerprint hashes a stage request. inputs must encode to JSON; map keys are
// sorted by encoding/json so the result does not depend on map order.
func Fingerprint(id stage.ID, capability provider.Capability, inputs any) (string, error) {
	data, err := json.Marshal(struct {
		Stage      stage.ID            `json:"stage"`
		Capability provider.Capability `json:"capability"`
		Inputs     any                 `json:"inputs"`
	}{Stage: id, Capability: capability, Inputs: inputs})
	if err != nil {
		return "", fmt.Errorf("respcache: encode request: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, fingerprint string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[fingerprint]
	return entry, ok, nil
}

func (m *Memory) Put(_ context.Context, entry Entry) error {
	if entry.Fingerprint == "" {
		return errors.New("respcache: missing fingerprint")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Fingerprint] = entry
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var (
	_ Cache = (*Memory)(nil)
	_ Cache = (*Store)(nil)
)
