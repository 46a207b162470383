package artifact

import (
	"errors"
	"fmt"
	"slices"

	"scenecraft/internal/stage"
)

// DefaultHistoryLimit bounds how many superseded artifacts are kept per stage.
const DefaultHistoryLimit = 20

type slot struct {
	current Artifact
	demoted bool
	history []Artifact
}

// Store holds one slot per stage. It is not safe for concurrent use; the
// session serializes access.
type Store struct {
	slots        map[stage.ID]*slot
	historyLimit int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{slots: make(map[stage.ID]*slot), historyLimit: DefaultHistoryLimit}
}

// SetHistoryLimit changes how many superseded artifacts are retained per stage.
// Zero disables history.
func (s *Store) SetHistoryLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	s.historyLimit = limit
	for _, sl := range s.slots {
		sl.history = trimHistory(sl.history, limit)
	}
}

// Put overwrites the artifact's stage slot. The superseded artifact moves to
// history and the slot's demotion flag is cleared.
func (s *Store) Put(a Artifact) error {
	if !a.Stage.Valid() {
		return fmt.Errorf("artifact: put: unknown stage %q", a.Stage)
	}
	if a.ID == "" {
		return errors.New("artifact: put: missing content id")
	}
	sl, ok := s.slots[a.Stage]
	if !ok {
		s.slots[a.Stage] = &slot{current: clone(a)}
		return nil
	}
	if s.historyLimit > 0 {
		sl.history = trimHistory(append(sl.history, sl.current), s.historyLimit)
	}
	sl.current = clone(a)
	sl.demoted = false
	return nil
}

// Get returns the stage's current artifact.
func (s *Store) Get(id stage.ID) (Artifact, bool) {
	sl, ok := s.slots[id]
	if !ok {
		return Artifact{}, false
	}
	return clone(sl.current), true
}

// UpstreamOf returns the upstream links recorded on the stage's artifact, in
// dependency declaration order.
func (s *Store) UpstreamOf(id stage.ID) []Link {
	sl, ok := s.slots[id]
	if !ok {
		return nil
	}
	return slices.Clone(sl.current.Upstream)
}

// History returns superseded artifacts for the stage, oldest first.
func (s *Store) History(id stage.ID) []Artifact {
	sl, ok := s.slots[id]
	if !ok {
		return nil
	}
	out := make([]Artifact, 0, len(sl.history))
	for _, a := range sl.history {
		out = append(out, clone(a))
	}
	return out
}

// MarkStale sets the slot's demotion flag and reports whether it changed.
// Absent slots are ignored.
func (s *Store) MarkStale(id stage.ID, stale bool) bool {
	sl, ok := s.slots[id]
	if !ok || sl.demoted == stale {
		return false
	}
	sl.demoted = stale
	return true
}

// Demoted reports whether the slot was demoted by an upstream change.
func (s *Store) Demoted(id stage.ID) bool {
	sl, ok := s.slots[id]
	return ok && sl.demoted
}

// Len returns the number of occupied slots.
func (s *Store) Len() int { return len(s.slots) }

// Reset clears every slot and its history.
func (s *Store) Reset() {
	s.slots = make(map[stage.ID]*slot)
}

func trimHistory(history []Artifact, limit int) []Artifact {
	if limit <= 0 {
		return nil
	}
	if len(history) > limit {
		history = slices.Clone(history[len(history)-limit:])
	}
	return history
}
