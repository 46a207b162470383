package artifact

import (
	"fmt"

	"scenecraft/internal/stage"
)

// SlotSnapshot is the serializable form of one stage slot.
type SlotSnapshot struct {
	Artifact Artifact   `json:"artifact"`
	Demoted  bool       `json:"demoted,omitempty"`
	History  []Artifact `json:"history,omitempty"`
}

// Snapshot is the serializable form of a store, ordered by pipeline stage.
type Snapshot struct {
	Slots []SlotSnapshot `json:"slots"`
}

// Snapshot copies the store's contents.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{Slots: make([]SlotSnapshot, 0, len(s.slots))}
	for _, id := range stage.All() {
		sl, ok := s.slots[id]
		if !ok {
			continue
		}
		entry := SlotSnapshot{Artifact: clone(sl.current), Demoted: sl.demoted}
		for _, a := range sl.history {
			entry.History = append(entry.History, clone(a))
		}
		snap.Slots = append(snap.Slots, entry)
	}
	return snap
}

// Restore replaces the store's contents with snap. Every artifact's id is
// checked against its content; on error the store is left unchanged.
func (s *Store) Restore(snap Snapshot) error {
	slots := make(map[stage.ID]*slot, len(snap.Slots))
	for _, entry := range snap.Slots {
		a := entry.Artifact
		if !a.Stage.Valid() {
			return fmt.Errorf("artifact: restore: unknown stage %q", a.Stage)
		}
		if _, dup := slots[a.Stage]; dup {
			return fmt.Errorf("artifact: restore: duplicate slot for %s", a.Stage)
		}
		if err := a.Verify(); err != nil {
			return fmt.Errorf("artifact: restore: %w", err)
		}
		sl := &slot{current: clone(a), demoted: entry.Demoted}
		for _, h := range entry.History {
			if h.Stage != a.Stage {
				return fmt.Errorf("artifact: restore: %s history holds a %s artifact", a.Stage, h.Stage)
			}
			sl.history = append(sl.history, clone(h))
		}
		sl.history = trimHistory(sl.history, s.historyLimit)
		slots[a.Stage] = sl
	}
	s.slots = slots
	return nil
}
