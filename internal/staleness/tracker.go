package staleness

import (
	"scenecraft/internal/artifact"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
)

// State is a slot's classification.
type State int

const (
	Absent State = iota
	Fresh
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Tracker classifies slots on demand. It holds no state of its own, so it
// never disagrees with the store.
type Tracker struct {
	graph *stagegraph.Graph
	store *artifact.Store
}

// New returns a tracker over graph and store.
func New(graph *stagegraph.Graph, store *artifact.Store) *Tracker {
	return &Tracker{graph: graph, store: store}
}

// Classify returns absent when the slot is empty, stale when the slot was
// demoted, any dependency is not fresh, or the recorded upstream ids differ from
// the dependencies' current ids, and fresh otherwise.
func (t *Tracker) Classify(id stage.ID) State {
	return t.classify(id, make(map[stage.ID]State))
}

// ComputedFresh is Classify without the slot's demotion flag. The orchestrator
// uses it to recompute that flag after a commit.
func (t *Tracker) ComputedFresh(id stage.ID) bool {
	if _, ok := t.store.Get(id); !ok {
		return false
	}
	return t.provenanceMatches(id, make(map[stage.ID]State))
}

func (t *Tracker) classify(id stage.ID, memo map[stage.ID]State) State {
	if state, ok := memo[id]; ok {
		return state
	}
	state := Fresh
	switch {
	case !t.has(id):
		state = Absent
	case t.store.Demoted(id), !t.provenanceMatches(id, memo):
		state = Stale
	}
	memo[id] = state
	return state
}

func (t *Tracker) has(id stage.ID) bool {
	_, ok := t.store.Get(id)
	return ok
}

func (t *Tracker) provenanceMatches(id stage.ID, memo map[stage.ID]State) bool {
	current, ok := t.store.Get(id)
	if !ok {
		return false
	}
	for _, dep := range t.graph.DependenciesOf(id) {
		if t.classify(dep, memo) != Fresh {
			return false
		}
		upstream, ok := t.store.Get(dep)
		if !ok {
			return false
		}
		recorded, ok := current.UpstreamID(dep)
		if !ok || recorded != upstream.ID {
			return false
		}
	}
	return true
}

// Snapshot classifies every stage in graph order.
func (t *Tracker) Snapshot() map[stage.ID]State {
	memo := make(map[stage.ID]State)
	out := make(map[stage.ID]State)
	for _, id := range t.graph.Order() {
		out[id] = t.classify(id, memo)
	}
	return out
}

// Unready returns the first dependency of id, in declaration order, that is
// not fresh.
func (t *Tracker) Unready(id stage.ID) (stage.ID, State, bool) {
	memo := make(map[stage.ID]State)
	for _, dep := range t.graph.DependenciesOf(id) {
		if state := t.classify(dep, memo); state != Fresh {
			return dep, state, true
		}
	}
	return "", Fresh, false
}
