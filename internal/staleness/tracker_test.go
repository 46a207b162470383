package staleness

import (
	"encoding/json"
	"testing"
	"time"

	"scenecraft/internal/artifact"
	"scenecraft/internal/blobstore"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
)

type fixture struct {
	t       *testing.T
	store   *artifact.Store
	tracker *Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := artifact.NewStore()
	return &fixture{t: t, store: store, tracker: New(stagegraph.Default(), store)}
}

// put commits an artifact for id whose provenance points at the current
// dependency artifacts.
func (f *fixture) put(id stage.ID, payload artifact.Payload) artifact.Artifact {
	f.t.Helper()
	var links []artifact.Link
	for _, dep := range stagegraph.Default().DependenciesOf(id) {
		upstream, ok := f.store.Get(dep)
		if !ok {
			f.t.Fatalf("dependency %s missing", dep)
		}
		links = append(links, artifact.Link{Stage: dep, ID: upstream.ID})
	}
	a, err := artifact.New(id, payload, links, "test", "run", time.Now())
	if err != nil {
		f.t.Fatalf("artifact.New: %v", err)
	}
	if err := f.store.Put(a); err != nil {
		f.t.Fatalf("Put: %v", err)
	}
	return a
}

func (f *fixture) expect(id stage.ID, want State) {
	f.t.Helper()
	if got := f.tracker.Classify(id); got != want {
		f.t.Fatalf("Classify(%s) = %s, want %s", id, got, want)
	}
}

func (f *fixture) fillPipeline() {
	f.put(stage.Script, artifact.Payload{Text: "script"})
	f.put(stage.StructuredJSON, artifact.Payload{Record: json.RawMessage(`{"scene_title":"t"}`)})
	f.put(stage.Character, artifact.Payload{Blobs: []blobstore.Ref{{Key: "img", MediaType: "image/png"}}})
	f.put(stage.Music, artifact.Payload{Blobs: []blobstore.Ref{{Key: "mp3", MediaType: "audio/mpeg"}}})
	f.put(stage.Video, artifact.Payload{Blobs: []blobstore.Ref{{Key: "mp4", MediaType: "video/mp4"}}})
}

func TestAbsentAndFresh(t *testing.T) {
	f := newFixture(t)
	f.expect(stage.Script, Absent)
	f.put(stage.Script, artifact.Payload{Text: "one"})
	f.expect(stage.Script, Fresh)
	f.expect(stage.StructuredJSON, Absent)
}

func TestChangedUpstreamMakesEveryDescendantStale(t *testing.T) {
	f := newFixture(t)
	f.fillPipeline()
	for _, id := range stage.All() {
		f.expect(id, Fresh)
	}

	f.put(stage.Script, artifact.Payload{Text: "rewritten"})
	f.expect(stage.Script, Fresh)
	for _, id := range []stage.ID{stage.StructuredJSON, stage.Character, stage.Music, stage.Video} {
		f.expect(id, Stale)
	}
}

func TestIdenticalUpstreamKeepsDescendantsFresh(t *testing.T) {
	f := newFixture(t)
	f.fillPipeline()
	f.put(stage.Script, artifact.Payload{Text: "script"})
	for _, id := range stage.All() {
		f.expect(id, Fresh)
	}
}

func TestSiblingChangeOnlyAffectsVideo(t *testing.T) {
	f := newFixture(t)
	f.fillPipeline()
	f.put(stage.Music, artifact.Payload{Blobs: []blobstore.Ref{{Key: "other", MediaType: "audio/mpeg"}}})
	f.expect(stage.Character, Fresh)
	f.expect(stage.Music, Fresh)
	f.expect(stage.Video, Stale)
}

func TestDemotionFlagForcesStale(t *testing.T) {
	f := newFixture(t)
	f.fillPipeline()
	f.store.MarkStale(stage.Character, true)
	f.expect(stage.Character, Stale)
	f.expect(stage.Video, Stale)
	if !f.tracker.ComputedFresh(stage.Character) {
		t.Fatal("ComputedFresh should ignore the demotion flag")
	}
}

func TestUnready(t *testing.T) {
	f := newFixture(t)
	dep, state, ok := f.tracker.Unready(stage.Video)
	if !ok || dep != stage.Character || state != Absent {
		t.Fatalf("Unready(video) = %s, %s, %v", dep, state, ok)
	}
	if _, _, ok := f.tracker.Unready(stage.Script); ok {
		t.Fatal("script has no dependencies")
	}

	f.fillPipeline()
	if _, _, ok := f.tracker.Unready(stage.Video); ok {
		t.Fatal("expected all video dependencies fresh")
	}

	snap := f.tracker.Snapshot()
	if len(snap) != len(stage.All()) || snap[stage.Video] != Fresh {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}
