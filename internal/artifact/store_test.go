package artifact

import (
	"encoding/json"
	"testing"

	"scenecraft/internal/stage"
)

func TestStorePutGet(t *testing.T) {
	store := NewStore()
	if _, ok := store.Get(stage.Script); ok {
		t.Fatal("expected empty slot")
	}
	a := mustNew(t, stage.Script, Payload{Text: "draft"})
	if err := store.Put(a); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := store.Get(stage.Script)
	if !ok || got.ID != a.ID {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d", store.Len())
	}
}

func TestStorePutRejectsInvalid(t *testing.T) {
	store := NewStore()
	if err := store.Put(Artifact{Stage: stage.Script}); err == nil {
		t.Fatal("expected error for missing id")
	}
	if err := store.Put(Artifact{ID: "x", Stage: "nope"}); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestStoreUpstreamOf(t *testing.T) {
	store := NewStore()
	script := mustNew(t, stage.Script, Payload{Text: "draft"})
	scene := mustNew(t, stage.StructuredJSON, Payload{Record: json.RawMessage(`{}`)}, Link{Stage: stage.Script, ID: script.ID})
	_ = store.Put(script)
	_ = store.Put(scene)

	links := store.UpstreamOf(stage.StructuredJSON)
	if len(links) != 1 || links[0].Stage != stage.Script || links[0].ID != script.ID {
		t.Fatalf("unexpected upstream %+v", links)
	}
	if store.UpstreamOf(stage.Video) != nil {
		t.Fatal("expected nil upstream for absent slot")
	}
}

func TestStoreHistoryAndDemotion(t *testing.T) {
	store := NewStore()
	store.SetHistoryLimit(2)
	for _, text := range []string{"v1", "v2", "v3", "v4"} {
		if err := store.Put(mustNew(t, stage.Script, Payload{Text: text})); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	history := store.History(stage.Script)
	if len(history) != 2 || history[0].Payload.Text != "v2" || history[1].Payload.Text != "v3" {
		t.Fatalf("unexpected history %+v", history)
	}

	if !store.MarkStale(stage.Script, true) {
		t.Fatal("expected demotion to change the slot")
	}
	if store.MarkStale(stage.Script, true) {
		t.Fatal("second demotion should be a no-op")
	}
	if !store.Demoted(stage.Script) {
		t.Fatal("expected demoted slot")
	}
	if store.MarkStale(stage.Music, true) {
		t.Fatal("absent slot cannot be demoted")
	}

	_ = store.Put(mustNew(t, stage.Script, Payload{Text: "v5"}))
	if store.Demoted(stage.Script) {
		t.Fatal("put should clear demotion")
	}

	store.Reset()
	if store.Len() != 0 || store.History(stage.Script) != nil {
		t.Fatal("expected empty store after reset")
	}
}

func TestSnapshotRestore(t *testing.T) {
	store := NewStore()
	script := mustNew(t, stage.Script, Payload{Text: "draft"})
	scene := mustNew(t, stage.StructuredJSON, Payload{Record: json.RawMessage(`{"scene_title":"x"}`)}, Link{Stage: stage.Script, ID: script.ID})
	_ = store.Put(script)
	_ = store.Put(scene)
	store.MarkStale(stage.StructuredJSON, true)

	data, err := json.Marshal(store.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored := NewStore()
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, ok := restored.Get(stage.StructuredJSON)
	if !ok || got.ID != scene.ID {
		t.Fatalf("restored slot = %+v", got)
	}
	if !restored.Demoted(stage.StructuredJSON) {
		t.Fatal("demotion flag lost")
	}
}

func TestRestoreRejectsTamperedArtifact(t *testing.T) {
	store := NewStore()
	_ = store.Put(mustNew(t, stage.Script, Payload{Text: "kept"}))

	snap := Snapshot{Slots: []SlotSnapshot{{Artifact: mustNew(t, stage.Script, Payload{Text: "original"})}}}
	snap.Slots[0].Artifact.Payload.Text = "edited"
	if err := store.Restore(snap); err == nil {
		t.Fatal("expected id mismatch error")
	}
	got, _ := store.Get(stage.Script)
	if got.Payload.Text != "kept" {
		t.Fatal("failed restore must leave store unchanged")
	}
}
