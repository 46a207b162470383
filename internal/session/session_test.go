package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"scenecraft/internal/logging"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/provider"
	"scenecraft/internal/retry"
	"scenecraft/internal/services"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
	"scenecraft/internal/staleness"
	"scenecraft/internal/testsupport"
)

func stubFactory(t *testing.T) Factory {
	t.Helper()
	blobs := testsupport.NewBlobStore(t)
	return func(id string) (*orchestrator.Orchestrator, error) {
		return orchestrator.New(orchestrator.Options{
			SessionID: id,
			Blobs:     blobs,
			Providers: orchestrator.Providers{
				Chat:       &testsupport.Chat{},
				Structured: &testsupport.Structured{},
				Image:      &testsupport.Image{},
				Audio:      &testsupport.Audio{},
				Video:      map[string]provider.VideoProvider{"local": &testsupport.Video{}},
			},
			Retry: retry.Policy{
				MaxAttempts: 2,
				Sleep:       func(context.Context, time.Duration) error { return nil },
			},
			Logger: logging.NewNop(),
		}), nil
	}
}

func run(t *testing.T, c *Controller, id stage.ID, overrides orchestrator.Overrides) {
	t.Helper()
	if _, err := c.RequestRun(context.Background(), id, overrides); err != nil {
		t.Fatalf("run %s: %v", id, err)
	}
}

func TestExportFinalRequiresFreshVideo(t *testing.T) {
	m := NewManager(stubFactory(t), logging.NewNop())
	c, err := m.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := c.ExportFinal(); !errors.Is(err, services.ErrPipelineIncomplete) {
		t.Fatalf("expected pipeline incomplete on empty session, got %v", err)
	}

	run(t, c, stage.Script, orchestrator.Overrides{stagegraph.KeyPremise: "a lighthouse keeper adopts a seal"})
	run(t, c, stage.StructuredJSON, nil)
	run(t, c, stage.Character, nil)
	run(t, c, stage.Music, orchestrator.Overrides{stagegraph.ParamSentiment: "hopeful"})
	if _, err := c.ExportFinal(); !errors.Is(err, services.ErrPipelineIncomplete) {
		t.Fatalf("expected pipeline incomplete without video, got %v", err)
	}

	run(t, c, stage.Video, nil)
	video, err := c.ExportFinal()
	if err != nil {
		t.Fatalf("export final: %v", err)
	}
	if video.Stage != stage.Video {
		t.Fatalf("exported %s artifact", video.Stage)
	}

	// Editing the script leaves the old video in place but stale.
	run(t, c, stage.Script, orchestrator.Overrides{stagegraph.KeyScriptText: "INT. LIGHTHOUSE - NIGHT\nThe seal barks."})
	st, err := c.StateOf(stage.Video)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.State != staleness.Stale || st.Artifact.ID != video.ID {
		t.Fatalf("video state = %s, artifact %s", st.State, st.Artifact.ID)
	}
	if _, err := c.ExportFinal(); !errors.Is(err, services.ErrPipelineIncomplete) {
		t.Fatalf("expected pipeline incomplete after edit, got %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(stubFactory(t), logging.NewNop())
	a, err := m.Create()
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := m.Create()
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatalf("sessions share an id")
	}
	if m.Len() != 2 || len(m.List()) != 2 {
		t.Fatalf("expected two sessions")
	}

	got, err := m.Get(a.ID())
	if err != nil || got != a {
		t.Fatalf("get: %v", err)
	}

	run(t, a, stage.Script, orchestrator.Overrides{stagegraph.KeyPremise: "two sessions"})
	if st, _ := b.StateOf(stage.Script); st.Present() {
		t.Fatalf("sessions share artifacts")
	}

	if err := m.Delete(a.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(a.ID()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := m.Delete(a.ID()); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestManagerWithoutFactory(t *testing.T) {
	m := NewManager(nil, nil)
	if _, err := m.Create(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestControllerSnapshotRoundTrip(t *testing.T) {
	m := NewManager(stubFactory(t), logging.NewNop())
	a, _ := m.Create()
	run(t, a, stage.Script, orchestrator.Overrides{stagegraph.KeyPremise: "restored"})
	run(t, a, stage.StructuredJSON, nil)

	b, _ := m.Create()
	if err := b.Restore(a.Snapshot()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	for _, st := range b.States()[:2] {
		if st.State != staleness.Fresh {
			t.Fatalf("%s state = %s after restore", st.Stage, st.State)
		}
	}
}

func TestDeleteWaitsForInFlightRun(t *testing.T) {
	chat := &testsupport.Chat{}
	chat.Block = make(chan struct{})
	chat.Entered = make(chan struct{}, 1)
	blobs := testsupport.NewBlobStore(t)
	m := NewManager(func(id string) (*orchestrator.Orchestrator, error) {
		return orchestrator.New(orchestrator.Options{
			SessionID: id,
			Blobs:     blobs,
			Providers: orchestrator.Providers{Chat: chat},
			Retry:     retry.Policy{MaxAttempts: 1},
			Logger:    logging.NewNop(),
		}), nil
	}, logging.NewNop())
	c, err := m.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.RequestRun(context.Background(), stage.Script, orchestrator.Overrides{stagegraph.KeyPremise: "a slow kettle"})
		done <- err
	}()
	<-chat.Entered

	if err := m.Delete(c.ID()); !errors.Is(err, services.ErrRunInProgress) {
		t.Fatalf("expected run in progress, got %v", err)
	}
	if _, err := m.Get(c.ID()); err != nil {
		t.Fatalf("session removed during a run: %v", err)
	}

	close(chat.Block)
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := m.Delete(c.ID()); err != nil {
		t.Fatalf("delete after run: %v", err)
	}
}

func TestFinalExportMatchesSnapshot(t *testing.T) {
	m := NewManager(stubFactory(t), logging.NewNop())
	c, _ := m.Create()
	run(t, c, stage.Script, orchestrator.Overrides{stagegraph.KeyPremise: "a kite festival"})
	run(t, c, stage.StructuredJSON, nil)
	run(t, c, stage.Character, nil)
	run(t, c, stage.Music, orchestrator.Overrides{stagegraph.ParamSentiment: "breezy"})
	run(t, c, stage.Video, nil)

	final, err := c.FinalExport()
	if err != nil {
		t.Fatalf("final export: %v", err)
	}
	if len(final.States) != len(stage.All()) || len(final.Snapshot.Slots) != len(stage.All()) {
		t.Fatalf("capture has %d states and %d slots", len(final.States), len(final.Snapshot.Slots))
	}
	for i, slot := range final.Snapshot.Slots {
		if slot.Artifact.ID != final.States[i].Artifact.ID {
			t.Fatalf("%s: snapshot %s, state %s", slot.Artifact.Stage, slot.Artifact.ID, final.States[i].Artifact.ID)
		}
	}
	if final.Snapshot.Slots[len(final.Snapshot.Slots)-1].Artifact.ID != final.Video.ID {
		t.Fatalf("snapshot video differs from exported video")
	}
}
