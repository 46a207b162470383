package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scenecraft/internal/archive"
	"scenecraft/internal/artifact"
	"scenecraft/internal/logging"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/provider"
	"scenecraft/internal/retry"
	"scenecraft/internal/services"
	"scenecraft/internal/session"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
	"scenecraft/internal/testsupport"
)

type fakeEncoder struct {
	calls int
	err   error
}

func (f *fakeEncoder) Encode(_ context.Context, input, outputDir string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	out := filepath.Join(outputDir, "generated_video.mkv")
	data, err := os.ReadFile(input)
	if err != nil {
		return "", err
	}
	return out, os.WriteFile(out, data, 0o644)
}

func newSession(t *testing.T) *session.Controller {
	t.Helper()
	factory := func(id string) (*orchestrator.Orchestrator, error) {
		return orchestrator.New(orchestrator.Options{
			SessionID: id,
			Blobs:     testsupport.NewBlobStore(t),
			Providers: orchestrator.Providers{
				Chat:       &testsupport.Chat{},
				Structured: &testsupport.Structured{},
				Image:      &testsupport.Image{},
				Audio:      &testsupport.Audio{},
				Video:      map[string]provider.VideoProvider{"local": &testsupport.Video{}},
			},
			Retry:  retry.Policy{MaxAttempts: 1, Sleep: func(context.Context, time.Duration) error { return nil }},
			Logger: logging.NewNop(),
		}), nil
	}
	ctrl, err := session.NewManager(factory, logging.NewNop()).Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return ctrl
}

func runAll(t *testing.T, ctrl *session.Controller) {
	t.Helper()
	overrides := map[stage.ID]orchestrator.Overrides{
		stage.Script: {stagegraph.KeyPremise: "a cat runs a bakery"},
		stage.Music:  {stagegraph.ParamSentiment: "playful"},
	}
	for _, id := range stage.All() {
		if _, err := ctrl.RequestRun(context.Background(), id, overrides[id]); err != nil {
			t.Fatalf("run %s: %v", id, err)
		}
	}
}

func TestExportRequiresFreshPipeline(t *testing.T) {
	ctrl := newSession(t)
	exp := New(t.TempDir(), logging.NewNop())
	if _, err := exp.Export(context.Background(), ctrl); !errors.Is(err, services.ErrPipelineIncomplete) {
		t.Fatalf("expected pipeline incomplete, got %v", err)
	}
}

func TestExportWritesFilesEncodesAndArchives(t *testing.T) {
	ctrl := newSession(t)
	runAll(t, ctrl)

	ctx := context.Background()
	store, err := archive.Open(ctx, filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer store.Close()

	encoder := &fakeEncoder{}
	out := t.TempDir()
	exp := New(out, logging.NewNop(), WithEncoder(encoder), WithArchive(store))
	res, err := exp.Export(ctx, ctrl)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if res.Dir != filepath.Join(out, ctrl.ID()) {
		t.Fatalf("dir = %s", res.Dir)
	}
	for _, name := range []string{VideoFileName, "scene.json", "script.txt", "character.png", "music.mp3"} {
		if _, err := os.Stat(filepath.Join(res.Dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if encoder.calls != 1 || res.EncodedPath == "" {
		t.Fatalf("encoder not used: %+v", res)
	}

	rec, err := store.Load(ctx, res.ArchiveID)
	if err != nil {
		t.Fatalf("load archive: %v", err)
	}
	if rec.SessionID != ctrl.ID() || len(rec.Snapshot.Slots) != len(stage.All()) {
		t.Fatalf("unexpected archive record: %+v", rec.Summary)
	}
	if rec.Title == "" {
		t.Fatalf("archive record has no scene title")
	}
}

func TestExportSurvivesEncoderFailure(t *testing.T) {
	ctrl := newSession(t)
	runAll(t, ctrl)

	exp := New(t.TempDir(), logging.NewNop(), WithEncoder(&fakeEncoder{err: errors.New("drapto missing")}))
	res, err := exp.Export(context.Background(), ctrl)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.EncodedPath != "" {
		t.Fatalf("encoded path set after failure")
	}
	if _, err := os.Stat(res.VideoPath); err != nil {
		t.Fatalf("video missing: %v", err)
	}
}

type recordingArchiver struct {
	snap artifact.Snapshot
}

func (r *recordingArchiver) Save(_ context.Context, sessionID, title string, snap artifact.Snapshot) (archive.Summary, error) {
	r.snap = snap
	return archive.Summary{ID: "rec-1", SessionID: sessionID, Title: title}, nil
}

// editAfterCapture commits a script edit as soon as the export's capture has
// been taken.
type editAfterCapture struct {
	*session.Controller
	t        *testing.T
	captured session.Final
}

func (e *editAfterCapture) FinalExport() (session.Final, error) {
	final, err := e.Controller.FinalExport()
	if err != nil {
		return final, err
	}
	e.captured = final
	if _, err := e.RequestRun(context.Background(), stage.Script, orchestrator.Overrides{
		stagegraph.KeyScriptText: "INT. BAKERY - NIGHT\nThe cat closes up shop.",
	}); err != nil {
		e.t.Fatalf("edit script: %v", err)
	}
	return final, nil
}

func TestExportUsesOneCapture(t *testing.T) {
	ctrl := newSession(t)
	runAll(t, ctrl)

	rec := &recordingArchiver{}
	sess := &editAfterCapture{Controller: ctrl, t: t}
	res, err := New(t.TempDir(), logging.NewNop(), WithArchive(rec)).Export(context.Background(), sess)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if st, _ := ctrl.StateOf(stage.Video); st.State.String() != "stale" {
		t.Fatalf("edit did not commit; video is %s", st.State)
	}
	var script, video artifact.Artifact
	for _, st := range sess.captured.States {
		switch st.Stage {
		case stage.Script:
			script = st.Artifact
		case stage.Video:
			video = st.Artifact
		}
	}
	for _, slot := range rec.snap.Slots {
		switch slot.Artifact.Stage {
		case stage.Script:
			if slot.Artifact.ID != script.ID {
				t.Fatalf("archived script %s, exported %s", slot.Artifact.ID, script.ID)
			}
		case stage.Video:
			if slot.Artifact.ID != video.ID {
				t.Fatalf("archived video %s, exported %s", slot.Artifact.ID, video.ID)
			}
		}
	}
	data, err := os.ReadFile(filepath.Join(res.Dir, "script.txt"))
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	if string(data) != script.Payload.Text+"\n" {
		t.Fatalf("exported script %q is not the captured one", data)
	}
}
