package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"scenecraft/internal/api"
	"scenecraft/internal/config"
	"scenecraft/internal/logging"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/pipeline"
	"scenecraft/internal/provider"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
	"scenecraft/internal/testsupport"
)

func startTestServer(t *testing.T, token string) (*Daemon, *api.Client) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = token
	providers := orchestrator.Providers{
		Chat:       &testsupport.Chat{},
		Structured: &testsupport.Structured{},
		Image:      &testsupport.Image{},
		Audio:      &testsupport.Audio{},
		Video:      map[string]provider.VideoProvider{config.VideoModeLocal: &testsupport.Video{}},
	}
	rt, err := pipeline.Open(context.Background(), cfg, logging.NewNop(), pipeline.WithProviders(providers))
	if err != nil {
		t.Fatalf("pipeline.Open: %v", err)
	}
	hub := logging.NewStreamHub(64)
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", OutputPaths: []string{"stderr"}, Stream: hub})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	d, err := New(cfg, rt, logger, hub)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, api.NewClient(d.Addr(), token)
}

func TestAPIGenerateAndExport(t *testing.T) {
	_, client := startTestServer(t, "")
	ctx := context.Background()

	created, err := client.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(created.Stages) != len(stage.All()) {
		t.Fatalf("expected %d stages, got %d", len(stage.All()), len(created.Stages))
	}
	for _, st := range created.Stages {
		if st.State != "absent" {
			t.Fatalf("new session stage %s is %s", st.Stage, st.State)
		}
	}

	overrides := map[stage.ID]map[string]string{
		stage.Script: {stagegraph.KeyPremise: "a lighthouse keeper adopts a crab"},
	}
	for _, id := range stage.All() {
		resp, err := client.RunStage(ctx, created.ID, string(id), overrides[id])
		if err != nil {
			t.Fatalf("run %s: %v", id, err)
		}
		if resp.Stage.State != "fresh" || resp.Stage.Artifact == nil {
			t.Fatalf("run %s returned %+v", id, resp.Stage)
		}
	}

	detail, err := client.Session(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	video := detail.Stages[len(detail.Stages)-1]
	if video.Stage != "video" || video.Artifact == nil || len(video.Artifact.Blobs) == 0 {
		t.Fatalf("video slot incomplete: %+v", video)
	}

	exported, err := client.Export(ctx, created.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(exported.VideoPath); err != nil {
		t.Fatalf("exported video missing: %v", err)
	}
	if exported.ArchiveID == "" {
		t.Fatal("expected an archive id")
	}
}

func TestAPIManualEditDemotesDownstream(t *testing.T) {
	_, client := startTestServer(t, "")
	ctx := context.Background()
	created, err := client.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := client.RunStage(ctx, created.ID, "script", map[string]string{stagegraph.KeyPremise: "x"}); err != nil {
		t.Fatalf("run script: %v", err)
	}
	if _, err := client.RunStage(ctx, created.ID, "json", nil); err != nil {
		t.Fatalf("run structured_json: %v", err)
	}

	resp, err := client.RunStage(ctx, created.ID, "script", map[string]string{stagegraph.KeyScriptText: "INT. NEW SCRIPT - NIGHT"})
	if err != nil {
		t.Fatalf("edit script: %v", err)
	}
	if !resp.Manual {
		t.Fatal("expected a manual commit")
	}
	if len(resp.Demoted) != 1 || resp.Demoted[0] != "structured_json" {
		t.Fatalf("demoted = %v", resp.Demoted)
	}
	detail, err := client.Session(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if detail.Stages[1].State != "stale" {
		t.Fatalf("structured_json state = %s", detail.Stages[1].State)
	}
	if detail.Stages[1].Artifact == nil {
		t.Fatal("stale artifact should still be shown")
	}
}

func TestAPIErrorsCarryKind(t *testing.T) {
	_, client := startTestServer(t, "")
	ctx := context.Background()
	created, err := client.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	tests := []struct {
		name   string
		call   func() error
		status int
		kind   string
	}{
		{"dependency not ready", func() error {
			_, err := client.RunStage(ctx, created.ID, "character", nil)
			return err
		}, http.StatusConflict, "dependency_not_ready"},
		{"unknown stage", func() error {
			_, err := client.RunStage(ctx, created.ID, "soundtrack", nil)
			return err
		}, http.StatusBadRequest, "validation"},
		{"unknown session", func() error {
			_, err := client.Session(ctx, "missing")
			return err
		}, http.StatusNotFound, "not_found"},
		{"export before video", func() error {
			_, err := client.Export(ctx, created.ID)
			return err
		}, http.StatusConflict, "pipeline_incomplete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr *api.Error
			if err := tt.call(); !errors.As(err, &apiErr) {
				t.Fatalf("expected *api.Error, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Kind != tt.kind {
				t.Fatalf("got %d %s, want %d %s", apiErr.Status, apiErr.Kind, tt.status, tt.kind)
			}
		})
	}

	var apiErr *api.Error
	_, err = client.RunStage(ctx, created.ID, "character", nil)
	if !errors.As(err, &apiErr) || apiErr.Hint != "run structured_json first" {
		t.Fatalf("unexpected hint: %v", err)
	}
}

func TestAPIServesBlobs(t *testing.T) {
	d, client := startTestServer(t, "")
	ctx := context.Background()
	created, err := client.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, id := range []string{"script", "structured_json", "character"} {
		var o map[string]string
		if id == "script" {
			o = map[string]string{stagegraph.KeyPremise: "x"}
		}
		if _, err := client.RunStage(ctx, created.ID, id, o); err != nil {
			t.Fatalf("run %s: %v", id, err)
		}
	}
	detail, err := client.Session(ctx, created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	blob := detail.Stages[2].Artifact.Blobs[0]

	resp, err := http.Get("http://" + d.Addr() + blob.URL)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("blob status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(body), "png:") {
		t.Fatalf("unexpected blob body %q", body)
	}

	missing, err := http.Get("http://" + d.Addr() + api.BlobURL(strings.Repeat("0", 64)))
	if err != nil {
		t.Fatalf("get missing blob: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing blob status = %d", missing.StatusCode)
	}
}

func TestAPIRequiresTokenWhenConfigured(t *testing.T) {
	d, client := startTestServer(t, "secret")

	resp, err := http.Get("http://" + d.Addr() + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("authorized status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running status")
	}
}

func TestAPIEventsFilterBySession(t *testing.T) {
	d, client := startTestServer(t, "")
	ctx := context.Background()
	created, err := client.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	d.LogStream().Publish(logging.LogEvent{Level: "INFO", Message: "other", SessionID: "someone-else"})
	d.LogStream().Publish(logging.LogEvent{Level: "INFO", Message: "mine", SessionID: created.ID})

	req := httptest.NewRequest(http.MethodGet, "/api/events?session="+created.ID, nil)
	w := httptest.NewRecorder()
	d.server.server.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("events status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"msg":"mine"`) || strings.Contains(w.Body.String(), `"msg":"other"`) {
		t.Fatalf("unexpected events body: %s", w.Body.String())
	}

	all, err := client.Events(ctx, 0, 0, false)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if all.Next == 0 || len(all.Events) < 2 {
		t.Fatalf("expected published events, got %+v", all)
	}
}
