package stage

import (
	"errors"
	"testing"

	"scenecraft/internal/services"
)

func TestParseAcceptsAliases(t *testing.T) {
	cases := map[string]ID{
		"script":          Script,
		"Structured-JSON": StructuredJSON,
		"json":            StructuredJSON,
		" music ":         Music,
		"image":           Character,
		"VIDEO":           Video,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	_, err := Parse("storyboard")
	if err == nil {
		t.Fatal("expected error for unknown stage")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

func TestTitle(t *testing.T) {
	if got := StructuredJSON.Title(); got != "Structured JSON" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := Music.Title(); got != "Music" {
		t.Fatalf("unexpected title %q", got)
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("music"); !h.Ready || h.Name != "music" {
		t.Fatalf("unexpected healthy record %+v", h)
	}
	if h := Unhealthy("video", "ffmpeg missing"); h.Ready || h.Detail != "ffmpeg missing" {
		t.Fatalf("unexpected unhealthy record %+v", h)
	}
}
