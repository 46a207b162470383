package services_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"scenecraft/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProviderTransient, "music", "compose", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrProviderTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"music", "compose", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := services.Wrap(services.ErrPipelineIncomplete, "video", "export", "", nil)
	if !errors.Is(err, services.ErrPipelineIncomplete) {
		t.Fatalf("expected marker, got %v", err)
	}
	if got := err.Error(); got != "pipeline incomplete: video: export" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
		name string
	}{
		{services.Wrap(services.ErrDependencyNotReady, "video", "validate", "", nil), http.StatusConflict, "dependency_not_ready"},
		{services.Wrap(services.ErrRunInProgress, "script", "run", "", nil), http.StatusConflict, "run_in_progress"},
		{services.Wrap(services.ErrProviderTransient, "music", "compose", "", nil), http.StatusBadGateway, "provider_transient"},
		{services.Wrap(services.ErrProviderRejected, "character", "image", "", nil), http.StatusUnprocessableEntity, "provider_rejected"},
		{services.Wrap(services.ErrValidation, "script", "validate", "", nil), http.StatusBadRequest, "validation"},
		{services.Wrap(services.ErrNotFound, "", "session", "", nil), http.StatusNotFound, "not_found"},
		{errors.New("other"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		if got := services.HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
		if got := services.MarkerName(tc.err); got != tc.name {
			t.Fatalf("MarkerName(%v) = %q, want %q", tc.err, got, tc.name)
		}
	}
}
