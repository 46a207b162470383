package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"scenecraft/internal/provider"
)

func TestGenerateAudioPlansThenComposes(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if r.Header.Get("xi-api-key") != "k" {
			t.Fatalf("missing api key header")
		}
		switch r.URL.Path {
		case "/v1/music/plan":
			var req planRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode plan: %v", err)
			}
			if req.Prompt != "[Refine existing track] playful piano" || req.MusicLengthMS != DefaultLengthMS {
				t.Fatalf("unexpected plan request %+v", req)
			}
			_, _ = w.Write([]byte(`{"sections":[{"name":"intro"}]}`))
		case "/v1/music":
			var req composeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode compose: %v", err)
			}
			if string(req.CompositionPlan) != `{"sections":[{"name":"intro"}]}` {
				t.Fatalf("plan not forwarded: %s", req.CompositionPlan)
			}
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3-audio"))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, nil)
	res, err := client.GenerateAudio(context.Background(), provider.AudioRequest{Prompt: "playful piano", Refine: true})
	if err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	if string(res.Data) != "ID3-audio" || res.MediaType != "audio/mpeg" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(calls) != 2 {
		t.Fatalf("expected two calls, got %v", calls)
	}
}

func TestGenerateAudioFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   provider.Kind
	}{
		{"auth", http.StatusUnauthorized, provider.KindAuthFailed},
		{"rate", http.StatusTooManyRequests, provider.KindRateLimited},
		{"server", http.StatusServiceUnavailable, provider.KindTransient},
		{"bad input", http.StatusUnprocessableEntity, provider.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, nil)
			_, err := client.GenerateAudio(context.Background(), provider.AudioRequest{Prompt: "x", LengthMS: 10000})
			var failure *provider.Failure
			if !errors.As(err, &failure) || failure.Kind != tt.kind {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestGenerateAudioRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, nil).GenerateAudio(context.Background(), provider.AudioRequest{Prompt: "x"})
	var failure *provider.Failure
	if !errors.As(err, &failure) || failure.Kind != provider.KindAuthFailed {
		t.Fatalf("expected auth failure, got %v", err)
	}
}
