package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scenecraft/internal/provider"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\nfake")

func TestGenerateImageDownloadsURL(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/images/generations":
			var req generationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if req.Size != "1792x1024" || req.N != 1 || req.Model != "dall-e-3" {
				t.Fatalf("unexpected request %+v", req)
			}
			if !strings.HasSuffix(req.Prompt, "\nReference note: keep the hats") {
				t.Fatalf("reference note not appended: %q", req.Prompt)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{map[string]string{"url": server.URL + "/files/img.png"}}})
		case "/files/img.png":
			_, _ = w.Write(pngHeader)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, server.Client())
	res, err := client.GenerateImage(context.Background(), provider.ImageRequest{
		Prompt:        "three factory workers",
		Size:          "1792x1024",
		ReferenceNote: "keep the hats",
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(res.Data) != string(pngHeader) || res.MediaType != "image/png" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasSuffix(res.SourceURL, "/files/img.png") {
		t.Fatalf("unexpected source url %q", res.SourceURL)
	}
}

func TestGenerateImageDecodesBase64(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{map[string]string{"b64_json": base64.StdEncoding.EncodeToString(pngHeader)}}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, nil)
	res, err := client.GenerateImage(context.Background(), provider.ImageRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(res.Data) != string(pngHeader) {
		t.Fatalf("unexpected bytes %q", res.Data)
	}
}

func TestGenerateImageRejectsBadSize(t *testing.T) {
	client := NewClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := client.GenerateImage(context.Background(), provider.ImageRequest{Prompt: "x", Size: "640x480"})
	var failure *provider.Failure
	if !errors.As(err, &failure) || failure.Kind != provider.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestGenerateImageSafetyRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"content_policy_violation","message":"rejected by safety system"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL}, nil)
	_, err := client.GenerateImage(context.Background(), provider.ImageRequest{Prompt: "x"})
	var failure *provider.Failure
	if !errors.As(err, &failure) || failure.Kind != provider.KindContentRejected {
		t.Fatalf("expected content rejection, got %v", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{Size: "bogus"}, nil)
	if client.cfg.Size != DefaultSize || client.cfg.Model != defaultModel || client.cfg.BaseURL != defaultBaseURL {
		t.Fatalf("unexpected defaults %+v", client.cfg)
	}
}
