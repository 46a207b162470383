package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"scenecraft/internal/provider"
)

func chatServer(t *testing.T, status int, payload any, inspect func(*http.Request, chatCompletionRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if inspect != nil {
			inspect(r, req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
}

func contentPayload(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}},
		},
	}
}

func TestClientHealthCheck(t *testing.T) {
	server := chatServer(t, http.StatusOK, contentPayload("```json\n{\"ok\":true}\n```"), nil)
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestChatSendsSystemPromptAndTemperature(t *testing.T) {
	server := chatServer(t, http.StatusOK, contentPayload("INT. FACTORY - DAY"), func(r *http.Request, req chatCompletionRequest) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "a prank" {
			t.Fatalf("unexpected messages %+v", req.Messages)
		}
		if req.Temperature != 0.7 {
			t.Fatalf("expected temperature 0.7, got %v", req.Temperature)
		}
		if req.ResponseFormat != nil {
			t.Fatalf("chat must not request json mode")
		}
	})
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	res, err := client.Chat(context.Background(), provider.ChatRequest{
		System:      "You are a screenwriter.",
		Messages:    []provider.Message{{Role: "user", Content: "a prank"}},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if res.Text != "INT. FACTORY - DAY" || res.Model != defaultModel {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestStructureUsesJSONMode(t *testing.T) {
	server := chatServer(t, http.StatusOK, contentPayload("Here you go: {\"scene_title\":\"x\"}"), func(_ *http.Request, req chatCompletionRequest) {
		if req.ResponseFormat["type"] != jsonResponseType {
			t.Fatalf("expected json mode, got %v", req.ResponseFormat)
		}
	})
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	res, err := client.Structure(context.Background(), provider.StructuredRequest{System: "json", Prompt: "script", Temperature: 0.3})
	if err != nil {
		t.Fatalf("Structure returned error: %v", err)
	}
	if string(res.Record) != `{"scene_title":"x"}` {
		t.Fatalf("unexpected record %s", res.Record)
	}
}

func TestClientFailureClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload any
		kind    provider.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, map[string]string{"error": "bad key"}, provider.KindAuthFailed},
		{"rate limited", http.StatusTooManyRequests, map[string]string{"error": "slow down"}, provider.KindRateLimited},
		{"server error", http.StatusBadGateway, map[string]string{"error": "upstream"}, provider.KindTransient},
		{"content policy", http.StatusBadRequest, map[string]any{"error": map[string]string{"code": "content_policy_violation"}}, provider.KindContentRejected},
		{"refusal", http.StatusOK, map[string]any{"choices": []any{map[string]any{"message": map[string]any{"refusal": "I can't help with that"}}}}, provider.KindContentRejected},
		{"empty", http.StatusOK, map[string]any{"choices": []any{map[string]any{"finish_reason": "length"}}}, provider.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := chatServer(t, tt.status, tt.payload, nil)
			defer server.Close()

			client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
			_, err := client.Chat(context.Background(), provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "hi"}}})
			var failure *provider.Failure
			if !errors.As(err, &failure) {
				t.Fatalf("expected provider failure, got %v", err)
			}
			if failure.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s (%v)", tt.kind, failure.Kind, err)
			}
		})
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Chat(context.Background(), provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "hi"}}})
	var failure *provider.Failure
	if !errors.As(err, &failure) || failure.Kind != provider.KindAuthFailed {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestClientCancelledContext(t *testing.T) {
	server := chatServer(t, http.StatusOK, contentPayload("late"), nil)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	_, err := client.Chat(ctx, provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "hi"}}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDecodeModelJSONSalvagesWrappedPayloads(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}
	if err := decodeModelJSON("```json\n{\"a\":1}\n```", &out); err != nil || out.A != 1 {
		t.Fatalf("fenced decode: %v %+v", err, out)
	}
	if err := decodeModelJSON("noise {\"a\":2} trailing", &out); err != nil || out.A != 2 {
		t.Fatalf("embedded decode: %v %+v", err, out)
	}
	var list []int
	if err := decodeModelJSON("Here you go: [1, 2, 3]", &list); err != nil || len(list) != 3 {
		t.Fatalf("array decode: %v %v", err, list)
	}
	if err := decodeModelJSON("no json here", &out); err == nil {
		t.Fatal("expected error for prose payload")
	}
	if err := decodeModelJSON("", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
