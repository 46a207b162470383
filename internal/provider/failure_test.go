package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestFromHTTPStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   Kind
	}{
		{http.StatusUnauthorized, `{"error":"bad key"}`, KindAuthFailed},
		{http.StatusForbidden, "", KindAuthFailed},
		{http.StatusTooManyRequests, "slow down", KindRateLimited},
		{http.StatusRequestTimeout, "", KindTransient},
		{http.StatusBadGateway, "", KindTransient},
		{http.StatusBadRequest, `{"error":{"code":"content_policy_violation"}}`, KindContentRejected},
		{http.StatusUnprocessableEntity, `{"detail":{"status":"bad_prompt"}}`, KindContentRejected},
		{http.StatusBadRequest, `{"error":"size must be one of"}`, KindInvalidInput},
		{http.StatusNotFound, "", KindInvalidInput},
	}
	for _, tc := range cases {
		got := FromHTTPStatus("openai", tc.status, tc.body, 0)
		if got.Kind != tc.want {
			t.Fatalf("status %d body %q: kind %s, want %s", tc.status, tc.body, got.Kind, tc.want)
		}
		if got.StatusCode != tc.status {
			t.Fatalf("expected status code to be recorded, got %d", got.StatusCode)
		}
	}
}

func TestRetryableKinds(t *testing.T) {
	retryable := map[Kind]bool{
		KindTransient:       true,
		KindRateLimited:     true,
		KindAuthFailed:      false,
		KindContentRejected: false,
		KindInvalidInput:    false,
	}
	for kind, want := range retryable {
		if got := kind.Retryable(); got != want {
			t.Fatalf("%s.Retryable() = %v, want %v", kind, got, want)
		}
	}
}

func TestClassifyPassesFailureThrough(t *testing.T) {
	original := FromHTTPStatus("elevenlabs", http.StatusUnauthorized, "", 0)
	wrapped := fmt.Errorf("compose: %w", original)
	got := Classify("other", wrapped)
	if got != original {
		t.Fatalf("expected original failure, got %v", got)
	}
}

func TestClassifyCancellationIsNotAFailure(t *testing.T) {
	if got := Classify("openai", context.Canceled); got != nil {
		t.Fatalf("expected nil for cancellation, got %v", got)
	}
	if got := Classify("openai", fmt.Errorf("request: %w", context.DeadlineExceeded)); got != nil {
		t.Fatalf("expected nil for deadline, got %v", got)
	}
}

func TestClassifyUnknownErrorIsTransient(t *testing.T) {
	cause := errors.New("decode response: unexpected EOF")
	got := Classify("openai", cause)
	if got == nil || got.Kind != KindTransient {
		t.Fatalf("expected transient failure, got %v", got)
	}
	if !errors.Is(got, cause) {
		t.Fatal("expected cause to be preserved")
	}
}

func TestFailureErrorString(t *testing.T) {
	f := FromHTTPStatus("sora", http.StatusTooManyRequests, "quota exceeded", 3*time.Second)
	msg := f.Error()
	for _, fragment := range []string{"sora", "rate_limited", "http 429", "quota exceeded"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in %q", fragment, msg)
		}
	}
	if f.RetryAfter != 3*time.Second {
		t.Fatalf("unexpected retry after %s", f.RetryAfter)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := ParseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Fatalf("unexpected parse result %s %v", d, ok)
	}
	if _, ok := ParseRetryAfter("-1"); ok {
		t.Fatal("expected negative value to be rejected")
	}
	if _, ok := ParseRetryAfter(""); ok {
		t.Fatal("expected empty value to be rejected")
	}
	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if d, ok := ParseRetryAfter(future); !ok || d <= 0 {
		t.Fatalf("expected positive delay from http date, got %s %v", d, ok)
	}
}
