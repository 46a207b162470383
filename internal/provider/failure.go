package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Kind classifies why a provider call failed.
type Kind int

const (
	KindTransient Kind = iota
	KindRateLimited
	KindAuthFailed
	KindContentRejected
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuthFailed:
		return "auth_failed"
	case KindContentRejected:
		return "content_rejected"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "transient"
	}
}

// Retryable reports whether another attempt may succeed without changing the
// request.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// Failure is the typed error every provider client returns.
type Failure struct {
	Provider   string
	Kind       Kind
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (f *Failure) Error() string {
	var b strings.Builder
	if f.Provider != "" {
		b.WriteString(f.Provider)
		b.WriteString(": ")
	}
	b.WriteString(f.Kind.String())
	if f.StatusCode > 0 {
		fmt.Fprintf(&b, " (http %d)", f.StatusCode)
	}
	if msg := strings.TrimSpace(f.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the failure is worth another attempt.
func (f *Failure) Retryable() bool { return f != nil && f.Kind.Retryable() }

// Fail constructs a Failure.
func Fail(providerName string, kind Kind, message string, err error) *Failure {
	return &Failure{Provider: providerName, Kind: kind, Message: message, Err: err}
}

var contentPolicyMarkers = []string{
	"content_policy",
	"content policy",
	"safety",
	"moderation",
	"bad_prompt",
}

// FromHTTPStatus classifies a non-2xx provider response.
func FromHTTPStatus(providerName string, status int, body string, retryAfter time.Duration) *Failure {
	f := &Failure{
		Provider:   providerName,
		StatusCode: status,
		Message:    summarize(body),
		RetryAfter: retryAfter,
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		f.Kind = KindAuthFailed
	case status == http.StatusTooManyRequests:
		f.Kind = KindRateLimited
	case status == http.StatusRequestTimeout, status >= http.StatusInternalServerError:
		f.Kind = KindTransient
	case status >= http.StatusBadRequest:
		f.Kind = KindInvalidInput
		if mentionsContentPolicy(body) {
			f.Kind = KindContentRejected
		}
	default:
		f.Kind = KindTransient
	}
	return f
}

func mentionsContentPolicy(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range contentPolicyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// MentionsContentPolicy reports whether a provider message refers to a
// moderation or safety rejection.
func MentionsContentPolicy(message string) bool {
	return mentionsContentPolicy(message)
}

// Classify converts an arbitrary error into a Failure. Context cancellation is
// not a provider failure and yields nil.
func Classify(providerName string, err error) *Failure {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var urlErr *url.Error
		if !errors.As(err, &urlErr) || !urlErr.Timeout() {
			return nil
		}
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Failure{Provider: providerName, Kind: KindTransient, Message: "network error", Err: err}
	}
	return &Failure{Provider: providerName, Kind: KindTransient, Err: err}
}

// ParseRetryAfter interprets a Retry-After header as seconds or an HTTP date.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func summarize(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 240
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
