package sora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scenecraft/internal/provider"
)

const (
	providerName        = "openai-sora"
	defaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "sora-2-pro"
	defaultPollInterval = 5 * time.Second
	defaultPollAttempts = 120
	defaultHTTPTimeout  = 120 * time.Second
)

// Config captures the video endpoint settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	PollInterval   time.Duration
	PollAttempts   int
	TimeoutSeconds int
}

// Client submits video jobs and polls them to completion.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithSleeper replaces the poll delay (tests).
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// NewClient builds a client. A nil httpClient gets a default with the
// configured timeout.
func NewClient(cfg Config, httpClient *http.Client, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaultPollAttempts
	}
	if httpClient == nil {
		timeout := defaultHTTPTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{cfg: cfg, httpClient: httpClient, sleep: sleepContext}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.cfg.Model }

type submitRequest struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration,omitempty"`
}

type videoLink struct {
	URL         string `json:"url"`
	DownloadURL string `json:"download_url"`
}

func (l *videoLink) best() string {
	if l == nil {
		return ""
	}
	if l.URL != "" {
		return l.URL
	}
	return l.DownloadURL
}

type jobResponse struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	State  string      `json:"state"`
	Video  *videoLink  `json:"video"`
	Result *videoLink  `json:"result"`
	Data   []videoLink `json:"data"`
	Error  any         `json:"error"`
}

func (j jobResponse) status() string {
	if j.Status != "" {
		return strings.ToLower(j.Status)
	}
	return strings.ToLower(j.State)
}

func (j jobResponse) downloadURL() string {
	if u := j.Video.best(); u != "" {
		return u
	}
	if u := j.Result.best(); u != "" {
		return u
	}
	for i := range j.Data {
		if u := j.Data[i].best(); u != "" {
			return u
		}
	}
	return ""
}

// Generate renders one clip for prompt and returns the MP4 bytes.
func (c *Client) Generate(ctx context.Context, prompt string, seconds float64) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, provider.Fail(providerName, provider.KindAuthFailed, "api key not configured", nil)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, provider.Fail(providerName, provider.KindInvalidInput, "prompt required", nil)
	}
	jobID, err := c.submit(ctx, prompt, int(math.Ceil(seconds)))
	if err != nil {
		return nil, err
	}
	return c.await(ctx, jobID)
}

func (c *Client) submit(ctx context.Context, prompt string, duration int) (string, error) {
	body := submitRequest{Model: c.cfg.Model, Prompt: prompt, Duration: duration}
	payload, err := c.do(ctx, http.MethodPost, c.endpoint("videos"), body)
	if failure, ok := asFailure(err); ok && duration > 0 && rejectsDuration(failure) {
		body.Duration = 0
		payload, err = c.do(ctx, http.MethodPost, c.endpoint("videos"), body)
	}
	if err != nil {
		return "", err
	}
	var job jobResponse
	if err := json.Unmarshal(payload, &job); err != nil || strings.TrimSpace(job.ID) == "" {
		return "", provider.Fail(providerName, provider.KindTransient, "submit response missing job id", err)
	}
	return job.ID, nil
}

func (c *Client) await(ctx context.Context, jobID string) ([]byte, error) {
	statusURL := c.endpoint("videos", jobID)
	for attempt := 1; attempt <= c.cfg.PollAttempts; attempt++ {
		payload, err := c.do(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return nil, err
		}
		var job jobResponse
		if err := json.Unmarshal(payload, &job); err != nil {
			return nil, provider.Fail(providerName, provider.KindTransient, "decode job status", err)
		}
		switch job.status() {
		case "succeeded", "completed", "ready":
			return c.download(ctx, jobID, job.downloadURL())
		case "failed", "error":
			detail := fmt.Sprintf("job %s failed: %v", jobID, job.Error)
			if provider.MentionsContentPolicy(detail) {
				return nil, provider.Fail(providerName, provider.KindContentRejected, detail, nil)
			}
			return nil, provider.Fail(providerName, provider.KindTransient, detail, nil)
		}
		if attempt == c.cfg.PollAttempts {
			break
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
	return nil, provider.Fail(providerName, provider.KindTransient,
		fmt.Sprintf("job %s did not finish after %d polls", jobID, c.cfg.PollAttempts), nil)
}

func (c *Client) download(ctx context.Context, jobID, link string) ([]byte, error) {
	if link == "" {
		link = c.endpoint("videos", jobID, "content")
	}
	data, err := c.do(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, provider.Fail(providerName, provider.KindTransient, "empty video download", nil)
	}
	return data, nil
}

func (c *Client) endpoint(parts ...string) string {
	joined, err := url.JoinPath(c.cfg.BaseURL, parts...)
	if err != nil {
		return c.cfg.BaseURL + "/" + strings.Join(parts, "/")
	}
	return joined
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, provider.Fail(providerName, provider.KindInvalidInput, "encode body", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, provider.Fail(providerName, provider.KindInvalidInput, "build request", err)
	}
	if strings.HasPrefix(endpoint, c.cfg.BaseURL) {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, provider.Classify(providerName, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Classify(providerName, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := provider.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, provider.FromHTTPStatus(providerName, resp.StatusCode, string(payload), retryAfter)
	}
	return payload, nil
}

func asFailure(err error) (*provider.Failure, bool) {
	var failure *provider.Failure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}

func rejectsDuration(f *provider.Failure) bool {
	if f.Kind != provider.KindInvalidInput {
		return false
	}
	msg := strings.ToLower(f.Message)
	return strings.Contains(msg, "duration") ||
		strings.Contains(msg, "unknown_parameter") ||
		strings.Contains(msg, "invalid_parameter")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
