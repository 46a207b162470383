package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scenecraft/internal/provider"
)

const (
	providerName       = "elevenlabs-music"
	defaultBaseURL     = "https://api.elevenlabs.io"
	DefaultLengthMS    = 45000
	defaultHTTPTimeout = 180 * time.Second
	refinePrefix       = "[Refine existing track] "
)

// Config captures the ElevenLabs music settings.
type Config struct {
	APIKey         string
	BaseURL        string
	LengthMS       int
	TimeoutSeconds int
}

// Client composes music in two calls: a composition plan, then the render.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a client. A nil httpClient gets a default with the
// configured timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.LengthMS <= 0 {
		cfg.LengthMS = DefaultLengthMS
	}
	if httpClient == nil {
		timeout := defaultHTTPTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

func (c *Client) Name() string { return providerName }

type planRequest struct {
	Prompt        string `json:"prompt"`
	MusicLengthMS int    `json:"music_length_ms"`
}

type composeRequest struct {
	CompositionPlan json.RawMessage `json:"composition_plan"`
}

// GenerateAudio implements provider.AudioProvider.
func (c *Client) GenerateAudio(ctx context.Context, req provider.AudioRequest) (provider.AudioResult, error) {
	if c.cfg.APIKey == "" {
		return provider.AudioResult{}, provider.Fail(providerName, provider.KindAuthFailed, "api key not configured", nil)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return provider.AudioResult{}, provider.Fail(providerName, provider.KindInvalidInput, "prompt required", nil)
	}
	if req.Refine {
		prompt = refinePrefix + prompt
	}
	length := req.LengthMS
	if length <= 0 {
		length = c.cfg.LengthMS
	}

	plan, _, err := c.post(ctx, "/v1/music/plan", planRequest{Prompt: prompt, MusicLengthMS: length}, "application/json")
	if err != nil {
		return provider.AudioResult{}, err
	}
	if !json.Valid(plan) {
		return provider.AudioResult{}, provider.Fail(providerName, provider.KindTransient, "composition plan is not valid json", nil)
	}
	audio, mediaType, err := c.post(ctx, "/v1/music", composeRequest{CompositionPlan: plan}, "audio/mpeg")
	if err != nil {
		return provider.AudioResult{}, err
	}
	if len(audio) == 0 {
		return provider.AudioResult{}, provider.Fail(providerName, provider.KindTransient, "compose returned no audio", nil)
	}
	if !strings.HasPrefix(mediaType, "audio/") {
		mediaType = "audio/mpeg"
	}
	return provider.AudioResult{Data: audio, MediaType: mediaType, Model: "music_v1"}, nil
}

func (c *Client) post(ctx context.Context, path string, body any, accept string) ([]byte, string, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, "", provider.Fail(providerName, provider.KindInvalidInput, "encode body", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return nil, "", provider.Fail(providerName, provider.KindInvalidInput, "build url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, "", provider.Fail(providerName, provider.KindInvalidInput, "build request", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", provider.Classify(providerName, fmt.Errorf("%s: %w", path, err))
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", provider.Classify(providerName, fmt.Errorf("%s: read body: %w", path, err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := provider.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, "", provider.FromHTTPStatus(providerName, resp.StatusCode, string(payload), retryAfter)
	}
	mediaType := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	return payload, mediaType, nil
}
