package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"scenecraft/internal/provider"
)

const (
	providerName       = "openai-images"
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "dall-e-3"
	DefaultSize        = "1024x1024"
	defaultHTTPTimeout = 120 * time.Second
)

// Sizes lists the image sizes the endpoint accepts.
var Sizes = []string{"1024x1024", "1024x1792", "1792x1024"}

// ValidSize reports whether size is one of Sizes.
func ValidSize(size string) bool {
	return slices.Contains(Sizes, strings.TrimSpace(size))
}

// Config captures the image endpoint settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Size           string
	TimeoutSeconds int
}

// Client renders images through the OpenAI images API.
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
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if !ValidSize(cfg.Size) {
		cfg.Size = DefaultSize
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

type generationRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
	N      int    `json:"n"`
}

type generationResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage implements provider.ImageProvider. A reference note is
// appended to the prompt to keep style continuity across refinements.
func (c *Client) GenerateImage(ctx context.Context, req provider.ImageRequest) (provider.ImageResult, error) {
	if c.cfg.APIKey == "" {
		return provider.ImageResult{}, provider.Fail(providerName, provider.KindAuthFailed, "api key not configured", nil)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return provider.ImageResult{}, provider.Fail(providerName, provider.KindInvalidInput, "prompt required", nil)
	}
	if note := strings.TrimSpace(req.ReferenceNote); note != "" {
		prompt = prompt + "\nReference note: " + note
	}
	size := strings.TrimSpace(req.Size)
	if size == "" {
		size = c.cfg.Size
	}
	if !ValidSize(size) {
		return provider.ImageResult{}, provider.Fail(providerName, provider.KindInvalidInput,
			fmt.Sprintf("unsupported size %q (allowed: %s)", size, strings.Join(Sizes, ", ")), nil)
	}

	body, err := json.Marshal(generationRequest{Model: c.cfg.Model, Prompt: prompt, Size: size, N: 1})
	if err != nil {
		return provider.ImageResult{}, provider.Fail(providerName, provider.KindInvalidInput, "encode body", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "images", "generations")
	if err != nil {
		return provider.ImageResult{}, provider.Fail(providerName, provider.KindInvalidInput, "build url", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return provider.ImageResult{}, provider.Fail(providerName, provider.KindInvalidInput, "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	payload, err := c.do(ctx, httpReq)
	if err != nil {
		return provider.ImageResult{}, err
	}
	var parsed generationResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return provider.ImageResult{}, provider.Fail(providerName, provider.KindTransient, "decode response", err)
	}
	if len(parsed.Data) == 0 {
		return provider.ImageResult{}, provider.Fail(providerName, provider.KindTransient, "response contained no images", nil)
	}
	first := parsed.Data[0]
	result := provider.ImageResult{Model: c.cfg.Model}
	switch {
	case strings.TrimSpace(first.URL) != "":
		data, err := c.download(ctx, first.URL)
		if err != nil {
			return provider.ImageResult{}, err
		}
		result.Data = data
		result.SourceURL = first.URL
	case strings.TrimSpace(first.B64JSON) != "":
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return provider.ImageResult{}, provider.Fail(providerName, provider.KindTransient, "decode base64 image", err)
		}
		result.Data = data
	default:
		return provider.ImageResult{}, provider.Fail(providerName, provider.KindTransient, "image generation returned no url or base64 data", nil)
	}
	result.MediaType = imageMediaType(result.Data)
	return result, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, provider.Fail(providerName, provider.KindTransient, "build download request", err)
	}
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
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

// imageMediaType sniffs the bytes; the API returns PNG unless told otherwise.
func imageMediaType(data []byte) string {
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	return "image/png"
}
