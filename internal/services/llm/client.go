package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scenecraft/internal/provider"
)

const (
	providerName       = "openai-chat"
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
	defaultBaseURL     = "https://api.openai.com/v1/chat/completions"
	defaultModel       = "gpt-4o-mini"
)

// Config captures the runtime settings required to talk to the chat API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client wraps an OpenAI-compatible chat completion endpoint. Each call is a
// single attempt; retry belongs to the caller.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a chat client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	return client
}

// Name identifies the client in artifact provenance.
func (c *Client) Name() string { return providerName }

// Model returns the configured model id.
func (c *Client) Model() string { return c.cfg.Model }

// Chat implements provider.ChatProvider.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (provider.ChatResult, error) {
	messages := make([]provider.Message, 0, len(req.Messages)+1)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, provider.Message{Role: "system", Content: system})
	}
	messages = append(messages, req.Messages...)
	text, err := c.Complete(ctx, messages, req.Temperature)
	if err != nil {
		return provider.ChatResult{}, err
	}
	return provider.ChatResult{Text: text, Model: c.cfg.Model}, nil
}

// Structure implements provider.StructuredProvider using JSON mode.
func (c *Client) Structure(ctx context.Context, req provider.StructuredRequest) (provider.StructuredResult, error) {
	content, err := c.completeJSON(ctx, req.System, req.Prompt, req.Temperature)
	if err != nil {
		return provider.StructuredResult{}, err
	}
	var record json.RawMessage
	if err := decodeModelJSON(content, &record); err != nil {
		// Malformed JSON is model variance; another attempt can succeed.
		return provider.StructuredResult{}, provider.Fail(providerName, provider.KindTransient, "structured response is not valid json", err)
	}
	return provider.StructuredResult{Record: record, Model: c.cfg.Model}, nil
}

// chatMessage is one chat turn sent to the model.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends messages and returns the assistant's text. Empty turns are
// dropped.
func (c *Client) Complete(ctx context.Context, messages []provider.Message, temperature float64) (string, error) {
	turns := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = "user"
		}
		turns = append(turns, chatMessage{Role: role, Content: msg.Content})
	}
	if len(turns) == 0 {
		return "", provider.Fail(providerName, provider.KindInvalidInput, "at least one message required", nil)
	}
	payload := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    turns,
		Temperature: temperature,
	}
	return c.completionContent(ctx, payload, "llm complete")
}

// CompleteJSON issues a JSON-only chat completion request with the supplied prompts.
// It returns the raw JSON payload produced by the model.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.completeJSON(ctx, systemPrompt, userPrompt, 0)
}

func (c *Client) completeJSON(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" {
		return "", provider.Fail(providerName, provider.KindInvalidInput, "system prompt required", nil)
	}
	if userPrompt == "" {
		return "", provider.Fail(providerName, provider.KindInvalidInput, "user prompt required", nil)
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    temperature,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	return c.completionContent(ctx, payload, "llm complete json")
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.CompleteJSON(ctx, "You must respond with JSON only.", "Respond with {\"ok\":true}")
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := decodeModelJSON(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		// Legacy completion servers answer with text instead of message.
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// completionContent sends payload and returns the first non-empty choice. An
// empty answer is classified by why it is empty: refusals and content filter
// stops are rejections, anything else is worth another attempt.
func (c *Client) completionContent(ctx context.Context, payload chatCompletionRequest, op string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", provider.Fail(providerName, provider.KindAuthFailed, op+": api key not configured", nil)
	}
	completion, body, err := c.sendChatRequest(ctx, payload)
	if err != nil {
		return "", err
	}
	var finishReason, refusal string
	for _, choice := range completion.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text, nil
		}
		if text := strings.TrimSpace(choice.Text); text != "" {
			return text, nil
		}
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = strings.TrimSpace(choice.Message.Refusal)
		}
	}
	switch {
	case refusal != "":
		return "", provider.Fail(providerName, provider.KindContentRejected, "model refused: "+refusal, nil)
	case finishReason == "content_filter":
		return "", provider.Fail(providerName, provider.KindContentRejected, "response blocked by content filter", nil)
	}
	return "", provider.Fail(providerName, provider.KindTransient,
		fmt.Sprintf("%s: empty content (finish_reason=%q, body=%s)", op, finishReason, snippet(string(body))), nil)
}

func (c *Client) sendChatRequest(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, provider.Fail(providerName, provider.KindInvalidInput, "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, provider.Fail(providerName, provider.KindInvalidInput, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return completion, nil, ctx.Err()
		}
		return completion, nil, provider.Classify(providerName, fmt.Errorf("llm request (timeout=%s): %w", c.timeoutDuration(), err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, nil, provider.Classify(providerName, fmt.Errorf("llm request: read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := provider.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return completion, body, provider.FromHTTPStatus(providerName, resp.StatusCode, string(body), retryAfter)
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, provider.Fail(providerName, provider.KindTransient, "decode response", err)
	}
	if completion.Error != nil {
		msg := strings.TrimSpace(completion.Error.Message)
		kind := provider.KindTransient
		if provider.MentionsContentPolicy(msg) {
			kind = provider.KindContentRejected
		}
		return completion, body, provider.Fail(providerName, kind, "api error: "+msg, nil)
	}
	return completion, body, nil
}

func (c *Client) timeoutDuration() time.Duration {
	if c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

// decodeModelJSON unmarshals a model answer into target. Models in JSON mode
// still occasionally wrap the object in a markdown fence or a sentence, so
// on failure the outermost object or array is cut out and tried again.
func decodeModelJSON(content string, target any) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(text), target)
	if err == nil {
		return nil
	}
	inner := outermostJSON(text)
	if inner == "" || inner == text {
		return fmt.Errorf("%w (payload: %s)", err, snippet(text))
	}
	if err := json.Unmarshal([]byte(inner), target); err != nil {
		return fmt.Errorf("%w (extracted payload: %s)", err, snippet(inner))
	}
	return nil
}

// outermostJSON returns the span from the first opening brace or bracket to
// the last matching closer, or "" when there is none.
func outermostJSON(text string) string {
	open := strings.IndexAny(text, "{[")
	if open < 0 {
		return ""
	}
	closer := "}"
	if text[open] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= open {
		return ""
	}
	return text[open : end+1]
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
