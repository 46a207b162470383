package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Error is a failed request decoded from an ErrorResponse body.
type Error struct {
	Status int
	ErrorResponse
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.ErrorResponse.Error)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s, http %d)", msg, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s (http %d)", msg, e.Status)
}

// Client provides HTTP access to a running server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the server bound at bind, which is either a
// host:port pair or a full URL. An empty token sends no Authorization header.
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sessions lists live sessions, oldest first.
func (c *Client) Sessions(ctx context.Context) ([]SessionSummary, error) {
	var resp SessionListResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// CreateSession starts an empty session.
func (c *Client) CreateSession(ctx context.Context) (*SessionDetail, error) {
	var resp SessionDetail
	if err := c.do(ctx, http.MethodPost, "/api/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Session returns one session with all stage slots.
func (c *Client) Session(ctx context.Context, id string) (*SessionDetail, error) {
	var resp SessionDetail
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunStage runs one stage of a session.
func (c *Client) RunStage(ctx context.Context, id, stageName string, overrides map[string]string) (*RunResponse, error) {
	path := fmt.Sprintf("/api/sessions/%s/stages/%s/run", url.PathEscape(id), url.PathEscape(stageName))
	var resp RunResponse
	if err := c.do(ctx, http.MethodPost, path, RunRequest{Overrides: overrides}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Export writes the session's final video and sources to the output directory.
func (c *Client) Export(ctx context.Context, id string) (*ExportResponse, error) {
	var resp ExportResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/export", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events fetches log events after since. With follow set the server holds the
// request until an event arrives.
func (c *Client) Events(ctx context.Context, since uint64, limit int, follow bool) (*LogStreamResponse, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if follow {
		query.Set("follow", "1")
	}
	var resp LogStreamResponse
	if err := c.do(ctx, http.MethodGet, "/api/events?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, &apiErr.ErrorResponse); jsonErr != nil {
			apiErr.ErrorResponse.Error = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
