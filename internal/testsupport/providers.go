package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"scenecraft/internal/blobstore"
	"scenecraft/internal/provider"
	"scenecraft/internal/scene"
)

// NewBlobStore returns an in-memory blob store.
func NewBlobStore(t testing.TB) *blobstore.Store {
	t.Helper()
	return blobstore.NewMemory()
}

// SceneJSON returns the preset scene as canonical JSON.
func SceneJSON(t testing.TB) string {
	t.Helper()
	record, err := scene.DevScene().Canonical()
	if err != nil {
		t.Fatalf("encode preset scene: %v", err)
	}
	return string(record)
}

// recorder counts calls and lets a test script failures per attempt.
type recorder struct {
	mu    sync.Mutex
	calls int
	// Errs are returned by successive calls; once exhausted calls succeed.
	Errs []error
	// Always, when set, is returned by every call.
	Always error
	// Block, when set, is received from before answering so tests can hold a
	// call in flight.
	Block chan struct{}
	// Entered, when set, receives a value as each call starts.
	Entered chan struct{}
}

func (r *recorder) begin(ctx context.Context) error {
	r.mu.Lock()
	r.calls++
	n := r.calls
	entered, block := r.Entered, r.Block
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Always != nil {
		return r.Always
	}
	if n <= len(r.Errs) && r.Errs[n-1] != nil {
		return r.Errs[n-1]
	}
	return nil
}

// Calls returns how many times the provider was invoked.
func (r *recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Chat is a ChatProvider returning Reply, or Replies in turn when set.
type Chat struct {
	recorder
	Reply   string
	Replies []string

	mu       sync.Mutex
	requests []provider.ChatRequest
}

func (c *Chat) Name() string { return "stub-chat" }

func (c *Chat) Chat(ctx context.Context, req provider.ChatRequest) (provider.ChatResult, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	n := len(c.requests)
	c.mu.Unlock()
	if err := c.begin(ctx); err != nil {
		return provider.ChatResult{}, err
	}
	reply := c.Reply
	if n <= len(c.Replies) {
		reply = c.Replies[n-1]
	}
	if reply == "" {
		reply = "INT. WORKSHOP - DAY\n" + lastUserMessage(req)
	}
	return provider.ChatResult{Text: reply, Model: "stub-chat-model"}, nil
}

// Requests returns every request received.
func (c *Chat) Requests() []provider.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provider.ChatRequest(nil), c.requests...)
}

func lastUserMessage(req provider.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

// Structured is a StructuredProvider returning Record, or the preset scene.
type Structured struct {
	recorder
	Record string
}

func (s *Structured) Name() string { return "stub-structured" }

func (s *Structured) Structure(ctx context.Context, _ provider.StructuredRequest) (provider.StructuredResult, error) {
	if err := s.begin(ctx); err != nil {
		return provider.StructuredResult{}, err
	}
	if s.Record != "" {
		return provider.StructuredResult{Record: []byte(s.Record), Model: "stub"}, nil
	}
	record, err := scene.DevScene().Canonical()
	if err != nil {
		return provider.StructuredResult{}, err
	}
	return provider.StructuredResult{Record: record, Model: "stub"}, nil
}

// Image is an ImageProvider whose bytes derive from the prompt.
type Image struct {
	recorder

	mu   sync.Mutex
	last provider.ImageRequest
}

func (i *Image) Name() string { return "stub-image" }

func (i *Image) GenerateImage(ctx context.Context, req provider.ImageRequest) (provider.ImageResult, error) {
	i.mu.Lock()
	i.last = req
	i.mu.Unlock()
	if err := i.begin(ctx); err != nil {
		return provider.ImageResult{}, err
	}
	return provider.ImageResult{Data: []byte("png:" + req.Size + ":" + req.Prompt), MediaType: "image/png", Model: "stub"}, nil
}

// LastRequest returns the most recent request.
func (i *Image) LastRequest() provider.ImageRequest {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last
}

// Audio is an AudioProvider whose bytes derive from the prompt.
type Audio struct {
	recorder

	mu   sync.Mutex
	last provider.AudioRequest
}

func (a *Audio) Name() string { return "stub-audio" }

func (a *Audio) GenerateAudio(ctx context.Context, req provider.AudioRequest) (provider.AudioResult, error) {
	a.mu.Lock()
	a.last = req
	a.mu.Unlock()
	if err := a.begin(ctx); err != nil {
		return provider.AudioResult{}, err
	}
	return provider.AudioResult{Data: []byte(fmt.Sprintf("mp3:%d:%s", req.LengthMS, req.Prompt)), MediaType: "audio/mpeg", Model: "stub"}, nil
}

// LastRequest returns the most recent request.
func (a *Audio) LastRequest() provider.AudioRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Video is a VideoProvider whose bytes describe the request.
type Video struct {
	recorder

	mu   sync.Mutex
	last provider.VideoRequest
}

func (v *Video) Name() string { return "stub-video" }

func (v *Video) AssembleVideo(ctx context.Context, req provider.VideoRequest) (provider.VideoResult, error) {
	v.mu.Lock()
	v.last = req
	v.mu.Unlock()
	if err := v.begin(ctx); err != nil {
		return provider.VideoResult{}, err
	}
	titles := make([]string, 0, len(req.Segments))
	for _, seg := range req.Segments {
		titles = append(titles, seg.Title)
	}
	body := fmt.Sprintf("mp4:%s:%s:%s", req.Image.Key, req.Audio.Key, strings.Join(titles, "|"))
	return provider.VideoResult{Data: []byte(body), MediaType: "video/mp4", Model: "stub"}, nil
}

// LastRequest returns the most recent request.
func (v *Video) LastRequest() provider.VideoRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

var (
	_ provider.ChatProvider       = (*Chat)(nil)
	_ provider.StructuredProvider = (*Structured)(nil)
	_ provider.ImageProvider      = (*Image)(nil)
	_ provider.AudioProvider      = (*Audio)(nil)
	_ provider.VideoProvider      = (*Video)(nil)
)
