package provider

import (
	"context"
	"encoding/json"
)

// Capability tags the kind of external generative call a stage needs.
type Capability string

const (
	CapabilityChat       Capability = "chat-completion"
	CapabilityStructured Capability = "structured-generation"
	CapabilityImage      Capability = "image-generation"
	CapabilityAudio      Capability = "audio-generation"
	CapabilityVideo      Capability = "video-assembly"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest asks for free-form text.
type ChatRequest struct {
	System      string
	Messages    []Message
	Temperature float64
}

// ChatResult carries the generated text.
type ChatResult struct {
	Text  string
	Model string
}

// StructuredRequest asks for a JSON record matching the described schema.
type StructuredRequest struct {
	System      string
	Prompt      string
	Temperature float64
}

// StructuredResult carries the decoded JSON record.
type StructuredResult struct {
	Record json.RawMessage
	Model  string
}

// ImageRequest describes one image to render.
type ImageRequest struct {
	Prompt        string
	Size          string
	ReferenceNote string
}

// ImageResult carries the rendered image bytes.
type ImageResult struct {
	Data      []byte
	MediaType string
	SourceURL string
	Model     string
}

// AudioRequest describes a music cue.
type AudioRequest struct {
	Prompt   string
	LengthMS int
	Refine   bool
}

// AudioResult carries the rendered audio bytes.
type AudioResult struct {
	Data      []byte
	MediaType string
	Model     string
}

// Asset is a stored blob handed to a collaborator.
type Asset struct {
	Key       string
	MediaType string
	Data      []byte
}

// Segment is one timed slice of the final video.
type Segment struct {
	Index       int
	Title       string
	Description string
	Prompt      string
	Seconds     float64
}

// VideoRequest carries the assets and timing for the final cut.
type VideoRequest struct {
	Image    Asset
	Audio    Asset
	Segments []Segment
	Width    int
	Height   int
	FPS      int
}

// VideoResult carries the assembled video bytes.
type VideoResult struct {
	Data      []byte
	MediaType string
	Model     string
}

type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResult, error)
}

type StructuredProvider interface {
	Structure(ctx context.Context, req StructuredRequest) (StructuredResult, error)
}

type ImageProvider interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}

type AudioProvider interface {
	GenerateAudio(ctx context.Context, req AudioRequest) (AudioResult, error)
}

type VideoProvider interface {
	AssembleVideo(ctx context.Context, req VideoRequest) (VideoResult, error)
}

// Named is implemented by providers that report a stable name for provenance.
type Named interface {
	Name() string
}

// NameOf returns the provider's reported name, or fallback.
func NameOf(p any, fallback string) string {
	if named, ok := p.(Named); ok {
		if name := named.Name(); name != "" {
			return name
		}
	}
	return fallback
}
