package sora

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"scenecraft/internal/blobstore"
	"scenecraft/internal/logging"
	"scenecraft/internal/provider"
	"scenecraft/internal/services/ffmpeg"
)

// Generator renders one clip per prompt. *Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string, seconds float64) ([]byte, error)
}

// Assembler implements provider.VideoProvider by generating one clip per beat
// and concatenating them under the music track.
type Assembler struct {
	generator   Generator
	runner      *ffmpeg.Runner
	musicVolume float64
	tempRoot    string
	model       string
	logger      *slog.Logger
}

// NewAssembler wires a generator to an ffmpeg runner.
func NewAssembler(generator Generator, runner *ffmpeg.Runner, musicVolume float64, tempRoot string, logger *slog.Logger) *Assembler {
	if runner == nil {
		runner = ffmpeg.NewRunner("")
	}
	if musicVolume <= 0 {
		musicVolume = ffmpeg.DefaultMusicVolume
	}
	model := DefaultModel
	if client, ok := generator.(*Client); ok {
		model = client.Model()
	}
	return &Assembler{
		generator:   generator,
		runner:      runner,
		musicVolume: musicVolume,
		tempRoot:    tempRoot,
		model:       model,
		logger:      logging.NewComponentLogger(logger, "sora"),
	}
}

func (a *Assembler) Name() string { return providerName }

// AssembleVideo generates every segment in order, then joins them. A failed
// segment fails the whole assembly; the orchestrator's retry reruns it.
func (a *Assembler) AssembleVideo(ctx context.Context, req provider.VideoRequest) (provider.VideoResult, error) {
	if len(req.Segments) == 0 {
		return provider.VideoResult{}, provider.Fail(providerName, provider.KindInvalidInput, "at least one beat is required", nil)
	}
	workDir, err := os.MkdirTemp(a.tempRoot, "scenecraft-sora-*")
	if err != nil {
		return provider.VideoResult{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	clips := make([]string, 0, len(req.Segments))
	for _, seg := range req.Segments {
		a.logger.Info("generating video segment",
			logging.Int("segment", seg.Index),
			logging.Int("segments", len(req.Segments)),
			logging.Float64("seconds", seg.Seconds),
		)
		data, err := a.generator.Generate(ctx, seg.Prompt, seg.Seconds)
		if err != nil {
			return provider.VideoResult{}, err
		}
		clip := filepath.Join(workDir, fmt.Sprintf("segment_%02d.mp4", seg.Index))
		if err := os.WriteFile(clip, data, 0o644); err != nil {
			return provider.VideoResult{}, fmt.Errorf("write segment: %w", err)
		}
		clips = append(clips, clip)
	}

	music := ""
	if len(req.Audio.Data) > 0 {
		music = filepath.Join(workDir, "music"+blobstore.Extension(req.Audio.MediaType))
		if err := os.WriteFile(music, req.Audio.Data, 0o644); err != nil {
			return provider.VideoResult{}, fmt.Errorf("write music: %w", err)
		}
	}
	out := filepath.Join(workDir, "generated_video.mp4")
	if err := a.runner.Concat(ctx, clips, music, a.musicVolume, true, out); err != nil {
		return provider.VideoResult{}, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return provider.VideoResult{}, provider.Fail(providerName, provider.KindInvalidInput, "ffmpeg produced no output", err)
	}
	return provider.VideoResult{Data: data, MediaType: "video/mp4", Model: a.model}, nil
}
