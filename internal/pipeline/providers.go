package pipeline

import (
	"log/slog"
	"path/filepath"
	"strings"

	"scenecraft/internal/config"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/provider"
	"scenecraft/internal/scene"
	"scenecraft/internal/services/elevenlabs"
	"scenecraft/internal/services/ffmpeg"
	"scenecraft/internal/services/imagegen"
	"scenecraft/internal/services/llm"
	"scenecraft/internal/services/sora"
)

// TempDir is where video assemblers create their work directories.
func TempDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "tmp")
}

// BuildProviders constructs one client per capability from cfg.
func BuildProviders(cfg *config.Config, logger *slog.Logger) orchestrator.Providers {
	providers := orchestrator.Providers{Video: make(map[string]provider.VideoProvider)}
	runner := ffmpeg.NewRunner(cfg.FFmpegBinary(), ffmpeg.WithLogger(logger))
	tempRoot := TempDir(cfg)
	providers.Video[config.VideoModeLocal] = ffmpeg.NewLocalAssembler(runner, cfg.Video.MusicVolume, tempRoot)

	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		chat := llm.NewClient(llm.Config{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.ChatURL(),
			Model:          cfg.OpenAI.ChatModel,
			TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
		})
		providers.Chat = chat
		providers.Structured = chat
		providers.Image = imagegen.NewClient(imagegen.Config{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			Model:          cfg.OpenAI.ImageModel,
			Size:           cfg.Image.Size,
			TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
		}, nil)
		videos := sora.NewClient(sora.Config{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			Model:          cfg.OpenAI.VideoModel,
			PollInterval:   cfg.PollInterval(),
			PollAttempts:   cfg.Video.PollAttempts,
			TimeoutSeconds: cfg.OpenAI.TimeoutSeconds,
		}, nil)
		providers.Video[config.VideoModeSora] = sora.NewAssembler(videos, runner, cfg.Video.MusicVolume, tempRoot, logger)
	}
	if cfg.Session.DevMode {
		providers.Structured = scene.PresetProvider{}
	}
	if strings.TrimSpace(cfg.ElevenLabs.APIKey) != "" {
		providers.Audio = elevenlabs.NewClient(elevenlabs.Config{
			APIKey:         cfg.ElevenLabs.APIKey,
			BaseURL:        cfg.ElevenLabs.BaseURL,
			LengthMS:       cfg.ElevenLabs.MusicLengthMS,
			TimeoutSeconds: cfg.ElevenLabs.TimeoutSeconds,
		}, nil)
	}
	return providers
}
