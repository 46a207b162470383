package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"scenecraft/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnvKeys(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ELEVENLABS_API_KEY", "xi-env")
	t.Setenv("SORA_MODEL_ID", "sora-test")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "scenecraft")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "scenecraft") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.OpenAI.APIKey != "sk-env" {
		t.Fatalf("expected OpenAI key from env, got %q", cfg.OpenAI.APIKey)
	}
	if cfg.ElevenLabs.APIKey != "xi-env" {
		t.Fatalf("expected ElevenLabs key from env, got %q", cfg.ElevenLabs.APIKey)
	}
	if cfg.OpenAI.VideoModel != "sora-test" {
		t.Fatalf("expected video model from env, got %q", cfg.OpenAI.VideoModel)
	}
	if cfg.Video.Mode != config.VideoModeLocal {
		t.Fatalf("expected local video mode by default, got %q", cfg.Video.Mode)
	}
	if cfg.Cache.Path != filepath.Join(wantData, "responses.db") {
		t.Fatalf("unexpected cache path: %q", cfg.Cache.Path)
	}
	if cfg.LockPath() != filepath.Join(wantData, "scenecraft.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "scenecraft.toml")

	type payload struct {
		OpenAI struct {
			APIKey    string `toml:"api_key"`
			ChatModel string `toml:"chat_model"`
		} `toml:"openai"`
		Video struct {
			Mode           string  `toml:"mode"`
			SecondsPerBeat float64 `toml:"seconds_per_beat"`
		} `toml:"video"`
		Retry struct {
			MaxAttempts int `toml:"max_attempts"`
			BaseDelayMS int `toml:"base_delay_ms"`
			MaxDelayMS  int `toml:"max_delay_ms"`
		} `toml:"retry"`
	}
	custom := payload{}
	custom.OpenAI.APIKey = "sk-file"
	custom.OpenAI.ChatModel = "gpt-test"
	custom.Video.Mode = "SORA"
	custom.Video.SecondsPerBeat = 6
	custom.Retry.MaxAttempts = 2
	custom.Retry.BaseDelayMS = 50
	custom.Retry.MaxDelayMS = 400
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.OpenAI.APIKey != "sk-file" {
		t.Fatalf("expected OpenAI key from file, got %q", cfg.OpenAI.APIKey)
	}
	if cfg.OpenAI.ChatModel != "gpt-test" {
		t.Fatalf("expected chat model from file, got %q", cfg.OpenAI.ChatModel)
	}
	if cfg.Video.Mode != config.VideoModeSora {
		t.Fatalf("expected mode to normalize to sora, got %q", cfg.Video.Mode)
	}
	if cfg.Video.SecondsPerBeat != 6 {
		t.Fatalf("expected seconds per beat 6, got %v", cfg.Video.SecondsPerBeat)
	}

	policy := cfg.RetryPolicy()
	if policy.MaxAttempts != 2 || policy.BaseDelay != 50*time.Millisecond || policy.MaxDelay != 400*time.Millisecond {
		t.Fatalf("unexpected retry policy: %+v", policy)
	}
}

func TestFileKeyWinsOverEnvironment(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "scenecraft.toml")
	if err := os.WriteFile(configPath, []byte("[elevenlabs]\napi_key = \"xi-file\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ELEVENLABS_API_KEY", "xi-env")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ElevenLabs.APIKey != "xi-file" {
		t.Fatalf("expected file key to win, got %q", cfg.ElevenLabs.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "image size",
			mutate: func(c *config.Config) { c.Image.Size = "512x512" },
			want:   "image.size",
		},
		{
			name:   "video mode",
			mutate: func(c *config.Config) { c.Video.Mode = "cinema" },
			want:   "video.mode",
		},
		{
			name:   "odd width",
			mutate: func(c *config.Config) { c.Video.Width = 1281 },
			want:   "must be even",
		},
		{
			name:   "music volume",
			mutate: func(c *config.Config) { c.Video.MusicVolume = 1.5 },
			want:   "video.music_volume",
		},
		{
			name:   "retry attempts",
			mutate: func(c *config.Config) { c.Retry.MaxAttempts = 0 },
			want:   "retry.max_attempts",
		},
		{
			name: "retry delay order",
			mutate: func(c *config.Config) {
				c.Retry.BaseDelayMS = 5000
				c.Retry.MaxDelayMS = 1000
			},
			want: "retry.base_delay_ms",
		},
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Logging.Level = "verbose" },
			want:   "logging.level",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestCreateSampleWritesLoadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[video]") {
		t.Fatalf("sample config missing video section:\n%s", data)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample config to load, exists=%v err=%v", exists, err)
	}
}

func TestFFprobeBinaryFollowsFFmpegBinary(t *testing.T) {
	cfg := config.Default()
	cfg.Video.FFmpegBinary = "/opt/ff/bin/ffmpeg"
	if got := cfg.FFprobeBinary(); got != "/opt/ff/bin/ffprobe" {
		t.Fatalf("unexpected ffprobe binary: %q", got)
	}
	cfg.Video.FFmpegBinary = "avconv"
	if got := cfg.FFprobeBinary(); got != "ffprobe" {
		t.Fatalf("unexpected fallback ffprobe binary: %q", got)
	}
}
