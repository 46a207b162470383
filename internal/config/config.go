package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"scenecraft/internal/retry"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// OpenAI contains connection settings for chat, image, and video generation.
type OpenAI struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	ChatModel      string `toml:"chat_model"`
	ImageModel     string `toml:"image_model"`
	VideoModel     string `toml:"video_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ElevenLabs contains configuration for music composition.
type ElevenLabs struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	MusicLengthMS  int    `toml:"music_length_ms"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Image contains character artwork settings.
type Image struct {
	Size string `toml:"size"`
}

// Video contains final assembly settings.
type Video struct {
	Mode                string  `toml:"mode"`
	SecondsPerBeat      float64 `toml:"seconds_per_beat"`
	Width               int     `toml:"width"`
	Height              int     `toml:"height"`
	FPS                 int     `toml:"fps"`
	PollIntervalSeconds int     `toml:"poll_interval_seconds"`
	PollAttempts        int     `toml:"poll_attempts"`
	MusicVolume         float64 `toml:"music_volume"`
	FFmpegBinary        string  `toml:"ffmpeg_binary"`
	ArchiveEncode       bool    `toml:"archive_encode"`
}

// Retry contains the provider retry policy.
type Retry struct {
	MaxAttempts int `toml:"max_attempts"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`
}

// Cache contains configuration for the provider response cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Session contains editing session behaviour.
type Session struct {
	DevMode      bool `toml:"dev_mode"`
	HistoryLimit int  `toml:"history_limit"`
}

// ChatURL is the chat completions endpoint under BaseURL.
func (o OpenAI) ChatURL() string {
	base := strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scenecraft.
//
// Configuration sections by subsystem:
//   - Paths: data, output and log directories plus the API bind address
//   - OpenAI: chat, image and video model access
//   - ElevenLabs: music composition
//   - Image: character artwork size
//   - Video: assembly mode, geometry and polling
//   - Retry: provider retry policy
//   - Cache: provider response cache
//   - Session: editing session behaviour
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	OpenAI     OpenAI     `toml:"openai"`
	ElevenLabs ElevenLabs `toml:"elevenlabs"`
	Image      Image      `toml:"image"`
	Video      Video      `toml:"video"`
	Retry      Retry      `toml:"retry"`
	Cache      Cache      `toml:"cache"`
	Session    Session    `toml:"session"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scenecraft.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, output and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.Cache.Path), 0o755); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
	}
	return nil
}

// BlobDir is where session blobs are stored.
func (c *Config) BlobDir() string {
	return filepath.Join(c.Paths.DataDir, "blobs")
}

// ArchivePath is the SQLite database holding exported session snapshots.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.Paths.DataDir, "archive.db")
}

// LockPath is the single-instance lock used by the API server.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "scenecraft.lock")
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Video.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable that sits next to ffmpeg.
func (c *Config) FFprobeBinary() string {
	bin := c.FFmpegBinary()
	dir, base := filepath.Split(bin)
	if strings.HasPrefix(base, "ffmpeg") {
		return dir + "ffprobe" + strings.TrimPrefix(base, "ffmpeg")
	}
	return "ffprobe"
}

// RetryPolicy converts the [retry] section into a policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(c.Retry.MaxDelayMS) * time.Millisecond,
	}
}

// PollInterval is the delay between video job status checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Video.PollIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
