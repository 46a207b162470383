package config

import (
	"errors"
	"fmt"
)

var imageSizes = map[string]struct{}{
	"1024x1024": {},
	"1024x1792": {},
	"1792x1024": {},
}

// Validate ensures the configuration is usable. Credentials are not checked
// here; a missing key surfaces when the stage that needs it runs.
func (c *Config) Validate() error {
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMedia() error {
	if _, ok := imageSizes[c.Image.Size]; !ok {
		return fmt.Errorf("image.size %q is not supported (use 1024x1024, 1024x1792 or 1792x1024)", c.Image.Size)
	}
	switch c.Video.Mode {
	case VideoModeSora, VideoModeLocal:
	default:
		return fmt.Errorf("video.mode %q is not supported (use %q or %q)", c.Video.Mode, VideoModeSora, VideoModeLocal)
	}
	if err := ensurePositiveMap(map[string]int{
		"video.width":                 c.Video.Width,
		"video.height":                c.Video.Height,
		"video.fps":                   c.Video.FPS,
		"video.poll_interval_seconds": c.Video.PollIntervalSeconds,
		"video.poll_attempts":         c.Video.PollAttempts,
		"elevenlabs.music_length_ms":  c.ElevenLabs.MusicLengthMS,
	}); err != nil {
		return err
	}
	if c.Video.Width%2 != 0 || c.Video.Height%2 != 0 {
		return errors.New("video.width and video.height must be even")
	}
	if c.Video.MusicVolume < 0 || c.Video.MusicVolume > 1 {
		return errors.New("video.music_volume must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelayMS < 0 || c.Retry.MaxDelayMS < 0 {
		return errors.New("retry delays must be >= 0")
	}
	if c.Retry.MaxDelayMS > 0 && c.Retry.BaseDelayMS > c.Retry.MaxDelayMS {
		return errors.New("retry.base_delay_ms must not exceed retry.max_delay_ms")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
