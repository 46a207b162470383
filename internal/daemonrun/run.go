package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"scenecraft/internal/config"
	"scenecraft/internal/daemon"
	"scenecraft/internal/deps"
	"scenecraft/internal/logging"
	"scenecraft/internal/pipeline"
	"scenecraft/internal/preflight"
)

// Options configures server process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Bind overrides the configured API address when set.
	Bind string
}

// Run starts the scenecraft server and blocks until the context ends or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if bind := strings.TrimSpace(opts.Bind); bind != "" {
		cfg.Paths.APIBind = bind
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logHub := logging.NewStreamHub(4096)
	logOpts, err := logging.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	if strings.TrimSpace(opts.LogLevel) != "" {
		logOpts.Level = opts.LogLevel
	}
	logOpts.Development = opts.Development
	logOpts.Stream = logHub
	logger, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	pidPath := filepath.Join(cfg.Paths.LogDir, "scenecraft.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := pipeline.Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, rt, logger, logHub)
	if err != nil {
		_ = rt.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check api_bind and whether another server uses the data directory"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("scenecraft server shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := preflight.CheckSystemDeps(cfg)
	ffmpeg, ffprobe := statuses[0], statuses[1]
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("openai_key_present", strings.TrimSpace(cfg.OpenAI.APIKey) != ""),
		logging.Bool("elevenlabs_key_present", strings.TrimSpace(cfg.ElevenLabs.APIKey) != ""),
		logging.Bool("ffmpeg_available", ffmpeg.Available),
		logging.String("ffmpeg_binary", ffmpeg.Command),
		logging.Bool("ffprobe_available", ffprobe.Available),
		logging.String("ffprobe_binary", ffprobe.Command),
		logging.String("video_mode", cfg.Video.Mode),
		logging.Bool("dev_mode", cfg.Session.DevMode),
		logging.Bool("cache_enabled", cfg.Cache.Enabled),
	)
	for _, missing := range deps.Missing(statuses) {
		logger.Warn("required dependency unavailable",
			logging.String(logging.FieldEventType, "dependency_missing"),
			logging.String("dependency", missing.Name),
			logging.String(logging.FieldErrorHint, missing.Detail),
			logging.String(logging.FieldImpact, "video stage runs will fail until it is installed"),
		)
	}
}
