package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"scenecraft/internal/api"
	"scenecraft/internal/config"
	"scenecraft/internal/logging"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/pipeline"
	"scenecraft/internal/services"
)

type commandContext struct {
	configFlag  *string
	envFileFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, envFileFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		envFileFlag: envFileFlag,
	}
}

// loadEnvFile exports keys from the dotenv file before the config reads its
// environment fallbacks. Variables already set in the environment win.
func (c *commandContext) loadEnvFile() {
	if c.envFileFlag == nil {
		return
	}
	path := strings.TrimSpace(*c.envFileFlag)
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to read %s: %v\n", path, err)
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// fileLogger writes to the log directory only so command output stays clean.
func (c *commandContext) fileLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
}

func (c *commandContext) openRuntime(ctx context.Context, opts ...pipeline.Option) (*pipeline.Runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.fileLogger()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return pipeline.Open(ctx, cfg, logger, opts...)
}

func (c *commandContext) client() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken), nil
}

// formatCLIError appends the failure hint for errors that carry a marker.
func formatCLIError(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		if apiErr.Hint != "" {
			return fmt.Sprintf("%v\nhint: %s", err, apiErr.Hint)
		}
		return err.Error()
	}
	if services.Marker(err) == nil {
		return err.Error()
	}
	return fmt.Sprintf("%v\nhint: %s", err, orchestrator.Hint(err))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
