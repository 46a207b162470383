package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"scenecraft/internal/config"
	"scenecraft/internal/deps"
	"scenecraft/internal/logging"
	"scenecraft/internal/pipeline"
	"scenecraft/internal/preflight"
)

// Daemon serves the pipeline runtime over HTTP and enforces single-instance
// execution per data directory.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	runtime *pipeline.Runtime
	hub     *logging.StreamHub

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Bind         string
	LockFilePath string
	Sessions     int
	Dependencies []deps.Status
}

// New constructs a daemon around an opened runtime. hub may be nil, in which
// case the events endpoint returns nothing.
func New(cfg *config.Config, rt *pipeline.Runtime, logger *slog.Logger, hub *logging.StreamHub) (*Daemon, error) {
	if cfg == nil || rt == nil {
		return nil, errors.New("daemon requires config and runtime")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		runtime:  rt,
		hub:      hub,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scenecraft server is already using this data directory")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("scenecraft server started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.addr()),
	)
	return nil
}

// Stop stops serving and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("scenecraft server stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the runtime's databases.
func (d *Daemon) Close() error {
	d.Stop()
	return d.runtime.Close()
}

// Addr returns the address the API listens on, or "" before Start.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// LogStream returns the hub the events endpoint reads from.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.hub
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Bind:         d.server.addr(),
		LockFilePath: d.lockPath,
		Sessions:     d.runtime.Sessions().Len(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
}
