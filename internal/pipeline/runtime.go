package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"scenecraft/internal/archive"
	"scenecraft/internal/artifact"
	"scenecraft/internal/blobstore"
	"scenecraft/internal/config"
	"scenecraft/internal/export"
	"scenecraft/internal/logging"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/respcache"
	"scenecraft/internal/services/drapto"
	"scenecraft/internal/session"
)

// Runtime owns the long-lived pieces shared by every session.
type Runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	blobs     *blobstore.Store
	cache     *respcache.Store
	archive   *archive.Store
	providers orchestrator.Providers
	sessions  *session.Manager
	exporter  *export.Exporter
}

// Option customizes Open.
type Option func(*openOptions)

type openOptions struct {
	providers *orchestrator.Providers
	encoder   drapto.Encoder
}

// WithProviders replaces the configured provider clients.
func WithProviders(p orchestrator.Providers) Option {
	return func(o *openOptions) { o.providers = &p }
}

// WithEncoder replaces the archival encoder used when video.archive_encode is
// set.
func WithEncoder(e drapto.Encoder) Option {
	return func(o *openOptions) { o.encoder = e }
}

// Open builds a runtime from cfg. Close releases its databases.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	var o openOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(TempDir(cfg), 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	r := &Runtime{cfg: cfg, logger: logging.NewComponentLogger(logger, "runtime")}
	blobs, err := blobstore.NewOS(cfg.BlobDir())
	if err != nil {
		return nil, err
	}
	r.blobs = blobs

	if cfg.Cache.Enabled {
		cache, err := respcache.Open(ctx, cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open response cache: %w", err)
		}
		r.cache = cache
	}

	store, err := archive.Open(ctx, cfg.ArchivePath())
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	r.archive = store

	if o.providers != nil {
		r.providers = *o.providers
	} else {
		r.providers = BuildProviders(cfg, logger)
	}

	exportOpts := []export.Option{export.WithArchive(store)}
	if cfg.Video.ArchiveEncode {
		encoder := o.encoder
		if encoder == nil {
			encoder = drapto.NewLibrary(logger)
		}
		exportOpts = append(exportOpts, export.WithEncoder(encoder))
	}
	r.exporter = export.New(cfg.Paths.OutputDir, logger, exportOpts...)
	r.sessions = session.NewManager(r.newOrchestrator(logger), logger)

	r.logger.Info("runtime ready",
		logging.String(logging.FieldEventType, "runtime_ready"),
		logging.Bool("chat_configured", r.providers.Chat != nil),
		logging.Bool("image_configured", r.providers.Image != nil),
		logging.Bool("audio_configured", r.providers.Audio != nil),
		logging.Bool("cache_enabled", r.cache != nil),
		logging.Bool("dev_mode", cfg.Session.DevMode),
		logging.String("video_mode", cfg.Video.Mode),
	)
	return r, nil
}

func (r *Runtime) newOrchestrator(logger *slog.Logger) session.Factory {
	return func(id string) (*orchestrator.Orchestrator, error) {
		store := artifact.NewStore()
		store.SetHistoryLimit(r.cfg.Session.HistoryLimit)
		opts := orchestrator.Options{
			SessionID:     id,
			Store:         store,
			Blobs:         r.blobs,
			Providers:     r.providers,
			Retry:         r.cfg.RetryPolicy(),
			ImageSize:     r.cfg.Image.Size,
			MusicLengthMS: r.cfg.ElevenLabs.MusicLengthMS,
			Video: orchestrator.VideoSettings{
				Mode:           r.cfg.Video.Mode,
				SecondsPerBeat: r.cfg.Video.SecondsPerBeat,
				Width:          r.cfg.Video.Width,
				Height:         r.cfg.Video.Height,
				FPS:            r.cfg.Video.FPS,
			},
			Logger: logger,
		}
		if r.cache != nil {
			opts.Cache = r.cache
		}
		return orchestrator.New(opts), nil
	}
}

// Config returns the runtime configuration.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Sessions returns the session manager.
func (r *Runtime) Sessions() *session.Manager { return r.sessions }

// Exporter returns the session exporter.
func (r *Runtime) Exporter() *export.Exporter { return r.exporter }

// Archive returns the exported-session archive.
func (r *Runtime) Archive() *archive.Store { return r.archive }

// Blobs returns the shared blob store.
func (r *Runtime) Blobs() *blobstore.Store { return r.blobs }

// Cache returns the response cache, or nil when it is disabled.
func (r *Runtime) Cache() *respcache.Store { return r.cache }

// Restore creates a session from an archived snapshot. The blobs referenced
// by the snapshot must still be in the blob store.
func (r *Runtime) Restore(ctx context.Context, archiveID string) (*session.Controller, error) {
	rec, err := r.archive.Load(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	for _, slot := range rec.Snapshot.Slots {
		for _, ref := range slot.Artifact.Payload.Blobs {
			ok, err := r.blobs.Exists(ref)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("restore %s: %s blob %s: %w", archiveID, slot.Artifact.Stage, ref.Key, blobstore.ErrNotFound)
			}
		}
	}
	ctrl, err := r.sessions.Create()
	if err != nil {
		return nil, err
	}
	if err := ctrl.Restore(rec.Snapshot); err != nil {
		_ = r.sessions.Delete(ctrl.ID())
		return nil, err
	}
	r.logger.Info("session restored",
		logging.String(logging.FieldSessionID, ctrl.ID()),
		logging.String("archive_id", archiveID),
		logging.Int("stages", len(rec.Snapshot.Slots)),
	)
	return ctrl, nil
}

// Close releases the databases.
func (r *Runtime) Close() error {
	var errs []error
	if r.cache != nil {
		errs = append(errs, r.cache.Close())
	}
	if r.archive != nil {
		errs = append(errs, r.archive.Close())
	}
	return errors.Join(errs...)
}
