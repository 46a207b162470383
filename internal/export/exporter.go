package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scenecraft/internal/archive"
	"scenecraft/internal/artifact"
	"scenecraft/internal/blobstore"
	"scenecraft/internal/logging"
	"scenecraft/internal/scene"
	"scenecraft/internal/services"
	"scenecraft/internal/services/drapto"
	"scenecraft/internal/session"
	"scenecraft/internal/stage"
)

// VideoFileName is the exported video's file name.
const VideoFileName = "generated_video.mp4"

// Session is the part of a session controller the exporter reads.
type Session interface {
	ID() string
	FinalExport() (session.Final, error)
	Blobs() *blobstore.Store
}

// Archiver saves session snapshots.
type Archiver interface {
	Save(ctx context.Context, sessionID, title string, snap artifact.Snapshot) (archive.Summary, error)
}

// Result lists what an export produced.
type Result struct {
	Dir         string   `json:"dir"`
	VideoPath   string   `json:"video_path"`
	EncodedPath string   `json:"encoded_path,omitempty"`
	ArchiveID   string   `json:"archive_id,omitempty"`
	Files       []string `json:"files"`
}

// Exporter copies a session's fresh final video and its source material out
// of the blob store.
type Exporter struct {
	outputDir string
	encoder   drapto.Encoder
	archive   Archiver
	logger    *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithEncoder re-encodes the exported video.
func WithEncoder(encoder drapto.Encoder) Option {
	return func(e *Exporter) { e.encoder = encoder }
}

// WithArchive saves a snapshot of every exported session.
func WithArchive(a Archiver) Option {
	return func(e *Exporter) { e.archive = a }
}

// New constructs an exporter writing under outputDir.
func New(outputDir string, logger *slog.Logger, opts ...Option) *Exporter {
	e := &Exporter{
		outputDir: outputDir,
		logger:    logging.NewComponentLogger(logger, "export"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Export writes the session to <outputDir>/<session id>. It fails with
// services.ErrPipelineIncomplete unless every stage is fresh. Files and the
// archived snapshot all come from one capture of the session.
func (e *Exporter) Export(ctx context.Context, s Session) (Result, error) {
	final, err := s.FinalExport()
	if err != nil {
		return Result{}, err
	}
	video := final.Video
	ctx = services.WithSessionID(ctx, s.ID())
	logger := logging.WithContext(ctx, e.logger)

	dir := filepath.Join(e.outputDir, s.ID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create export dir: %w", err)
	}
	res := Result{Dir: dir}
	blobs := s.Blobs()

	ref, ok := video.Payload.Blob("video/")
	if !ok {
		return Result{}, services.Wrap(services.ErrNotFound, string(stage.Video), "export", "video artifact has no video blob", nil)
	}
	res.VideoPath = filepath.Join(dir, VideoFileName)
	if err := blobs.Export(ref, res.VideoPath); err != nil {
		return Result{}, fmt.Errorf("export video: %w", err)
	}
	res.Files = append(res.Files, res.VideoPath)

	title, err := e.writeSources(final.States, blobs, dir, &res)
	if err != nil {
		return Result{}, err
	}

	if e.encoder != nil {
		encoded, encErr := e.encoder.Encode(ctx, res.VideoPath, dir)
		if encErr != nil {
			logging.WarnWithContext(logger, "archival encode failed", "encode_failed",
				logging.Error(encErr),
				logging.String(logging.FieldErrorHint, "check drapto and ffmpeg installation"),
				logging.String(logging.FieldImpact, "only the original video was exported"),
			)
		} else {
			res.EncodedPath = encoded
			res.Files = append(res.Files, encoded)
		}
	}

	if e.archive != nil {
		summary, err := e.archive.Save(ctx, s.ID(), title, final.Snapshot)
		if err != nil {
			return res, fmt.Errorf("archive session: %w", err)
		}
		res.ArchiveID = summary.ID
	}

	logger.Info(
		"session exported",
		logging.String(logging.FieldEventType, "export_complete"),
		logging.String("dir", dir),
		logging.String("video", res.VideoPath),
		logging.String("encoded", res.EncodedPath),
		logging.String("archive_id", res.ArchiveID),
	)
	return res, nil
}

// writeSources writes the script, scene, image and music next to the video
// and returns the scene title.
func (e *Exporter) writeSources(states []session.StageState, blobs *blobstore.Store, dir string, res *Result) (string, error) {
	byStage := make(map[stage.ID]session.StageState, len(states))
	for _, st := range states {
		byStage[st.Stage] = st
	}
	var title string
	if st, ok := byStage[stage.Script]; ok && st.Present() {
		path := filepath.Join(dir, "script.txt")
		if err := os.WriteFile(path, []byte(st.Artifact.Payload.Text+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("write script: %w", err)
		}
		res.Files = append(res.Files, path)
	}
	if st, ok := byStage[stage.StructuredJSON]; ok && st.Present() {
		sc, err := scene.Decode(st.Artifact.Payload.Record)
		if err != nil {
			return "", fmt.Errorf("decode scene: %w", err)
		}
		title = strings.TrimSpace(sc.Title)
		path := filepath.Join(dir, "scene.json")
		if err := os.WriteFile(path, []byte(sc.Pretty()+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("write scene: %w", err)
		}
		res.Files = append(res.Files, path)
	}
	media := []struct {
		id     stage.ID
		prefix string
		name   string
	}{
		{stage.Character, "image/", "character"},
		{stage.Music, "audio/", "music"},
	}
	for _, m := range media {
		st, ok := byStage[m.id]
		if !ok || !st.Present() {
			continue
		}
		ref, ok := st.Artifact.Payload.Blob(m.prefix)
		if !ok {
			continue
		}
		path := filepath.Join(dir, m.name+blobstore.Extension(ref.MediaType))
		if err := blobs.Export(ref, path); err != nil {
			return "", fmt.Errorf("export %s: %w", m.name, err)
		}
		res.Files = append(res.Files, path)
	}
	return title, nil
}
