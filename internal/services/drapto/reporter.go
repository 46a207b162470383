package drapto

import (
	"log/slog"
	"time"

	draptolib "github.com/five82/drapto"

	"scenecraft/internal/logging"
)

// progressStep is the minimum percent change between logged progress lines.
const progressStep = 10.0

// logReporter adapts the Drapto Reporter interface to structured log lines.
// Encoding progress is sampled so a long encode does not flood the log.
type logReporter struct {
	logger      *slog.Logger
	lastPercent float64
}

func newLogReporter(logger *slog.Logger) *logReporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &logReporter{logger: logger, lastPercent: -progressStep}
}

func (r *logReporter) Hardware(s draptolib.HardwareSummary) {
	r.logger.Debug("drapto hardware", logging.Any("hostname", s.Hostname))
}

func (r *logReporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Info("drapto encode initialized",
		logging.Any("input", s.InputFile),
		logging.Any("output", s.OutputFile),
		logging.Any("resolution", s.Resolution),
		logging.Any("dynamic_range", s.DynamicRange),
	)
}

func (r *logReporter) StageProgress(s draptolib.StageProgress) {
	attrs := []logging.Attr{
		logging.String("drapto_stage", s.Stage),
		logging.Float64("percent", float64(s.Percent)),
	}
	if s.ETA != nil {
		attrs = append(attrs, logging.Duration("eta", *s.ETA))
	}
	r.logger.Debug(s.Message, logging.Args(attrs...)...)
}

func (r *logReporter) CropResult(s draptolib.CropSummary) {
	r.logger.Debug("drapto crop detection",
		logging.Any("crop", s.Crop),
		logging.Any("required", s.Required),
		logging.Any("disabled", s.Disabled),
	)
}

func (r *logReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Info("drapto encoding config",
		logging.Any("encoder", s.Encoder),
		logging.Any("preset", s.Preset),
		logging.Any("quality", s.Quality),
		logging.Any("audio_codec", s.AudioCodec),
	)
}

func (r *logReporter) EncodingStarted(totalFrames uint64) {
	r.lastPercent = -progressStep
	r.logger.Info("drapto encoding started", logging.Int64("total_frames", int64(totalFrames)))
}

func (r *logReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	percent := float64(s.Percent)
	if percent < r.lastPercent+progressStep && percent < 100 {
		return
	}
	r.lastPercent = percent
	r.logger.Info("drapto encoding progress",
		logging.Float64("percent", percent),
		logging.Float64("speed", float64(s.Speed)),
		logging.Duration("eta", s.ETA),
	)
}

func (r *logReporter) ValidationComplete(s draptolib.ValidationSummary) {
	for _, step := range s.Steps {
		if !step.Passed {
			logging.WarnWithContext(r.logger, "drapto validation step failed", "archive_validation",
				logging.Any("step", step.Name),
				logging.Any("details", step.Details),
				logging.String(logging.FieldImpact, "archival encode may not match the source"),
			)
		}
	}
	r.logger.Info("drapto validation complete", logging.Bool("passed", s.Passed))
}

func (r *logReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.logger.Info("drapto encoding complete",
		logging.Any("output", s.OutputPath),
		logging.Int64("original_bytes", int64(s.OriginalSize)),
		logging.Int64("encoded_bytes", int64(s.EncodedSize)),
		logging.Any("elapsed", s.TotalTime),
	)
}

func (r *logReporter) Warning(message string) {
	logging.WarnWithContext(r.logger, message, "archive_encode_warning",
		logging.String(logging.FieldImpact, "archival encode continues"),
	)
}

func (r *logReporter) Error(e draptolib.ReporterError) {
	logging.ErrorWithContext(r.logger, "drapto reported an error", "archive_encode_error",
		logging.Any("title", e.Title),
		logging.Any("message", e.Message),
		logging.Any("context", e.Context),
		logging.Any(logging.FieldErrorHint, e.Suggestion),
	)
}

func (r *logReporter) OperationComplete(message string) {
	r.logger.Debug(message, logging.String("completed_at", time.Now().UTC().Format(time.RFC3339)))
}

func (r *logReporter) BatchStarted(s draptolib.BatchStartInfo) {
	r.logger.Debug("drapto batch started", logging.Any("total_files", s.TotalFiles))
}

func (r *logReporter) FileProgress(s draptolib.FileProgressContext) {
	r.logger.Debug("drapto file progress",
		logging.Any("current_file", s.CurrentFile),
		logging.Any("total_files", s.TotalFiles),
	)
}

func (r *logReporter) BatchComplete(s draptolib.BatchSummary) {
	r.logger.Debug("drapto batch complete",
		logging.Any("successful", s.SuccessfulCount),
		logging.Any("total_files", s.TotalFiles),
	)
}

var _ draptolib.Reporter = (*logReporter)(nil)
