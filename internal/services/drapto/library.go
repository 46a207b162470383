package drapto

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	draptolib "github.com/five82/drapto"

	"scenecraft/internal/logging"
)

// Encoder transcodes a video file into outputDir and returns the encoded path.
type Encoder interface {
	Encode(ctx context.Context, inputPath, outputDir string) (string, error)
}

// Library implements Encoder using the Drapto Go library directly.
type Library struct {
	logger *slog.Logger
}

// NewLibrary constructs a Library client. A nil logger discards progress.
func NewLibrary(logger *slog.Logger) *Library {
	return &Library{logger: logging.NewComponentLogger(logger, "drapto")}
}

// Encode runs an AV1 encode of inputPath and returns <outputDir>/<stem>.mkv.
func (l *Library) Encode(ctx context.Context, inputPath, outputDir string) (string, error) {
	outputPath, err := OutputPath(inputPath, outputDir)
	if err != nil {
		return "", err
	}

	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return "", err
	}
	if _, err := encoder.EncodeWithReporter(ctx, inputPath, strings.TrimSpace(outputDir), newLogReporter(l.logger)); err != nil {
		return "", err
	}
	return outputPath, nil
}

// OutputPath derives the file Drapto writes for inputPath.
func OutputPath(inputPath, outputDir string) (string, error) {
	if strings.TrimSpace(inputPath) == "" {
		return "", errors.New("input path required")
	}
	cleanOutputDir := strings.TrimSpace(outputDir)
	if cleanOutputDir == "" {
		return "", errors.New("output directory required")
	}
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(cleanOutputDir, stem+".mkv"), nil
}

var _ Encoder = (*Library)(nil)
