package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"scenecraft/internal/blobstore"
	"scenecraft/internal/logging"
	"scenecraft/internal/provider"
)

const localAssemblerName = "ffmpeg-local"

// LocalAssembler renders the final cut without a video model: the character
// image is the backdrop for every beat and the music plays underneath.
type LocalAssembler struct {
	runner      *Runner
	musicVolume float64
	tempRoot    string
}

// NewLocalAssembler builds an assembler around runner. tempRoot may be empty
// to use the system temp directory.
func NewLocalAssembler(runner *Runner, musicVolume float64, tempRoot string) *LocalAssembler {
	if runner == nil {
		runner = NewRunner("")
	}
	if musicVolume <= 0 {
		musicVolume = DefaultMusicVolume
	}
	return &LocalAssembler{runner: runner, musicVolume: musicVolume, tempRoot: tempRoot}
}

// Name reports the provider name recorded in provenance.
func (a *LocalAssembler) Name() string { return localAssemblerName }

// AssembleVideo renders one slide per segment and returns the MP4 bytes.
func (a *LocalAssembler) AssembleVideo(ctx context.Context, req provider.VideoRequest) (provider.VideoResult, error) {
	if len(req.Image.Data) == 0 {
		return provider.VideoResult{}, provider.Fail(localAssemblerName, provider.KindInvalidInput, "character image is required", nil)
	}
	if len(req.Segments) == 0 {
		return provider.VideoResult{}, provider.Fail(localAssemblerName, provider.KindInvalidInput, "at least one beat is required", nil)
	}

	workDir, err := os.MkdirTemp(a.tempRoot, "scenecraft-local-*")
	if err != nil {
		return provider.VideoResult{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	imagePath, err := writeAsset(workDir, "character", req.Image)
	if err != nil {
		return provider.VideoResult{}, err
	}
	musicPath := ""
	if len(req.Audio.Data) > 0 {
		if musicPath, err = writeAsset(workDir, "music", req.Audio); err != nil {
			return provider.VideoResult{}, err
		}
	}

	slides := make([]Slide, 0, len(req.Segments))
	for _, seg := range req.Segments {
		slides = append(slides, Slide{Title: seg.Title, Caption: seg.Description, Seconds: seg.Seconds})
	}
	out := filepath.Join(workDir, "generated_video.mp4")
	geo := Geometry{Width: req.Width, Height: req.Height, FPS: req.FPS}
	a.runner.logger.Info("rendering local video",
		logging.Int("beats", len(slides)),
		logging.Bool("music", musicPath != ""),
	)
	if err := a.runner.RenderSlides(ctx, imagePath, slides, musicPath, a.musicVolume, out, geo); err != nil {
		return provider.VideoResult{}, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return provider.VideoResult{}, provider.Fail(localAssemblerName, provider.KindInvalidInput, "ffmpeg produced no output", err)
	}
	return provider.VideoResult{Data: data, MediaType: "video/mp4", Model: localAssemblerName}, nil
}

// writeAsset stores an asset under dir with an extension matching its media type.
func writeAsset(dir, name string, asset provider.Asset) (string, error) {
	path := filepath.Join(dir, name+blobstore.Extension(asset.MediaType))
	if err := os.WriteFile(path, asset.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s asset: %w", name, err)
	}
	return path, nil
}
