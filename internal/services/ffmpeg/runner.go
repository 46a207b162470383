package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"scenecraft/internal/logging"
	"scenecraft/internal/provider"
)

const (
	providerName       = "ffmpeg"
	DefaultBinary      = "ffmpeg"
	DefaultWidth       = 1280
	DefaultHeight      = 720
	DefaultFPS         = 24
	DefaultMusicVolume = 0.2
)

// ExecFunc runs a command and returns its combined output.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultExec(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Geometry is the output frame size and rate.
type Geometry struct {
	Width  int
	Height int
	FPS    int
}

func (g Geometry) normalized() Geometry {
	if g.Width <= 0 {
		g.Width = DefaultWidth
	}
	if g.Height <= 0 {
		g.Height = DefaultHeight
	}
	if g.FPS <= 0 {
		g.FPS = DefaultFPS
	}
	return g
}

// Slide is one still-image beat rendered with a caption panel.
type Slide struct {
	Title   string
	Caption string
	Seconds float64
}

// Runner shells out to ffmpeg.
type Runner struct {
	binary string
	exec   ExecFunc
	logger *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithExec replaces command execution (tests).
func WithExec(fn ExecFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.exec = fn
		}
	}
}

// WithLogger attaches a logger for command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner builds a runner for the given binary (default "ffmpeg").
func NewRunner(binary string, opts ...Option) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	r := &Runner{binary: binary, exec: defaultExec, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Binary returns the configured executable.
func (r *Runner) Binary() string { return r.binary }

// Run executes ffmpeg with args. Failures are InvalidInput: the same inputs
// fail the same way, so retrying is pointless.
func (r *Runner) Run(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	r.logger.Debug("ffmpeg command", logging.String("binary", r.binary), logging.Int("args", len(full)))
	output, err := r.exec(ctx, r.binary, full...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, exec.ErrNotFound) {
		return provider.Fail(providerName, provider.KindInvalidInput,
			fmt.Sprintf("binary %q not found; install ffmpeg or set video.ffmpeg_binary", r.binary), err)
	}
	return provider.Fail(providerName, provider.KindInvalidInput, tail(string(output), 400), err)
}

// Concat joins clips in order and, when music is set, lays it under the result
// at volume and trims it to the video. With keepClipAudio the clips' own audio
// is mixed with the music instead of replaced.
func (r *Runner) Concat(ctx context.Context, clips []string, music string, volume float64, keepClipAudio bool, out string) error {
	if len(clips) == 0 {
		return provider.Fail(providerName, provider.KindInvalidInput, "no clips to concatenate", nil)
	}
	listFile := filepath.Join(filepath.Dir(out), "concat.txt")
	lines := make([]string, 0, len(clips))
	for _, clip := range clips {
		lines = append(lines, fmt.Sprintf("file '%s'", strings.ReplaceAll(clip, "'", `'\''`)))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	args := []string{"-f", "concat", "-safe", "0", "-i", listFile}
	switch {
	case music == "":
		if !keepClipAudio {
			args = append(args, "-an")
		}
	case keepClipAudio:
		args = append(args,
			"-i", music,
			"-filter_complex", fmt.Sprintf("[1:a]volume=%s[m];[0:a][m]amix=inputs=2:duration=first:normalize=0[a]", formatFloat(volume)),
			"-map", "0:v", "-map", "[a]",
		)
	default:
		args = append(args,
			"-i", music,
			"-filter_complex", fmt.Sprintf("[1:a]volume=%s[a]", formatFloat(volume)),
			"-map", "0:v", "-map", "[a]", "-shortest",
		)
	}
	args = append(args, "-c:v", "libx264", "-preset", "fast", "-crf", "22", "-pix_fmt", "yuv420p")
	if music != "" || keepClipAudio {
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	args = append(args, "-movflags", "+faststart", out)
	return r.Run(ctx, args...)
}

// RenderSlides renders image as the backdrop for every slide, each with its
// title and caption drawn over a translucent panel, then concatenates the
// slides with music.
func (r *Runner) RenderSlides(ctx context.Context, image string, slides []Slide, music string, volume float64, out string, geo Geometry) error {
	if len(slides) == 0 {
		return provider.Fail(providerName, provider.KindInvalidInput, "no slides to render", nil)
	}
	geo = geo.normalized()
	dir := filepath.Dir(out)
	clips := make([]string, 0, len(slides))
	for i, slide := range slides {
		titleFile := filepath.Join(dir, fmt.Sprintf("title_%02d.txt", i+1))
		captionFile := filepath.Join(dir, fmt.Sprintf("caption_%02d.txt", i+1))
		if err := os.WriteFile(titleFile, []byte(slide.Title), 0o644); err != nil {
			return fmt.Errorf("write slide title: %w", err)
		}
		if err := os.WriteFile(captionFile, []byte(wrap(slide.Caption, geo.Width/16)), 0o644); err != nil {
			return fmt.Errorf("write slide caption: %w", err)
		}
		seconds := slide.Seconds
		if seconds <= 0 {
			seconds = 4
		}
		clip := filepath.Join(dir, fmt.Sprintf("slide_%02d.mp4", i+1))
		err := r.Run(ctx,
			"-loop", "1", "-t", formatFloat(seconds), "-i", image,
			"-vf", slideFilter(geo, titleFile, captionFile),
			"-r", strconv.Itoa(geo.FPS),
			"-c:v", "libx264", "-preset", "fast", "-crf", "22", "-pix_fmt", "yuv420p",
			"-an", clip,
		)
		if err != nil {
			return err
		}
		clips = append(clips, clip)
	}
	return r.Concat(ctx, clips, music, volume, false, out)
}

func slideFilter(geo Geometry, titleFile, captionFile string) string {
	panel := geo.Height / 4
	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", geo.Width, geo.Height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", geo.Width, geo.Height),
		"setsar=1",
		fmt.Sprintf("drawbox=x=0:y=ih-%d:w=iw:h=%d:color=black@0.55:t=fill", panel, panel),
		fmt.Sprintf("drawtext=textfile='%s':x=40:y=h-%d:fontsize=%d:fontcolor=white", escapeFilterPath(titleFile), panel-20, geo.Height/24),
		fmt.Sprintf("drawtext=textfile='%s':x=40:y=h-%d:fontsize=%d:fontcolor=white:line_spacing=6", escapeFilterPath(captionFile), panel-20-geo.Height/14, geo.Height/32),
	}
	return strings.Join(filters, ",")
}

func escapeFilterPath(path string) string {
	return strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`).Replace(path)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// wrap breaks text into lines of at most width runes on word boundaries.
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	var lines []string
	var line []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		if len(line) > 0 && len(line)+1+len(w) > width {
			lines = append(lines, string(line))
			line = line[:0]
		}
		if len(line) > 0 {
			line = append(line, ' ')
		}
		line = append(line, w...)
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return strings.Join(lines, "\n")
}

func tail(output string, limit int) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return "ffmpeg failed"
	}
	runes := []rune(output)
	if len(runes) > limit {
		return "..." + string(runes[len(runes)-limit:])
	}
	return output
}
