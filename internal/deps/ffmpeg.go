package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFmpeg reports the ffmpeg binary used for video assembly and archival
// encoding. A configured path that is missing or not executable falls back to
// "ffmpeg" on PATH, which is what the encoder does as well.
func CheckFFmpeg(configured string) Status {
	return resolveTool("FFmpeg", "Required for video assembly", "ffmpeg", configured)
}

// CheckFFprobe reports the ffprobe binary used to measure clip durations.
func CheckFFprobe(configured string) Status {
	return resolveTool("FFprobe", "Required for media inspection", "ffprobe", configured)
}

func resolveTool(name, description, fallback, configured string) Status {
	result := Status{Name: name, Description: description}

	if candidate := strings.TrimSpace(configured); candidate != "" && candidate != fallback {
		if filepath.IsAbs(candidate) {
			if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				return result
			}
		} else if resolved, err := exec.LookPath(candidate); err == nil {
			result.Command = resolved
			result.Available = true
			return result
		}
	}

	if resolved, err := exec.LookPath(executableName(fallback)); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}

	result.Command = fallback
	result.Detail = fmt.Sprintf("binary %q not found", fallback)
	return result
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
