package preflight

import (
	"strings"

	"scenecraft/internal/config"
	"scenecraft/internal/deps"
	"scenecraft/internal/stage"
)

// StageReadiness reports, per stage, whether its provider is configured and
// its local tools are present. It never calls a provider.
func StageReadiness(cfg *config.Config) []stage.Health {
	if cfg == nil {
		return nil
	}
	openAI := strings.TrimSpace(cfg.OpenAI.APIKey) != ""
	elevenLabs := strings.TrimSpace(cfg.ElevenLabs.APIKey) != ""
	ffmpeg := deps.CheckFFmpeg(cfg.FFmpegBinary())

	out := make([]stage.Health, 0, len(stage.All()))
	for _, id := range stage.All() {
		name := id.Title()
		switch id {
		case stage.Script, stage.Character:
			out = append(out, require(name, openAI, "OpenAI API key missing"))
		case stage.StructuredJSON:
			if cfg.Session.DevMode {
				out = append(out, stage.Healthy(name))
				continue
			}
			out = append(out, require(name, openAI, "OpenAI API key missing"))
		case stage.Music:
			switch {
			case !elevenLabs:
				out = append(out, stage.Unhealthy(name, "ElevenLabs API key missing"))
			case !openAI:
				out = append(out, stage.Unhealthy(name, "OpenAI API key missing; pass a sentiment override"))
			default:
				out = append(out, stage.Healthy(name))
			}
		case stage.Video:
			switch {
			case !ffmpeg.Available:
				out = append(out, stage.Unhealthy(name, ffmpeg.Detail))
			case cfg.Video.Mode == config.VideoModeSora && !openAI:
				out = append(out, stage.Unhealthy(name, "sora mode needs an OpenAI API key"))
			default:
				out = append(out, stage.Healthy(name))
			}
		}
	}
	return out
}

func require(name string, ok bool, detail string) stage.Health {
	if ok {
		return stage.Healthy(name)
	}
	return stage.Unhealthy(name, detail)
}
