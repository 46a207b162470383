package config

const (
	defaultConfigPath          = "~/.config/scenecraft/config.toml"
	defaultDataDir             = "~/.local/share/scenecraft"
	defaultOutputDir           = "~/scenecraft"
	defaultLogDir              = "~/.local/share/scenecraft/logs"
	defaultAPIBind             = "127.0.0.1:7490"
	defaultOpenAIBaseURL       = "https://api.openai.com/v1"
	defaultChatModel           = "gpt-4o-mini"
	defaultImageModel          = "dall-e-3"
	defaultVideoModel          = "sora-2-pro"
	defaultOpenAITimeout       = 120
	defaultElevenLabsBaseURL   = "https://api.elevenlabs.io"
	defaultMusicLengthMS       = 45000
	defaultElevenLabsTimeout   = 180
	defaultImageSize           = "1024x1024"
	defaultVideoMode           = VideoModeLocal
	defaultSecondsPerBeat      = 4.0
	defaultVideoWidth          = 1280
	defaultVideoHeight         = 720
	defaultVideoFPS            = 24
	defaultPollIntervalSeconds = 5
	defaultPollAttempts        = 120
	defaultMusicVolume         = 0.2
	defaultFFmpegBinary        = "ffmpeg"
	defaultRetryMaxAttempts    = 4
	defaultRetryBaseDelayMS    = 1000
	defaultRetryMaxDelayMS     = 10000
	defaultHistoryLimit        = 20
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Video assembly modes.
const (
	VideoModeSora  = "sora"
	VideoModeLocal = "local"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		OpenAI: OpenAI{
			BaseURL:        defaultOpenAIBaseURL,
			ChatModel:      defaultChatModel,
			ImageModel:     defaultImageModel,
			VideoModel:     defaultVideoModel,
			TimeoutSeconds: defaultOpenAITimeout,
		},
		ElevenLabs: ElevenLabs{
			BaseURL:        defaultElevenLabsBaseURL,
			MusicLengthMS:  defaultMusicLengthMS,
			TimeoutSeconds: defaultElevenLabsTimeout,
		},
		Image: Image{
			Size: defaultImageSize,
		},
		Video: Video{
			Mode:                defaultVideoMode,
			SecondsPerBeat:      defaultSecondsPerBeat,
			Width:               defaultVideoWidth,
			Height:              defaultVideoHeight,
			FPS:                 defaultVideoFPS,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			PollAttempts:        defaultPollAttempts,
			MusicVolume:         defaultMusicVolume,
			FFmpegBinary:        defaultFFmpegBinary,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
		},
		Session: Session{
			HistoryLimit: defaultHistoryLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
