package config

const (
	defaultDataDir            = "~/.local/share/loom/data"
	defaultArtifactDir        = "~/.local/share/loom/artifacts"
	defaultLogDir             = "~/.local/share/loom/logs"
	defaultSocketPath         = "~/.local/share/loom/loomd.sock"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultPollInterval       = 3
	defaultStaleTimeout       = 60
	defaultErrorRetryInterval = 10
	defaultNotifyTimeout      = 10
	defaultLLMBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel           = "google/gemini-3-flash-preview"
	defaultLLMTitle           = "Loom Pipeline"
	defaultLLMTimeoutSeconds  = 120
	defaultProviderTimeout    = 300
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			ArtifactDir: defaultArtifactDir,
			LogDir:      defaultLogDir,
			SocketPath:  defaultSocketPath,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Speech: MediaProvider{
			TimeoutSeconds: defaultProviderTimeout,
		},
		Image: MediaProvider{
			TimeoutSeconds: defaultProviderTimeout,
		},
		Motion: MediaProvider{
			TimeoutSeconds: defaultProviderTimeout,
		},
		Music: MediaProvider{
			TimeoutSeconds: defaultProviderTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Review:         true,
			Render:         true,
			Errors:         true,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			StaleTimeout:       defaultStaleTimeout,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
