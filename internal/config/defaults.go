package config

const (
	defaultHubEndpoint        = "https://huggingface.co"
	defaultHubTimeoutSeconds  = 30
	defaultConcurrency        = 4
	defaultLockTimeoutSeconds = 30
	defaultLogLevel           = "info"
	defaultLogFormat          = "console"
)

// Default returns a Config populated with the built-in defaults. The storage
// base directory is left empty so the library default applies.
func Default() Config {
	return Config{
		Hub: Hub{
			Endpoint:       defaultHubEndpoint,
			TimeoutSeconds: defaultHubTimeoutSeconds,
		},
		Download: Download{
			Concurrency:        defaultConcurrency,
			LockTimeoutSeconds: defaultLockTimeoutSeconds,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
