package config

const (
	// DefaultCallbackPort is the default port for the loopback OAuth
	// callback listener.
	DefaultCallbackPort = 8080

	// DefaultCallbackPath is the default path for OAuth callbacks
	DefaultCallbackPath = "/callback"

	// DefaultLogLevel is used when the configuration does not set one.
	DefaultLogLevel = "info"
)

// GetDefaultConfig returns the default configuration for tokenward.
// Issuer, client ID, and scopes have no useful defaults and must come
// from the configuration file or flags.
func GetDefaultConfig() Config {
	return Config{
		Callback: CallbackConfig{
			Port: DefaultCallbackPort,
			Path: DefaultCallbackPath,
		},
		LogLevel: DefaultLogLevel,
	}
}
