package app

// Config holds the command line settings used to bootstrap the agent.
type Config struct {
	// Debug forces debug logging regardless of config.yaml.
	Debug bool

	// ConfigPath is the directory holding config.yaml.
	ConfigPath string

	// Host overrides the host from config.yaml when set.
	Host string
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath, host string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		Host:       host,
	}
}
