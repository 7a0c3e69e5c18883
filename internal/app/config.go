package app

import "io"

// Config holds the process-level settings given on the command line.
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// ConfigPath is the directory holding config.yaml.
	ConfigPath string

	// Out receives human-readable output such as the distribution table.
	Out io.Writer

	// LogOutput receives log records. Defaults to stderr.
	LogOutput io.Writer
}

// NewConfig creates a new application configuration.
func NewConfig(debug bool, configPath string, out io.Writer) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		Out:        out,
	}
}
