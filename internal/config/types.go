package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for buildwarden.
type Config struct {
	Remote     RemoteConfig     `yaml:"remote"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	Fleet      FleetConfig      `yaml:"fleet"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RemoteConfig describes how to reach the admin API of the build server.
type RemoteConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`

	// PasswordFile holds the admin password or API token. Relative paths are
	// resolved against the configuration directory.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	RequestTimeout Duration `yaml:"requestTimeout,omitempty"`
}

// WaitConfig bounds one polling wait.
type WaitConfig struct {
	Timeout  Duration `yaml:"timeout,omitempty"`
	Interval Duration `yaml:"interval,omitempty"`
}

// PluginsConfig holds the desired plugin state and the plugin pass tuning.
type PluginsConfig struct {
	// Allowlist lists the plugins that may stay installed. Empty leaves the
	// plugin set unmanaged.
	Allowlist []string `yaml:"allowlist,omitempty"`

	// Required plugins are always allowed, whatever the allowlist says.
	Required []string `yaml:"required,omitempty"`

	// Dir is the plugin directory of the build server, used to detect
	// in-flight downloads.
	Dir string `yaml:"dir,omitempty"`

	// DownloadMarkerGlob matches partial download files inside Dir.
	DownloadMarkerGlob string `yaml:"downloadMarkerGlob,omitempty"`

	DownloadWait WaitConfig `yaml:"downloadWait,omitempty"`
	DrainWait    WaitConfig `yaml:"drainWait,omitempty"`
	ReadyWait    WaitConfig `yaml:"readyWait,omitempty"`

	// NoticeTemplate is a text/template rendered after removal. It receives
	// .Removed and .TopLevel and may use sprig functions.
	NoticeTemplate string `yaml:"noticeTemplate,omitempty"`
}

// FleetConfig holds the agent fleet inputs.
type FleetConfig struct {
	// DistributionAddress is the URL agents use to reach the build server.
	DistributionAddress string `yaml:"distributionAddress,omitempty"`

	// DesiredStateFile maps peer identity to a list of raw agent descriptors.
	DesiredStateFile string `yaml:"desiredStateFile,omitempty"`

	Publish PublishConfig `yaml:"publish,omitempty"`
}

// PublishMode selects where per-peer agent secrets go after a fleet pass.
type PublishMode string

const (
	PublishModeTable      PublishMode = "table"
	PublishModeKubernetes PublishMode = "kubernetes"
	PublishModeNone       PublishMode = "none"
)

// PublishConfig configures the agent secret sink.
type PublishConfig struct {
	Mode         PublishMode `yaml:"mode,omitempty"`
	Namespace    string      `yaml:"namespace,omitempty"`
	SecretPrefix string      `yaml:"secretPrefix,omitempty"`
}

// ReconcilerConfig tunes the trigger manager used by "serve".
type ReconcilerConfig struct {
	WorkerCount    int      `yaml:"workerCount,omitempty"`
	MaxRetries     int      `yaml:"maxRetries,omitempty"`
	InitialBackoff Duration `yaml:"initialBackoff,omitempty"`
	MaxBackoff     Duration `yaml:"maxBackoff,omitempty"`
	Debounce       Duration `yaml:"debounce,omitempty"`
	RetryAfterBusy Duration `yaml:"retryAfterBusy,omitempty"`
	ResyncInterval Duration `yaml:"resyncInterval,omitempty"`
	PassTimeout    Duration `yaml:"passTimeout,omitempty"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Duration is a time.Duration that reads "90s" style strings or plain
// integer seconds from YAML.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.Atoi(value.Value); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
