package config

import "time"

const (
	// DefaultRequiredPlugin is always kept installed.
	DefaultRequiredPlugin = "instance-identity"

	// DefaultNoticeTemplate is rendered after unlisted plugins were removed.
	DefaultNoticeTemplate = `The following plugins have been removed by the system administrator: {{ .TopLevel | sortAlpha | join ", " }}
To allow the plugins, please include them in the plugins allowlist.`
)

// GetDefaultConfig returns the configuration used when config.yaml is absent
// and the base that a loaded file is merged onto.
func GetDefaultConfig() Config {
	return Config{
		Remote: RemoteConfig{
			URL:            "http://localhost:8080",
			Username:       "admin",
			RequestTimeout: Duration(60 * time.Second),
		},
		Plugins: PluginsConfig{
			Required:           []string{DefaultRequiredPlugin},
			Dir:                "/var/lib/jenkins/plugins",
			DownloadMarkerGlob: "*.tmp",
			DownloadWait:       WaitConfig{Timeout: Duration(5 * time.Minute), Interval: Duration(5 * time.Second)},
			DrainWait:          WaitConfig{Timeout: Duration(10 * time.Minute), Interval: Duration(time.Second)},
			ReadyWait:          WaitConfig{Timeout: Duration(140 * time.Second), Interval: Duration(10 * time.Second)},
			NoticeTemplate:     DefaultNoticeTemplate,
		},
		Fleet: FleetConfig{
			Publish: PublishConfig{
				Mode:         PublishModeTable,
				SecretPrefix: "buildwarden-agent",
			},
		},
		Reconciler: ReconcilerConfig{
			WorkerCount:    2,
			MaxRetries:     5,
			InitialBackoff: Duration(time.Second),
			MaxBackoff:     Duration(5 * time.Minute),
			Debounce:       Duration(500 * time.Millisecond),
			RetryAfterBusy: Duration(time.Minute),
			ResyncInterval: Duration(10 * time.Minute),
			PassTimeout:    Duration(30 * time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
