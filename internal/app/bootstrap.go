package app

import (
	"fmt"
	"os"
	"strings"

	"buildwarden/internal/api"
	"buildwarden/internal/client"
	"buildwarden/internal/config"
	"buildwarden/internal/plugins"
	"buildwarden/internal/poll"
	"buildwarden/internal/publish"
	"buildwarden/pkg/logging"
)

// ClientFactory builds the remote workload client for one pass.
type ClientFactory func(cfg config.RemoteConfig) (api.RemoteWorkloadClient, error)

// PublisherFactory builds the agent distribution sink for one pass.
type PublisherFactory func(cfg config.PublishConfig) (publish.Publisher, error)

// ProbeFactory builds the plugin download probe for one pass.
type ProbeFactory func(cfg config.PluginsConfig) plugins.MarkerProbe

// Application runs reconciliation passes. Every pass reloads config.yaml and
// the desired-state file, so edits take effect on the next pass.
type Application struct {
	config *Config

	newClient    ClientFactory
	newPublisher PublisherFactory
	newProbe     ProbeFactory
	clock        poll.Clock
}

// Option customizes an Application.
type Option func(*Application)

// WithClientFactory replaces the HTTP admin client.
func WithClientFactory(f ClientFactory) Option {
	return func(a *Application) { a.newClient = f }
}

// WithPublisherFactory replaces the configured distribution sink.
func WithPublisherFactory(f PublisherFactory) Option {
	return func(a *Application) { a.newPublisher = f }
}

// WithProbeFactory replaces the filesystem download probe.
func WithProbeFactory(f ProbeFactory) Option {
	return func(a *Application) { a.newProbe = f }
}

// WithClock sets the clock used by all waits.
func WithClock(c poll.Clock) Option {
	return func(a *Application) { a.clock = c }
}

// NewApplication loads the configuration once to set up logging and fail
// early on an invalid file.
func NewApplication(cfg *Config, opts ...Option) (*Application, error) {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	// Configure logging before the first load so loader messages are visible.
	level := logging.LevelInfo
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.FormatText, cfg.LogOutput)

	loaded, err := config.LoadConfig(cfg.ConfigPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration from %s", cfg.ConfigPath)
		return nil, fmt.Errorf("failed to load configuration from %s: %w", cfg.ConfigPath, err)
	}
	if !cfg.Debug {
		level = logging.ParseLevel(loaded.Logging.Level)
	}
	logging.Init(level, logging.Format(strings.ToLower(loaded.Logging.Format)), cfg.LogOutput)

	a := &Application{
		config:       cfg,
		newClient:    NewAdminClient,
		newPublisher: publisherFactory(cfg),
		newProbe:     NewMarkerProbe,
		clock:        poll.RealClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Application) loadConfig() (config.Config, error) {
	return config.LoadConfig(a.config.ConfigPath)
}

// NewAdminClient builds the HTTP admin client from the remote section.
func NewAdminClient(cfg config.RemoteConfig) (api.RemoteWorkloadClient, error) {
	password, err := config.LoadPassword(cfg)
	if err != nil {
		return nil, err
	}
	return client.NewAdminClient(client.Options{
		URL:      cfg.URL,
		Username: cfg.Username,
		Password: password,
		Timeout:  cfg.RequestTimeout.D(),
	})
}

// NewMarkerProbe watches the plugin directory for partial downloads.
func NewMarkerProbe(cfg config.PluginsConfig) plugins.MarkerProbe {
	return client.FSMarkerProbe{Dir: cfg.Dir, Glob: cfg.DownloadMarkerGlob}
}

func publisherFactory(cfg *Config) PublisherFactory {
	return func(pc config.PublishConfig) (publish.Publisher, error) {
		switch pc.Mode {
		case config.PublishModeNone:
			return publish.Discard{}, nil
		case config.PublishModeKubernetes:
			c, err := publish.NewKubernetesClient()
			if err != nil {
				return nil, err
			}
			return publish.NewSecretPublisher(c, pc.Namespace, pc.SecretPrefix), nil
		default:
			return publish.TablePrinter{Out: cfg.Out}, nil
		}
	}
}
