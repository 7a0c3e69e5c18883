package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"

	"buildwarden/pkg/logging"
)

const (
	userConfigDir  = ".config/buildwarden"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns ~/.config/buildwarden.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// ConfigFilePath returns the path of config.yaml inside configPath.
func ConfigFilePath(configPath string) string {
	return filepath.Join(configPath, configFileName)
}

// LoadConfig loads config.yaml from configPath on top of the defaults and
// validates the result. Relative file references are resolved against
// configPath.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := ConfigFilePath(configPath)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, NewConfigurationError(configFilePath, "config", "io", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, NewConfigurationError(configFilePath, "config", "parse", err).
			WithSuggestions("Check the YAML syntax of " + configFileName)
	}

	config.Remote.PasswordFile = resolvePath(configPath, config.Remote.PasswordFile)
	config.Fleet.DesiredStateFile = resolvePath(configPath, config.Fleet.DesiredStateFile)

	if err := Validate(config); err != nil {
		return Config{}, NewConfigurationError(configFilePath, "config", "validation", err)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// LoadPassword reads the admin password from the configured password file.
// An unset file yields an empty password.
func LoadPassword(cfg RemoteConfig) (string, error) {
	if cfg.PasswordFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(cfg.PasswordFile)
	if err != nil {
		return "", NewConfigurationError(cfg.PasswordFile, "password", "io", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// RawFleet is the desired fleet file as decoded: peer identity to a list of
// agent descriptors with string values, the shape relation data arrives in.
type RawFleet map[string][]map[string]string

// Peers returns the peer identities in sorted order.
func (f RawFleet) Peers() []string {
	peers := make([]string, 0, len(f))
	for p := range f {
		peers = append(peers, p)
	}
	sort.Strings(peers)
	return peers
}

// LoadDesiredFleet reads the desired fleet file. The file may be YAML or JSON.
// Scalar values are converted to strings and lists are joined with spaces, so
// that validation of the agent data happens in one place downstream.
func LoadDesiredFleet(path string) (RawFleet, error) {
	if path == "" {
		return nil, NewConfigurationError(path, "fleet", "validation", errors.New("fleet.desiredStateFile is not configured")).
			WithSuggestions("Set fleet.desiredStateFile in " + configFileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigurationError(path, "fleet", "io", err)
	}

	var decoded map[string][]map[string]interface{}
	if err := k8syaml.Unmarshal(data, &decoded); err != nil {
		return nil, NewConfigurationError(path, "fleet", "parse", err).
			WithDetails("expected a mapping of peer identity to a list of agents")
	}

	fleet := make(RawFleet, len(decoded))
	for peer, agents := range decoded {
		converted := make([]map[string]string, 0, len(agents))
		for _, agent := range agents {
			m := make(map[string]string, len(agent))
			for k, v := range agent {
				m[k] = stringify(v)
			}
			converted = append(converted, m)
		}
		fleet[peer] = converted
	}
	logging.Debug("ConfigLoader", "Loaded desired fleet for %d peers from %s", len(fleet), path)
	return fleet, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(t)
	}
}
