package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"buildwarden/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

var pluginNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks a loaded configuration. All problems are collected rather
// than stopping at the first one.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if strings.TrimSpace(cfg.Remote.URL) == "" {
		errs.Add("remote.url", "is required")
	} else if u, err := url.Parse(cfg.Remote.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add("remote.url", "must be an absolute URL", cfg.Remote.URL)
	}
	if cfg.Remote.RequestTimeout <= 0 {
		errs.Add("remote.requestTimeout", "must be positive")
	}

	for _, name := range append(append([]string{}, cfg.Plugins.Allowlist...), cfg.Plugins.Required...) {
		if !pluginNamePattern.MatchString(name) {
			errs.Add("plugins", "plugin names may only contain letters, digits, '_' and '-'", name)
		}
	}
	validateWait(&errs, "plugins.downloadWait", cfg.Plugins.DownloadWait)
	validateWait(&errs, "plugins.drainWait", cfg.Plugins.DrainWait)
	validateWait(&errs, "plugins.readyWait", cfg.Plugins.ReadyWait)

	switch cfg.Fleet.Publish.Mode {
	case PublishModeTable, PublishModeNone:
	case PublishModeKubernetes:
		if cfg.Fleet.Publish.Namespace == "" {
			errs.Add("fleet.publish.namespace", "is required for kubernetes publishing")
		}
	default:
		errs.Add("fleet.publish.mode", fmt.Sprintf("must be one of: %s, %s, %s",
			PublishModeTable, PublishModeKubernetes, PublishModeNone), cfg.Fleet.Publish.Mode)
	}

	if cfg.Reconciler.WorkerCount < 1 {
		errs.Add("reconciler.workerCount", "must be at least 1", cfg.Reconciler.WorkerCount)
	}
	if cfg.Reconciler.MaxBackoff < cfg.Reconciler.InitialBackoff {
		errs.Add("reconciler.maxBackoff", "must not be smaller than initialBackoff")
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		errs.Add("logging.format", "must be text or json", cfg.Logging.Format)
	}

	if errs.HasErrors() {
		logging.Debug("ConfigValidator", "Configuration has %d problems", len(errs))
		return errs
	}
	return nil
}

func validateWait(errs *ValidationErrors, field string, w WaitConfig) {
	if w.Timeout <= 0 {
		errs.Add(field+".timeout", "must be positive")
	}
	if w.Interval <= 0 {
		errs.Add(field+".interval", "must be positive")
	}
}
