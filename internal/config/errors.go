package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ConfigurationError represents a structured error that occurs during configuration loading
type ConfigurationError struct {
	FilePath    string   `json:"filePath"`    // Full path to the file that caused the error
	FileName    string   `json:"fileName"`    // Base name of the file
	Category    string   `json:"category"`    // Which input failed (config, password, fleet)
	ErrorType   string   `json:"errorType"`   // Type of error (parse, validation, io)
	Message     string   `json:"message"`     // Human-readable error message
	Details     string   `json:"details"`     // Additional details about the error
	Suggestions []string `json:"suggestions"` // Actionable suggestions to fix the error

	Err error `json:"-"`
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %s", ce.Category, ce.ErrorType, ce.FileName, ce.Message)
}

// Unwrap returns the underlying error, if any.
func (ce ConfigurationError) Unwrap() error {
	return ce.Err
}

// DetailedError returns a detailed error message with all context
func (ce ConfigurationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Configuration Error in %s", ce.FileName))
	parts = append(parts, fmt.Sprintf("  File: %s", ce.FilePath))
	parts = append(parts, fmt.Sprintf("  Category: %s", ce.Category))
	parts = append(parts, fmt.Sprintf("  Type: %s", ce.ErrorType))
	parts = append(parts, fmt.Sprintf("  Error: %s", ce.Message))

	if ce.Details != "" {
		parts = append(parts, fmt.Sprintf("  Details: %s", ce.Details))
	}

	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}

	return strings.Join(parts, "\n")
}

// NewConfigurationError creates a new configuration error with basic information
func NewConfigurationError(filePath, category, errorType string, err error) ConfigurationError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ConfigurationError{
		FilePath:  filePath,
		FileName:  filepath.Base(filePath),
		Category:  category,
		ErrorType: errorType,
		Message:   msg,
		Err:       err,
	}
}

// WithSuggestions adds suggestions to a configuration error
func (ce ConfigurationError) WithSuggestions(suggestions ...string) ConfigurationError {
	ce.Suggestions = append(ce.Suggestions, suggestions...)
	return ce
}

// WithDetails adds details to a configuration error
func (ce ConfigurationError) WithDetails(details string) ConfigurationError {
	ce.Details = details
	return ce
}
