// Package formatting renders command results as a table, JSON or YAML.
package formatting

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Formats lists the accepted values of OutputFormat.
var Formats = []OutputFormat{FormatTable, FormatJSON, FormatYAML}

// ParseFormat converts a flag value into an OutputFormat. The empty string
// selects FormatTable.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
	}
}

// Write renders data to out. Structured formats encode data; FormatTable
// delegates to table, which knows how to lay the value out.
func Write(out io.Writer, format OutputFormat, data interface{}, table func(io.Writer)) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, "":
		table(out)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
