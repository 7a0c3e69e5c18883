package dependency

import (
	"regexp"
	"strings"

	"buildwarden/internal/api"
	"buildwarden/pkg/logging"
)

const reportSource = "dependency-report"

// pluginPattern matches "<name> (<version>)". Any version string is accepted.
var pluginPattern = regexp.MustCompile(`^([A-Za-z0-9_-]+) \((.+)\)$`)

// ParsePluginName extracts the name and version from "<name> (<version>)".
func ParsePluginName(s string) (name, version string, err error) {
	m := pluginPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", "", &api.ValidationError{Source: reportSource, Value: s, Reason: "expected \"<name> (<version>)\""}
	}
	return m[1], m[2], nil
}

// ParsePluginLine parses one report line of the form
// "<name> (<version>) => [<dep> (<version>), ...]". The dependency part is
// optional and may be an empty bracket.
//
// A line whose plugin part is malformed yields an error. Malformed
// dependency tokens are returned as skipped while their well-formed siblings
// are kept; an unbracketed dependency part is skipped as a whole and the
// plugin itself is kept.
func ParsePluginLine(line string) (PluginRecord, []string, error) {
	head, tail, hasDeps := strings.Cut(line, " => ")

	name, version, err := ParsePluginName(head)
	if err != nil {
		return PluginRecord{}, nil, err
	}
	record := PluginRecord{Name: name, Version: version}
	if !hasDeps {
		return record, nil, nil
	}

	tail = strings.TrimSpace(tail)
	if !strings.HasPrefix(tail, "[") || !strings.HasSuffix(tail, "]") {
		return record, []string{tail}, nil
	}
	inner := strings.TrimSpace(tail[1 : len(tail)-1])
	if inner == "" {
		return record, nil, nil
	}

	var skipped []string
	for _, token := range strings.Split(inner, ",") {
		depName, _, err := ParsePluginName(token)
		if err != nil {
			skipped = append(skipped, strings.TrimSpace(token))
			continue
		}
		record.Dependencies = append(record.Dependencies, depName)
	}
	return record, skipped, nil
}

// ParseReport builds a Graph from the remote plugin report. Parsing is
// lenient: malformed lines and dependency tokens are logged at warning level
// and skipped, and returned as validation errors for callers that want to
// surface them.
func ParseReport(lines []string) (*Graph, []error) {
	g := New()
	var problems []error

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		record, skipped, err := ParsePluginLine(line)
		if err != nil {
			logging.Warn(subsystem, "Skipping malformed report line %q: %v", line, err)
			problems = append(problems, err)
			continue
		}
		for _, token := range skipped {
			logging.Warn(subsystem, "Skipping malformed dependency %q of plugin %s", token, record.Name)
			problems = append(problems, &api.ValidationError{
				Source: reportSource,
				Field:  record.Name,
				Value:  token,
				Reason: "expected \"<name> (<version>)\"",
			})
		}
		g.AddRecord(record)
	}

	logging.Debug(subsystem, "Parsed %d plugins from %d report lines (%d problems)", g.Len(), len(lines), len(problems))
	return g, problems
}
