package fleet

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"buildwarden/internal/api"
	"buildwarden/pkg/logging"
)

const (
	keyName      = "name"
	keyExecutors = "executors"
	keyLabels    = "labels"

	// keySlaveHost is the name key used by peers speaking the deprecated
	// agent relation format.
	keySlaveHost = "slavehost"
)

// ParseAgentSpec validates one agent descriptor advertised by a peer. source
// identifies the peer in returned errors.
func ParseAgentSpec(source string, raw map[string]string) (api.AgentSpec, error) {
	name := strings.TrimSpace(raw[keyName])
	if name == "" {
		name = strings.TrimSpace(raw[keySlaveHost])
	}
	if name == "" {
		return api.AgentSpec{}, &api.ValidationError{Source: source, Field: keyName, Reason: "is required"}
	}

	rawExecutors := strings.TrimSpace(raw[keyExecutors])
	if rawExecutors == "" {
		return api.AgentSpec{}, &api.ValidationError{Source: source, Field: keyExecutors, Reason: "is required"}
	}
	executors, err := strconv.Atoi(rawExecutors)
	if err != nil {
		return api.AgentSpec{}, &api.ValidationError{Source: source, Field: keyExecutors, Value: rawExecutors, Reason: "not an integer"}
	}
	if executors < 1 {
		return api.AgentSpec{}, &api.ValidationError{Source: source, Field: keyExecutors, Value: rawExecutors, Reason: "must be positive"}
	}

	labels := splitLabels(raw[keyLabels])
	if len(labels) == 0 {
		return api.AgentSpec{}, &api.ValidationError{Source: source, Field: keyLabels, Reason: "is required"}
	}

	return api.AgentSpec{Name: name, Labels: labels, Executors: executors}, nil
}

// splitLabels accepts comma and/or whitespace separated labels.
func splitLabels(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	labels := lo.Uniq(fields)
	sort.Strings(labels)
	return labels
}

// BuildDesiredFleet validates the raw per-peer agent data. Invalid descriptors
// are logged and dropped; the remaining specs of the same peer are kept. The
// dropped descriptors are returned as validation errors.
func BuildDesiredFleet(raw map[string][]map[string]string) (map[string][]api.AgentSpec, []error) {
	desired := make(map[string][]api.AgentSpec, len(raw))
	var dropped []error

	for peer, agents := range raw {
		specs := make([]api.AgentSpec, 0, len(agents))
		for _, agent := range agents {
			spec, err := ParseAgentSpec(peer, agent)
			if err != nil {
				logging.Warn(subsystem, "Dropping agent descriptor from %s: %v", peer, err)
				dropped = append(dropped, err)
				continue
			}
			specs = append(specs, spec)
		}
		desired[peer] = specs
	}
	return desired, dropped
}

// DesiredNames flattens a desired fleet into its sorted, unique agent names.
func DesiredNames(desired map[string][]api.AgentSpec) []string {
	var names []string
	for _, specs := range desired {
		for _, spec := range specs {
			names = append(names, spec.Name)
		}
	}
	names = lo.Uniq(names)
	sort.Strings(names)
	return names
}
