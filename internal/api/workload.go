package api

import (
	"context"
	"sort"
	"strings"
)

// Outcome is the tagged result of an idempotent-by-name remote mutation.
// Client adapters translate library or protocol specific "already exists" and
// "not found" signals into an Outcome so reconcilers branch on data.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeAlreadyExists
	OutcomeNotFound
	OutcomeError
)

// String makes Outcome satisfy the fmt.Stringer interface.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeAlreadyExists:
		return "already-exists"
	case OutcomeNotFound:
		return "not-found"
	default:
		return "error"
	}
}

// AgentSpec is a validated descriptor of one desired agent node.
type AgentSpec struct {
	Name string

	// Labels is a sorted, de-duplicated label set.
	Labels []string

	// Executors is always positive.
	Executors int
}

// LabelString joins the labels the way the remote workload expects them.
func (s AgentSpec) LabelString() string {
	return strings.Join(s.Labels, " ")
}

// RemoteWorkloadClient is the capability interface the reconcilers consume.
// Wire format and transport belong to the implementation.
type RemoteWorkloadClient interface {
	// ListPluginsWithDeps returns one report line per installed plugin in the
	// form "<name> (<version>) => [<dep> (<version>), ...]".
	ListPluginsWithDeps(ctx context.Context) ([]string, error)

	// DeletePlugins uninstalls the named plugins without restarting; removal
	// takes effect on the next restart.
	DeletePlugins(ctx context.Context, names []string) error

	// Restart requests a graceful restart that lets running work finish first.
	Restart(ctx context.Context) error

	// IsReachable reports whether the workload answers liveness requests successfully.
	IsReachable(ctx context.Context) bool

	// IsDrained reports whether the workload has gone down: the connection is
	// refused or the service reports itself unavailable.
	IsDrained(ctx context.Context) bool

	RegisterNode(ctx context.Context, spec AgentSpec) (Outcome, error)
	DeregisterNode(ctx context.Context, name string) (Outcome, error)
	NodeSecret(ctx context.Context, name string) (string, error)
	ListRegisteredNodeNames(ctx context.Context) ([]string, error)
}

// SystemMessenger is implemented by clients that can display an operator-facing
// banner on the remote workload.
type SystemMessenger interface {
	SetSystemMessage(ctx context.Context, message string) error
}

// DesiredState is the validated desired state handed to the reconcilers.
type DesiredState struct {
	// AllowedPlugins is the plugin allowlist. Empty means plugins are unmanaged.
	AllowedPlugins []string

	// DesiredFleet maps a peer identity to the agents it wants registered.
	DesiredFleet map[string][]AgentSpec
}

// PeerDistribution is what a peer needs to connect its agents.
type PeerDistribution struct {
	// Address is the URL agents use to reach the workload.
	Address string

	// Secrets maps agent name to its connection secret.
	Secrets map[string]string
}

// AgentNames returns the agent names of the distribution in sorted order.
func (d PeerDistribution) AgentNames() []string {
	names := make([]string, 0, len(d.Secrets))
	for name := range d.Secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
