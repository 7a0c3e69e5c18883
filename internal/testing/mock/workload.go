package mock

import (
	"context"
	"sort"
	"sync"

	"buildwarden/internal/api"
)

// Call is one recorded invocation on a FakeWorkload.
type Call struct {
	Op   string
	Args []string
}

// Operation names recorded by FakeWorkload.
const (
	OpListPlugins      = "list-plugins"
	OpDeletePlugins    = "delete-plugins"
	OpRestart          = "restart"
	OpIsReachable      = "is-reachable"
	OpIsDrained        = "is-drained"
	OpRegisterNode     = "register-node"
	OpDeregisterNode   = "deregister-node"
	OpNodeSecret       = "node-secret"
	OpListNodes        = "list-nodes"
	OpSetSystemMessage = "set-system-message"
)

var mutatingOps = map[string]bool{
	OpDeletePlugins:    true,
	OpRestart:          true,
	OpRegisterNode:     true,
	OpDeregisterNode:   true,
	OpSetSystemMessage: true,
}

// FakeWorkload is an in-memory api.RemoteWorkloadClient that records every call.
// Zero values behave like a healthy, empty workload.
type FakeWorkload struct {
	mu sync.Mutex

	// PluginReport is returned by ListPluginsWithDeps.
	PluginReport []string

	// Nodes holds the registered node names.
	Nodes map[string]api.AgentSpec

	// Secrets overrides per-node secrets; unset nodes get "secret-<name>".
	Secrets map[string]string

	// Reachable and Drained decide liveness answers. When nil the workload is
	// always reachable and always drained.
	Reachable func(call int) bool
	Drained   func(call int) bool

	ListPluginsErr   error
	DeletePluginsErr error
	RestartErr       error
	ListNodesErr     error
	SystemMessageErr error
	RegisterErr      map[string]error
	DeregisterErr    map[string]error
	SecretErr        map[string]error

	// SystemMessages collects messages passed to SetSystemMessage.
	SystemMessages []string

	calls []Call
}

var (
	_ api.RemoteWorkloadClient = (*FakeWorkload)(nil)
	_ api.SystemMessenger      = (*FakeWorkload)(nil)
)

// NewFakeWorkload returns a fake with the given plugin report and registered nodes.
func NewFakeWorkload(report []string, nodes ...string) *FakeWorkload {
	f := &FakeWorkload{PluginReport: report, Nodes: make(map[string]api.AgentSpec)}
	for _, n := range nodes {
		f.Nodes[n] = api.AgentSpec{Name: n, Executors: 1}
	}
	return f
}

func (f *FakeWorkload) record(op string, args ...string) int {
	f.calls = append(f.calls, Call{Op: op, Args: args})
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakeWorkload) ListPluginsWithDeps(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpListPlugins)
	if f.ListPluginsErr != nil {
		return nil, f.ListPluginsErr
	}
	out := make([]string, len(f.PluginReport))
	copy(out, f.PluginReport)
	return out, nil
}

func (f *FakeWorkload) DeletePlugins(ctx context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpDeletePlugins, names...)
	return f.DeletePluginsErr
}

func (f *FakeWorkload) Restart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpRestart)
	return f.RestartErr
}

func (f *FakeWorkload) IsReachable(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.record(OpIsReachable)
	if f.Reachable == nil {
		return true
	}
	return f.Reachable(n)
}

func (f *FakeWorkload) IsDrained(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.record(OpIsDrained)
	if f.Drained == nil {
		return true
	}
	return f.Drained(n)
}

func (f *FakeWorkload) RegisterNode(ctx context.Context, spec api.AgentSpec) (api.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpRegisterNode, spec.Name)
	if err := f.RegisterErr[spec.Name]; err != nil {
		return api.OutcomeError, err
	}
	if f.Nodes == nil {
		f.Nodes = make(map[string]api.AgentSpec)
	}
	if _, ok := f.Nodes[spec.Name]; ok {
		return api.OutcomeAlreadyExists, nil
	}
	f.Nodes[spec.Name] = spec
	return api.OutcomeOK, nil
}

func (f *FakeWorkload) DeregisterNode(ctx context.Context, name string) (api.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpDeregisterNode, name)
	if err := f.DeregisterErr[name]; err != nil {
		return api.OutcomeError, err
	}
	if _, ok := f.Nodes[name]; !ok {
		return api.OutcomeNotFound, nil
	}
	delete(f.Nodes, name)
	return api.OutcomeOK, nil
}

func (f *FakeWorkload) NodeSecret(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpNodeSecret, name)
	if err := f.SecretErr[name]; err != nil {
		return "", err
	}
	if s, ok := f.Secrets[name]; ok {
		return s, nil
	}
	return "secret-" + name, nil
}

func (f *FakeWorkload) ListRegisteredNodeNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpListNodes)
	if f.ListNodesErr != nil {
		return nil, f.ListNodesErr
	}
	names := make([]string, 0, len(f.Nodes))
	for n := range f.Nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeWorkload) SetSystemMessage(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpSetSystemMessage)
	if f.SystemMessageErr != nil {
		return f.SystemMessageErr
	}
	f.SystemMessages = append(f.SystemMessages, message)
	return nil
}

// Calls returns a copy of all recorded calls in order.
func (f *FakeWorkload) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded calls for one operation.
func (f *FakeWorkload) CallsTo(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// MutationCount returns how many recorded calls changed remote state.
func (f *FakeWorkload) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if mutatingOps[c.Op] {
			n++
		}
	}
	return n
}

// NodeNames returns the currently registered node names without recording a call.
func (f *FakeWorkload) NodeNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.Nodes))
	for n := range f.Nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
