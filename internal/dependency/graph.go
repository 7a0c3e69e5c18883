// internal/dependency/graph.go
package dependency

import (
	"sort"

	"github.com/samber/lo"

	"buildwarden/pkg/logging"
)

const subsystem = "DependencyGraph"

// PluginRecord is one installed plugin as reported by the remote workload.
type PluginRecord struct {
	Name string

	// Version is informational only.
	Version string

	// Dependencies lists the names of the plugins this one depends on, in
	// report order. Duplicates are kept; traversal de-duplicates.
	Dependencies []string
}

// Graph is the dependency lookup built from a single remote snapshot. It is
// not safe for concurrent writes and is meant to be built once per pass and
// then only read.
type Graph struct {
	nodes map[string]*PluginRecord
	order []string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*PluginRecord)}
}

// AddRecord adds (or replaces) a plugin in the graph. Replacing keeps the
// position of the first occurrence.
func (g *Graph) AddRecord(r PluginRecord) {
	if g.nodes == nil {
		g.nodes = make(map[string]*PluginRecord)
	}
	if _, ok := g.nodes[r.Name]; !ok {
		g.order = append(g.order, r.Name)
	}
	// Copy to avoid external mutations
	copied := r
	copied.Dependencies = append([]string(nil), r.Dependencies...)
	g.nodes[r.Name] = &copied
}

// Get returns the stored record or nil if the plugin is not installed.
func (g *Graph) Get(name string) *PluginRecord {
	return g.nodes[name]
}

// Has reports whether the plugin appears in the snapshot.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Len returns the number of installed plugins.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Names returns the installed plugin names in report order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}

// Dependencies returns the immediate dependencies of the given plugin.
func (g *Graph) Dependencies(name string) []string {
	if n, ok := g.nodes[name]; ok {
		depsCopy := make([]string, len(n.Dependencies))
		copy(depsCopy, n.Dependencies)
		return depsCopy
	}
	return nil
}

// Dependents returns, sorted, all plugins that directly depend on name.
func (g *Graph) Dependents(name string) []string {
	var res []string
	for _, n := range g.nodes {
		if lo.Contains(n.Dependencies, name) {
			res = append(res, n.Name)
		}
	}
	sort.Strings(res)
	return res
}

// Closure returns roots plus every plugin reachable from them through the
// dependency lookup. Each name is emitted once, depth first, with a name
// emitted before its dependencies and roots taken in input order.
//
// A root or dependency that is not in the graph (requested but not installed)
// is still emitted but contributes no dependencies. Cycles terminate because
// every name is visited at most once.
func (g *Graph) Closure(roots []string) []string {
	seen := make(map[string]bool)
	var result []string

	stack := make([]string, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, name)

		node, ok := g.nodes[name]
		if !ok {
			logging.Debug(subsystem, "Plugin %s is not installed, no dependencies to follow", name)
			continue
		}
		for i := len(node.Dependencies) - 1; i >= 0; i-- {
			if !seen[node.Dependencies[i]] {
				stack = append(stack, node.Dependencies[i])
			}
		}
	}
	return result
}

// Removable returns the installed plugins that are not in allowed, in report order.
func (g *Graph) Removable(allowed []string) []string {
	return lo.Without(g.Names(), allowed...)
}

// TopLevel filters a removal set down to the plugins that are not a dependency
// of any installed plugin. The result is sorted and is meant for operator
// facing reporting only.
func (g *Graph) TopLevel(removal []string) []string {
	depended := make(map[string]bool)
	for _, n := range g.nodes {
		for _, dep := range n.Dependencies {
			depended[dep] = true
		}
	}
	top := lo.Filter(lo.Uniq(removal), func(name string, _ int) bool {
		return !depended[name]
	})
	sort.Strings(top)
	return top
}
