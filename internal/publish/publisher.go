package publish

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"buildwarden/internal/api"
)

// Publisher delivers per-peer agent distributions to the agents' hosts.
type Publisher interface {
	Publish(ctx context.Context, distributions map[string]api.PeerDistribution) error
}

// Discard drops distributions.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, map[string]api.PeerDistribution) error { return nil }

// TablePrinter renders distributions as a table. Secrets are never printed.
type TablePrinter struct {
	Out io.Writer
}

// Publish implements Publisher.
func (p TablePrinter) Publish(_ context.Context, distributions map[string]api.PeerDistribution) error {
	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	t.AppendHeader(table.Row{"Peer", "Address", "Agents", "Secrets"})

	for _, peer := range sortedPeers(distributions) {
		dist := distributions[peer]
		names := dist.AgentNames()
		agents := strings.Join(names, ", ")
		if agents == "" {
			agents = "-"
		}
		t.AppendRow(table.Row{peer, dist.Address, agents, fmt.Sprintf("%d (hidden)", len(names))})
	}
	if len(distributions) == 0 {
		t.AppendRow(table.Row{"-", "-", "-", "-"})
	}
	t.Render()
	return nil
}

func sortedPeers(distributions map[string]api.PeerDistribution) []string {
	peers := make([]string, 0, len(distributions))
	for peer := range distributions {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}
