package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"buildwarden/internal/app"
	"buildwarden/internal/fleet"
	"buildwarden/internal/formatting"
	"buildwarden/internal/plugins"
	"buildwarden/pkg/logging"
)

var outputFormat string

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single reconciliation pass",
		Long: `Runs one pass for a domain and exits.

Exit codes:
  0   converged
  1   failed
  4   a wait (drain or readiness after restart) timed out
  75  the build server is busy downloading plugins; retry later`,
	}
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", string(formatting.FormatTable),
		"Output format: table, json or yaml")
	cmd.AddCommand(newReconcilePluginsCmd(), newReconcileAgentsCmd())
	return cmd
}

func newApplication(cmd *cobra.Command) (*app.Application, error) {
	application, err := app.NewApplication(app.NewConfig(debug, configPath, cmd.OutOrStdout()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

func newReconcilePluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "Remove plugins outside the allowlist and their unused dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatting.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			application, err := newApplication(cmd)
			if err != nil {
				return err
			}
			result, err := application.RunPlugins(cmd.Context())
			if result != nil {
				if werr := writePluginResult(cmd.OutOrStdout(), format, result); werr != nil && err == nil {
					err = werr
				}
			}
			if err != nil && isExpectedPassError(err) {
				logging.Info("CLI", "%v", err)
			}
			return err
		},
	}
}

func newReconcileAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Register and remove agent nodes to match the desired fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formatting.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			application, err := newApplication(cmd)
			if err != nil {
				return err
			}
			result, err := application.RunAgentFleet(cmd.Context())
			if result != nil {
				if werr := writeFleetResult(cmd.OutOrStdout(), format, result); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}
}

type pluginReport struct {
	Status  plugins.Status `json:"status" yaml:"status"`
	Allowed []string       `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Removed []string       `json:"removed,omitempty" yaml:"removed,omitempty"`
	Notice  string         `json:"notice,omitempty" yaml:"notice,omitempty"`
}

// fleetReport carries agent counts per peer, never the secrets.
type fleetReport struct {
	Registered    []string       `json:"registered,omitempty" yaml:"registered,omitempty"`
	Deregistered  []string       `json:"deregistered,omitempty" yaml:"deregistered,omitempty"`
	RemovalErrors string         `json:"removalErrors,omitempty" yaml:"removalErrors,omitempty"`
	Peers         map[string]int `json:"peers,omitempty" yaml:"peers,omitempty"`
}

func writePluginResult(out io.Writer, format formatting.OutputFormat, r *plugins.Result) error {
	report := pluginReport{Status: r.Status, Allowed: r.Allowed, Removed: r.Removed, Notice: r.Notice}
	return formatting.Write(out, format, report, func(w io.Writer) { printPluginResult(w, r) })
}

func writeFleetResult(out io.Writer, format formatting.OutputFormat, r *fleet.Result) error {
	report := fleetReport{Registered: r.Registered, Deregistered: r.Deregistered}
	if r.RemovalErrors != nil {
		report.RemovalErrors = r.RemovalErrors.Error()
	}
	if len(r.Distributions) > 0 {
		report.Peers = make(map[string]int, len(r.Distributions))
		for peer, d := range r.Distributions {
			report.Peers[peer] = len(d.Secrets)
		}
	}
	return formatting.Write(out, format, report, func(w io.Writer) { printFleetResult(w, r) })
}

func printPluginResult(out io.Writer, r *plugins.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendRow(table.Row{"Status", r.Status})
	if r.Status != plugins.StatusUnmanaged {
		t.AppendRow(table.Row{"Allowed", len(r.Allowed)})
		t.AppendRow(table.Row{"Removed", listOrDash(r.Removed)})
	}
	t.Render()
	if r.Notice != "" {
		fmt.Fprintln(out, r.Notice)
	}
}

func printFleetResult(out io.Writer, r *fleet.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendRow(table.Row{"Registered", listOrDash(r.Registered)})
	t.AppendRow(table.Row{"Deregistered", listOrDash(r.Deregistered)})
	if r.RemovalErrors != nil {
		t.AppendRow(table.Row{"Removal errors", r.RemovalErrors.Error()})
	}
	t.Render()
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
