package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Reconcile continuously, on change and on a schedule",
	Long: `Runs both reconciliation domains until interrupted.

A pass runs at startup, whenever config.yaml or the desired-state file
changes, and every reconciler.resyncInterval. A domain never runs twice
concurrently. A pass that finds the build server busy is retried after
reconciler.retryAfterBusy; other failures back off exponentially.

When started by systemd with Type=notify, readiness and shutdown are reported.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := newApplication(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Serve(ctx)
}
