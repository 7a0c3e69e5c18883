// Package app wires configuration, the remote admin client, the reconcilers
// and the distribution publisher into runnable passes.
//
// RunPlugins and RunAgentFleet run a single pass each and are what the
// "reconcile" commands call. Serve registers both with the trigger manager
// from internal/reconciler and blocks until its context ends, notifying
// systemd when ready and when stopping.
//
// Every pass reloads config.yaml and the desired-state file and builds a new
// admin client, and is tagged with its own pass ID in the logs.
package app
