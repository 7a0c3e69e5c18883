// Package logging provides subsystem-tagged structured logging for buildwarden.
//
// It wraps Go's log/slog with a small, printf-style API where the first argument
// names the subsystem that emits the record:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("ConfigLoader", "Loaded configuration from %s", path)
//	logging.Warn("DependencyGraph", "Skipping malformed report line %q", line)
//	logging.Error("AdminClient", err, "Request to %s failed", path)
//
// Reconciliation passes log through a Scope, which adds the pass ID generated for
// that pass to every record:
//
//	log := logging.ForPass("PluginReconciler", passID)
//	log.Info("Removing %d plugins", n)
//
// Output is either logfmt-style text or JSON (see Init). The controller-runtime
// logger is bridged onto the same handler so Kubernetes client messages share the
// configured level and format.
package logging
