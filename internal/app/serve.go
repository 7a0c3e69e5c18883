package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/daemon"

	"buildwarden/internal/config"
	"buildwarden/internal/reconciler"
	"buildwarden/pkg/logging"
)

// ManagerConfig maps the reconciler section onto the trigger manager and
// watches config.yaml for both domains and the desired-state file for the
// fleet. Files in directories that do not exist are not watched.
func ManagerConfig(configPath string, cfg config.Config) reconciler.ManagerConfig {
	watch := map[string][]reconciler.Domain{}
	add := func(path string, domains ...reconciler.Domain) {
		if path == "" {
			return
		}
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			logging.Warn("Serve", "Not watching %s: %v", path, err)
			return
		}
		watch[path] = append(watch[path], domains...)
	}
	add(config.ConfigFilePath(configPath), reconciler.AllDomains...)
	add(cfg.Fleet.DesiredStateFile, reconciler.DomainAgentFleet)

	rc := cfg.Reconciler
	return reconciler.ManagerConfig{
		WatchFiles:       watch,
		WorkerCount:      rc.WorkerCount,
		MaxRetries:       rc.MaxRetries,
		InitialBackoff:   rc.InitialBackoff.D(),
		MaxBackoff:       rc.MaxBackoff.D(),
		DebounceInterval: rc.Debounce.D(),
		RetryAfterBusy:   rc.RetryAfterBusy.D(),
		ResyncInterval:   rc.ResyncInterval.D(),
		PassTimeout:      rc.PassTimeout.D(),
	}
}

// Serve runs both domains under the trigger manager until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	mgr := reconciler.NewManager(ManagerConfig(a.config.ConfigPath, cfg))
	for _, r := range a.Reconcilers() {
		if err := mgr.RegisterReconciler(r); err != nil {
			return err
		}
	}
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciliation manager: %w", err)
	}
	notify(daemon.SdNotifyReady)
	logging.Info("Serve", "Reconciling %v; waiting for changes", mgr.EnabledDomains())

	<-ctx.Done()

	notify(daemon.SdNotifyStopping)
	err = mgr.Stop()
	logSummary(mgr)
	return err
}

func logSummary(mgr *reconciler.Manager) {
	for _, status := range mgr.GetAllStatuses() {
		if status.LastError != "" {
			logging.Info("Serve", "%s ended %s: %s", status.Domain, status.State, status.LastError)
			continue
		}
		logging.Info("Serve", "%s ended %s", status.Domain, status.State)
	}
	s := mgr.Metrics().Summary()
	logging.Info("Serve", "Ran %d passes: %d converged, %d busy, %d failed",
		s.TotalAttempts, s.TotalSuccesses, s.TotalBusy, s.TotalFailures)
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("Serve", "Failed to notify systemd: %v", err)
		return
	}
	if sent {
		logging.Debug("Serve", "Notified systemd: %s", state)
	}
}
