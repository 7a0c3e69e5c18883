package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"buildwarden/internal/config"
	"buildwarden/internal/fleet"
	"buildwarden/internal/plugins"
	"buildwarden/internal/poll"
	"buildwarden/internal/reconciler"
	"buildwarden/pkg/logging"
)

// withPass tags ctx with a fresh pass ID unless it already carries one.
func withPass(ctx context.Context) context.Context {
	if logging.PassIDFromContext(ctx) != "" {
		return ctx
	}
	return logging.WithPassID(ctx, uuid.NewString())
}

// PluginOptions maps the plugins section onto reconciler options.
func PluginOptions(cfg config.PluginsConfig, clock poll.Clock) plugins.Options {
	poller := func(w config.WaitConfig) poll.Poller {
		return poll.Poller{Timeout: w.Timeout.D(), Interval: w.Interval.D(), Clock: clock}
	}
	return plugins.Options{
		Required:       cfg.Required,
		DownloadWait:   poller(cfg.DownloadWait),
		DrainWait:      poller(cfg.DrainWait),
		ReadyWait:      poller(cfg.ReadyWait),
		NoticeTemplate: cfg.NoticeTemplate,
	}
}

// RunPlugins runs one plugin pass.
func (a *Application) RunPlugins(ctx context.Context) (*plugins.Result, error) {
	ctx = withPass(ctx)
	log := logging.FromContext(ctx, "PluginPass")

	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	remote, err := a.newClient(cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote client: %w", err)
	}

	rec, err := plugins.NewReconciler(remote, a.newProbe(cfg.Plugins), PluginOptions(cfg.Plugins, a.clock))
	if err != nil {
		return nil, err
	}
	result, err := rec.Reconcile(ctx, cfg.Plugins.Allowlist)
	if err != nil {
		return result, err
	}
	log.Info("Plugin pass finished: %s (%d removed)", result.Status, len(result.Removed))
	return result, nil
}

// RunAgentFleet runs one fleet pass and publishes the distributions.
func (a *Application) RunAgentFleet(ctx context.Context) (*fleet.Result, error) {
	ctx = withPass(ctx)
	log := logging.FromContext(ctx, "FleetPass")

	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	raw, err := config.LoadDesiredFleet(cfg.Fleet.DesiredStateFile)
	if err != nil {
		return nil, err
	}
	desired, dropped := fleet.BuildDesiredFleet(raw)
	if len(dropped) > 0 {
		log.Warn("Dropped %d invalid agent descriptors", len(dropped))
	}

	remote, err := a.newClient(cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote client: %w", err)
	}
	publisher, err := a.newPublisher(cfg.Fleet.Publish)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	address := cfg.Fleet.DistributionAddress
	if address == "" {
		address = cfg.Remote.URL
	}
	result, err := fleet.NewReconciler(remote, address).Reconcile(ctx, desired)
	if err != nil {
		return nil, err
	}
	if err := publisher.Publish(ctx, result.Distributions); err != nil {
		return result, fmt.Errorf("failed to publish agent distributions: %w", err)
	}

	log.Info("Fleet pass finished: %d registered, %d deregistered, %d peers",
		len(result.Registered), len(result.Deregistered), len(result.Distributions))
	return result, nil
}

// Reconcilers returns the domain passes for the trigger manager.
func (a *Application) Reconcilers() []reconciler.Reconciler {
	return []reconciler.Reconciler{
		reconciler.ReconcilerFunc{
			D: reconciler.DomainPlugins,
			Fn: func(ctx context.Context, _ reconciler.ReconcileRequest) reconciler.ReconcileResult {
				_, err := a.RunPlugins(ctx)
				return reconciler.ReconcileResult{Error: err}
			},
		},
		reconciler.ReconcilerFunc{
			D: reconciler.DomainAgentFleet,
			Fn: func(ctx context.Context, _ reconciler.ReconcileRequest) reconciler.ReconcileResult {
				_, err := a.RunAgentFleet(ctx)
				return reconciler.ReconcileResult{Error: err}
			},
		},
	}
}
