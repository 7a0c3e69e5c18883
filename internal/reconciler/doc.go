// Package reconciler schedules reconciliation passes.
//
// # Overview
//
// The reconcilers in internal/plugins and internal/fleet each run a single
// pass and know nothing about when they run. This package decides when: on
// startup, when a watched configuration file changes, on a periodic resync,
// and on retry.
//
// # Architecture
//
//   - Manager: registers one Reconciler per Domain and runs a worker pool
//   - workQueue: one pending request per domain, at most one in-flight pass
//     per domain; a trigger arriving mid-pass re-runs the domain afterwards
//   - FilesystemDetector: fsnotify watcher mapping files to domains, debounced
//   - Metrics: per-domain pass counters
//
// # Retries
//
// A pass failing with *api.RemoteBusyError is retried after RetryAfterBusy
// and does not count as a failure. Other errors are retried with exponential
// backoff until MaxRetries is reached; the next trigger starts over.
//
// Example usage:
//
//	mgr := reconciler.NewManager(reconciler.ManagerConfig{
//		WatchFiles: map[string][]reconciler.Domain{
//			configFile: reconciler.AllDomains,
//		},
//		ResyncInterval: 10 * time.Minute,
//	})
//	_ = mgr.RegisterReconciler(pluginsPass)
//	_ = mgr.RegisterReconciler(fleetPass)
//	if err := mgr.Start(ctx); err != nil {
//		return err
//	}
//	defer mgr.Stop()
package reconciler
