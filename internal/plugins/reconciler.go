package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"buildwarden/internal/api"
	"buildwarden/internal/dependency"
	"buildwarden/internal/poll"
	"buildwarden/pkg/logging"
)

const subsystem = "PluginReconciler"

// Status is the outcome of a plugin pass that did not fail.
type Status string

const (
	// StatusUnmanaged means no allowlist is configured and nothing was touched.
	StatusUnmanaged Status = "unmanaged"

	// StatusUpToDate means every installed plugin is allowed.
	StatusUpToDate Status = "up-to-date"

	// StatusRemoved means unlisted plugins were removed and the workload restarted.
	StatusRemoved Status = "removed"
)

// ErrRestartIncomplete is wrapped into every error raised after plugins were
// deleted, when the restart that activates the deletion did not complete.
var ErrRestartIncomplete = errors.New("plugins deleted, restart incomplete")

// MarkerProbe reports partial plugin downloads on the remote workload.
type MarkerProbe interface {
	PendingDownloads(ctx context.Context) ([]string, error)
}

// Options configures a Reconciler. The wait kinds are set by NewReconciler.
type Options struct {
	// Required plugins are allowed regardless of the allowlist.
	Required []string

	DownloadWait poll.Poller
	DrainWait    poll.Poller
	ReadyWait    poll.Poller

	// NoticeTemplate is a text/template with sprig functions, rendered with
	// NoticeData after a removal.
	NoticeTemplate string
}

// NoticeData is passed to the notice template.
type NoticeData struct {
	Removed  []string
	TopLevel []string
}

// Result describes one plugin pass.
type Result struct {
	Status Status

	// Allowed is the closure of allowlist and required plugins.
	Allowed []string

	// Removed is the full removal set that was deleted.
	Removed []string

	// TopLevelRemoved is the part of Removed named in the notice.
	TopLevelRemoved []string

	Notice string
}

// Reconciler converges the installed plugin set with an allowlist.
type Reconciler struct {
	client api.RemoteWorkloadClient
	probe  MarkerProbe
	opts   Options
	notice *template.Template
}

// NewReconciler returns a plugin reconciler for one pass.
func NewReconciler(client api.RemoteWorkloadClient, probe MarkerProbe, opts Options) (*Reconciler, error) {
	notice, err := template.New("notice").Funcs(sprig.TxtFuncMap()).Parse(opts.NoticeTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notice template: %w", err)
	}
	opts.DownloadWait.Kind = api.WaitDownloadQuiescence
	opts.DrainWait.Kind = api.WaitRestartDrain
	opts.ReadyWait.Kind = api.WaitReadiness
	return &Reconciler{client: client, probe: probe, opts: opts, notice: notice}, nil
}

// Reconcile runs one plugin pass against allowlist.
//
// An empty allowlist leaves plugins unmanaged and makes no remote calls. While
// plugin downloads are in flight the pass fails with *api.RemoteBusyError
// without mutating anything. Failure to list or delete plugins yields
// *api.RemoteAPIError. If the restart after a deletion does not complete in
// time, the populated result is returned together with an error wrapping
// ErrRestartIncomplete and the cause (*api.TimeoutError for the waits).
func (r *Reconciler) Reconcile(ctx context.Context, allowlist []string) (*Result, error) {
	log := logging.FromContext(ctx, subsystem)

	if len(allowlist) == 0 {
		log.Debug("No plugin allowlist configured, plugins are unmanaged")
		return &Result{Status: StatusUnmanaged}, nil
	}

	if err := r.WaitDownloadsSettled(ctx); err != nil {
		return nil, err
	}

	lines, err := r.client.ListPluginsWithDeps(ctx)
	if err != nil {
		return nil, api.NewRemoteAPIError("list-plugins", err)
	}
	graph, _ := dependency.ParseReport(lines)

	roots := append(append([]string{}, allowlist...), r.opts.Required...)
	result := &Result{Allowed: graph.Closure(roots)}
	result.Removed = graph.Removable(result.Allowed)
	if len(result.Removed) == 0 {
		log.Info("All %d installed plugins are allowed", graph.Len())
		result.Status = StatusUpToDate
		return result, nil
	}

	log.Info("Removing %d unlisted plugins: %s", len(result.Removed), strings.Join(result.Removed, ", "))
	if err := r.client.DeletePlugins(ctx, result.Removed); err != nil {
		return nil, api.NewRemoteAPIError("delete-plugins", err, result.Removed...)
	}
	result.Status = StatusRemoved
	result.TopLevelRemoved = graph.TopLevel(result.Removed)

	result.Notice, err = r.RenderNotice(result.Removed, result.TopLevelRemoved)
	if err != nil {
		log.Warn("Failed to render removal notice: %v", err)
	}

	if err := r.restart(ctx); err != nil {
		return result, err
	}

	if result.Notice != "" {
		r.publishNotice(ctx, result.Notice)
	}
	log.Info("Plugin removal complete")
	return result, nil
}

// WaitDownloadsSettled waits until no partial download markers remain.
func (r *Reconciler) WaitDownloadsSettled(ctx context.Context) error {
	pending, err := poll.Until(ctx, r.opts.DownloadWait, func(ctx context.Context) ([]string, bool) {
		markers, err := r.probe.PendingDownloads(ctx)
		if err != nil {
			logging.Warn(subsystem, "Failed to probe plugin downloads: %v", err)
			return nil, false
		}
		return markers, len(markers) == 0
	})
	if api.IsTimeout(err) {
		return &api.RemoteBusyError{Reason: "plugin downloads in progress", Pending: pending, Cause: err}
	}
	return err
}

// WaitDrained waits until the workload has stopped after a restart request.
func (r *Reconciler) WaitDrained(ctx context.Context) error {
	return poll.UntilTrue(ctx, r.opts.DrainWait, r.client.IsDrained)
}

// WaitReady waits until the workload answers liveness requests again.
func (r *Reconciler) WaitReady(ctx context.Context) error {
	return poll.UntilTrue(ctx, r.opts.ReadyWait, r.client.IsReachable)
}

func (r *Reconciler) restart(ctx context.Context) error {
	if err := r.client.Restart(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRestartIncomplete, api.NewRemoteAPIError("restart", err))
	}
	if err := r.WaitDrained(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRestartIncomplete, err)
	}
	if err := r.WaitReady(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRestartIncomplete, err)
	}
	return nil
}

// RenderNotice renders the operator-facing removal notice.
func (r *Reconciler) RenderNotice(removed, topLevel []string) (string, error) {
	var b strings.Builder
	if err := r.notice.Execute(&b, NoticeData{Removed: removed, TopLevel: topLevel}); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

func (r *Reconciler) publishNotice(ctx context.Context, notice string) {
	messenger, ok := r.client.(api.SystemMessenger)
	if !ok {
		return
	}
	if err := messenger.SetSystemMessage(ctx, notice); err != nil {
		logging.FromContext(ctx, subsystem).Error(err, "Failed to set system message")
	}
}
