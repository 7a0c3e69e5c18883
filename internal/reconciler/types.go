package reconciler

import (
	"context"
	"time"
)

// Domain names an independently reconciled part of the remote workload.
type Domain string

const (
	// DomainPlugins converges installed plugins with the allowlist.
	DomainPlugins Domain = "Plugins"

	// DomainAgentFleet converges registered agent nodes with the desired fleet.
	DomainAgentFleet Domain = "AgentFleet"
)

// AllDomains lists every known domain in trigger order.
var AllDomains = []Domain{DomainPlugins, DomainAgentFleet}

// ChangeEvent represents a detected change affecting one domain.
type ChangeEvent struct {
	// Domain is the domain whose inputs changed.
	Domain Domain

	// Operation describes what kind of change occurred.
	Operation ChangeOperation

	// Timestamp is when the change was detected.
	Timestamp time.Time

	// Source indicates where the change came from.
	Source ChangeSource

	// FilePath is the file that changed (filesystem source only).
	FilePath string
}

// ChangeOperation represents the type of change detected.
type ChangeOperation string

const (
	OperationCreate ChangeOperation = "Create"
	OperationUpdate ChangeOperation = "Update"
	OperationDelete ChangeOperation = "Delete"
)

// ChangeSource indicates where a change originated.
type ChangeSource string

const (
	// SourceFilesystem indicates the change came from filesystem watching.
	SourceFilesystem ChangeSource = "Filesystem"

	// SourceResync indicates a periodic resync.
	SourceResync ChangeSource = "Resync"

	// SourceManual indicates the change was triggered explicitly.
	SourceManual ChangeSource = "Manual"
)

// ReconcileRequest asks for one pass over a domain.
type ReconcileRequest struct {
	Domain Domain

	// Attempt is the current retry attempt number (starts at 1).
	Attempt int

	// LastError is the error from the previous attempt, if any.
	LastError error
}

// ReconcileResult represents the outcome of one pass.
type ReconcileResult struct {
	// RequeueAfter asks for another pass after the delay even on success.
	RequeueAfter time.Duration

	// Error is any error that occurred during the pass. A busy remote is
	// reported as *api.RemoteBusyError and is retried without counting
	// against MaxRetries.
	Error error
}

// Reconciler runs a pass for one domain.
//
// A pass reads its inputs fresh, so running it twice in a row with unchanged
// inputs converges to the same remote state.
type Reconciler interface {
	Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult
	GetDomain() Domain
}

// ReconcilerFunc adapts a function to the Reconciler interface.
type ReconcilerFunc struct {
	D  Domain
	Fn func(ctx context.Context, req ReconcileRequest) ReconcileResult
}

// Reconcile implements Reconciler.
func (f ReconcilerFunc) Reconcile(ctx context.Context, req ReconcileRequest) ReconcileResult {
	return f.Fn(ctx, req)
}

// GetDomain implements Reconciler.
func (f ReconcilerFunc) GetDomain() Domain { return f.D }

// ChangeDetector emits change events for the domains it watches.
type ChangeDetector interface {
	// Start begins watching and sends change events to changes.
	Start(ctx context.Context, changes chan<- ChangeEvent) error

	// Stop gracefully stops the change detector.
	Stop() error

	// GetSource returns the source type this detector monitors.
	GetSource() ChangeSource
}

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	// WatchFiles maps a file path to the domains a change to it triggers.
	// No detector is started when empty.
	WatchFiles map[string][]Domain

	// WorkerCount is the number of concurrent workers. Domains never run
	// concurrently with themselves regardless of this value. Defaults to 2.
	WorkerCount int

	// MaxRetries bounds retries of failed passes. Defaults to 5.
	MaxRetries int

	// InitialBackoff is the first retry delay. Defaults to 1 second.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay. Defaults to 5 minutes.
	MaxBackoff time.Duration

	// DebounceInterval coalesces bursts of file events. Defaults to 500ms.
	DebounceInterval time.Duration

	// RetryAfterBusy is the delay before retrying a pass that found the
	// remote workload busy. Defaults to 1 minute.
	RetryAfterBusy time.Duration

	// ResyncInterval triggers every enabled domain periodically. Zero disables resync.
	ResyncInterval time.Duration

	// PassTimeout bounds a single pass. Defaults to 30 minutes.
	PassTimeout time.Duration

	// DisabledDomains are registered but never reconciled.
	DisabledDomains map[Domain]bool
}

// ReconcileStatus is the reconciliation status of one domain.
type ReconcileStatus struct {
	Domain Domain

	// LastReconcileTime is when the domain last converged.
	LastReconcileTime *time.Time

	// LastError is the most recent error, sanitized.
	LastError string

	// RetryCount is the number of failed attempts since the last success.
	RetryCount int

	State ReconcileState
}

// ReconcileState represents the state of a domain's reconciliation.
type ReconcileState string

const (
	StatePending     ReconcileState = "Pending"
	StateReconciling ReconcileState = "Reconciling"
	StateSynced      ReconcileState = "Synced"

	// StateBusy means the remote workload was busy and the pass is deferred.
	StateBusy ReconcileState = "Busy"

	// StateError means the pass failed and will be retried.
	StateError ReconcileState = "Error"

	// StateFailed means retries are exhausted until the next trigger.
	StateFailed ReconcileState = "Failed"
)
