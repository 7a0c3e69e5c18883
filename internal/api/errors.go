package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WaitKind identifies which bounded wait expired.
type WaitKind string

const (
	// WaitDownloadQuiescence is the wait for in-flight plugin downloads to finish.
	WaitDownloadQuiescence WaitKind = "download-quiescence"

	// WaitRestartDrain is the wait for the workload to drain running work and go down
	// after a graceful restart was requested.
	WaitRestartDrain WaitKind = "restart-drain"

	// WaitReadiness is the wait for the workload to answer liveness requests again.
	WaitReadiness WaitKind = "readiness"
)

// TimeoutError reports that a bounded wait expired before its condition held.
type TimeoutError struct {
	Kind    WaitKind
	Timeout time.Duration
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Kind)
}

// IsTimeout checks if an error is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// TimeoutKind returns the wait kind of a wrapped TimeoutError and whether one was found.
func TimeoutKind(err error) (WaitKind, bool) {
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Kind, true
	}
	return "", false
}

// RemoteBusyError signals that the remote workload is in the middle of an
// operation (plugin downloads in flight) and the pass should be retried on the
// next trigger. It is transient and never indicates a fault.
type RemoteBusyError struct {
	// Reason is a human readable explanation.
	Reason string

	// Pending lists the in-flight markers observed when the wait gave up.
	Pending []string

	// Cause is the expired wait, if any.
	Cause error
}

// Error implements the error interface for RemoteBusyError.
func (e *RemoteBusyError) Error() string {
	msg := "remote workload busy"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Pending) > 0 {
		msg += fmt.Sprintf(" (%d pending: %s)", len(e.Pending), strings.Join(e.Pending, ", "))
	}
	return msg
}

// Unwrap returns the expired wait that caused the busy condition.
func (e *RemoteBusyError) Unwrap() error {
	return e.Cause
}

// IsRemoteBusy checks if an error is or wraps a RemoteBusyError.
func IsRemoteBusy(err error) bool {
	var busyErr *RemoteBusyError
	return errors.As(err, &busyErr)
}

// RemoteAPIError reports that a call to the remote admin API was rejected or failed.
type RemoteAPIError struct {
	// Operation names the logical operation, e.g. "delete-plugins".
	Operation string

	// Identifiers are the resource names involved (plugin or node names).
	Identifiers []string

	Err error
}

// NewRemoteAPIError wraps err as a RemoteAPIError for the given operation.
func NewRemoteAPIError(operation string, err error, identifiers ...string) *RemoteAPIError {
	return &RemoteAPIError{Operation: operation, Identifiers: identifiers, Err: err}
}

// Error implements the error interface for RemoteAPIError.
func (e *RemoteAPIError) Error() string {
	if len(e.Identifiers) == 0 {
		return fmt.Sprintf("remote %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("remote %s failed for %s: %v", e.Operation, strings.Join(e.Identifiers, ", "), e.Err)
}

// Unwrap returns the underlying transport or protocol error.
func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// IsRemoteAPI checks if an error is or wraps a RemoteAPIError.
func IsRemoteAPI(err error) bool {
	var apiErr *RemoteAPIError
	return errors.As(err, &apiErr)
}

// ValidationError describes malformed input: a dependency report line, a
// dependency token, or one peer's agent data.
type ValidationError struct {
	// Source says where the input came from (a peer identity, "dependency-report").
	Source string

	// Field is the offending field, if the input is structured.
	Field string

	// Value is the offending raw value.
	Value string

	Reason string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid")
	if e.Source != "" {
		b.WriteString(" " + e.Source)
	}
	if e.Field != "" {
		b.WriteString(" field " + e.Field)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " %q", e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	return b.String()
}

// IsValidation checks if an error is or wraps a ValidationError.
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
