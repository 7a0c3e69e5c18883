// Package api holds the types shared between the reconcilers and the
// adapters they drive.
//
// # Remote workload
//
// RemoteWorkloadClient is the boundary to the build server. The reconcilers
// in internal/plugins and internal/fleet depend only on this interface; the
// HTTP implementation lives in internal/client and an in-memory fake in
// internal/testing/mock. Node registration and removal report an Outcome
// instead of an error for the expected "already there" and "already gone"
// cases so that callers can treat them as success.
//
// # Errors
//
// Error classes are distinguishable with errors.As or the Is* helpers:
//
//   - TimeoutError: a bounded wait expired (drain, readiness, downloads)
//   - RemoteBusyError: the workload is downloading plugins; retry the pass
//     later. It wraps the download TimeoutError that detected it.
//   - RemoteAPIError: a remote call failed
//   - ValidationError: desired agent data is malformed
//
// Callers that map errors to exit codes or retry policies must check
// RemoteBusyError before TimeoutError.
package api
