// Package plugins converges the set of plugins installed on the remote
// workload with an allowlist.
//
// A pass waits for in-flight downloads to settle, snapshots the installed
// plugins with their dependencies, and keeps the dependency closure of the
// allowlist plus the required plugins. Everything else is deleted in one
// batch, the workload is restarted gracefully, and an operator notice naming
// the top-level removed plugins is rendered and set as the system message.
//
// Busy is reported as *api.RemoteBusyError, never as a Status.
package plugins
