// Package fleet converges the agent nodes registered on the remote workload
// with the agents peers ask for, and collects the secrets each peer needs to
// connect its agents.
//
// Additions are fail-fast. Removals are best-effort: a failing extra node is
// logged and never blocks cleanup of the others.
package fleet
