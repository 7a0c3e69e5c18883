// Package publish hands the per-peer agent distributions produced by a fleet
// pass to whatever delivers them to agent hosts: Kubernetes Secrets, a table
// on stdout, or nothing.
package publish
