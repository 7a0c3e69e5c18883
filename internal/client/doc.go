// Package client talks to the remote build server.
//
// AdminClient speaks the server's admin HTTP API: the script console, the
// plugin manager, node management and the login page used for liveness. A
// client authenticates with basic auth and sends the CSRF crumb on every
// POST. Build one client per reconciliation pass.
//
// FSMarkerProbe inspects the plugin directory for partial downloads.
package client
