// Package dependency turns the remote plugin report into a dependency graph
// and answers the questions the plugin reconciler asks of it.
//
// # Report format
//
// Each installed plugin is reported on one line:
//
//	credentials (1337.v60b_d7b_c7b_c9f) => [structs (337.v1b_04ea_4df7c8), ssh-credentials (343.v884f71d78167)]
//	structs (337.v1b_04ea_4df7c8) => []
//
// Plugin names match [A-Za-z0-9_-]+ and versions are opaque. Lines that do not
// start with "<name> (<version>)" are skipped with a warning, as are individual
// dependency tokens that do not parse. One bad line never aborts a pass.
//
// # Operations
//
// Closure computes the transitive set of a list of root names using an
// explicit stack and a seen-set, so cyclic reports terminate and the emission
// order is stable: roots in input order, each followed by its dependencies.
//
// Removable diffs the installed set against an allowed set.
//
// TopLevel drops every name that some installed plugin depends on. It is used
// to word the removal notice and never to decide what is deleted.
//
// A Graph is built fresh from one snapshot per pass and is read-only afterwards.
package dependency
