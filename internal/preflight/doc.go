// Package preflight provides readiness checks for the external tools and
// filesystem paths a run depends on.
//
// The controller calls RunAll before spawning any worker. A failed required
// check aborts the run up front rather than hours into a batch. The CLI
// "hybridmux tools" command reuses the individual checks for display.
package preflight
