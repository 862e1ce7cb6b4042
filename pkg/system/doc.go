// Package system implements the host-facing collaborators the action
// catalog dispatches to: package installation, source fetch-and-build,
// service descriptor management, service control, account creation,
// credential rewriting, and kernel tuning. Each capability has one
// variant per OS family or init system, selected once from the probed
// environment facts; the convergence core never branches on OS details
// itself.
package system
