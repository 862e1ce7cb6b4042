// Package engine implements the convergence core of seedctl: an action
// registry with dependency ordering, a deterministic planner, and a
// sequential executor guarded by a host lock.
//
// The workflow is Probe -> Plan -> Apply -> Record. A plan is the ordered
// set of registered actions whose preconditions are unmet for a given
// environment snapshot and desired state. Applying a plan re-checks each
// precondition against a live facts view that actions update through
// their declared effects, so a fully converged host always replans to an
// empty plan.
package engine
