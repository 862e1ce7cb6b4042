// Package stores persists convergence state on the managed host: the
// run history database consulted by the status view, and the install
// marker that distinguishes a managed host from an untouched one.
package stores
