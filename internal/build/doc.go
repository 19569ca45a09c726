// Package build runs the native build pipeline for one project checkout.
//
// A run resolves the host and device specs from the build driver, optionally
// builds third-party dependencies, performs a full clean when asked, builds the
// requested areas for host and device, and finally lays out the distributable
// package tree. Each step is logged with the run identifier, timed, and
// recorded in the history store when one is attached. Runs against the same
// base directory are serialised through a file lock.
package build
