// Package driver wraps the external build driver CLI.
//
// It resolves host and device build specs, composes build and layout command
// lines, and provides the helpers the pipeline uses for job counts, ccache
// prefixes, and SDK discovery. All process execution goes through a
// command.Executor so tests can stub the driver entirely.
package driver
