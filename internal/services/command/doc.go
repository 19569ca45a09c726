// Package command runs external tools for the build pipeline.
//
// It defines the Executor seam used by the driver and cmake clients, a
// streaming implementation backed by os/exec, and the ExitError type that
// carries a tool's exit status. Tests substitute their own Executor.
package command
