// Package main hosts the nativebuild CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into build
// pipeline runs, area inspection, third-party dependency maintenance,
// environment checks, and history queries. Configuration and logger setup
// happen once per invocation in commandContext so subcommands only wire the
// internal packages together and render their results.
package main
