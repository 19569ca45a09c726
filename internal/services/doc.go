// Package services defines shared utilities consumed by the build pipeline
// steps and the external tool clients.
//
// Key responsibilities:
//   - Context helpers that stamp build run IDs and step names for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent process exit codes.
//
// Tool clients live in sub-packages (driver, cmake, fetch) and report failures
// through these markers so the CLI can classify them uniformly.
package services
