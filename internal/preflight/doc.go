// Package preflight provides readiness checks for the tools, directories,
// and environment a build depends on.
//
// These checks run in two contexts:
//   - The build command calls RequireReady before starting so a missing
//     driver or unreadable project fails fast with a clear message.
//   - The CLI "nativebuild doctor" command renders Collect's full report.
//
// Device checks (SDK, certificate) only apply when device builds are wanted.
package preflight
