// Package logs reads back the JSON build log written under the state
// directory.
//
// It decodes records into Entry values, filters them by run and level, and
// supports "last N entries" reads plus follow mode for `nativebuild logs
// --follow`. Reads use bounded memory regardless of log size, and follow mode
// stops when the caller's context ends.
package logs
