// Package areas resolves named build areas into the project files a build
// invocation compiles.
//
// An area configuration is a JSON object (full-line // comments allowed) whose
// keys are area names, optionally joined with "|" to alias several names to the
// same entry list. Each entry is either a path (it contains "/" or ".") or the
// name of another area. Load validates every area reference up front and
// precomputes the transitive sub-area closure; ResolveProjects then walks the
// referenced paths for project files.
//
// Resolver keeps loaded configurations in a bounded cache keyed by path so
// repeated queries within one process parse each file once.
package areas
