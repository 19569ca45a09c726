// Package config loads, normalizes, and validates nativebuild configuration.
//
// It supplies repository defaults, loads .env files for SDK and certificate
// variables, reads TOML files, and resolves project paths against the
// configured base directory. The Config type centralizes every knob the build
// pipeline and CLI need so paths are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
