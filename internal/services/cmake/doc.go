// Package cmake drives CMake configure and build/install steps for the
// third-party dependencies built alongside the native projects.
package cmake
