// Package layout post-processes the package tree the build driver lays out:
// it locates shipped executables and makes sure they carry execute bits.
package layout

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"nativebuild/internal/fileutil"
	"nativebuild/internal/logging"
)

// ExecutableMode is applied to every executable found in the layout.
const ExecutableMode os.FileMode = 0o777

var (
	elfMagic   = []byte{0x7f, 'E', 'L', 'F'}
	machOMagic = []byte{0xcf, 0xfa, 0xed, 0xfe}

	skippedDirMarkers = []string{"uifrontend", "unity"}
)

// Option configures the layout helpers.
type Option func(*options)

type options struct {
	goos   string
	logger *slog.Logger
}

// WithGOOS overrides the platform used to recognise executables.
func WithGOOS(goos string) Option {
	return func(o *options) {
		if goos != "" {
			o.goos = goos
		}
	}
}

// WithLogger routes per-file debug output to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{goos: runtime.GOOS, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// IsSkippedDir reports whether a directory holds non-CLI content (UI front
// ends, Unity plugins) that searches must not descend into.
func IsSkippedDir(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range skippedDirMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// FindFiles walks root and returns every file accepted by match, skipping
// directories whose path below root satisfies IsSkippedDir.
func FindFiles(root string, match func(string) bool) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel, relErr := filepath.Rel(root, path); relErr == nil && rel != "." && IsSkippedDir(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if match(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return found, fmt.Errorf("walk %s: %w", root, err)
	}
	return found, nil
}

// ExecutableMatcher returns the executable test for goos. Linux and macOS
// executables have no extension and start with the ELF or 64-bit Mach-O
// magic; on Windows only ".exe" files count.
func ExecutableMatcher(goos string) func(string) bool {
	switch goos {
	case "windows":
		return func(path string) bool {
			return strings.EqualFold(filepath.Ext(path), ".exe")
		}
	case "darwin":
		return magicMatcher(machOMagic)
	default:
		return magicMatcher(elfMagic)
	}
}

func magicMatcher(magic []byte) func(string) bool {
	return func(path string) bool {
		if filepath.Ext(path) != "" {
			return false
		}
		head, err := fileutil.ReadMagic(path, len(magic))
		if err != nil {
			return false
		}
		return bytes.Equal(head, magic)
	}
}

// IsExecutable reports whether path is an executable for the running platform.
func IsExecutable(path string) bool {
	return ExecutableMatcher(runtime.GOOS)(path)
}

// FixPermissions marks every executable under root with ExecutableMode and
// returns the files it touched.
func FixPermissions(root string, opts ...Option) ([]string, error) {
	o := buildOptions(opts)
	exes, err := FindFiles(root, ExecutableMatcher(o.goos))
	if err != nil {
		return nil, err
	}
	for _, exe := range exes {
		o.logger.Debug("fixing permissions", logging.String("path", exe))
		if err := os.Chmod(exe, ExecutableMode); err != nil {
			return exes, fmt.Errorf("chmod %s: %w", exe, err)
		}
	}
	return exes, nil
}

// RemoveDirs deletes dirs, ignoring failures, and returns the ones that
// survived.
func RemoveDirs(dirs []string, opts ...Option) []string {
	o := buildOptions(opts)
	remaining := fileutil.RemoveDirs(dirs)
	for _, dir := range remaining {
		logging.WarnWithContext(o.logger, "directory could not be removed", "clean_dir_remaining",
			logging.String("path", dir),
			logging.String(logging.FieldErrorHint, "check permissions or open handles"),
		)
	}
	return remaining
}
