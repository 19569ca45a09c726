package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"nativebuild/internal/config"
)

// DefaultAreas is the area file written by NewConfig unless overridden.
const DefaultAreas = `{"all": []}`

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	areas   string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique temp project directory. The
// area file, dist dir, and state dir all live under that directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BaseDir = base
	cfgVal.Paths.DistDir = filepath.Join(base, "dist")
	cfgVal.Paths.AreasFile = filepath.Join(base, "project_areas.json")
	cfgVal.Paths.StateDir = filepath.Join(base, ".state")
	cfgVal.Driver.BinaryPrepScript = filepath.Join(base, "scripts", "BinaryPrep.sh")
	cfgVal.CMake.SourceDir = filepath.Join(base, "external")
	cfgVal.CMake.BuildDir = filepath.Join(base, "external", "build")
	cfgVal.CMake.InstallDir = filepath.Join(base, "external", "package")
	cfgVal.CMake.ToolchainFile = filepath.Join(base, "external", "cmake", "mlsdk.toolchain.cmake")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		areas:   DefaultAreas,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	WriteFile(t, cfgVal.Paths.AreasFile, builder.areas)
	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAreas replaces the contents of the generated area file.
func WithAreas(contents string) ConfigOption {
	return func(b *configBuilder) {
		b.areas = contents
	}
}

// WithProjects writes empty project files at the given paths relative to the
// project root.
func WithProjects(rel ...string) ConfigOption {
	return func(b *configBuilder) {
		for _, name := range rel {
			WriteFile(b.t, filepath.Join(b.baseDir, filepath.FromSlash(name)), "")
		}
	}
}

// WithCertificate writes a signing certificate and points the configured
// certificate variable at it for the duration of the test.
func WithCertificate() ConfigOption {
	return func(b *configBuilder) {
		cert := filepath.Join(b.baseDir, "certs", "dev.cert")
		WriteFile(b.t, cert, "certificate")
		b.t.Setenv(b.cfg.Device.CertEnv, cert)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the driver and cmake are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Driver.Binary, b.cfg.CMake.Binary}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, filepath.Join(binDir, name), "exit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the temp project directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.BaseDir
}
