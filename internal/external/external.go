// Package external downloads and builds the third-party CMake dependencies
// that sit beside driver-built projects.
//
// Each dependency set is built once per target (`<config>_host`,
// `<config>_device`) into `<build_dir>/<spec>` and installed into
// `<install_dir>/<spec>`, where spec is the driver's output directory name for
// the target. Device builds cross-compile through a toolchain file the driver
// generates.
package external

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nativebuild/internal/config"
	"nativebuild/internal/layout"
	"nativebuild/internal/logging"
	"nativebuild/internal/services/cmake"
	"nativebuild/internal/services/driver"
	"nativebuild/internal/services/fetch"
)

// Options selects which dependency builds run.
type Options struct {
	Release  bool
	Host     bool
	Device   bool
	Parallel bool
}

// Config returns "release" or "debug".
func (o Options) Config() string {
	if o.Release {
		return "release"
	}
	return "debug"
}

// Option configures the builder.
type Option func(*Builder)

// WithFetcher replaces the archive fetcher.
func WithFetcher(fetcher *fetch.Fetcher) Option {
	return func(b *Builder) {
		if fetcher != nil {
			b.fetcher = fetcher
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithEnvLookup replaces os.LookupEnv (primarily for tests).
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(b *Builder) {
		if lookup != nil {
			b.lookupEnv = lookup
		}
	}
}

// Builder runs external dependency downloads and builds.
type Builder struct {
	cfg       *config.Config
	driver    *driver.Client
	cmake     *cmake.Client
	fetcher   *fetch.Fetcher
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
}

// New constructs a builder.
func New(cfg *config.Config, drv *driver.Client, cm *cmake.Client, opts ...Option) *Builder {
	b := &Builder{
		cfg:       cfg,
		driver:    drv,
		cmake:     cm,
		logger:    logging.NewNop(),
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.fetcher == nil {
		timeout := time.Duration(cfg.External.DownloadTimeout) * time.Second
		b.fetcher = fetch.New(timeout, fetch.WithLogger(b.logger))
	}
	return b
}

// Fetch downloads and unpacks every configured archive in order and returns
// the number of extracted files.
func (b *Builder) Fetch(ctx context.Context) (int, error) {
	total := 0
	for _, archive := range b.cfg.External.Archives {
		count, err := b.fetcher.Fetch(ctx, fetch.Archive{
			Name: archive.Name,
			URL:  archive.URL,
			Path: archive.Archive,
			Dest: archive.Dest,
		})
		if err != nil {
			return total, err
		}
		total += count
	}
	b.logger.Info("external archives fetched",
		logging.Int("archives", len(b.cfg.External.Archives)),
		logging.Int("files", total),
	)
	return total, nil
}

// Build configures, builds, and installs the dependencies for the selected
// targets. The host target builds first.
func (b *Builder) Build(ctx context.Context, opts Options) error {
	cfgName := opts.Config()
	if opts.Host {
		if err := b.buildTarget(ctx, cfgName+"_host", opts.Parallel); err != nil {
			return err
		}
	}
	if opts.Device {
		target := cfgName + "_device"
		if err := b.driver.CreateToolchain(ctx, target, b.cfg.CMake.ToolchainFile); err != nil {
			return err
		}
		if err := b.buildTarget(ctx, target, opts.Parallel); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildTarget(ctx context.Context, target string, parallel bool) error {
	start := time.Now()
	spec, err := b.driver.PrintSpec(ctx, target)
	if err != nil {
		return err
	}
	buildDir := filepath.Join(b.cfg.CMake.BuildDir, spec)
	installDir := filepath.Join(b.cfg.CMake.InstallDir, spec)
	buildType := cmake.BuildType(target)

	env, sdkDir := b.sdkEnv()
	req := cmake.ConfigureRequest{
		Source:    b.cfg.CMake.SourceDir,
		Build:     buildDir,
		Install:   installDir,
		BuildType: buildType,
		Defs:      b.cmake.TargetDefs(target, b.cfg.CMake.ToolchainFile, sdkDir),
		Env:       env,
	}
	b.logger.Info("building external dependencies",
		logging.String("target", target),
		logging.String("spec", spec),
		logging.String("path", buildDir),
	)
	if err := b.cmake.Configure(ctx, req, nil); err != nil {
		return err
	}
	if err := b.cmake.BuildInstall(ctx, buildDir, buildType, parallel, nil); err != nil {
		return err
	}
	b.logger.Info("external dependencies installed",
		logging.String("target", target),
		logging.String("path", installDir),
		logging.Duration("duration", time.Since(start)),
	)
	return nil
}

// sdkEnv returns the extra environment for cmake and the SDK root. An unset
// SDK variable is filled in from the driver's install directory.
func (b *Builder) sdkEnv() ([]string, string) {
	name := b.cfg.Device.SDKEnv
	if name == "" {
		return nil, ""
	}
	if value, ok := b.lookupEnv(name); ok && strings.TrimSpace(value) != "" {
		b.logger.Debug("using sdk from environment", logging.String("env", name), logging.String("path", value))
		return nil, value
	}
	dir, ok := b.driver.ToolsDir()
	if !ok {
		return nil, ""
	}
	return []string{fmt.Sprintf("%s=%s", name, dir)}, dir
}

// Clean removes the build and install roots for every target. It returns the
// directories that could not be removed.
func (b *Builder) Clean() []string {
	dirs := []string{b.cfg.CMake.BuildDir, b.cfg.CMake.InstallDir}
	b.logger.Info("cleaning external dependencies", logging.Strings("paths", dirs))
	return layout.RemoveDirs(dirs, layout.WithLogger(b.logger))
}
