package cmake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"nativebuild/internal/services"
	"nativebuild/internal/services/command"
)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor command.Executor) Option {
	return func(c *Client) {
		if executor != nil {
			c.exec = executor
		}
	}
}

// WithGOOS overrides the host OS used to pick generator settings.
func WithGOOS(goos string) Option {
	return func(c *Client) {
		if goos != "" {
			c.goos = goos
		}
	}
}

// Client wraps the cmake CLI.
type Client struct {
	binary string
	exec   command.Executor
	goos   string
}

// New constructs a cmake client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("cmake binary required")
	}
	client := &Client{binary: binary, exec: command.NewExecutor(), goos: runtime.GOOS}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// BuildType returns "Release" for release targets and "Debug" otherwise.
func BuildType(target string) string {
	if strings.Contains(target, "release") {
		return "Release"
	}
	return "Debug"
}

// TargetDefs returns the extra definitions for target. Device targets
// cross-compile through the driver-generated toolchain with Makefiles; on a
// Windows host they use the SDK's bundled make. Windows host builds pin the
// x64 generator platform.
func (c *Client) TargetDefs(target, toolchainFile, sdkDir string) []string {
	if strings.Contains(target, "device") {
		defs := []string{"-DCMAKE_TOOLCHAIN_FILE=" + toolchainFile, "-G", "Unix Makefiles"}
		if c.goos == "windows" && sdkDir != "" {
			makeProgram := filepath.Join(sdkDir, "tools", "mabu", "tools", "MinGW", "msys", "1.0", "bin", "make.exe")
			defs = append(defs, "-DCMAKE_MAKE_PROGRAM="+makeProgram)
		}
		return defs
	}
	if c.goos == "windows" {
		return []string{"-DCMAKE_GENERATOR_PLATFORM=x64"}
	}
	return nil
}

// ConfigureRequest describes a cmake configure step.
type ConfigureRequest struct {
	Source    string
	Build     string
	Install   string
	BuildType string
	Defs      []string
	Env       []string
}

// Args renders the configure arguments.
func (r ConfigureRequest) Args() []string {
	args := []string{
		r.Source,
		"-DCMAKE_BUILD_TYPE=" + r.BuildType,
		"-DCMAKE_INSTALL_PREFIX=" + r.Install,
		"-DCMAKE_SKIP_INSTALL_RPATH=TRUE",
	}
	return append(args, r.Defs...)
}

// Configure creates the build directory and runs cmake inside it.
func (c *Client) Configure(ctx context.Context, req ConfigureRequest, onLine func(string)) error {
	if err := os.MkdirAll(req.Build, 0o755); err != nil {
		return fmt.Errorf("create cmake build directory: %w", err)
	}
	cmd := command.Command{Dir: req.Build, Env: req.Env, Binary: c.binary, Args: req.Args()}
	if err := c.exec.Run(ctx, cmd, onLine); err != nil {
		return services.Wrap(services.ErrExternalTool, "external", "cmake configure", req.Source, err)
	}
	return nil
}

// BuildInstallArgs renders the build-and-install arguments.
func BuildInstallArgs(buildDir, buildType string, parallel bool) []string {
	args := []string{"--build", buildDir, "--config", buildType, "--target", "install"}
	if parallel {
		args = append(args, "--parallel")
	}
	return args
}

// BuildInstall builds the configured tree and installs it.
func (c *Client) BuildInstall(ctx context.Context, buildDir, buildType string, parallel bool, onLine func(string)) error {
	cmd := command.Command{Dir: buildDir, Binary: c.binary, Args: BuildInstallArgs(buildDir, buildType, parallel)}
	if err := c.exec.Run(ctx, cmd, onLine); err != nil {
		return services.Wrap(services.ErrExternalTool, "external", "cmake build", buildDir, err)
	}
	return nil
}
