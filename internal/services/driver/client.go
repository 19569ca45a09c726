package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"nativebuild/internal/logging"
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

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTargetEnv names the environment variable holding the default target.
func WithTargetEnv(name string) Option {
	return func(c *Client) {
		c.targetEnv = strings.TrimSpace(name)
	}
}

// WithEnvLookup replaces os.LookupEnv (primarily for tests).
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(c *Client) {
		if lookup != nil {
			c.lookupEnv = lookup
		}
	}
}

// WithLookPath replaces exec.LookPath (primarily for tests).
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(c *Client) {
		if lookPath != nil {
			c.lookPath = lookPath
		}
	}
}

// WithGOOS overrides the host OS used for fallback specs.
func WithGOOS(goos string) Option {
	return func(c *Client) {
		if goos != "" {
			c.goos = goos
		}
	}
}

// Client wraps build driver CLI interactions.
type Client struct {
	binary    string
	targetEnv string
	exec      command.Executor
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
	lookPath  func(string) (string, error)
	goos      string
}

// New constructs a driver client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("driver binary required")
	}
	client := &Client{
		binary:    binary,
		exec:      command.NewExecutor(),
		logger:    logging.NewNop(),
		lookupEnv: os.LookupEnv,
		lookPath:  exec.LookPath,
		goos:      runtime.GOOS,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Binary returns the driver executable name.
func (c *Client) Binary() string {
	return c.binary
}

var versionPattern = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?`)

// ParseVersion extracts the first dotted version number from driver output
// and returns it in canonical semver form ("v1.2.3").
func ParseVersion(output string) (string, bool) {
	match := versionPattern.FindString(output)
	if match == "" {
		return "", false
	}
	canonical := semver.Canonical("v" + match)
	return canonical, canonical != ""
}

// Version runs the driver's --version and parses the result.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.exec.Output(ctx, command.Command{Binary: c.binary, Args: []string{"--version"}})
	if err != nil {
		if command.IsNotFound(err) {
			return "", services.Wrap(services.ErrNotFound, "driver", "version", fmt.Sprintf("%s not available on PATH; run envsetup or install the SDK", c.binary), err)
		}
		return "", services.Wrap(services.ErrExternalTool, "driver", "version", "", err)
	}
	version, ok := ParseVersion(out)
	if !ok {
		return "", services.Wrap(services.ErrExternalTool, "driver", "version", fmt.Sprintf("unrecognized version output %q", out), nil)
	}
	return version, nil
}

// CheckMinVersion fails when have is older than minimum. An empty minimum
// accepts any version.
func CheckMinVersion(have, minimum string) error {
	if minimum == "" {
		return nil
	}
	if semver.Compare(have, minimum) < 0 {
		return services.Wrap(services.ErrValidation, "driver", "version",
			fmt.Sprintf("version %s is older than required %s", have, minimum), nil)
	}
	return nil
}

// HostSpec asks the driver to resolve the qualified host build spec. The
// default target comes from the configured environment variable and target,
// when set, is passed last so it overrides it. A missing driver binary yields
// the OS default debug spec.
func (c *Client) HostSpec(ctx context.Context, target string) (string, error) {
	args := []string{"--print-target"}
	if c.targetEnv != "" {
		if value, ok := c.lookupEnv(c.targetEnv); ok && strings.TrimSpace(value) != "" {
			args = append(args, "-t", strings.TrimSpace(value))
		}
	}
	args = append(args, "-q")
	if target = strings.TrimSpace(target); target != "" {
		args = append(args, "-t", target)
	}

	out, err := c.exec.Output(ctx, command.Command{Binary: c.binary, Args: args})
	if err != nil {
		if command.IsNotFound(err) {
			spec := FallbackHostSpec(c.goos)
			logging.WarnWithContext(c.logger, "build driver not found; using default host spec", "driver_missing",
				logging.String("binary", c.binary),
				logging.String("spec", spec),
				logging.String(logging.FieldErrorHint, "add the SDK tools directory to PATH"),
				logging.String(logging.FieldImpact, "driver builds will fail"),
			)
			return spec, nil
		}
		return "", services.Wrap(services.ErrExternalTool, "specs", "print-target", "failed to run build driver", err)
	}
	spec := strings.TrimSpace(out)
	if spec == "" {
		return "", services.Wrap(services.ErrExternalTool, "specs", "print-target", "build driver printed no target", nil)
	}
	return spec, nil
}

// FallbackHostSpec returns the default debug spec for goos.
func FallbackHostSpec(goos string) string {
	return "debug_" + osSegment(goos) + "_gcc_x64"
}

func osSegment(goos string) string {
	switch goos {
	case "windows":
		return "win64"
	case "darwin":
		return "osx"
	default:
		return "linux64"
	}
}

// DeviceSpec maps a host spec to the matching device spec.
func DeviceSpec(hostSpec string) string {
	switch {
	case strings.Contains(hostSpec, "debug"):
		return "device_debug"
	case strings.Contains(hostSpec, "release"):
		return "device_release"
	default:
		return "device"
	}
}

// ExtractTarget finds the last "-t <value>" pair in args and returns its value
// together with args stripped of every complete "-t" pair. A trailing "-t"
// without a value is left in place.
func ExtractTarget(args []string) (string, []string) {
	var target string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "-t" && i+1 < len(args) {
			target = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return target, rest
}

// Jobs returns the compiler job count for spec. A positive configured value
// wins; otherwise the CPU count is used, halved for release specs.
func Jobs(spec string, configured int) int {
	return jobsFor(spec, configured, runtime.NumCPU())
}

func jobsFor(spec string, configured, cpus int) int {
	if configured > 0 {
		return configured
	}
	jobs := cpus
	if strings.Contains(spec, "release") {
		jobs /= 2
	}
	return max(1, jobs)
}

// CCacheArgs returns the driver variables that prefix the compiler and linker
// with value. The bare name "ccache" is looked up on PATH and dropped with a
// warning when missing.
func (c *Client) CCacheArgs(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if value == "ccache" {
		resolved, err := c.lookPath(value)
		if err != nil {
			logging.WarnWithContext(c.logger, "cannot locate ccache; ignoring --ccache", "ccache_missing",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "install ccache or pass --ccache=/path/to/ccache"),
				logging.String(logging.FieldImpact, "building without a compiler cache"),
			)
			return nil
		}
		value = resolved
	}
	return []string{"COMPILER_PREFIX=" + value, "LINKER_PREFIX=" + value}
}

// FindSDK locates the device SDK: the envName variable, then a NAME=value
// pass-through argument (last one wins), then the first PATH entry containing
// marker.
func (c *Client) FindSDK(envName, marker string, args []string) (string, bool) {
	if envName != "" {
		if value, ok := c.lookupEnv(envName); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
		prefix := envName + "="
		var fromArgs string
		for _, arg := range args {
			if strings.HasPrefix(arg, prefix) {
				fromArgs = arg[len(prefix):]
			}
		}
		if fromArgs != "" {
			return fromArgs, true
		}
	}
	if marker == "" {
		return "", false
	}
	path, _ := c.lookupEnv("PATH")
	if path == "" {
		path, _ = c.lookupEnv("Path")
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(marker))); err == nil {
			return dir, true
		}
	}
	return "", false
}

// BuildRequest describes one driver build invocation.
type BuildRequest struct {
	Dir      string
	Spec     string
	Jobs     int
	CCache   []string
	Extra    []string
	Projects []string
	Env      []string
	// Clean asks the driver to clean instead of build.
	Clean bool
}

// Args renders the driver arguments for the request.
func (r BuildRequest) Args() []string {
	args := []string{"-t", r.Spec}
	if r.Jobs > 0 {
		args = append(args, "-j", strconv.Itoa(r.Jobs))
	}
	args = append(args, r.CCache...)
	args = append(args, r.Extra...)
	if r.Clean {
		args = append(args, "-c")
	}
	return append(args, r.Projects...)
}

// Build runs the driver for one spec over the request's projects.
func (c *Client) Build(ctx context.Context, req BuildRequest, onLine func(string)) error {
	if strings.TrimSpace(req.Spec) == "" {
		return services.Wrap(services.ErrValidation, "build", "driver", "build spec required", nil)
	}
	cmd := command.Command{Dir: req.Dir, Env: req.Env, Binary: c.binary, Args: req.Args()}
	if err := c.exec.Run(ctx, cmd, onLine); err != nil {
		action := "build"
		if req.Clean {
			action = "clean"
		}
		return services.Wrap(services.ErrExternalTool, "build", "driver", fmt.Sprintf("%s [%s] failed", action, req.Spec), err)
	}
	return nil
}

// LayoutRequest describes a package layout invocation.
type LayoutRequest struct {
	Dir      string
	Spec     string
	Extra    []string
	Packages []string
}

// Args renders the driver arguments for the layout request.
func (r LayoutRequest) Args() []string {
	args := append([]string{}, r.Extra...)
	args = append(args, "-t", r.Spec)
	return append(args, r.Packages...)
}

// Layout runs the driver over the distributable packages.
func (c *Client) Layout(ctx context.Context, req LayoutRequest, onLine func(string)) error {
	cmd := command.Command{Dir: req.Dir, Binary: c.binary, Args: req.Args()}
	if err := c.exec.Run(ctx, cmd, onLine); err != nil {
		return services.Wrap(services.ErrExternalTool, "layout", "driver", fmt.Sprintf("layout [%s] failed", req.Spec), err)
	}
	return nil
}

// PrintSpec resolves target to the driver's output directory spec name.
func (c *Client) PrintSpec(ctx context.Context, target string) (string, error) {
	out, err := c.exec.Output(ctx, command.Command{Binary: c.binary, Args: []string{"--print-spec", "--target", target}})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "external", "print-spec", target, err)
	}
	if out == "" {
		return "", services.Wrap(services.ErrExternalTool, "external", "print-spec", fmt.Sprintf("no spec printed for %s", target), nil)
	}
	return out, nil
}

// CreateToolchain writes a CMake toolchain file for target to path.
func (c *Client) CreateToolchain(ctx context.Context, target, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create toolchain directory: %w", err)
	}
	args := []string{"--target", target, "--create-cmake-toolchain", path}
	if _, err := c.exec.Output(ctx, command.Command{Binary: c.binary, Args: args}); err != nil {
		return services.Wrap(services.ErrExternalTool, "external", "create-toolchain", target, err)
	}
	return nil
}

// ToolsDir returns the directory holding the driver binary, which the SDK
// layout uses as the SDK root when no variable is set.
func (c *Client) ToolsDir() (string, bool) {
	resolved, err := c.lookPath(c.binary)
	if err != nil {
		return "", false
	}
	return filepath.Dir(resolved), true
}
