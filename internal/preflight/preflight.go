package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"nativebuild/internal/config"
	"nativebuild/internal/deps"
	"nativebuild/internal/services"
	"nativebuild/internal/services/driver"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects which checks apply.
type Options struct {
	// Device enables the SDK and certificate checks.
	Device bool
	// Args are pass-through driver arguments searched for SDK overrides.
	Args      []string
	LookupEnv func(string) (string, bool)
}

// Report combines check results and tool availability.
type Report struct {
	Checks []Result
	Deps   []deps.Status
}

// OK reports whether every check passed and every required tool is present.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Passed {
			return false
		}
	}
	return len(deps.MissingRequired(r.Deps)) == 0
}

// Failures lists failed checks and missing required tools as messages.
func (r Report) Failures() []string {
	var out []string
	for _, check := range r.Checks {
		if !check.Passed {
			out = append(out, fmt.Sprintf("%s: %s", check.Name, check.Detail))
		}
	}
	for _, status := range deps.MissingRequired(r.Deps) {
		out = append(out, fmt.Sprintf("%s: %s", status.Name, status.Detail))
	}
	return out
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, drv *driver.Client, opts Options) []Result {
	if cfg == nil {
		return nil
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	results := []Result{
		CheckDirectoryAccess("Base directory", cfg.Paths.BaseDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckAreaConfig(cfg.Paths.AreasFile),
	}
	if drv != nil {
		results = append(results, CheckDriverVersion(ctx, drv, cfg.Driver.MinVersion))
		if opts.Device {
			results = append(results, CheckSDK(drv, cfg.Device, opts.Args))
		}
	}
	if opts.Device {
		results = append(results, CheckCertificate(cfg.Device.CertEnv, lookup))
	}
	return results
}

// Collect runs every check plus the tool inventory.
func Collect(ctx context.Context, cfg *config.Config, drv *driver.Client, opts Options) Report {
	if cfg == nil {
		return Report{}
	}
	return Report{
		Checks: RunAll(ctx, cfg, drv, opts),
		Deps:   CheckSystemDeps(cfg),
	}
}

// RequireReady returns a configuration error describing every failure, or nil.
func RequireReady(ctx context.Context, cfg *config.Config, drv *driver.Client, opts Options) error {
	report := Collect(ctx, cfg, drv, opts)
	if report.OK() {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "", strings.Join(report.Failures(), "; "), nil)
}
