package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"nativebuild/internal/areas"
	"nativebuild/internal/config"
	"nativebuild/internal/external"
	"nativebuild/internal/history"
	"nativebuild/internal/layout"
	"nativebuild/internal/logging"
	"nativebuild/internal/services"
	"nativebuild/internal/services/command"
	"nativebuild/internal/services/driver"
)

// Option configures the pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHistory records runs and steps in store.
func WithHistory(store *history.Store) Option {
	return func(p *Pipeline) { p.history = store }
}

// WithExternal enables the dependency build step.
func WithExternal(builder *external.Builder) Option {
	return func(p *Pipeline) { p.external = builder }
}

// WithExecutor replaces the executor used for the binary prep script.
func WithExecutor(executor command.Executor) Option {
	return func(p *Pipeline) {
		if executor != nil {
			p.exec = executor
		}
	}
}

// WithEnvLookup replaces os.LookupEnv (primarily for tests).
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(p *Pipeline) {
		if lookup != nil {
			p.lookupEnv = lookup
		}
	}
}

// WithGOOS overrides the host OS used for platform-specific layout steps.
func WithGOOS(goos string) Option {
	return func(p *Pipeline) {
		if goos != "" {
			p.goos = goos
		}
	}
}

// Pipeline executes build plans for one configured project.
type Pipeline struct {
	cfg       *config.Config
	driver    *driver.Client
	resolver  *areas.Resolver
	external  *external.Builder
	history   *history.Store
	exec      command.Executor
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
	goos      string
}

// New constructs a pipeline.
func New(cfg *config.Config, drv *driver.Client, resolver *areas.Resolver, opts ...Option) (*Pipeline, error) {
	if cfg == nil || drv == nil || resolver == nil {
		return nil, errors.New("build pipeline requires config, driver, and area resolver")
	}
	p := &Pipeline{
		cfg:       cfg,
		driver:    drv,
		resolver:  resolver,
		exec:      command.NewExecutor(),
		logger:    logging.NewNop(),
		lookupEnv: os.LookupEnv,
		goos:      runtime.GOOS,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run canonicalizes opts and executes the resulting plan. Build failures
// abort the run; layout failures are collected and reported together. The
// report is returned even when the run fails.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	plan := Canonicalize(opts)

	release, err := acquireLock(p.cfg.LockPath())
	if err != nil {
		return nil, err
	}
	defer func() {
		if unlockErr := release(); unlockErr != nil {
			p.logger.Warn("failed to release build lock", logging.Error(unlockErr))
		}
	}()

	report := &Report{Areas: plan.Areas}
	report.RunID = p.beginRun(ctx, plan)
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, p.logger)

	logger.Info("build started",
		logging.String(logging.FieldEventType, "build_start"),
		logging.Strings("areas", plan.Areas),
		logging.String("target", plan.Target),
		logging.Bool("clean", plan.Clean),
		logging.Bool("build", plan.Build),
		logging.Bool("release", plan.Release),
	)

	start := time.Now()
	err = p.execute(ctx, plan, report)
	report.Duration = time.Since(start)
	p.finishRun(ctx, report.RunID, err)

	if err != nil {
		logging.ErrorWithContext(logger, "build failed", "build_failure",
			logging.Duration("duration", report.Duration),
			logging.Strings("failed_steps", report.Failures),
			logging.Error(err),
		)
		return report, err
	}
	logger.Info("build succeeded",
		logging.String(logging.FieldEventType, "build_complete"),
		logging.String("spec", report.HostSpec),
		logging.Int("projects", len(report.Projects)),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}

func (p *Pipeline) execute(ctx context.Context, plan Plan, report *Report) error {
	if err := p.step(ctx, report, StepSpecs, func(ctx context.Context, _ *slog.Logger) (string, error) {
		host, err := p.driver.HostSpec(ctx, plan.Target)
		if err != nil {
			return "", err
		}
		report.HostSpec = host
		report.DeviceSpec = driver.DeviceSpec(host)
		p.recordHostSpec(ctx, report.RunID, host)
		return fmt.Sprintf("host %s, device %s", report.HostSpec, report.DeviceSpec), nil
	}); err != nil {
		return err
	}

	if plan.BuildDeps {
		if err := p.buildDeps(ctx, plan, report); err != nil {
			return err
		}
	}

	if plan.Clean || plan.Build {
		if err := p.step(ctx, report, StepResolve, func(context.Context, *slog.Logger) (string, error) {
			res, err := p.resolver.Resolve(p.cfg.Paths.AreasFile, plan.Areas)
			if err != nil {
				return "", services.Wrap(services.ErrConfiguration, StepResolve, "areas", p.cfg.Paths.AreasFile, err)
			}
			report.Projects = res.Projects
			return fmt.Sprintf("%d projects from %d areas", len(res.Projects), len(res.Areas)), nil
		}); err != nil {
			return err
		}
	}

	if plan.Clean {
		if err := p.clean(ctx, plan, report); err != nil {
			return err
		}
	}

	if plan.Build {
		if err := p.buildProjects(ctx, plan, report); err != nil {
			return err
		}
	}

	if plan.Layout() {
		if err := p.step(ctx, report, StepLayout, func(ctx context.Context, logger *slog.Logger) (string, error) {
			return p.layout(ctx, plan, report, logger)
		}); err != nil {
			report.Failures = append(report.Failures, "base layout")
		}
	}

	if len(report.Failures) > 0 {
		return services.Wrap(services.ErrExternalTool, "", "",
			"failed steps: "+strings.Join(report.Failures, ", "), nil)
	}
	return nil
}

func (p *Pipeline) buildDeps(ctx context.Context, plan Plan, report *Report) error {
	if p.external == nil {
		p.skip(ctx, report, StepDeps, "dependency builder unavailable")
		return nil
	}
	return p.step(ctx, report, StepDeps, func(ctx context.Context, _ *slog.Logger) (string, error) {
		files, err := p.external.Fetch(ctx)
		if err != nil {
			return "", err
		}
		err = p.external.Build(ctx, external.Options{
			Release:  plan.Release,
			Host:     plan.Host,
			Device:   plan.Device,
			Parallel: p.cfg.CMake.Parallel,
		})
		return fmt.Sprintf("%d archive files", files), err
	})
}

func (p *Pipeline) clean(ctx context.Context, plan Plan, report *Report) error {
	if !plan.FullClean() {
		p.skip(ctx, report, StepClean, "partial clean is not supported; clean with all areas or a release build")
		return nil
	}
	return p.step(ctx, report, StepClean, func(ctx context.Context, logger *slog.Logger) (string, error) {
		if plan.CPP && len(report.Projects) > 0 {
			if plan.Host {
				if err := p.runDriver(ctx, plan, report.HostSpec, report.Projects, true); err != nil {
					return "", err
				}
			}
			if plan.Device {
				if err := p.runDriver(ctx, plan, report.DeviceSpec, report.Projects, true); err != nil {
					return "", err
				}
			}
		}
		remaining := layout.RemoveDirs(p.cfg.Paths.CleanDirs, layout.WithLogger(logger))
		return fmt.Sprintf("removed %d directories", len(p.cfg.Paths.CleanDirs)-len(remaining)), nil
	})
}

func (p *Pipeline) buildProjects(ctx context.Context, plan Plan, report *Report) error {
	if !plan.CPP {
		p.skip(ctx, report, StepHostBuild, "C++ builds disabled")
		p.skip(ctx, report, StepDeviceBuild, "C++ builds disabled")
		return nil
	}
	if len(report.Projects) == 0 {
		p.skip(ctx, report, StepHostBuild, "no projects in requested areas")
		p.skip(ctx, report, StepDeviceBuild, "no projects in requested areas")
		return nil
	}

	if plan.Host {
		if err := p.step(ctx, report, StepHostBuild, func(ctx context.Context, _ *slog.Logger) (string, error) {
			return report.HostSpec, p.runDriver(ctx, plan, report.HostSpec, report.Projects, false)
		}); err != nil {
			return err
		}
	}

	if plan.Device {
		if err := p.step(ctx, report, StepDeviceBuild, func(ctx context.Context, _ *slog.Logger) (string, error) {
			if err := p.requireCert(); err != nil {
				return "", err
			}
			return report.DeviceSpec, p.runDriver(ctx, plan, report.DeviceSpec, report.Projects, false)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) requireCert() error {
	name := p.cfg.Device.CertEnv
	if name == "" {
		return nil
	}
	if value, ok := p.lookupEnv(name); ok && strings.TrimSpace(value) != "" {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, StepDeviceBuild, "certificate",
		fmt.Sprintf("signing certificate not found; set %s to the certificate from the creator portal", name), nil)
}

func (p *Pipeline) runDriver(ctx context.Context, plan Plan, spec string, projects []string, clean bool) error {
	req := driver.BuildRequest{
		Dir:      p.cfg.Paths.BaseDir,
		Spec:     spec,
		Jobs:     driver.Jobs(spec, p.cfg.Driver.Jobs),
		CCache:   p.driver.CCacheArgs(plan.CCache),
		Extra:    plan.Extra,
		Projects: projects,
		Clean:    clean,
	}
	return p.driver.Build(ctx, req, nil)
}

func (p *Pipeline) layout(ctx context.Context, plan Plan, report *Report, logger *slog.Logger) (string, error) {
	req := driver.LayoutRequest{
		Dir:      p.cfg.Paths.BaseDir,
		Spec:     report.HostSpec,
		Extra:    plan.Extra,
		Packages: p.cfg.Paths.Packages,
	}
	if err := p.driver.Layout(ctx, req, nil); err != nil {
		return "", err
	}

	fixed, err := layout.FixPermissions(p.cfg.Paths.DistDir, layout.WithGOOS(p.goos), layout.WithLogger(logger))
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, StepLayout, "permissions", p.cfg.Paths.DistDir, err)
	}
	detail := fmt.Sprintf("layout from %s, %d executables", report.HostSpec, len(fixed))

	if plan.PrepareBinaries && p.goos == "darwin" {
		if err := p.prepareBinaries(ctx, plan, logger); err != nil {
			return detail, err
		}
		detail += ", binaries prepared"
	}
	return detail, nil
}

// prepareBinaries rewrites library lookups of laid out macOS binaries using
// the project's prep script, which expects the dist dir relative to the base.
func (p *Pipeline) prepareBinaries(ctx context.Context, plan Plan, logger *slog.Logger) error {
	rel, err := filepath.Rel(p.cfg.Paths.BaseDir, p.cfg.Paths.DistDir)
	if err != nil {
		rel = p.cfg.Paths.DistDir
	}
	var onLine func(string)
	if plan.Verbose == 0 {
		onLine = func(line string) {
			logger.Debug("binary prep output", logging.String("line", line))
		}
	}
	cmd := command.Command{
		Dir:    p.cfg.Paths.BaseDir,
		Binary: p.cfg.Driver.BinaryPrepScript,
		Args:   []string{rel},
	}
	if err := p.exec.Run(ctx, cmd, onLine); err != nil {
		return services.Wrap(services.ErrExternalTool, StepLayout, "binary prep", p.cfg.Driver.BinaryPrepScript, err)
	}
	return nil
}

type stepFunc func(ctx context.Context, logger *slog.Logger) (string, error)

func (p *Pipeline) step(ctx context.Context, report *Report, name string, fn stepFunc) error {
	stepCtx := services.WithStep(ctx, name)
	logger := logging.WithContext(stepCtx, p.logger)
	logger.Info("step started", logging.String(logging.FieldEventType, "step_start"))

	start := time.Now()
	detail, err := fn(stepCtx, logger)
	result := StepResult{
		Name:     name,
		Status:   history.StatusSucceeded,
		Duration: time.Since(start),
		Detail:   detail,
		Err:      err,
	}
	if err != nil {
		result.Status = history.StatusFailed
		logging.ErrorWithContext(logger, "step failed", "step_failure",
			logging.Duration("duration", result.Duration),
			logging.Error(err),
		)
	} else {
		logger.Info("step completed",
			logging.String(logging.FieldEventType, "step_complete"),
			logging.String("detail", detail),
			logging.Duration("duration", result.Duration),
		)
	}
	report.Steps = append(report.Steps, result)
	p.recordStep(stepCtx, report.RunID, result)
	return err
}

func (p *Pipeline) skip(ctx context.Context, report *Report, name, reason string) {
	stepCtx := services.WithStep(ctx, name)
	logging.WithContext(stepCtx, p.logger).Info("step skipped",
		logging.String(logging.FieldEventType, "step_skipped"),
		logging.String("reason", reason),
	)
	result := StepResult{Name: name, Status: history.StatusSkipped, Detail: reason}
	report.Steps = append(report.Steps, result)
	p.recordStep(stepCtx, report.RunID, result)
}

func (p *Pipeline) beginRun(ctx context.Context, plan Plan) string {
	if p.history == nil {
		return uuid.NewString()
	}
	run, err := p.history.Begin(ctx, "build", plan.Areas, "")
	if err != nil {
		p.historyWarning("failed to record build start", err)
		return uuid.NewString()
	}
	return run.ID
}

func (p *Pipeline) recordHostSpec(ctx context.Context, runID, spec string) {
	if p.history == nil {
		return
	}
	if err := p.history.SetHostSpec(ctx, runID, spec); err != nil {
		p.historyWarning("failed to record host spec", err)
	}
}

func (p *Pipeline) recordStep(ctx context.Context, runID string, result StepResult) {
	if p.history == nil {
		return
	}
	step := history.Step{
		RunID:    runID,
		Name:     result.Name,
		Status:   result.Status,
		Duration: result.Duration,
	}
	if result.Err != nil {
		step.Error = result.Err.Error()
	}
	if err := p.history.RecordStep(ctx, step); err != nil {
		p.historyWarning("failed to record build step", err)
	}
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, runErr error) {
	if p.history == nil {
		return
	}
	// The run context may already be cancelled; the outcome is still recorded.
	if err := p.history.Finish(context.WithoutCancel(ctx), runID, services.ExitCode(runErr), runErr); err != nil {
		p.historyWarning("failed to record build result", err)
	}
}

func (p *Pipeline) historyWarning(msg string, err error) {
	logging.WarnWithContext(p.logger, msg, "history_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the state directory is writable"),
		logging.String(logging.FieldImpact, "build history is incomplete"),
	)
}
