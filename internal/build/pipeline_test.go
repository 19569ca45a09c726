package build_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"nativebuild/internal/areas"
	"nativebuild/internal/build"
	"nativebuild/internal/config"
	"nativebuild/internal/history"
	"nativebuild/internal/services"
	"nativebuild/internal/services/command"
	"nativebuild/internal/services/driver"
	"nativebuild/internal/testsupport"
)

const hostSpec = "debug_linux64_clang_x64"

type stubExecutor struct {
	outputs map[string]string
	errs    map[string]error
	calls   []command.Command
}

func (s *stubExecutor) key(cmd command.Command) string {
	return strings.Join(cmd.Args, " ")
}

func (s *stubExecutor) Run(_ context.Context, cmd command.Command, _ func(string)) error {
	s.calls = append(s.calls, cmd)
	return s.errs[s.key(cmd)]
}

func (s *stubExecutor) Output(_ context.Context, cmd command.Command) (string, error) {
	s.calls = append(s.calls, cmd)
	if err := s.errs[s.key(cmd)]; err != nil {
		return "", err
	}
	return s.outputs[s.key(cmd)], nil
}

func (s *stubExecutor) argLines() []string {
	var lines []string
	for _, call := range s.calls {
		lines = append(lines, call.Binary+" "+s.key(call))
	}
	return lines
}

type fixture struct {
	cfg     *config.Config
	stub    *stubExecutor
	env     map[string]string
	project string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithAreas(`{"all": ["./src"], "release": ["all"]}`),
		testsupport.WithProjects("src/app.package"),
	)
	root := testsupport.BaseDir(cfg)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DistDir, "bin", "tool"), testsupport.ELFHeader)
	cfg.Paths.Packages = []string{filepath.Join(root, "app.package")}
	cfg.Paths.CleanDirs = []string{filepath.Join(root, ".out")}
	cfg.Driver.Jobs = 4

	return &fixture{
		cfg:     cfg,
		stub:    &stubExecutor{outputs: map[string]string{"--print-target -q": hostSpec}, errs: map[string]error{}},
		env:     map[string]string{"MLCERT": "/certs/dev.cert"},
		project: filepath.Join(root, "src", "app.package"),
	}
}

func (f *fixture) lookup(name string) (string, bool) {
	v, ok := f.env[name]
	return v, ok
}

func (f *fixture) pipeline(t *testing.T, opts ...build.Option) *build.Pipeline {
	t.Helper()
	drv, err := driver.New("mabu", driver.WithExecutor(f.stub), driver.WithEnvLookup(f.lookup))
	if err != nil {
		t.Fatalf("driver.New: %v", err)
	}
	resolver, err := areas.NewResolver(0)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	opts = append([]build.Option{
		build.WithExecutor(f.stub),
		build.WithEnvLookup(f.lookup),
		build.WithGOOS("linux"),
	}, opts...)
	p, err := build.New(f.cfg, drv, resolver, opts...)
	if err != nil {
		t.Fatalf("build.New: %v", err)
	}
	return p
}

func stepStatuses(report *build.Report) map[string]history.Status {
	out := make(map[string]history.Status, len(report.Steps))
	for _, step := range report.Steps {
		out[step.Name] = step.Status
	}
	return out
}

func TestRunDefaultBuild(t *testing.T) {
	f := newFixture(t)
	report, err := f.pipeline(t).Run(context.Background(), build.Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{
		"mabu --print-target -q",
		"mabu -t " + hostSpec + " -j 4 " + f.project,
		"mabu -t device_debug -j 4 " + f.project,
		"mabu -t " + hostSpec + " " + f.cfg.Paths.Packages[0],
	}
	if got := f.stub.argLines(); !slices.Equal(got, want) {
		t.Fatalf("commands =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	for _, call := range f.stub.calls[1:] {
		if call.Dir != f.cfg.Paths.BaseDir {
			t.Fatalf("driver ran in %q, want base dir", call.Dir)
		}
	}
	if report.HostSpec != hostSpec || report.DeviceSpec != "device_debug" {
		t.Fatalf("unexpected specs %s / %s", report.HostSpec, report.DeviceSpec)
	}
	if !slices.Equal(report.Projects, []string{f.project}) {
		t.Fatalf("projects = %v", report.Projects)
	}
	if report.RunID == "" {
		t.Fatal("expected run id")
	}
	statuses := stepStatuses(report)
	for _, name := range []string{build.StepSpecs, build.StepResolve, build.StepHostBuild, build.StepDeviceBuild, build.StepLayout} {
		if statuses[name] != history.StatusSucceeded {
			t.Fatalf("step %s status %q", name, statuses[name])
		}
	}
	info, err := os.Stat(filepath.Join(f.cfg.Paths.DistDir, "bin", "tool"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Fatalf("expected laid out executable to be +x, got %o", info.Mode().Perm())
	}
}

func TestRunDeviceRequiresCertificate(t *testing.T) {
	f := newFixture(t)
	f.env = map[string]string{}

	report, err := f.pipeline(t).Run(context.Background(), build.Options{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if services.ExitCode(err) != services.ExitConfiguration {
		t.Fatalf("exit code = %d", services.ExitCode(err))
	}
	if !strings.Contains(err.Error(), "MLCERT") {
		t.Fatalf("expected cert variable in error, got %v", err)
	}
	statuses := stepStatuses(report)
	if statuses[build.StepHostBuild] != history.StatusSucceeded || statuses[build.StepDeviceBuild] != history.StatusFailed {
		t.Fatalf("unexpected statuses %v", statuses)
	}
	if _, ran := report.Step(build.StepLayout); ran {
		t.Fatal("layout must not run after a build failure")
	}
}

func TestRunHostBuildFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.stub.errs["-t "+hostSpec+" -j 4 "+f.project] = &command.ExitError{Command: "mabu", Code: 2}

	report, err := f.pipeline(t, build.WithEnvLookup(f.lookup)).Run(context.Background(), build.Options{Device: boolPtr(false)})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, ran := report.Step(build.StepLayout); ran {
		t.Fatal("layout must not run after a build failure")
	}
}

func TestRunFullClean(t *testing.T) {
	f := newFixture(t)
	cleanDir := f.cfg.Paths.CleanDirs[0]
	testsupport.WriteFile(t, filepath.Join(cleanDir, "obj.o"), "x")

	report, err := f.pipeline(t).Run(context.Background(), build.Options{Clean: true})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := []string{
		"mabu --print-target -q",
		"mabu -t " + hostSpec + " -j 4 -c " + f.project,
		"mabu -t device_debug -j 4 -c " + f.project,
	}
	if got := f.stub.argLines(); !slices.Equal(got, want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	if _, err := os.Stat(cleanDir); !os.IsNotExist(err) {
		t.Fatalf("expected clean dir removed, got %v", err)
	}
	if _, ran := report.Step(build.StepLayout); ran {
		t.Fatal("clean-only run should not lay out")
	}
}

func TestRunPartialCleanSkipped(t *testing.T) {
	f := newFixture(t)
	report, err := f.pipeline(t).Run(context.Background(), build.Options{Clean: true, Areas: []string{"release"}})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if step, ok := report.Step(build.StepClean); !ok || step.Status != history.StatusSkipped {
		t.Fatalf("expected skipped clean, got %+v", step)
	}
	if len(f.stub.calls) != 1 {
		t.Fatalf("expected only the spec lookup, got %v", f.stub.argLines())
	}
}

func TestRunLayoutFailureIsCollected(t *testing.T) {
	f := newFixture(t)
	f.stub.errs["-t "+hostSpec+" "+f.cfg.Paths.Packages[0]] = &command.ExitError{Command: "mabu", Code: 1}

	report, err := f.pipeline(t).Run(context.Background(), build.Options{})
	if err == nil || !strings.Contains(err.Error(), "base layout") {
		t.Fatalf("expected layout failure summary, got %v", err)
	}
	if !slices.Equal(report.Failures, []string{"base layout"}) {
		t.Fatalf("failures = %v", report.Failures)
	}
	if stepStatuses(report)[build.StepDeviceBuild] != history.StatusSucceeded {
		t.Fatal("builds should complete before layout")
	}
}

func TestRunSkipsCPPWhenDisabled(t *testing.T) {
	f := newFixture(t)
	report, err := f.pipeline(t).Run(context.Background(), build.Options{CPP: boolPtr(false)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	statuses := stepStatuses(report)
	if statuses[build.StepHostBuild] != history.StatusSkipped || statuses[build.StepDeviceBuild] != history.StatusSkipped {
		t.Fatalf("expected skipped builds, got %v", statuses)
	}
	if statuses[build.StepLayout] != history.StatusSucceeded {
		t.Fatalf("layout should still run, got %v", statuses)
	}
}

func TestRunPreparesBinariesOnDarwin(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.DistDir, "bin", "mac"), "\xcf\xfa\xed\xfe")

	_, err := f.pipeline(t, build.WithGOOS("darwin")).Run(context.Background(), build.Options{Device: boolPtr(false)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	last := f.stub.calls[len(f.stub.calls)-1]
	if last.Binary != f.cfg.Driver.BinaryPrepScript || !slices.Equal(last.Args, []string{"dist"}) {
		t.Fatalf("unexpected binary prep call %+v", last)
	}
	if last.Dir != f.cfg.Paths.BaseDir {
		t.Fatalf("binary prep ran in %q", last.Dir)
	}
}

func TestRunRejectsConcurrentBuild(t *testing.T) {
	f := newFixture(t)
	lockPath := f.cfg.LockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(lockPath)
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("could not take lock: %v", err)
	}
	defer held.Unlock()

	if _, err := f.pipeline(t).Run(context.Background(), build.Options{}); !errors.Is(err, build.ErrLocked) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if len(f.stub.calls) != 0 {
		t.Fatal("no commands should run without the lock")
	}
}

func TestRunRecordsHistory(t *testing.T) {
	f := newFixture(t)
	store := testsupport.MustOpenHistory(t, f.cfg)

	report, err := f.pipeline(t, build.WithHistory(store)).Run(context.Background(), build.Options{Device: boolPtr(false)})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	run, err := store.Get(context.Background(), report.RunID)
	if err != nil || run == nil {
		t.Fatalf("expected recorded run, got %v, %v", run, err)
	}
	if run.Status != history.StatusSucceeded || run.HostSpec != hostSpec || !slices.Equal(run.Areas, []string{"all"}) {
		t.Fatalf("unexpected run %+v", run)
	}
	steps, err := store.Steps(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(steps) != len(report.Steps) {
		t.Fatalf("recorded %d steps, report has %d", len(steps), len(report.Steps))
	}
}
