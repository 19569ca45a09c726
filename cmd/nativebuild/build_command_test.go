package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nativebuild/internal/build"
	"nativebuild/internal/services"
)

func TestBuildCommandBuildsHostAndDevice(t *testing.T) {
	env := setupCLITestEnv(t)

	out, stderr, err := runCLI(t, []string{"build"}, env.configPath)
	if err != nil {
		t.Fatalf("build: %v\nstderr: %s", err, stderr)
	}
	requireContains(t, out, "Build succeeded")
	requireContains(t, out, "host-build")
	requireContains(t, out, "2 projects")

	lines := readLog(t, env.driverLog)
	requireLogLine(t, lines, "--version")
	requireLogLine(t, lines, "--print-target -q")
	projects := filepath.Join(env.baseDir, "src", "app", "app.package") + " " + filepath.Join(env.baseDir, "src", "lib", "lib.package")
	requireLogLine(t, lines, "-t debug_linux64_gcc_x64 -j 2 "+projects)
	requireLogLine(t, lines, "-t device_debug -j 2 "+projects)
	requireLogLine(t, lines, "-t debug_linux64_gcc_x64 "+filepath.Join(env.baseDir, "app.package"))

	info, err := os.Stat(filepath.Join(env.baseDir, "dist", "bin", "app"))
	if err != nil {
		t.Fatalf("stat laid out binary: %v", err)
	}
	if info.Mode().Perm() != 0o777 {
		t.Fatalf("expected executable permissions, got %v", info.Mode().Perm())
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "succeeded")
	requireContains(t, out, "all")
}

func TestBuildCommandPassesDriverArguments(t *testing.T) {
	env := setupCLITestEnv(t)

	_, stderr, err := runCLI(t, []string{
		"build", "--no-device", "-a", "samples", "--spec", "release_linux", "--", "-t", "ignored", "FOO=bar",
	}, env.configPath)
	if err != nil {
		t.Fatalf("build: %v\nstderr: %s", err, stderr)
	}

	lines := readLog(t, env.driverLog)
	requireLogLine(t, lines, "--print-target -q -t release_linux")
	requireLogLine(t, lines, "-t debug_linux64_gcc_x64 -j 2 FOO=bar "+filepath.Join(env.baseDir, "samples", "hello.package"))
	for _, line := range lines {
		if strings.Contains(line, "device_debug") {
			t.Fatalf("device build ran despite --no-device: %q", line)
		}
		if strings.Contains(line, "ignored") {
			t.Fatalf("overridden target reached the driver: %q", line)
		}
	}
}

func TestBuildCommandCleanOnly(t *testing.T) {
	env := setupCLITestEnv(t)

	out, stderr, err := runCLI(t, []string{"build", "-c"}, env.configPath)
	if err != nil {
		t.Fatalf("build -c: %v\nstderr: %s", err, stderr)
	}
	requireContains(t, out, "clean")

	lines := readLog(t, env.driverLog)
	requireLogLine(t, lines, "-t debug_linux64_gcc_x64 -j 2 -c ")
	for _, line := range lines {
		if strings.HasPrefix(line, "-t debug_linux64_gcc_x64 "+filepath.Join(env.baseDir, "app.package")) {
			t.Fatalf("layout ran for a clean-only invocation: %q", line)
		}
	}
}

func TestBuildCommandMissingCertificate(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("MLCERT", "")

	out, _, err := runCLI(t, []string{"build"}, env.configPath)
	if err == nil {
		t.Fatal("expected build to fail without a certificate")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if code := services.ExitCode(err); code != services.ExitConfiguration {
		t.Fatalf("expected exit code %d, got %d", services.ExitConfiguration, code)
	}
	requireContains(t, err.Error(), "MLCERT")
	requireContains(t, out, "Build failed")
}

func TestBuildCommandArgumentValidation(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "args before dash", args: []string{"build", "extra"}, want: "pass driver arguments after --"},
		{name: "paired flags", args: []string{"build", "--host", "--no-host"}, want: "mutually exclusive"},
		{name: "alias pair", args: []string{"build", "--pb", "--no-prepare-binaries"}, want: "mutually exclusive"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := runCLI(t, tc.args, env.configPath)
			if err == nil {
				t.Fatalf("expected error for %v", tc.args)
			}
			requireContains(t, err.Error(), tc.want)
		})
	}
	if lines := readLog(t, env.driverLog); len(lines) > 0 {
		t.Fatalf("driver ran for invalid invocations: %v", lines)
	}
}

func TestBuildFlagsOptions(t *testing.T) {
	cmd := newBuildCommand(&commandContext{})
	if err := cmd.ParseFlags([]string{"--rb", "--no-pb", "--ccache", "-vv", "-a", "core,ext", "-a", "'extra'"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	var flags buildFlags
	flags.releaseBuild, _ = cmd.Flags().GetBool("release-build")
	flags.ccache, _ = cmd.Flags().GetString("ccache")
	flags.verbose, _ = cmd.Flags().GetCount("verbose")
	flags.areas, _ = cmd.Flags().GetStringArray("areas")

	opts, err := flags.options(cmd.Flags(), []string{"X=1"})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if !opts.ReleaseBuild {
		t.Fatal("expected --rb to select a release build")
	}
	if opts.PrepareBinaries == nil || *opts.PrepareBinaries {
		t.Fatalf("expected --no-pb to disable binary prep, got %v", opts.PrepareBinaries)
	}
	if opts.Build != nil || opts.Host != nil || opts.Device != nil || opts.CPP != nil {
		t.Fatal("expected unset paired flags to stay nil")
	}
	if opts.CCache != "ccache" {
		t.Fatalf("expected bare --ccache to mean ccache, got %q", opts.CCache)
	}

	plan := build.Canonicalize(opts)
	if plan.Verbose != 2 || !strings.Contains(strings.Join(plan.Extra, " "), "-v") {
		t.Fatalf("expected -vv to pass -v to the driver, got %+v", plan)
	}
	if got := strings.Join(plan.Areas, ","); got != "core,ext,extra" {
		t.Fatalf("unexpected areas %q", got)
	}
}

func TestHistoryShowsRunSteps(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, stderr, err := runCLI(t, []string{"build", "--no-device"}, env.configPath); err != nil {
		t.Fatalf("build: %v\nstderr: %s", err, stderr)
	}

	out, _, err := runCLI(t, []string{"history", "--output", "json"}, env.configPath)
	if err != nil {
		t.Fatalf("history json: %v", err)
	}
	var runs []runView
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].Status != "succeeded" {
		t.Fatalf("unexpected runs %+v", runs)
	}

	out, _, err = runCLI(t, []string{"history", runs[0].ID[:8]}, env.configPath)
	if err != nil {
		t.Fatalf("history run: %v", err)
	}
	requireContains(t, out, runs[0].ID)
	requireContains(t, out, "host-build")
	requireContains(t, out, "layout")

	if _, _, err := runCLI(t, []string{"history", "ffffffff-none"}, env.configPath); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown run, got %v", err)
	}
}
