package command_test

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"nativebuild/internal/services"
	"nativebuild/internal/services/command"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunStreamsStdoutAndStderr(t *testing.T) {
	requireShell(t)
	var (
		mu    sync.Mutex
		lines []string
	)
	executor := command.NewExecutor()
	err := executor.Run(context.Background(), command.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo out; echo err >&2"},
	}, func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	slices.Sort(lines)
	if !slices.Equal(lines, []string{"err", "out"}) {
		t.Fatalf("unexpected lines %v", lines)
	}
}

func TestRunWithoutCallbackWritesToOutput(t *testing.T) {
	requireShell(t)
	var buf bytes.Buffer
	executor := command.NewExecutor(command.WithOutput(&buf))
	if err := executor.Run(context.Background(), command.Command{Binary: "sh", Args: []string{"-c", "echo hello"}}, nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if buf.String() != "hello\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestRunSurvivesOverlongOutputLine(t *testing.T) {
	requireShell(t)
	if _, err := exec.LookPath("head"); err != nil {
		t.Skip("head not available")
	}
	script := "head -c 2000000 /dev/zero | tr '\\000' x; echo; " +
		"i=0; while [ $i -lt 2000 ]; do echo compiling unit $i; echo warn $i >&2; i=$((i+1)); done"

	var (
		mu    sync.Mutex
		lines int
	)
	done := make(chan error, 1)
	go func() {
		done <- command.NewExecutor().Run(context.Background(), command.Command{
			Binary: "sh",
			Args:   []string{"-c", script},
		}, func(string) {
			mu.Lock()
			lines++
			mu.Unlock()
		})
	}()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "scan output") {
			t.Fatalf("expected scan error, got %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		if lines == 0 {
			t.Fatal("expected stderr lines to keep streaming")
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Run did not return after an overlong output line")
	}
}

func TestRunReportsExitStatus(t *testing.T) {
	requireShell(t)
	err := command.NewExecutor().Run(context.Background(), command.Command{Binary: "sh", Args: []string{"-c", "exit 3"}}, func(string) {})
	code, ok := command.ExitStatus(err)
	if !ok || code != 3 {
		t.Fatalf("ExitStatus = %d, %v (err %v)", code, ok, err)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestOutputTrimsAndLayersEnv(t *testing.T) {
	requireShell(t)
	out, err := command.NewExecutor().Output(context.Background(), command.Command{
		Dir:    t.TempDir(),
		Env:    []string{"NATIVEBUILD_PROBE=device_debug"},
		Binary: "sh",
		Args:   []string{"-c", "echo \"  $NATIVEBUILD_PROBE  \""},
	})
	if err != nil {
		t.Fatalf("Output returned error: %v", err)
	}
	if out != "device_debug" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestOutputCapturesStderrOnFailure(t *testing.T) {
	requireShell(t)
	_, err := command.NewExecutor().Output(context.Background(), command.Command{Binary: "sh", Args: []string{"-c", "echo bad target >&2; exit 1"}})
	var exitErr *command.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Stderr != "bad target" || exitErr.Code != 1 {
		t.Fatalf("unexpected exit error %+v", exitErr)
	}
}

func TestMissingBinaryIsNotFound(t *testing.T) {
	_, err := command.NewExecutor().Output(context.Background(), command.Command{Binary: "nativebuild-no-such-tool"})
	if !command.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if _, ok := command.ExitStatus(err); ok {
		t.Fatal("missing binary must not report an exit status")
	}
}

func TestCommandString(t *testing.T) {
	cmd := command.Command{
		Env:    []string{"MLSDK=/opt/sdk"},
		Binary: "mabu",
		Args:   []string{"-t", "device", "my app.package"},
	}
	got := cmd.String()
	if got != `MLSDK=/opt/sdk mabu -t device "my app.package"` {
		t.Fatalf("unexpected rendering %q", got)
	}
	if !strings.HasPrefix(got, "MLSDK=") {
		t.Fatal("expected env prefix")
	}
}
