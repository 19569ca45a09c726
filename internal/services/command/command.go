package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"

	"nativebuild/internal/logging"
	"nativebuild/internal/services"
)

// Command describes one external process invocation.
type Command struct {
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env holds KEY=VALUE entries layered over the inherited environment.
	Env    []string
	Binary string
	Args   []string
}

// String renders the command line with its environment overrides for logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Env)+len(c.Args)+1)
	for _, kv := range c.Env {
		parts = append(parts, quoteArg(kv))
	}
	parts = append(parts, quoteArg(c.Binary))
	for _, arg := range c.Args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" || strings.ContainsAny(arg, " \t\"'\\$") {
		return strconv.Quote(arg)
	}
	return arg
}

// Executor abstracts command execution for testability.
type Executor interface {
	// Run streams combined output lines to onLine until the process exits.
	Run(ctx context.Context, cmd Command, onLine func(string)) error
	// Output runs the command and returns its trimmed stdout.
	Output(ctx context.Context, cmd Command) (string, error)
}

// ExitError reports a process that ran but exited unsuccessfully.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return services.ErrExternalTool }

// ExitStatus returns the exit code carried by err, if any.
func ExitStatus(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// IsNotFound reports whether err means the binary could not be located.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

// Option configures the default executor.
type Option func(*commandExecutor)

// WithOutput sets where lines go when Run is given no callback.
func WithOutput(w io.Writer) Option {
	return func(e *commandExecutor) {
		if w != nil {
			e.output = w
		}
	}
}

// WithLogger echoes every command at debug level before it starts.
func WithLogger(logger *slog.Logger) Option {
	return func(e *commandExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor returns the os/exec backed executor.
func NewExecutor(opts ...Option) Executor {
	e := &commandExecutor{output: os.Stderr, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type commandExecutor struct {
	output io.Writer
	logger *slog.Logger
}

func (e *commandExecutor) build(ctx context.Context, c Command) *exec.Cmd {
	e.logger.Debug("running external command",
		logging.String(logging.FieldCommand, c.String()),
		logging.String("dir", c.Dir),
	)
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd
}

func (e *commandExecutor) Run(ctx context.Context, c Command, onLine func(string)) error {
	cmd := e.build(ctx, c)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Binary, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		scanErr error
		once    sync.Once
	)
	forward := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		if onLine != nil {
			onLine(line)
			return
		}
		fmt.Fprintln(e.output, line)
	}
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
			// Keep the pipe flowing so the child and the other scanner can finish.
			_, _ = io.Copy(io.Discard, r)
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if scanErr != nil {
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}
	return exitError(c, cmd.Wait(), "")
}

func (e *commandExecutor) Output(ctx context.Context, c Command) (string, error) {
	cmd := e.build(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", exitError(c, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func exitError(c Command, err error, stderr string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			Command: strings.Join(slices.Concat([]string{c.Binary}, c.Args), " "),
			Code:    exitErr.ExitCode(),
			Stderr:  stderr,
		}
	}
	return fmt.Errorf("run %s: %w", c.Binary, err)
}
