package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"nativebuild/internal/areas"
	"nativebuild/internal/config"
	"nativebuild/internal/history"
	"nativebuild/internal/logging"
	"nativebuild/internal/services/cmake"
	"nativebuild/internal/services/command"
	"nativebuild/internal/services/driver"
)

// skipConfigAnnotation marks commands (and their children) that run without
// loading nativebuild.toml.
const skipConfigAnnotation = "skipConfigLoad"

// commandContext carries the --config flag and loads the configuration at
// most once per invocation.
type commandContext struct {
	configFlag string

	load   sync.Once
	cfg    *config.Config
	cfgErr error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.load.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		c.cfg, c.cfgErr = cfg, err
	})
	if c.cfgErr != nil {
		return nil, c.cfgErr
	}
	return c.cfg, nil
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.configFlag)
}

// toolset bundles the clients a command needs, all sharing one logger.
type toolset struct {
	cfg      *config.Config
	logger   *slog.Logger
	executor command.Executor
	driver   *driver.Client
	cmake    *cmake.Client
	resolver *areas.Resolver
}

// tools builds the driver, cmake, and area clients for cmd. Tool output is
// streamed to the command's stderr.
func (c *commandContext) tools(cmd *cobra.Command, verbose bool) (*toolset, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg, verbose, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	executor := command.NewExecutor(
		command.WithOutput(cmd.ErrOrStderr()),
		command.WithLogger(logger),
	)
	drv, err := driver.New(cfg.Driver.Binary,
		driver.WithExecutor(executor),
		driver.WithLogger(logging.NewComponentLogger(logger, "driver")),
		driver.WithTargetEnv(cfg.Driver.TargetEnv),
	)
	if err != nil {
		return nil, err
	}
	cm, err := cmake.New(cfg.CMake.Binary, cmake.WithExecutor(executor))
	if err != nil {
		return nil, err
	}
	resolver, err := areas.NewResolver(0, areas.WithLogger(logging.NewComponentLogger(logger, "areas")))
	if err != nil {
		return nil, err
	}
	return &toolset{
		cfg:      cfg,
		logger:   logger,
		executor: executor,
		driver:   drv,
		cmake:    cm,
		resolver: resolver,
	}, nil
}

// withHistory opens the run history for the duration of fn.
func (c *commandContext) withHistory(fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func fprintLines(w io.Writer, lines ...string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
