package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"nativebuild/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold nativebuild.toml",
	}
	cmd.AddCommand(newConfigValidateCommand(ctx), newConfigInitCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		path      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := writeSampleConfig(path, overwrite)
			if err != nil {
				return err
			}
			fprintLines(cmd.OutOrStdout(),
				"Wrote sample configuration to "+target,
				"Set [paths] for this project, then export MLSDK and MLCERT (or put them in .env) for device builds.",
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", config.ProjectConfigName, "Where to write the configuration")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

// writeSampleConfig expands path and writes the sample there, refusing to
// clobber an existing file unless overwrite is set.
func writeSampleConfig(path string, overwrite bool) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = config.ProjectConfigName
	}
	target, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	if !overwrite {
		switch _, err := os.Stat(target); {
		case err == nil:
			return "", fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("stat %s: %w", target, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := config.CreateSample(target); err != nil {
		return "", fmt.Errorf("write sample config: %w", err)
	}
	return target, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report the resolved paths",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("prepare directories: %w", err)
			}
			lines := []string{"Config path: " + path}
			if !exists {
				lines = append(lines, "No file found; using defaults")
			}
			lines = append(lines,
				"Base directory: "+cfg.Paths.BaseDir,
				"Area file: "+cfg.Paths.AreasFile,
				"Configuration valid",
			)
			fprintLines(cmd.OutOrStdout(), lines...)
			return nil
		},
	}
}
