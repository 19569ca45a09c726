package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nativebuild/internal/external"
	"nativebuild/internal/logging"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	depsCmd := &cobra.Command{
		Use:   "deps",
		Short: "Fetch, build, and clean third-party dependencies",
	}
	depsCmd.AddCommand(newDepsFetchCommand(ctx))
	depsCmd.AddCommand(newDepsBuildCommand(ctx))
	depsCmd.AddCommand(newDepsCleanCommand(ctx))
	return depsCmd
}

func (c *commandContext) externalBuilder(cmd *cobra.Command, verbose bool) (*external.Builder, error) {
	tools, err := c.tools(cmd, verbose)
	if err != nil {
		return nil, err
	}
	return external.New(tools.cfg, tools.driver, tools.cmake,
		external.WithLogger(logging.NewComponentLogger(tools.logger, "external")),
	), nil
}

func newDepsFetchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download and extract the configured source archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, err := ctx.externalBuilder(cmd, false)
			if err != nil {
				return err
			}
			files, err := builder.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d files\n", files)
			return nil
		},
	}
}

func newDepsBuildCommand(ctx *commandContext) *cobra.Command {
	var release, noHost, noDevice, verbose bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Configure, build, and install the dependencies with CMake",
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, err := ctx.externalBuilder(cmd, verbose)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := external.Options{
				Release:  release,
				Host:     !noHost,
				Device:   !noDevice,
				Parallel: cfg.CMake.Parallel,
			}
			if err := builder.Build(cmd.Context(), opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dependencies built (%s)\n", opts.Config())
			return nil
		},
	}
	cmd.Flags().BoolVar(&release, "release", false, "Build release configurations")
	cmd.Flags().BoolVar(&noHost, "no-host", false, "Skip the host build")
	cmd.Flags().BoolVar(&noDevice, "no-device", false, "Skip the device build")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log commands at debug level")
	return cmd
}

func newDepsCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the dependency build and install trees",
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, err := ctx.externalBuilder(cmd, false)
			if err != nil {
				return err
			}
			remaining := builder.Clean()
			out := cmd.OutOrStdout()
			if len(remaining) > 0 {
				fmt.Fprintln(out, "Could not remove:")
				fprintLines(out, remaining...)
				return fmt.Errorf("%d directories remain", len(remaining))
			}
			fmt.Fprintln(out, "Dependency trees removed")
			return nil
		},
	}
}
