package main

import "github.com/spf13/cobra"

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:   "nativebuild",
		Short: "Build native projects for host and device with the build driver",
		Long: `nativebuild resolves build areas to project files and drives the
platform build tool over them for the host and the device.

Configuration is read from --config, ./nativebuild.toml, or the user
config directory, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
	}

	// No shorthand: "build -c" means --clean.
	root.PersistentFlags().StringVar(&ctx.configFlag, "config", "", "Configuration file path")

	root.AddCommand(
		newBuildCommand(ctx),
		newAreasCommand(ctx),
		newDepsCommand(ctx),
		newDoctorCommand(ctx),
		newHistoryCommand(ctx),
		newLogsCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}
