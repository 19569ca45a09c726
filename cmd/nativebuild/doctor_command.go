package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nativebuild/internal/preflight"
	"nativebuild/internal/services"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var device bool

	cmd := &cobra.Command{
		Use:   "doctor [-- driver args...]",
		Short: "Check the build environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := ctx.tools(cmd, false)
			if err != nil {
				return err
			}
			report := preflight.Collect(cmd.Context(), tools.cfg, tools.driver, preflight.Options{
				Device: device,
				Args:   args,
			})

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			checkRows := make([][]string, 0, len(report.Checks))
			for _, check := range report.Checks {
				checkRows = append(checkRows, []string{
					check.Name,
					statusLabel(passLabel(check.Passed), check.Passed, colorize),
					check.Detail,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, checkRows))

			depRows := make([][]string, 0, len(report.Deps))
			for _, dep := range report.Deps {
				state := "found"
				if !dep.Available {
					state = "missing"
				}
				depRows = append(depRows, []string{
					dep.Name,
					dep.Command,
					statusLabel(state, dep.Available || dep.Optional, colorize),
					yesNo(dep.Optional),
					dep.Detail,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Tool", "Command", "Status", "Optional", "Detail"}, depRows))

			if !report.OK() {
				fprintLines(out, report.Failures()...)
				return services.Wrap(services.ErrConfiguration, "doctor", "",
					fmt.Sprintf("%d problems found", len(report.Failures())), nil)
			}
			fmt.Fprintln(out, "Environment ready")
			return nil
		},
	}
	cmd.Flags().BoolVar(&device, "device", true, "Include device SDK and certificate checks")
	return cmd
}

func passLabel(passed bool) string {
	if passed {
		return "ok"
	}
	return "failed"
}
