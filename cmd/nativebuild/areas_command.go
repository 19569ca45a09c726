package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nativebuild/internal/areas"
	"nativebuild/internal/build"
)

func newAreasCommand(ctx *commandContext) *cobra.Command {
	areasCmd := &cobra.Command{
		Use:   "areas",
		Short: "Inspect build areas",
	}
	areasCmd.AddCommand(newAreasListCommand(ctx))
	areasCmd.AddCommand(newAreasResolveCommand(ctx))
	return areasCmd
}

func newAreasListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the areas defined in the area file",
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := ctx.tools(cmd, false)
			if err != nil {
				return err
			}
			areaCfg, err := tools.resolver.Load(tools.cfg.Paths.AreasFile)
			if err != nil {
				return err
			}

			names := areaCfg.Names()
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				var paths []string
				for _, entry := range areaCfg.Entries(name) {
					if !areas.IsAreaReference(entry) {
						paths = append(paths, entry)
					}
				}
				rows = append(rows, []string{
					name,
					joinOrDash(areaCfg.SubAreas(name)),
					joinOrDash(paths),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Area file: %s\n", areaCfg.Path())
			fmt.Fprintln(out, renderTable([]string{"Area", "Includes", "Paths"}, rows))
			return nil
		},
	}
}

func newAreasResolveCommand(ctx *commandContext) *cobra.Command {
	var requested []string
	var format string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the project files the requested areas build",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := validateOutputFormat(format)
			if err != nil {
				return err
			}
			tools, err := ctx.tools(cmd, false)
			if err != nil {
				return err
			}
			res, err := tools.resolver.Resolve(tools.cfg.Paths.AreasFile, build.SplitAreas(requested))
			if err != nil {
				return err
			}

			switch output {
			case outputJSON:
				return writeJSON(cmd, res)
			case outputYAML:
				return writeYAML(cmd, res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Areas: %s\n", joinOrDash(res.Areas))
			if len(res.Missing) > 0 {
				fmt.Fprintf(out, "Not found: %s\n", strings.Join(res.Missing, ", "))
			}
			if len(res.Projects) == 0 {
				fmt.Fprintln(out, "No projects")
				return nil
			}
			rows := make([][]string, 0, len(res.Projects))
			for i, project := range res.Projects {
				rows = append(rows, []string{fmt.Sprintf("%d", i+1), project})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Project"}, rows, 0))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&requested, "areas", "a", nil, "Areas to resolve (comma separated, repeatable; default all)")
	cmd.Flags().StringVarP(&format, "output", "o", outputTable, "Output format: table, json, or yaml")
	return cmd
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
