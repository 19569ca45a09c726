package main

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"nativebuild/internal/logging"
	"nativebuild/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		filter logs.Filter
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the build log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.StateDir, logging.LogFileName)
			out := cmd.OutOrStdout()

			entries, offset, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				writeLogEntry(out, entry)
			}
			if !follow {
				if len(entries) == 0 {
					fmt.Fprintf(out, "No log entries in %s\n", path)
				}
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, filter, logs.DefaultPoll, func(entry logs.Entry) {
				writeLogEntry(out, entry)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "Only entries for this run ID (prefix)")
	cmd.Flags().StringVar(&filter.Level, "level", "", "Minimum level: debug, info, warn, or error")
	return cmd
}

func writeLogEntry(w io.Writer, entry logs.Entry) {
	var b strings.Builder
	if !entry.Time.IsZero() {
		b.WriteString(entry.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	b.WriteString(strings.ToUpper(entry.Level))
	if entry.Component != "" {
		b.WriteString(" [" + entry.Component + "]")
	}
	if entry.RunID != "" {
		b.WriteString(" run " + shortID(entry.RunID))
		if entry.Step != "" {
			b.WriteString(" · " + entry.Step)
		}
	}
	b.WriteString(" – " + entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		if key == "source" {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry.Fields[key])
	}
	fmt.Fprintln(w, b.String())
}
