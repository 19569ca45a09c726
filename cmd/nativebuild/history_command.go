package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nativebuild/internal/history"
	"nativebuild/internal/services"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent build runs, or the steps of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := validateOutputFormat(format)
			if err != nil {
				return err
			}
			return ctx.withHistory(func(store *history.Store) error {
				if len(args) == 1 {
					return showRun(cmd, store, strings.TrimSpace(args[0]), output)
				}
				return listRuns(cmd, store, limit, output)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVarP(&format, "output", "o", outputTable, "Output format: table, json, or yaml")
	return cmd
}

type runView struct {
	ID       string     `json:"id" yaml:"id"`
	Command  string     `json:"command" yaml:"command"`
	Areas    []string   `json:"areas" yaml:"areas"`
	HostSpec string     `json:"host_spec,omitempty" yaml:"host_spec,omitempty"`
	Status   string     `json:"status" yaml:"status"`
	ExitCode int        `json:"exit_code" yaml:"exit_code"`
	Error    string     `json:"error,omitempty" yaml:"error,omitempty"`
	Started  string     `json:"started" yaml:"started"`
	Duration string     `json:"duration" yaml:"duration"`
	Steps    []stepView `json:"steps,omitempty" yaml:"steps,omitempty"`
}

type stepView struct {
	Name     string `json:"name" yaml:"name"`
	Status   string `json:"status" yaml:"status"`
	Duration string `json:"duration" yaml:"duration"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newRunView(run history.Run) runView {
	return runView{
		ID:       run.ID,
		Command:  run.Command,
		Areas:    run.Areas,
		HostSpec: run.HostSpec,
		Status:   string(run.Status),
		ExitCode: run.ExitCode,
		Error:    run.Error,
		Started:  run.StartedAt.Local().Format(time.DateTime),
		Duration: formatDuration(run.Duration()),
	}
}

func listRuns(cmd *cobra.Command, store *history.Store, limit int, output string) error {
	runs, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newRunView(run))
	}
	switch output {
	case outputJSON:
		return writeJSON(cmd, views)
	case outputYAML:
		return writeYAML(cmd, views)
	}

	out := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(out, "No builds recorded")
		return nil
	}
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(views))
	for _, view := range views {
		rows = append(rows, []string{
			shortID(view.ID),
			view.Started,
			view.Command,
			joinOrDash(view.Areas),
			statusLabel(view.Status, view.Status != string(history.StatusFailed), colorize),
			view.Duration,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Started", "Command", "Areas", "Status", "Duration"},
		rows,
		5,
	))
	return nil
}

func showRun(cmd *cobra.Command, store *history.Store, id, output string) error {
	run, err := findRun(cmd, store, id)
	if err != nil {
		return err
	}
	steps, err := store.Steps(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	view := newRunView(*run)
	for _, step := range steps {
		view.Steps = append(view.Steps, stepView{
			Name:     step.Name,
			Status:   string(step.Status),
			Duration: formatDuration(step.Duration),
			Error:    step.Error,
		})
	}
	switch output {
	case outputJSON:
		return writeJSON(cmd, view)
	case outputYAML:
		return writeYAML(cmd, view)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", view.ID)
	fmt.Fprintf(out, "Command:   %s\n", view.Command)
	fmt.Fprintf(out, "Areas:     %s\n", joinOrDash(view.Areas))
	fmt.Fprintf(out, "Host spec: %s\n", valueOrDash(view.HostSpec))
	fmt.Fprintf(out, "Status:    %s (exit %d)\n", view.Status, view.ExitCode)
	fmt.Fprintf(out, "Started:   %s\n", view.Started)
	fmt.Fprintf(out, "Duration:  %s\n", view.Duration)
	if view.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", view.Error)
	}
	rows := make([][]string, 0, len(view.Steps))
	for _, step := range view.Steps {
		rows = append(rows, []string{step.Name, step.Status, step.Duration, step.Error})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Step", "Status", "Duration", "Error"},
		rows,
		2,
	))
	return nil
}

// findRun accepts a full run ID or a unique prefix of a recent run.
func findRun(cmd *cobra.Command, store *history.Store, id string) (*history.Run, error) {
	if id == "" {
		return nil, errors.New("run id is required")
	}
	run, err := store.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}
	recent, err := store.Recent(cmd.Context(), 200)
	if err != nil {
		return nil, err
	}
	var matches []history.Run
	for _, candidate := range recent {
		if strings.HasPrefix(candidate.ID, id) {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, services.Wrap(services.ErrNotFound, "history", "", fmt.Sprintf("no run matches %q", id), nil)
	default:
		return nil, services.Wrap(services.ErrValidation, "history", "", fmt.Sprintf("run id %q is ambiguous", id), nil)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
