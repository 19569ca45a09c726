package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"nativebuild/internal/build"
	"nativebuild/internal/external"
	"nativebuild/internal/history"
	"nativebuild/internal/logging"
	"nativebuild/internal/preflight"
)

type buildFlags struct {
	clean           bool
	rebuild         bool
	releaseBuild    bool
	build           bool
	noBuild         bool
	host            bool
	noHost          bool
	device          bool
	noDevice        bool
	noCPP           bool
	prepareBinaries bool
	noPrepare       bool
	buildDeps       bool
	areas           []string
	spec            string
	ccache          string
	verbose         int
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build [flags] [-- driver args...]",
		Short: "Clean, build, and lay out the selected areas",
		Long: `Resolve the requested areas to project files, build them for the host
and the device with the build driver, and lay out the package tree.

Arguments after "--" are passed to the build driver unchanged; a "-t <target>"
among them selects the driver target unless --spec is given.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if dash := cmd.ArgsLenAtDash(); dash != 0 && len(args) > 0 {
				return fmt.Errorf("unexpected arguments %q; pass driver arguments after --", strings.Join(args, " "))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(cmd.Flags(), args)
			if err != nil {
				return err
			}
			return runBuild(cmd, ctx, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&flags.clean, "clean", "c", false, "Clean build artifacts (build is skipped unless --build is given)")
	f.BoolVarP(&flags.rebuild, "rebuild", "r", false, "Clean, then build")
	f.BoolVar(&flags.releaseBuild, "release-build", false, "Build the release area set and lay out the package")
	f.BoolVar(&flags.releaseBuild, "rb", false, "Alias for --release-build")
	f.BoolVar(&flags.build, "build", false, "Build (default unless cleaning)")
	f.BoolVar(&flags.noBuild, "no-build", false, "Do not build")
	f.BoolVar(&flags.host, "host", false, "Build for the host (default)")
	f.BoolVar(&flags.noHost, "no-host", false, "Skip host builds")
	f.BoolVar(&flags.device, "device", false, "Build for the device (default)")
	f.BoolVar(&flags.noDevice, "no-device", false, "Skip device builds")
	f.BoolVar(&flags.noCPP, "no-cpp", false, "Skip C++ builds")
	f.BoolVar(&flags.prepareBinaries, "prepare-binaries", false, "Rewrite library lookups of laid out macOS binaries (default)")
	f.BoolVar(&flags.prepareBinaries, "pb", false, "Alias for --prepare-binaries")
	f.BoolVar(&flags.noPrepare, "no-prepare-binaries", false, "Skip macOS binary preparation")
	f.BoolVar(&flags.noPrepare, "no-pb", false, "Alias for --no-prepare-binaries")
	f.BoolVar(&flags.buildDeps, "build-deps", false, "Fetch and build third-party dependencies first")
	f.StringArrayVarP(&flags.areas, "areas", "a", nil, "Areas to build (comma separated, repeatable)")
	f.StringVarP(&flags.spec, "spec", "t", "", "Driver target, overriding any -t passed after --")
	f.StringVar(&flags.ccache, "ccache", "", "Prefix compiler and linker with ccache (optionally a path)")
	f.Lookup("ccache").NoOptDefVal = "ccache"
	f.CountVarP(&flags.verbose, "verbose", "v", "Verbose output (repeat to pass -v to the driver)")
	for _, alias := range []string{"rb", "pb", "no-pb"} {
		_ = f.MarkHidden(alias)
	}

	return cmd
}

// options translates parsed flags into build options. Paired flags are left
// unset when neither side was given so the pipeline applies its defaults.
func (b buildFlags) options(fs *pflag.FlagSet, extra []string) (build.Options, error) {
	buildValue, err := pairedFlag(fs, []string{"build"}, []string{"no-build"})
	if err != nil {
		return build.Options{}, err
	}
	hostValue, err := pairedFlag(fs, []string{"host"}, []string{"no-host"})
	if err != nil {
		return build.Options{}, err
	}
	deviceValue, err := pairedFlag(fs, []string{"device"}, []string{"no-device"})
	if err != nil {
		return build.Options{}, err
	}
	prepareValue, err := pairedFlag(fs, []string{"prepare-binaries", "pb"}, []string{"no-prepare-binaries", "no-pb"})
	if err != nil {
		return build.Options{}, err
	}
	var cpp *bool
	if b.noCPP {
		cpp = boolPtr(false)
	}
	return build.Options{
		Clean:           b.clean,
		Rebuild:         b.rebuild,
		ReleaseBuild:    b.releaseBuild,
		Build:           buildValue,
		Host:            hostValue,
		Device:          deviceValue,
		CPP:             cpp,
		PrepareBinaries: prepareValue,
		BuildDeps:       b.buildDeps,
		Areas:           b.areas,
		SpecOverride:    b.spec,
		CCache:          b.ccache,
		Verbose:         b.verbose,
		Extra:           extra,
	}, nil
}

func pairedFlag(fs *pflag.FlagSet, on, off []string) (*bool, error) {
	changed := func(names []string) bool {
		for _, name := range names {
			if fs.Changed(name) {
				return true
			}
		}
		return false
	}
	switch onSet, offSet := changed(on), changed(off); {
	case onSet && offSet:
		return nil, fmt.Errorf("--%s and --%s are mutually exclusive", on[0], off[0])
	case onSet:
		return boolPtr(true), nil
	case offSet:
		return boolPtr(false), nil
	default:
		return nil, nil
	}
}

func boolPtr(v bool) *bool { return &v }

func runBuild(cmd *cobra.Command, ctx *commandContext, opts build.Options) error {
	tools, err := ctx.tools(cmd, opts.Verbose > 0)
	if err != nil {
		return err
	}
	cfg := tools.cfg
	if opts.CCache == "" {
		opts.CCache = cfg.Driver.CCache
	}

	if err := preflight.RequireReady(cmd.Context(), cfg, tools.driver, preflight.Options{Args: opts.Extra}); err != nil {
		return err
	}

	pipelineOpts := []build.Option{
		build.WithLogger(logging.NewComponentLogger(tools.logger, "build")),
		build.WithExecutor(tools.executor),
		build.WithExternal(external.New(cfg, tools.driver, tools.cmake,
			external.WithLogger(logging.NewComponentLogger(tools.logger, "external")),
		)),
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.WarnWithContext(tools.logger, "build history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "this run is not recorded"),
		)
	} else {
		defer store.Close()
		pipelineOpts = append(pipelineOpts, build.WithHistory(store))
	}

	pipeline, err := build.New(cfg, tools.driver, tools.resolver, pipelineOpts...)
	if err != nil {
		return err
	}
	report, runErr := pipeline.Run(cmd.Context(), opts)
	if report != nil {
		renderBuildReport(cmd, report, runErr == nil)
	}
	if errors.Is(runErr, build.ErrLocked) {
		return fmt.Errorf("%w; wait for the other build to finish", runErr)
	}
	return runErr
}

func renderBuildReport(cmd *cobra.Command, report *build.Report, ok bool) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(report.Steps))
	for _, step := range report.Steps {
		detail := step.Detail
		if step.Err != nil {
			detail = step.Err.Error()
		}
		duration := "-"
		if step.Status != history.StatusSkipped {
			duration = formatDuration(step.Duration)
		}
		rows = append(rows, []string{
			step.Name,
			statusLabel(string(step.Status), step.Status != history.StatusFailed, colorize),
			duration,
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Step", "Status", "Duration", "Detail"},
		rows,
		2,
	))

	result := statusLabel("Build succeeded", true, colorize)
	if !ok {
		result = statusLabel("Build failed", false, colorize)
	}
	fmt.Fprintf(out, "%s in %s (run %s, %d projects)\n", result, formatDuration(report.Duration), report.RunID, len(report.Projects))
	if len(report.Failures) > 0 {
		fmt.Fprintf(out, "Failed: %s\n", strings.Join(report.Failures, ", "))
	}
}
