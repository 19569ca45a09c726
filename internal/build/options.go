package build

import (
	"slices"
	"strings"

	"nativebuild/internal/areas"
	"nativebuild/internal/services/driver"
)

// ReleaseArea is the default area for release builds.
const ReleaseArea = "release"

// Options carries the caller's build request. Nil tri-state flags take their
// defaults during canonicalization.
type Options struct {
	Clean        bool
	Rebuild      bool
	ReleaseBuild bool
	// Build defaults to true, or to false when cleaning.
	Build *bool
	// Host, Device, CPP and PrepareBinaries default to true.
	Host            *bool
	Device          *bool
	CPP             *bool
	PrepareBinaries *bool
	BuildDeps       bool

	Areas []string
	// SpecOverride is the driver target; it wins over any "-t" in Extra.
	SpecOverride string
	CCache       string
	Verbose      int
	// Extra holds pass-through driver arguments.
	Extra []string
}

// Plan is the canonical form of Options that the pipeline executes.
type Plan struct {
	Clean           bool
	Build           bool
	Release         bool
	Host            bool
	Device          bool
	CPP             bool
	PrepareBinaries bool
	BuildDeps       bool
	Areas           []string
	Target          string
	CCache          string
	Verbose         int
	Extra           []string
}

// FullClean reports whether a clean covers the whole tree. Cleaning a subset
// of areas is not supported by the driver, so partial cleans are skipped.
func (p Plan) FullClean() bool {
	return p.Release || slices.Equal(p.Areas, []string{areas.AllAreas})
}

// Layout reports whether the package layout step runs.
func (p Plan) Layout() bool {
	return p.Build || p.Release
}

// Canonicalize applies the defaulting rules to opts.
func Canonicalize(opts Options) Plan {
	plan := Plan{
		Clean:           opts.Clean || opts.Rebuild,
		Release:         opts.ReleaseBuild,
		Host:            valueOr(opts.Host, true),
		Device:          valueOr(opts.Device, true),
		CPP:             valueOr(opts.CPP, true),
		PrepareBinaries: valueOr(opts.PrepareBinaries, true),
		BuildDeps:       opts.BuildDeps,
		CCache:          strings.TrimSpace(opts.CCache),
		Verbose:         opts.Verbose,
	}

	switch {
	case opts.Rebuild:
		plan.Build = true
	case plan.Clean:
		plan.Build = valueOr(opts.Build, false)
	default:
		plan.Build = valueOr(opts.Build, true)
	}

	plan.Areas = SplitAreas(opts.Areas)
	if len(plan.Areas) == 0 {
		if plan.Release {
			plan.Areas = []string{ReleaseArea}
		} else {
			plan.Areas = []string{areas.AllAreas}
		}
	}

	target, extra := driver.ExtractTarget(opts.Extra)
	if override := strings.TrimSpace(opts.SpecOverride); override != "" {
		target = override
	}
	plan.Target = target
	if plan.Verbose > 1 {
		extra = append(extra, "-v")
	}
	plan.Extra = extra
	return plan
}

// SplitAreas flattens comma separated area arguments, stripping surrounding
// quotes and blanks.
func SplitAreas(values []string) []string {
	var out []string
	for _, value := range values {
		value = strings.Trim(strings.TrimSpace(value), `'"`)
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func valueOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
