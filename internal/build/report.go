package build

import (
	"time"

	"nativebuild/internal/history"
)

// Step names as they appear in logs, reports, and history.
const (
	StepSpecs       = "specs"
	StepDeps        = "deps"
	StepResolve     = "resolve"
	StepClean       = "clean"
	StepHostBuild   = "host-build"
	StepDeviceBuild = "device-build"
	StepLayout      = "layout"
)

// StepResult is the outcome of one pipeline step.
type StepResult struct {
	Name     string
	Status   history.Status
	Duration time.Duration
	Detail   string
	Err      error
}

// Report summarises a pipeline run.
type Report struct {
	RunID      string
	HostSpec   string
	DeviceSpec string
	Areas      []string
	Projects   []string
	Steps      []StepResult
	// Failures names the steps that failed without aborting the run.
	Failures []string
	Duration time.Duration
}

// Step returns the result for name, if it ran.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, step := range r.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return StepResult{}, false
}
