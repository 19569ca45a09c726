package history

import "time"

// Status is the outcome of a run or step.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Run is one recorded invocation.
type Run struct {
	ID         string
	Command    string
	Areas      []string
	HostSpec   string
	Status     Status
	ExitCode   int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration reports how long the run took, or zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Step is one recorded pipeline step of a run.
type Step struct {
	RunID      string
	Name       string
	Status     Status
	Duration   time.Duration
	Error      string
	RecordedAt time.Time
}
