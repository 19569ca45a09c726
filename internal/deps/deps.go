// Package deps checks that the external tools a build shells out to can be
// found.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names a tool and the command used to invoke it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement plus the lookup outcome. Detail holds the resolved
// path when it differs from Command, or the reason the tool is unavailable.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// CheckBinaries looks up every requirement on PATH, in order.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		out[i] = lookup(req)
	}
	return out
}

func lookup(req Requirement) Status {
	st := Status{Requirement: req}
	if req.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return st
	}
	st.Available = true
	if resolved != req.Command {
		st.Detail = resolved
	}
	return st
}

// MissingRequired filters statuses down to unavailable non-optional tools.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, st := range statuses {
		if !st.Available && !st.Optional {
			missing = append(missing, st)
		}
	}
	return missing
}
