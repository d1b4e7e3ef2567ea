package runner

import (
	"context"
	"time"

	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
)

// Executor runs a single test definition. It is satisfied by
// executor.Executor and by test doubles.
type Executor interface {
	Execute(ctx context.Context, def *spec.TestDefinition, store *vars.Store) error
}

// Outcome is the recorded result of one test definition.
type Outcome struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Passed     bool   `json:"passed"`
	Skipped    bool   `json:"skipped"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts"`
	DurationMs int64  `json:"durationMs"`
}

// RunResult aggregates the outcomes of a whole batch.
type RunResult struct {
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`
	Total      int       `json:"total"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Success reports whether every executed test passed.
func (r *RunResult) Success() bool {
	return r.Failed == 0
}
