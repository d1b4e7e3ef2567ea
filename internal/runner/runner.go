// Package runner executes a batch of test definitions sequentially with
// fail-fast semantics and per-test retries.
package runner

import (
	"context"
	"time"

	"kubecheck/internal/executor"
	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
	"kubecheck/pkg/logging"
)

// retryPause is the fixed pause between attempts of a failed test.
const retryPause = 1 * time.Second

// Runner executes test batches.
type Runner struct {
	exec     Executor
	reporter Reporter
	pause    time.Duration
}

// New creates a runner. A nil reporter disables console output.
func New(exec Executor, reporter Reporter) *Runner {
	if reporter == nil {
		reporter = noopReporter{}
	}
	return &Runner{
		exec:     exec,
		reporter: reporter,
		pause:    retryPause,
	}
}

// Run executes the tests in document order. The first failing test stops
// execution; the remaining tests are recorded as skipped without being
// attempted.
func (r *Runner) Run(ctx context.Context, tests []spec.TestDefinition, store *vars.Store) *RunResult {
	result := &RunResult{
		StartTime: time.Now(),
		Total:     len(tests),
		Outcomes:  make([]Outcome, 0, len(tests)),
	}

	r.reporter.ReportStart(len(tests))

	failed := false
	for i := range tests {
		def := &tests[i]

		if failed {
			outcome := Outcome{Name: def.Name, Kind: string(def.Kind()), Skipped: true}
			result.Skipped++
			result.Outcomes = append(result.Outcomes, outcome)
			r.reporter.ReportOutcome(outcome)
			continue
		}

		outcome := r.runTest(ctx, def, store)
		if outcome.Passed {
			result.Passed++
		} else {
			result.Failed++
			failed = true
		}
		result.Outcomes = append(result.Outcomes, outcome)
		r.reporter.ReportOutcome(outcome)
	}

	result.EndTime = time.Now()
	result.DurationMs = result.EndTime.Sub(result.StartTime).Milliseconds()
	r.reporter.ReportRunResult(result)
	return result
}

// runTest executes one definition with its retry budget. Configuration
// errors are terminal on the first attempt.
func (r *Runner) runTest(ctx context.Context, def *spec.TestDefinition, store *vars.Store) Outcome {
	outcome := Outcome{Name: def.Name, Kind: string(def.Kind())}
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= def.Retries; attempt++ {
		if attempt > 0 {
			logging.Debug("Runner", "retrying test %q (attempt %d of %d)", def.Name, attempt+1, def.Retries+1)
			select {
			case <-ctx.Done():
				outcome.Attempts = attempt
				outcome.Error = ctx.Err().Error()
				outcome.DurationMs = time.Since(start).Milliseconds()
				return outcome
			case <-time.After(r.pause):
			}
		}
		outcome.Attempts = attempt + 1

		lastErr = r.exec.Execute(ctx, def, store)
		if lastErr == nil {
			outcome.Passed = true
			outcome.DurationMs = time.Since(start).Milliseconds()
			return outcome
		}
		if executor.IsConfigError(lastErr) {
			logging.Warn("Runner", "test %q has a configuration error, not retrying", def.Name)
			break
		}
	}

	outcome.Error = lastErr.Error()
	outcome.DurationMs = time.Since(start).Milliseconds()
	return outcome
}
