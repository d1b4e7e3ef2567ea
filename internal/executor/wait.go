package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kubecheck/internal/compare"
	"kubecheck/internal/jsonpath"
	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
	"kubecheck/pkg/logging"
)

// Polling outcomes, distinguished so callers can branch on which bound
// was exhausted.
var (
	// ErrTimedOut is raised when the wall-clock deadline passes
	ErrTimedOut = errors.New("wait timed out")
	// ErrRetriesExhausted is raised when the retry ceiling is hit before
	// the deadline
	ErrRetriesExhausted = errors.New("wait retries exhausted")
)

// Defaults of the polling loop.
const (
	defaultWaitTimeout  = 60 * time.Second
	defaultWaitInterval = 2 * time.Second
)

// executeWait polls the target resource until the condition is
// satisfied, the deadline passes, or the retry budget is exhausted.
// The first satisfying observation wins.
func (e *Executor) executeWait(ctx context.Context, def *spec.TestDefinition, store *vars.Store) error {
	w := def.Wait

	timeout := defaultWaitTimeout
	if w.TimeoutSeconds > 0 {
		timeout = time.Duration(w.TimeoutSeconds) * time.Second
	}
	interval := defaultWaitInterval
	if w.IntervalSeconds > 0 {
		interval = time.Duration(w.IntervalSeconds) * time.Second
	}
	deadline := time.Now().Add(timeout)

	resource := w.Metadata.Name
	if resource == "" {
		resource = fmt.Sprintf("labels %v", w.Metadata.Labels)
	}

	failedAttempts := 0
	for {
		satisfied, value, err := e.observe(ctx, w)
		if err != nil {
			return fmt.Errorf("wait for %s %s: %w", w.Kind, resource, err)
		}
		if satisfied {
			res := &Result{Kind: spec.KindWait, ExtractedValue: value}
			return Extract(def.Vars(), res, store)
		}

		failedAttempts++
		if w.MaxRetries != nil && failedAttempts > *w.MaxRetries {
			return fmt.Errorf("%w after %d attempts waiting for %s %s (path %q)",
				ErrRetriesExhausted, failedAttempts, w.Kind, resource, w.JSONPath)
		}
		if time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("%w after %s waiting for %s %s (path %q, expectation %v)",
				ErrTimedOut, timeout, w.Kind, resource, w.JSONPath, waitExpectation(w))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s %s canceled: %w", w.Kind, resource, ctx.Err())
		case <-time.After(interval):
		}
	}
}

// observe performs one polling iteration: fetch, extract, check. Fetch
// errors and comparator failures are "not yet". Configuration errors
// abort the loop, a malformed path can never become satisfiable.
func (e *Executor) observe(ctx context.Context, w *spec.WaitTest) (bool, interface{}, error) {
	obj, err := e.kube.Get(ctx, w.Selector)
	if err != nil {
		logging.Debug("Wait", "resource not available yet: %v", err)
		return false, nil, nil
	}

	// Without a path the check degrades to "resource exists".
	if w.JSONPath == "" {
		return true, nil, nil
	}

	value, err := jsonpath.Eval(w.JSONPath, obj.Object)
	if err != nil {
		if errors.Is(err, spec.ErrConfiguration) {
			return false, nil, fmt.Errorf("path %q: %w", w.JSONPath, err)
		}
		logging.Debug("Wait", "path %q not satisfied yet: %v", w.JSONPath, err)
		return false, nil, nil
	}
	if value == nil {
		return false, nil, nil
	}
	if s, ok := value.(string); ok && s == "" && w.JSONPathExpectation == nil {
		return false, nil, nil
	}

	if w.JSONPathExpectation != nil {
		if err := compare.Compare(value, *w.JSONPathExpectation); err != nil {
			logging.Debug("Wait", "expectation not satisfied yet: %v", err)
			return false, nil, nil
		}
	}
	return true, value, nil
}

// waitExpectation renders the configured expectation for error messages.
func waitExpectation(w *spec.WaitTest) interface{} {
	if w.JSONPathExpectation == nil {
		return "<exists>"
	}
	return fmt.Sprintf("%s %v", w.JSONPathExpectation.Comparator, w.JSONPathExpectation.Value)
}
