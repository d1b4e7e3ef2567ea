package executor

import (
	"context"
	"errors"
	"fmt"

	"kubecheck/internal/compare"
	"kubecheck/internal/jsonpath"
	"kubecheck/internal/kube"
	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
)

// Executor dispatches one validated test definition to the matching
// execution strategy and applies expectations and value extraction.
type Executor struct {
	kube kube.Interface
}

// New creates an executor using the given cluster access client.
func New(k kube.Interface) *Executor {
	return &Executor{kube: k}
}

// IsConfigError reports whether an error is a configuration error, which
// the orchestrator must never retry.
func IsConfigError(err error) bool {
	return errors.Is(err, spec.ErrConfiguration)
}

// Execute runs a single test definition against the variable store: the
// strategy produces a Result, the expectations are validated, and only
// then does value extraction publish into the store.
func (e *Executor) Execute(ctx context.Context, def *spec.TestDefinition, store *vars.Store) error {
	switch def.Kind() {
	case spec.KindHTTP:
		res, err := e.executeHTTP(ctx, def.HTTP, def.Source, store)
		if err != nil {
			return err
		}
		if def.Expect != nil {
			if err := validateHTTPExpectations(res, def.Expect); err != nil {
				return err
			}
		}
		return Extract(def.Vars(), res, store)

	case spec.KindCommand:
		res, err := e.executeCommand(ctx, def.Command, def.Source, store)
		if err != nil {
			return err
		}
		if def.Expect != nil {
			if err := validateCommandExpectations(res, def.Expect); err != nil {
				return err
			}
		}
		return Extract(def.Vars(), res, store)

	case spec.KindWait:
		return e.executeWait(ctx, def, store)

	case spec.KindBodyComparison:
		return e.executeBodyComparison(ctx, def.BodyComparison, def.Expect, store)
	}

	return fmt.Errorf("test %q: %w", def.Name, spec.ErrUnknownTestKind)
}

// validateHTTPExpectations checks an HTTP result against its expectation
// set.
func validateHTTPExpectations(res *Result, expect *spec.Expectation) error {
	if expect.StatusCode != nil {
		if err := compare.Compare(res.StatusCode, *expect.StatusCode); err != nil {
			return fmt.Errorf("statusCode: %w", err)
		}
	}
	if expect.BodyContains != nil {
		if err := compare.Compare(res.Body, *expect.BodyContains); err != nil {
			return fmt.Errorf("bodyContains: %w", err)
		}
	}
	if expect.BodyRegex != nil {
		if err := compare.Compare(res.Body, *expect.BodyRegex); err != nil {
			return fmt.Errorf("bodyRegex: %w", err)
		}
	}
	for _, h := range expect.Headers {
		var actual interface{}
		if values := res.Headers.Values(h.Name); len(values) > 0 {
			actual = values[0]
		}
		if err := compare.Compare(actual, h.Comparison()); err != nil {
			return fmt.Errorf("header %q: %w", h.Name, err)
		}
	}
	for _, p := range expect.BodyJSONPath {
		if res.BodyJSON == nil {
			return fmt.Errorf("bodyJsonPath %q: response body is not valid JSON", p.Path)
		}
		actual, err := jsonpath.Eval(p.Path, res.BodyJSON)
		if err != nil && !errors.Is(err, jsonpath.ErrNoResults) {
			return fmt.Errorf("bodyJsonPath: %w", err)
		}
		if err := compare.Compare(actual, p.Comparison()); err != nil {
			return fmt.Errorf("bodyJsonPath %q: %w", p.Path, err)
		}
	}
	return nil
}

// validateCommandExpectations checks a command result against its
// expectation set.
func validateCommandExpectations(res *Result, expect *spec.Expectation) error {
	if expect.ExitCode != nil {
		if err := compare.Compare(res.ExitCode, *expect.ExitCode); err != nil {
			return fmt.Errorf("exitCode: %w", err)
		}
	}
	if expect.Stdout != nil {
		if err := compare.Compare(res.Stdout, *expect.Stdout); err != nil {
			return fmt.Errorf("stdout: %w", err)
		}
	}
	if expect.Stderr != nil {
		if err := compare.Compare(res.Stderr, *expect.Stderr); err != nil {
			return fmt.Errorf("stderr: %w", err)
		}
	}
	for _, p := range expect.JSONPath {
		if res.JSON == nil {
			if res.JSONParseError != "" {
				return fmt.Errorf("jsonPath %q: stdout is not valid JSON: %s", p.Path, res.JSONParseError)
			}
			return fmt.Errorf("jsonPath %q: stdout was not parsed as JSON (set parseJson)", p.Path)
		}
		actual, err := jsonpath.Eval(p.Path, res.JSON)
		if err != nil && !errors.Is(err, jsonpath.ErrNoResults) {
			return fmt.Errorf("jsonPath: %w", err)
		}
		if err := compare.Compare(actual, p.Comparison()); err != nil {
			return fmt.Errorf("jsonPath %q: %w", p.Path, err)
		}
	}
	return nil
}
