// Package jsonpath evaluates JSONPath queries against JSON-shaped values.
// It wraps the PaesslerAG implementation and normalizes the leading "$"
// that user-supplied paths frequently omit.
package jsonpath

import (
	"context"
	"errors"
	"fmt"
	"strings"

	paessler "github.com/PaesslerAG/jsonpath"

	"kubecheck/internal/spec"
)

// ErrNoResults is raised when a query matches nothing.
var ErrNoResults = errors.New("no results for JSONPath")

// Normalize prefixes the root selector when a path omits it, so both
// "$.status.phase" and "status.phase" address the same location.
func Normalize(path string) string {
	if strings.HasPrefix(path, "$") {
		return path
	}
	if strings.HasPrefix(path, ".") {
		return "$" + path
	}
	return "$." + path
}

// Eval runs a query against a parsed JSON value. A single match returns
// the scalar; wildcard queries return the full match slice. A query that
// matches nothing returns ErrNoResults; a malformed query is a
// configuration error.
func Eval(path string, data interface{}) (interface{}, error) {
	query, err := paessler.New(Normalize(path))
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, spec.ErrConfiguration)
	}
	result, err := query(context.Background(), data)
	if err != nil {
		return nil, fmt.Errorf("JSONPath %q: %w", path, ErrNoResults)
	}
	if matches, ok := result.([]interface{}); ok && len(matches) == 0 {
		return nil, fmt.Errorf("JSONPath %q: %w", path, ErrNoResults)
	}
	return result, nil
}
