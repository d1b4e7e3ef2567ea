package executor

import (
	"encoding/json"
	"net/http"
	"strings"

	"kubecheck/internal/spec"
)

// Result is the uniform outcome shape every execution strategy returns to
// the validation layer. Which fields are populated depends on the test
// kind; strategy choice is invisible past this boundary.
type Result struct {
	// Kind is the test kind that produced the result
	Kind spec.TestKind

	// StatusCode is the HTTP response status
	StatusCode int
	// Headers are the response headers (case-insensitive lookup)
	Headers http.Header
	// Body is the raw response body text
	Body string
	// BodyJSON is the parsed body, nil when the body is not JSON
	BodyJSON interface{}

	// Stdout captured from a command
	Stdout string
	// Stderr captured from a command
	Stderr string
	// ExitCode of a command
	ExitCode int
	// JSON is the parsed stdout when parseJson was requested
	JSON interface{}
	// JSONParseError records a stdout parse failure instead of failing
	// the execution
	JSONParseError string

	// ExtractedValue is the value the wait poller last observed
	ExtractedValue interface{}
}

// parseBody attempts to parse the body as JSON. Parse failures are not
// errors; the body simply stays text-only.
func (r *Result) parseBody() {
	trimmed := strings.TrimSpace(r.Body)
	if trimmed == "" {
		return
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		r.BodyJSON = parsed
	}
}
