package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"kubecheck/internal/compare"
	"kubecheck/internal/jsonpath"
	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
)

// ErrInvalidSourceForKind is raised when an extraction rule is applied to
// a result kind it is not valid for. It marks a configuration error.
var ErrInvalidSourceForKind = fmt.Errorf("extraction source not valid for test kind: %w", spec.ErrConfiguration)

// Extract applies the named extraction rules in document order and
// publishes each value into the store, trimmed and coerced to text.
// A failing rule aborts the remaining rules of the block; values already
// published by earlier rules are not rolled back.
func Extract(rules spec.SetVars, res *Result, store *vars.Store) error {
	for _, r := range rules {
		value, err := extractOne(&r.Rule, res)
		if err != nil {
			return fmt.Errorf("setVars %q: %w", r.Name, err)
		}
		store.Set(r.Name, strings.TrimSpace(compare.Stringify(value)))
	}
	return nil
}

// extractOne resolves a single rule against the result.
func extractOne(rule *spec.ExtractionRule, res *Result) (interface{}, error) {
	if !rule.ValidForKind(res.Kind) {
		return nil, fmt.Errorf("%s extraction against %s result: %w", rule.SelectorName(), res.Kind, ErrInvalidSourceForKind)
	}

	switch {
	case rule.JSONPath != "":
		data, err := parsedData(res)
		if err != nil {
			return nil, err
		}
		return jsonpath.Eval(rule.JSONPath, data)

	case rule.Header != "":
		values := res.Headers.Values(rule.Header)
		if len(values) == 0 {
			return nil, fmt.Errorf("header %q not present in response", rule.Header)
		}
		return values[0], nil

	case rule.StatusCode:
		return strconv.Itoa(res.StatusCode), nil

	case rule.Body:
		return res.Body, nil

	case rule.Stdout:
		return res.Stdout, nil

	case rule.Stderr:
		return res.Stderr, nil

	case rule.ExitCode:
		return strconv.Itoa(res.ExitCode), nil

	case rule.Value:
		if res.ExtractedValue == nil {
			return nil, fmt.Errorf("no value observed by the wait poller")
		}
		return res.ExtractedValue, nil

	case rule.Regex != nil:
		return extractRegex(rule.Regex, res)
	}

	return nil, fmt.Errorf("no extraction source set: %w", spec.ErrConfiguration)
}

// parsedData returns the parsed JSON view of the result for the kind.
func parsedData(res *Result) (interface{}, error) {
	switch res.Kind {
	case spec.KindHTTP:
		if res.BodyJSON == nil {
			return nil, fmt.Errorf("response body is not valid JSON")
		}
		return res.BodyJSON, nil
	case spec.KindCommand:
		if res.JSON == nil {
			if res.JSONParseError != "" {
				return nil, fmt.Errorf("stdout is not valid JSON: %s", res.JSONParseError)
			}
			return nil, fmt.Errorf("stdout was not parsed as JSON (set parseJson)")
		}
		return res.JSON, nil
	}
	return nil, fmt.Errorf("jsonPath extraction against %s result: %w", res.Kind, ErrInvalidSourceForKind)
}

// extractRegex compiles the pattern and returns the requested capture
// group from the chosen text.
func extractRegex(rule *spec.RegexRule, res *Result) (interface{}, error) {
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", rule.Pattern, spec.ErrConfiguration)
	}

	var text string
	switch res.Kind {
	case spec.KindHTTP:
		if s := rule.Source; s != "" && s != "body" {
			return nil, fmt.Errorf("regex source %q against %s result: %w", s, res.Kind, ErrInvalidSourceForKind)
		}
		text = res.Body
	case spec.KindCommand:
		switch rule.Source {
		case "", "stdout":
			text = res.Stdout
		case "stderr":
			text = res.Stderr
		default:
			return nil, fmt.Errorf("regex source %q against %s result: %w", rule.Source, res.Kind, ErrInvalidSourceForKind)
		}
	}

	match := re.FindStringSubmatch(text)
	if match == nil {
		return nil, fmt.Errorf("regex %q matched nothing", rule.Pattern)
	}
	group := rule.Group
	if group == 0 {
		group = 1
	}
	if group >= len(match) {
		return nil, fmt.Errorf("regex %q has no capture group %d", rule.Pattern, group)
	}
	return match[group], nil
}
