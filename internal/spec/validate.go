package spec

import (
	"errors"
	"fmt"
)

// Configuration errors are fatal and never retried. ErrConfiguration is
// the common marker; the specific sentinels wrap it so callers can branch
// with errors.Is at either granularity.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrUnknownTestKind   = fmt.Errorf("no test kind present: %w", ErrConfiguration)
	ErrAmbiguousTestKind = fmt.Errorf("more than one test kind present: %w", ErrConfiguration)
)

// configErrorf builds a named configuration error.
func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConfiguration)
}

// Validate checks a parsed definition once, so that execution can rely on
// a well-formed tagged union and never re-validate structure.
func (d *TestDefinition) Validate() error {
	kinds := 0
	if d.HTTP != nil {
		kinds++
	}
	if d.Command != nil {
		kinds++
	}
	if d.Wait != nil {
		kinds++
	}
	if d.BodyComparison != nil {
		kinds++
	}
	if kinds == 0 {
		return fmt.Errorf("test %q: %w", d.Name, ErrUnknownTestKind)
	}
	if kinds > 1 {
		return fmt.Errorf("test %q: %w", d.Name, ErrAmbiguousTestKind)
	}

	if d.Retries < 0 {
		return configErrorf("test %q: retries must not be negative", d.Name)
	}
	if len(d.SetVars) > 0 && len(d.Capture) > 0 {
		return configErrorf("test %q: setVars and capture are aliases, use only one", d.Name)
	}

	kind := d.Kind()

	// Extraction only runs after a passing validation, so setVars without
	// expectations can never fire.
	if len(d.Vars()) > 0 && d.Expect == nil && (kind == KindHTTP || kind == KindCommand) {
		return configErrorf("test %q: setVars requires expect", d.Name)
	}

	if d.Source != nil {
		if err := d.Source.validate(); err != nil {
			return fmt.Errorf("test %q: %w", d.Name, err)
		}
	}
	if d.Expect != nil {
		if err := d.Expect.validate(kind); err != nil {
			return fmt.Errorf("test %q: %w", d.Name, err)
		}
	}
	for _, v := range d.Vars() {
		if err := v.Rule.validate(v.Name, kind); err != nil {
			return fmt.Errorf("test %q: %w", d.Name, err)
		}
	}

	switch kind {
	case KindWait:
		if err := d.Wait.Selector.validate(); err != nil {
			return fmt.Errorf("test %q: %w", d.Name, err)
		}
		if d.Wait.JSONPathExpectation != nil {
			if err := validateComparison(d.Wait.JSONPathExpectation, ComparatorEquals); err != nil {
				return fmt.Errorf("test %q: jsonPathExpectation: %w", d.Name, err)
			}
		}
		if d.Wait.MaxRetries != nil && *d.Wait.MaxRetries < 0 {
			return configErrorf("test %q: maxRetries must not be negative", d.Name)
		}
		// The poller only observes a value when it extracts one.
		for _, v := range d.Vars() {
			if v.Rule.Value && d.Wait.JSONPath == "" {
				return configErrorf("test %q: setVars %q: value extraction requires wait.jsonPath", d.Name, v.Name)
			}
		}
	case KindBodyComparison:
		for _, req := range []struct {
			label string
			req   RequestSpec
		}{{"first", d.BodyComparison.First}, {"second", d.BodyComparison.Second}} {
			if req.req.HTTP == nil {
				return configErrorf("test %q: bodyComparison.%s.http is required", d.Name, req.label)
			}
			if req.req.Source != nil {
				if err := req.req.Source.validate(); err != nil {
					return fmt.Errorf("test %q: bodyComparison.%s: %w", d.Name, req.label, err)
				}
			}
		}
	}

	return nil
}

// validate checks the source block and its transport hints.
func (s *Source) validate() error {
	switch s.Type {
	case SourceLocal:
		return nil
	case SourcePod:
		if s.UsePortForward && s.UsePodExec {
			return configErrorf("usePortForward and usePodExec are mutually exclusive")
		}
		return s.Selector.validate()
	case "":
		return configErrorf("source type is required")
	default:
		return configErrorf("unknown source type %q", s.Type)
	}
}

// validate checks that the selector identifies exactly one lookup mode.
func (s *Selector) validate() error {
	hasName := s.Metadata.Name != ""
	hasLabels := len(s.Metadata.Labels) > 0
	if hasName == hasLabels {
		return configErrorf("selector requires exactly one of metadata.name or metadata.labels")
	}
	return nil
}

// knownComparators is the closed set of comparator names.
var knownComparators = map[string]bool{
	ComparatorEquals:      true,
	ComparatorContains:    true,
	ComparatorMatches:     true,
	ComparatorExists:      true,
	ComparatorGreaterThan: true,
	ComparatorLessThan:    true,
}

// validateComparison fills in the field default and rejects unknown
// comparator names at parse time.
func validateComparison(c *Comparison, defaultComparator string) error {
	if c.Comparator == "" {
		c.Comparator = defaultComparator
	}
	if !knownComparators[c.Comparator] {
		return configErrorf("unknown comparator %q", c.Comparator)
	}
	return nil
}

// validate checks the expectation set against the test kind and applies
// per-field comparator defaults.
func (e *Expectation) validate(kind TestKind) error {
	httpOnly := map[string]bool{}
	commandOnly := map[string]bool{}

	type leaf struct {
		name string
		cmp  *Comparison
		def  string
		http bool
	}
	leaves := []leaf{
		{"statusCode", e.StatusCode, ComparatorEquals, true},
		{"bodyContains", e.BodyContains, ComparatorContains, true},
		{"bodyRegex", e.BodyRegex, ComparatorMatches, true},
		{"exitCode", e.ExitCode, ComparatorEquals, false},
		{"stdout", e.Stdout, ComparatorEquals, false},
		{"stderr", e.Stderr, ComparatorEquals, false},
	}
	for _, l := range leaves {
		if l.cmp == nil {
			continue
		}
		if l.http {
			httpOnly[l.name] = true
		} else {
			commandOnly[l.name] = true
		}
		if err := validateComparison(l.cmp, l.def); err != nil {
			return fmt.Errorf("expect.%s: %w", l.name, err)
		}
	}
	for i := range e.BodyJSONPath {
		httpOnly["bodyJsonPath"] = true
		p := &e.BodyJSONPath[i]
		if p.Path == "" {
			return configErrorf("expect.bodyJsonPath[%d]: path is required", i)
		}
		if p.Comparator == "" {
			p.Comparator = ComparatorEquals
		}
		if !knownComparators[p.Comparator] {
			return configErrorf("expect.bodyJsonPath[%d]: unknown comparator %q", i, p.Comparator)
		}
	}
	for i := range e.Headers {
		httpOnly["headers"] = true
		h := &e.Headers[i]
		if h.Name == "" {
			return configErrorf("expect.headers[%d]: name is required", i)
		}
		if h.Comparator == "" {
			h.Comparator = ComparatorEquals
		}
		if !knownComparators[h.Comparator] {
			return configErrorf("expect.headers[%d]: unknown comparator %q", i, h.Comparator)
		}
	}
	for i := range e.JSONPath {
		commandOnly["jsonPath"] = true
		p := &e.JSONPath[i]
		if p.Path == "" {
			return configErrorf("expect.jsonPath[%d]: path is required", i)
		}
		if p.Comparator == "" {
			p.Comparator = ComparatorEquals
		}
		if !knownComparators[p.Comparator] {
			return configErrorf("expect.jsonPath[%d]: unknown comparator %q", i, p.Comparator)
		}
	}

	if kind != KindHTTP && kind != KindBodyComparison {
		for name := range httpOnly {
			return configErrorf("expect.%s is only valid for http tests", name)
		}
	}
	if kind != KindCommand {
		for name := range commandOnly {
			return configErrorf("expect.%s is only valid for command tests", name)
		}
	}
	return nil
}

// ruleKinds maps each extraction selector to the kinds it is valid for.
var ruleKinds = map[string][]TestKind{
	"jsonPath":   {KindHTTP, KindCommand},
	"header":     {KindHTTP},
	"statusCode": {KindHTTP},
	"body":       {KindHTTP},
	"stdout":     {KindCommand},
	"stderr":     {KindCommand},
	"exitCode":   {KindCommand},
	"value":      {KindWait},
	"regex":      {KindHTTP, KindCommand},
}

// SelectorName returns the name of the single selector field set on the
// rule, or "" when none is set.
func (r *ExtractionRule) SelectorName() string {
	switch {
	case r.JSONPath != "":
		return "jsonPath"
	case r.Header != "":
		return "header"
	case r.StatusCode:
		return "statusCode"
	case r.Body:
		return "body"
	case r.Stdout:
		return "stdout"
	case r.Stderr:
		return "stderr"
	case r.ExitCode:
		return "exitCode"
	case r.Value:
		return "value"
	case r.Regex != nil:
		return "regex"
	}
	return ""
}

// ValidForKind reports whether the rule's selector may be applied to a
// result of the given kind.
func (r *ExtractionRule) ValidForKind(kind TestKind) bool {
	for _, k := range ruleKinds[r.SelectorName()] {
		if k == kind {
			return true
		}
	}
	return false
}

// validate checks the structural shape of one extraction rule.
func (r *ExtractionRule) validate(name string, kind TestKind) error {
	if n := r.selectorCount(); n != 1 {
		return configErrorf("setVars %q: exactly one extraction source must be set, found %d", name, n)
	}
	if r.Regex != nil {
		if r.Regex.Pattern == "" {
			return configErrorf("setVars %q: regex pattern is required", name)
		}
		if r.Regex.Group < 0 {
			return configErrorf("setVars %q: regex group must be positive", name)
		}
		switch src := r.Regex.Source; src {
		case "":
		case "body":
			if kind != KindHTTP {
				return configErrorf("setVars %q: regex source %q is only valid for http tests", name, src)
			}
		case "stdout", "stderr":
			if kind != KindCommand {
				return configErrorf("setVars %q: regex source %q is only valid for command tests", name, src)
			}
		default:
			return configErrorf("setVars %q: unknown regex source %q", name, src)
		}
	}
	if !r.ValidForKind(kind) {
		return configErrorf("setVars %q: %s extraction is not valid for %s tests", name, r.SelectorName(), kind)
	}
	return nil
}
