package spec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TestKind identifies which of the four test blocks a definition carries.
type TestKind string

const (
	// KindHTTP represents an HTTP request test
	KindHTTP TestKind = "http"
	// KindCommand represents a shell command test
	KindCommand TestKind = "command"
	// KindWait represents a Kubernetes resource polling test
	KindWait TestKind = "wait"
	// KindBodyComparison represents a two-request body diff test
	KindBodyComparison TestKind = "bodyComparison"
)

// Document is a batch of test definitions executed in order.
// A file may also contain a single bare definition; the loader normalizes
// both shapes into a Document.
type Document struct {
	// Tests is the ordered list of test definitions
	Tests []TestDefinition `yaml:"tests"`
}

// TestDefinition is a single parsed test. Exactly one of the four kind
// blocks (HTTP, Command, Wait, BodyComparison) must be set; this is
// validated once at load time so execution never has to re-check it.
type TestDefinition struct {
	// Name is the human-readable identifier used in reports
	Name string `yaml:"name,omitempty"`
	// HTTP defines an HTTP request test
	HTTP *HTTPTest `yaml:"http,omitempty"`
	// Command defines a shell command test
	Command *CommandTest `yaml:"command,omitempty"`
	// Wait defines a Kubernetes resource polling test
	Wait *WaitTest `yaml:"wait,omitempty"`
	// BodyComparison defines a two-request body diff test
	BodyComparison *BodyComparisonTest `yaml:"bodyComparison,omitempty"`
	// Source selects where the test executes (local or inside a pod)
	Source *Source `yaml:"source,omitempty"`
	// Expect holds the expectations validated against the result
	Expect *Expectation `yaml:"expect,omitempty"`
	// SetVars extracts named values into the variable store after the
	// expectations passed. "capture" is accepted as an alias.
	SetVars SetVars `yaml:"setVars,omitempty"`
	// Capture is an alias for SetVars
	Capture SetVars `yaml:"capture,omitempty"`
	// Retries is the number of additional attempts on failure
	Retries int `yaml:"retries,omitempty"`
}

// Kind returns the test kind of the definition. It assumes the definition
// passed Validate; an unvalidated ambiguous definition returns the first
// block found.
func (d *TestDefinition) Kind() TestKind {
	switch {
	case d.HTTP != nil:
		return KindHTTP
	case d.Command != nil:
		return KindCommand
	case d.Wait != nil:
		return KindWait
	case d.BodyComparison != nil:
		return KindBodyComparison
	}
	return ""
}

// Vars returns the extraction rules of the definition, honoring the
// capture alias.
func (d *TestDefinition) Vars() SetVars {
	if len(d.SetVars) > 0 {
		return d.SetVars
	}
	return d.Capture
}

// SourceType distinguishes local execution from pod-relative execution.
type SourceType string

const (
	// SourceLocal executes on the machine running kubecheck
	SourceLocal SourceType = "local"
	// SourcePod executes relative to a Kubernetes pod
	SourcePod SourceType = "pod"
)

// Source selects where a test executes. For pod sources the transport
// hints UsePortForward and UsePodExec are mutually exclusive; when neither
// is set the ephemeral debug-container strategy is used.
type Source struct {
	// Type is "local" or "pod"
	Type SourceType `yaml:"type"`
	// Selector locates the target resource
	Selector `yaml:",inline"`
	// Container names the container for exec-based transports
	Container string `yaml:"container,omitempty"`
	// UsePortForward selects the local port-forward transport
	UsePortForward bool `yaml:"usePortForward,omitempty"`
	// UsePodExec selects the exec+curl transport
	UsePodExec bool `yaml:"usePodExec,omitempty"`
	// DebugImage overrides the image of the ephemeral debug container
	DebugImage string `yaml:"debugImage,omitempty"`
}

// Selector locates a Kubernetes resource by name or label set.
// Exactly one of Metadata.Name and Metadata.Labels must be set.
type Selector struct {
	// Kind is the resource kind (Pod, Service, Deployment, ...)
	Kind string `yaml:"kind,omitempty"`
	// Metadata carries namespace plus name or labels
	Metadata SelectorMeta `yaml:"metadata,omitempty"`
	// Context is the kubeconfig context to use
	Context string `yaml:"context,omitempty"`
}

// SelectorMeta carries the namespace and either a name or a label set.
type SelectorMeta struct {
	// Name selects a single resource by name
	Name string `yaml:"name,omitempty"`
	// Namespace is the Kubernetes namespace
	Namespace string `yaml:"namespace,omitempty"`
	// Labels selects resources by label match; the first match wins
	Labels map[string]string `yaml:"labels,omitempty"`
}

// HTTPTest defines an HTTP request to execute and validate.
type HTTPTest struct {
	// URL is the full request URL; optional for pod sources and for local
	// Service sources (resolved from load-balancer ingress status)
	URL string `yaml:"url,omitempty"`
	// Method defaults to GET
	Method string `yaml:"method,omitempty"`
	// Path defaults to "/" and is appended when the URL is composed
	Path string `yaml:"path,omitempty"`
	// Port is the target port by number (pod transports, service discovery)
	Port int `yaml:"port,omitempty"`
	// PortName resolves a service port by name
	PortName string `yaml:"portName,omitempty"`
	// PortIndex resolves a service port by index
	PortIndex *int `yaml:"portIndex,omitempty"`
	// Headers are sent with the request; values support $VAR interpolation
	Headers map[string]string `yaml:"headers,omitempty"`
	// Body is the raw request body
	Body string `yaml:"body,omitempty"`
	// SkipSSLVerification disables TLS certificate verification
	SkipSSLVerification bool `yaml:"skipSslVerification,omitempty"`
	// MaxRedirects is the number of redirects to follow (default 0)
	MaxRedirects int `yaml:"maxRedirects,omitempty"`
	// ClientCert is a PEM client certificate file for mTLS
	ClientCert string `yaml:"clientCert,omitempty"`
	// ClientKey is the PEM key file matching ClientCert
	ClientKey string `yaml:"clientKey,omitempty"`
	// CACert is a PEM CA bundle file used to verify the server
	CACert string `yaml:"caCert,omitempty"`
}

// CommandTest defines a shell command to execute and validate.
type CommandTest struct {
	// Command is passed to the shell as a single -c argument
	Command string `yaml:"command"`
	// Env is merged over the inherited process environment
	Env map[string]string `yaml:"env,omitempty"`
	// WorkDir overrides the working directory
	WorkDir string `yaml:"workDir,omitempty"`
	// ParseJSON parses trimmed stdout as JSON after execution
	ParseJSON bool `yaml:"parseJson,omitempty"`
}

// WaitTest polls a Kubernetes resource until a condition is satisfied.
type WaitTest struct {
	// Selector locates the resource to poll
	Selector `yaml:",inline"`
	// JSONPath extracts the observed value from the resource; when empty
	// the check degrades to "resource exists"
	JSONPath string `yaml:"jsonPath,omitempty"`
	// JSONPathExpectation is checked against the extracted value
	JSONPathExpectation *Comparison `yaml:"jsonPathExpectation,omitempty"`
	// TimeoutSeconds is the wall-clock deadline (default 60)
	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty"`
	// IntervalSeconds is the sleep between attempts (default 2)
	IntervalSeconds int `yaml:"intervalSeconds,omitempty"`
	// MaxRetries bounds the attempt count independently of the deadline
	MaxRetries *int `yaml:"maxRetries,omitempty"`
}

// RequestSpec is one of the two requests of a body comparison.
type RequestSpec struct {
	// HTTP defines the request
	HTTP *HTTPTest `yaml:"http"`
	// Source selects the transport, as for a standalone HTTP test
	Source *Source `yaml:"source,omitempty"`
}

// BodyComparisonTest executes two HTTP requests and deep-compares the
// bodies after stripping volatile paths.
type BodyComparisonTest struct {
	// First is the first request
	First RequestSpec `yaml:"first"`
	// Second is the second request
	Second RequestSpec `yaml:"second"`
	// DelaySeconds sleeps between the two requests
	DelaySeconds int `yaml:"delaySeconds,omitempty"`
	// RemoveJSONPaths strips the listed paths from both bodies before the
	// comparison (volatile timestamps, request ids, ...)
	RemoveJSONPaths []string `yaml:"removeJsonPaths,omitempty"`
}

// Comparator names the supported comparison operations.
const (
	ComparatorEquals      = "equals"
	ComparatorContains    = "contains"
	ComparatorMatches     = "matches"
	ComparatorExists      = "exists"
	ComparatorGreaterThan = "greaterThan"
	ComparatorLessThan    = "lessThan"
)

// Comparison is a single leaf expectation. A bare YAML scalar is accepted
// as shorthand for {value: <scalar>} with the field's default comparator.
type Comparison struct {
	// Comparator selects the operation; defaults depend on the field
	Comparator string `yaml:"comparator,omitempty"`
	// Value is the expected value; ignored by the exists comparator
	Value interface{} `yaml:"value,omitempty"`
	// Negate inverts the final boolean result
	Negate bool `yaml:"negate,omitempty"`
	// MatchWord wraps the contains needle in word-boundary anchors
	MatchWord bool `yaml:"matchword,omitempty"`
}

// UnmarshalYAML accepts either a full comparison mapping or a bare scalar
// shorthand that only sets the expected value.
func (c *Comparison) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v interface{}
		if err := node.Decode(&v); err != nil {
			return err
		}
		c.Value = v
		return nil
	}
	type plain Comparison
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Comparison(p)
	return nil
}

// PathExpectation is a comparison anchored at a JSONPath within the body
// (HTTP) or the parsed stdout (command).
type PathExpectation struct {
	// Path is the JSONPath query
	Path string `yaml:"path"`
	// Comparator selects the operation (default equals)
	Comparator string `yaml:"comparator,omitempty"`
	// Value is the expected value
	Value interface{} `yaml:"value,omitempty"`
	// Negate inverts the final boolean result
	Negate bool `yaml:"negate,omitempty"`
	// MatchWord wraps the contains needle in word-boundary anchors
	MatchWord bool `yaml:"matchword,omitempty"`
}

// Comparison returns the leaf comparison of the path expectation.
func (p PathExpectation) Comparison() Comparison {
	return Comparison{Comparator: p.Comparator, Value: p.Value, Negate: p.Negate, MatchWord: p.MatchWord}
}

// HeaderExpectation is a comparison against a response header value.
// The lookup is case-insensitive.
type HeaderExpectation struct {
	// Name is the header name
	Name string `yaml:"name"`
	// Comparator selects the operation (default equals)
	Comparator string `yaml:"comparator,omitempty"`
	// Value is the expected value
	Value interface{} `yaml:"value,omitempty"`
	// Negate inverts the final boolean result
	Negate bool `yaml:"negate,omitempty"`
	// MatchWord wraps the contains needle in word-boundary anchors
	MatchWord bool `yaml:"matchword,omitempty"`
}

// Comparison returns the leaf comparison of the header expectation.
func (h HeaderExpectation) Comparison() Comparison {
	return Comparison{Comparator: h.Comparator, Value: h.Value, Negate: h.Negate, MatchWord: h.MatchWord}
}

// Expectation is the kind-specific expectation set. HTTP tests use
// StatusCode, BodyContains, BodyRegex, BodyJSONPath and Headers; command
// tests use ExitCode, Stdout, Stderr and JSONPath.
type Expectation struct {
	// StatusCode is checked against the response status (default equals)
	StatusCode *Comparison `yaml:"statusCode,omitempty"`
	// BodyContains is checked against the body text (default contains)
	BodyContains *Comparison `yaml:"bodyContains,omitempty"`
	// BodyRegex is checked against the body text (default matches)
	BodyRegex *Comparison `yaml:"bodyRegex,omitempty"`
	// BodyJSONPath checks values extracted from the parsed body
	BodyJSONPath []PathExpectation `yaml:"bodyJsonPath,omitempty"`
	// Headers checks response header values
	Headers []HeaderExpectation `yaml:"headers,omitempty"`
	// ExitCode is checked against the command exit code (default equals)
	ExitCode *Comparison `yaml:"exitCode,omitempty"`
	// Stdout is checked against the captured stdout (default equals)
	Stdout *Comparison `yaml:"stdout,omitempty"`
	// Stderr is checked against the captured stderr (default equals)
	Stderr *Comparison `yaml:"stderr,omitempty"`
	// JSONPath checks values extracted from the parsed stdout
	JSONPath []PathExpectation `yaml:"jsonPath,omitempty"`
}

// ExtractionRule pulls one named value out of a result. Exactly one
// selector field must be set; which selectors are valid depends on the
// test kind (see the extraction pipeline).
type ExtractionRule struct {
	// JSONPath extracts from the parsed body or parsed stdout
	JSONPath string `yaml:"jsonPath,omitempty"`
	// Header extracts a response header (case-insensitive)
	Header string `yaml:"header,omitempty"`
	// StatusCode extracts the response status code
	StatusCode bool `yaml:"statusCode,omitempty"`
	// Body extracts the full response body
	Body bool `yaml:"body,omitempty"`
	// Stdout extracts the captured stdout
	Stdout bool `yaml:"stdout,omitempty"`
	// Stderr extracts the captured stderr
	Stderr bool `yaml:"stderr,omitempty"`
	// ExitCode extracts the command exit code
	ExitCode bool `yaml:"exitCode,omitempty"`
	// Value extracts the value observed by the wait poller
	Value bool `yaml:"value,omitempty"`
	// Regex extracts a capture group from the chosen text
	Regex *RegexRule `yaml:"regex,omitempty"`
}

// selectorCount returns how many selector fields of the rule are set.
func (r *ExtractionRule) selectorCount() int {
	n := 0
	if r.JSONPath != "" {
		n++
	}
	if r.Header != "" {
		n++
	}
	for _, b := range []bool{r.StatusCode, r.Body, r.Stdout, r.Stderr, r.ExitCode, r.Value} {
		if b {
			n++
		}
	}
	if r.Regex != nil {
		n++
	}
	return n
}

// RegexRule extracts a capture group by regular expression.
type RegexRule struct {
	// Pattern is the regular expression
	Pattern string `yaml:"pattern"`
	// Group is the 1-based capture group (default 1)
	Group int `yaml:"group,omitempty"`
	// Source selects the matched text per kind: body for http results,
	// stdout or stderr for command results. Defaults to body and stdout.
	Source string `yaml:"source,omitempty"`
}

// VarRule is one named extraction rule of a setVars block.
type VarRule struct {
	// Name is the variable name the value is published under
	Name string
	// Rule is the extraction rule
	Rule ExtractionRule
}

// SetVars is an ordered list of named extraction rules. YAML mappings are
// decoded preserving document order so that the fail-fast behavior within
// a block is deterministic.
type SetVars []VarRule

// UnmarshalYAML decodes a YAML mapping into an ordered rule list.
func (s *SetVars) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("setVars must be a mapping of variable names to extraction rules")
	}
	out := make(SetVars, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return err
		}
		var rule ExtractionRule
		if err := node.Content[i+1].Decode(&rule); err != nil {
			return fmt.Errorf("setVars entry %q: %w", name, err)
		}
		out = append(out, VarRule{Name: name, Rule: rule})
	}
	*s = out
	return nil
}
