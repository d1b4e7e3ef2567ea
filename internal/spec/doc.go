// Package spec defines the declarative test data model and its YAML
// loading and validation.
//
// A TestDefinition is a tagged union over the four test kinds (http,
// command, wait, bodyComparison). The union is validated exactly once at
// load time: zero or more than one kind block is rejected there, so the
// execution layers never branch on "which field exists" again.
//
// Validation also resolves comparator defaults per expectation field,
// checks that selectors name exactly one lookup mode (name or labels),
// that transport hints are not combined, and that every setVars rule names
// exactly one extraction source valid for its test kind. All violations
// wrap ErrConfiguration, which the orchestrator treats as fatal and never
// retries.
package spec
