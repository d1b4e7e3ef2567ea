package compare

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"kubecheck/internal/spec"
)

// ErrUnknownComparator is raised for comparator names outside the closed
// set. It marks a configuration error so the orchestrator never retries
// it. Unknown comparators are normally rejected at load time; this guard
// covers comparisons built programmatically.
var ErrUnknownComparator = fmt.Errorf("unknown comparator: %w", spec.ErrConfiguration)

// Compare evaluates a single comparison against the observed value and
// returns a descriptive error when it does not hold. It is deterministic
// and has no side effects. A nil actual represents an absent value.
func Compare(actual interface{}, c spec.Comparison) error {
	var raw bool
	switch c.Comparator {
	case spec.ComparatorExists:
		raw = actual != nil
	case spec.ComparatorEquals:
		raw = deepEqual(actual, c.Value)
	case spec.ComparatorContains:
		raw = contains(Stringify(actual), Stringify(c.Value), c.MatchWord)
	case spec.ComparatorMatches:
		re, err := regexp.Compile(Stringify(c.Value))
		if err != nil {
			return fmt.Errorf("invalid matches pattern %q: %w", Stringify(c.Value), spec.ErrConfiguration)
		}
		raw = re.MatchString(Stringify(actual))
	case spec.ComparatorGreaterThan, spec.ComparatorLessThan:
		a, err := toFloat(actual)
		if err != nil {
			return failure(actual, c)
		}
		b, err := toFloat(c.Value)
		if err != nil {
			return fmt.Errorf("comparison value %v is not numeric: %w", c.Value, spec.ErrConfiguration)
		}
		if c.Comparator == spec.ComparatorGreaterThan {
			raw = a > b
		} else {
			raw = a < b
		}
	default:
		return fmt.Errorf("%q: %w", c.Comparator, ErrUnknownComparator)
	}

	// Negation applies to the final boolean only, never to the
	// intermediate representation.
	if c.Negate {
		raw = !raw
	}
	if !raw {
		return failure(actual, c)
	}
	return nil
}

// failure builds the comparator failure message: the comparator name
// (prefixed "not " when negated), the expected value (omitted for
// exists), and the observed value.
func failure(actual interface{}, c spec.Comparison) error {
	name := c.Comparator
	if c.Negate {
		name = "not " + name
	}
	observed := "<absent>"
	if actual != nil {
		observed = Stringify(actual)
	}
	if c.Comparator == spec.ComparatorExists {
		return fmt.Errorf("expected %s, observed %s", name, observed)
	}
	return fmt.Errorf("expected %s %v, observed %s", name, c.Value, observed)
}

// contains performs the substring test, optionally anchored at word
// boundaries.
func contains(haystack, needle string, matchWord bool) bool {
	if matchWord {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(needle) + `\b`)
		if err != nil {
			return false
		}
		return re.MatchString(haystack)
	}
	return strings.Contains(haystack, needle)
}

// Stringify renders a value as text. Strings pass through unchanged;
// everything else is canonically JSON-serialized. This is the single
// textual rendering used by contains, matches and value extraction.
func Stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// deepEqual implements structural equality: primitives by value with
// numeric coercion, arrays element-wise and length-equal, mappings by
// equal key sets and recursively equal values. An array never equals a
// non-array.
func deepEqual(actual, expected interface{}) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	actualVal := reflect.ValueOf(actual)
	expectedVal := reflect.ValueOf(expected)

	actualSeq := actualVal.Kind() == reflect.Slice || actualVal.Kind() == reflect.Array
	expectedSeq := expectedVal.Kind() == reflect.Slice || expectedVal.Kind() == reflect.Array
	if actualSeq != expectedSeq {
		return false
	}
	if actualSeq {
		if actualVal.Len() != expectedVal.Len() {
			return false
		}
		for i := 0; i < actualVal.Len(); i++ {
			if !deepEqual(actualVal.Index(i).Interface(), expectedVal.Index(i).Interface()) {
				return false
			}
		}
		return true
	}

	if actualVal.Kind() == reflect.Map || expectedVal.Kind() == reflect.Map {
		if actualVal.Kind() != expectedVal.Kind() {
			return false
		}
		if actualVal.Len() != expectedVal.Len() {
			return false
		}
		for _, key := range expectedVal.MapKeys() {
			av := actualVal.MapIndex(key)
			if !av.IsValid() {
				return false
			}
			if !deepEqual(av.Interface(), expectedVal.MapIndex(key).Interface()) {
				return false
			}
		}
		return true
	}

	// Numbers compare by value across int/float representations, which
	// YAML expectations and parsed JSON mix freely. Strings never
	// coerce for equality, "5" is not 5.
	af, actualIsNum := numericValue(actual)
	ef, expectedIsNum := numericValue(expected)
	if actualIsNum != expectedIsNum {
		return false
	}
	if actualIsNum {
		return af == ef
	}

	return actualVal.Type().Comparable() && expectedVal.Type().Comparable() && actual == expected
}

// numericValue reports a value's float64 form when it is a number.
// Numeric strings are excluded, equality is structural.
func numericValue(v interface{}) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	f, err := toFloat(v)
	return f, err == nil
}

// toFloat coerces numeric values and numeric strings to float64.
func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
}
