package executor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"

	"kubecheck/internal/compare"
	"kubecheck/internal/jsonpath"
	"kubecheck/internal/spec"
	"kubecheck/internal/vars"
	"kubecheck/pkg/logging"
)

// executeBodyComparison runs the two configured requests, strips the
// volatile paths from both bodies, deep-compares them and reports a
// structured diff on mismatch. An expectation block, when present, is
// checked against both responses before the bodies are compared.
func (e *Executor) executeBodyComparison(ctx context.Context, t *spec.BodyComparisonTest, expect *spec.Expectation, store *vars.Store) error {
	first, err := e.executeHTTP(ctx, t.First.HTTP, t.First.Source, store)
	if err != nil {
		return fmt.Errorf("first request: %w", err)
	}
	if expect != nil {
		if err := validateHTTPExpectations(first, expect); err != nil {
			return fmt.Errorf("first request: %w", err)
		}
	}

	if t.DelaySeconds > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(t.DelaySeconds) * time.Second):
		}
	}

	second, err := e.executeHTTP(ctx, t.Second.HTTP, t.Second.Source, store)
	if err != nil {
		return fmt.Errorf("second request: %w", err)
	}
	if expect != nil {
		if err := validateHTTPExpectations(second, expect); err != nil {
			return fmt.Errorf("second request: %w", err)
		}
	}

	// Structured comparison when both bodies parse as JSON; raw text
	// comparison otherwise.
	if first.BodyJSON != nil && second.BodyJSON != nil {
		left, right := first.BodyJSON, second.BodyJSON
		for _, path := range t.RemoveJSONPaths {
			left = removePath(left, path)
			right = removePath(right, path)
		}
		if cmp.Equal(left, right) {
			logging.Debug("BodyDiff", "bodies are structurally equal")
			return nil
		}
		var entries []diffEntry
		diffValues("$", left, right, &entries)
		return fmt.Errorf("bodies differ:\n%s", renderDiff(entries))
	}

	if first.Body == second.Body {
		return nil
	}
	return fmt.Errorf("bodies differ:\n  first:  %s\n  second: %s",
		truncate(first.Body, 200), truncate(second.Body, 200))
}

// removePath strips one JSONPath-addressed location from a JSON value.
// Map keys are deleted; array elements are nulled so sibling indices are
// preserved. Missing paths are a no-op.
func removePath(data interface{}, path string) interface{} {
	segments := splitPath(jsonpath.Normalize(path))
	if len(segments) == 0 {
		return data
	}
	removeSegments(data, segments)
	return data
}

// splitPath tokenizes "$.a.b[0].c" into ["a", "b", "0", "c"].
func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "$")
	replacer := strings.NewReplacer("[", ".", "]", "")
	var segments []string
	for _, seg := range strings.Split(replacer.Replace(path), ".") {
		seg = strings.Trim(seg, `"'`)
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

func removeSegments(data interface{}, segments []string) {
	head, rest := segments[0], segments[1:]
	switch container := data.(type) {
	case map[string]interface{}:
		if len(rest) == 0 {
			delete(container, head)
			return
		}
		if child, ok := container[head]; ok {
			removeSegments(child, rest)
		}
	case []interface{}:
		idx, err := strconv.Atoi(head)
		if err != nil || idx < 0 || idx >= len(container) {
			return
		}
		if len(rest) == 0 {
			container[idx] = nil
			return
		}
		removeSegments(container[idx], rest)
	}
}

// diffEntry is one structural difference between the two bodies.
type diffEntry struct {
	// path of the differing location
	path string
	// kind is "added", "removed" or "changed"
	kind string
	// left value (absent for "added")
	left interface{}
	// right value (absent for "removed")
	right interface{}
}

// diffValues walks both trees and records additions, removals and edits.
func diffValues(path string, left, right interface{}, entries *[]diffEntry) {
	leftMap, leftIsMap := left.(map[string]interface{})
	rightMap, rightIsMap := right.(map[string]interface{})
	if leftIsMap && rightIsMap {
		keys := map[string]bool{}
		for k := range leftMap {
			keys[k] = true
		}
		for k := range rightMap {
			keys[k] = true
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)
		for _, k := range sorted {
			childPath := path + "." + k
			lv, inLeft := leftMap[k]
			rv, inRight := rightMap[k]
			switch {
			case !inRight:
				*entries = append(*entries, diffEntry{path: childPath, kind: "removed", left: lv})
			case !inLeft:
				*entries = append(*entries, diffEntry{path: childPath, kind: "added", right: rv})
			default:
				diffValues(childPath, lv, rv, entries)
			}
		}
		return
	}

	leftArr, leftIsArr := left.([]interface{})
	rightArr, rightIsArr := right.([]interface{})
	if leftIsArr && rightIsArr {
		max := len(leftArr)
		if len(rightArr) > max {
			max = len(rightArr)
		}
		for i := 0; i < max; i++ {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			switch {
			case i >= len(rightArr):
				*entries = append(*entries, diffEntry{path: childPath, kind: "removed", left: leftArr[i]})
			case i >= len(leftArr):
				*entries = append(*entries, diffEntry{path: childPath, kind: "added", right: rightArr[i]})
			default:
				diffValues(childPath, leftArr[i], rightArr[i], entries)
			}
		}
		return
	}

	if !cmp.Equal(left, right) {
		*entries = append(*entries, diffEntry{path: path, kind: "changed", left: left, right: right})
	}
}

// renderDiff renders the entries grouped by path. Differences inside
// arrays are collapsed under the containing array's entry.
func renderDiff(entries []diffEntry) string {
	groups := map[string][]diffEntry{}
	var order []string
	for _, entry := range entries {
		group := containingArray(entry.path)
		if _, seen := groups[group]; !seen {
			order = append(order, group)
		}
		groups[group] = append(groups[group], entry)
	}

	var b strings.Builder
	for _, group := range order {
		members := groups[group]
		if group != members[0].path {
			fmt.Fprintf(&b, "  %s:\n", group)
			for _, entry := range members {
				fmt.Fprintf(&b, "    %s\n", renderEntry(entry, strings.TrimPrefix(entry.path, group)))
			}
			continue
		}
		for _, entry := range members {
			fmt.Fprintf(&b, "  %s\n", renderEntry(entry, entry.path))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// containingArray returns the path of the outermost array an entry sits
// in, or the entry path itself when it is not array-nested.
func containingArray(path string) string {
	if idx := strings.Index(path, "["); idx >= 0 {
		return path[:idx]
	}
	return path
}

// renderEntry renders one difference line.
func renderEntry(entry diffEntry, label string) string {
	switch entry.kind {
	case "added":
		return fmt.Sprintf("%s: added %s", label, compare.Stringify(entry.right))
	case "removed":
		return fmt.Sprintf("%s: removed %s", label, compare.Stringify(entry.left))
	default:
		return fmt.Sprintf("%s: changed from %s to %s",
			label, compare.Stringify(entry.left), compare.Stringify(entry.right))
	}
}
