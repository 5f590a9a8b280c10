package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] step %d: %s %s\n", event.Seq, event.Step, event.Method, event.Path)
	}

	return buf.String()
}

// pathMatches compares a request path with an assertion path. A trailing
// "*" in pattern matches any suffix.
func pathMatches(path, pattern string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(path, prefix)
	}
	return path == pattern
}

func requestMatches(ev TraceEvent, method, path string) bool {
	return strings.EqualFold(ev.Method, method) && pathMatches(ev.Path, path)
}

// assertRequestContains checks that some request matches the method and
// path and carries the expected query, header and body subsets.
func assertRequestContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if !requestMatches(ev, a.Method, a.Path) {
			continue
		}
		if !matchStrings(ev.Query, a.Query) || !matchStrings(ev.Headers, a.Headers) {
			continue
		}
		if matchBody(ev.Body, a.Body) {
			return nil
		}
	}

	expected := fmt.Sprintf("%s %s", a.Method, a.Path)
	if len(a.Query) > 0 {
		expected += fmt.Sprintf(" query %v", a.Query)
	}
	if len(a.Headers) > 0 {
		expected += fmt.Sprintf(" headers %v", a.Headers)
	}
	if len(a.Body) > 0 {
		expected += fmt.Sprintf(" body %v", a.Body)
	}
	return &AssertionError{
		Type:     AssertRequestContains,
		Expected: expected,
		Actual:   "no matching request",
		Trace:    trace,
	}
}

// assertRequestOrder checks that the listed requests appear in the given
// relative order. Other requests may come in between.
func assertRequestOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next == len(a.Requests) {
			break
		}
		method, path, _ := strings.Cut(a.Requests[next], " ")
		if requestMatches(ev, method, path) {
			next++
		}
	}
	if next == len(a.Requests) {
		return nil
	}

	return &AssertionError{
		Type:     AssertRequestOrder,
		Expected: strings.Join(a.Requests, " -> "),
		Actual:   fmt.Sprintf("%q not found after %d matched request(s)", a.Requests[next], next),
		Trace:    trace,
	}
}

// assertRequestCount checks that exactly Count requests match.
func assertRequestCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if requestMatches(ev, a.Method, a.Path) {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRequestCount,
		Expected: fmt.Sprintf("%s %s sent %d time(s)", a.Method, a.Path, a.Count),
		Actual:   fmt.Sprintf("sent %d time(s)", count),
		Trace:    trace,
	}
}

func matchStrings(actual, expected map[string]string) bool {
	for k, v := range expected {
		if got, ok := actual[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// matchBody checks if the actual body contains all expected keys (subset
// match). Extra keys in actual are ignored.
func matchBody(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, expectedVal := range expected {
		actualVal, exists := actualMap[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, normalize(expectedVal)) {
			return false
		}
	}
	return true
}

// valuesEqual compares two normalized values for equality.
// Handles nested maps and slices.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	return reflect.DeepEqual(actual, expected)
}

// normalize maps JSON and YAML numbers onto int64 or float64 so values
// decoded from either source compare equal.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = normalize(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = normalize(x)
		}
		return out
	default:
		return v
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRequestContains:
			err = assertRequestContains(result.Trace, assertion)
		case AssertRequestOrder:
			err = assertRequestOrder(result.Trace, assertion)
		case AssertRequestCount:
			err = assertRequestCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
