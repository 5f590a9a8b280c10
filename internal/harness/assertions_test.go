package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Step: 0, Method: "GET", Path: "EntityDefinitions"},
		{Seq: 2, Step: 1, Method: "POST", Path: "accounts",
			Query:   map[string]string{"tag": "t"},
			Headers: map[string]string{"mscrm.suppressduplicatedetection": "true"},
			Body:    map[string]any{"name": "Contoso", "numberofemployees": int64(250)},
		},
		{Seq: 3, Step: 2, Method: "DELETE", Path: "accounts(6f1c)"},
	}
}

func TestAssertRequestContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertRequestContains(trace, Assertion{Method: "POST", Path: "accounts"}))
	assert.NoError(t, assertRequestContains(trace, Assertion{
		Method:  "post",
		Path:    "accounts",
		Query:   map[string]string{"tag": "t"},
		Headers: map[string]string{"mscrm.suppressduplicatedetection": "true"},
		Body:    map[string]any{"numberofemployees": 250},
	}), "yaml ints match json numbers")
	assert.NoError(t, assertRequestContains(trace, Assertion{Method: "DELETE", Path: "accounts(*"}))

	err := assertRequestContains(trace, Assertion{Method: "POST", Path: "accounts", Body: map[string]any{"name": "Fabrikam"}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertRequestContains, ae.Type)
	assert.Contains(t, ae.Expected, "Fabrikam")

	assert.Error(t, assertRequestContains(trace, Assertion{Method: "POST", Path: "accounts", Query: map[string]string{"tag": "other"}}))
	assert.Error(t, assertRequestContains(trace, Assertion{Method: "PATCH", Path: "accounts"}))
	assert.Error(t, assertRequestContains(trace, Assertion{Method: "POST", Path: "account"}), "paths match exactly without *")
}

func TestAssertRequestOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertRequestOrder(trace, Assertion{Requests: []string{"GET EntityDefinitions", "DELETE accounts(*"}}),
		"intervening requests are allowed")

	err := assertRequestOrder(trace, Assertion{Requests: []string{"DELETE accounts(6f1c)", "POST accounts"}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Actual, `"POST accounts" not found after 1 matched`)
}

func TestAssertRequestCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertRequestCount(trace, Assertion{Method: "POST", Path: "accounts", Count: 1}))
	assert.NoError(t, assertRequestCount(trace, Assertion{Method: "PATCH", Path: "accounts*", Count: 0}))

	err := assertRequestCount(trace, Assertion{Method: "POST", Path: "accounts", Count: 2})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "sent 1 time(s)", ae.Actual)
}

func TestNormalize(t *testing.T) {
	var decoded any
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1, "b": 1.5, "c": [2]}`), &decoded))
	assert.Equal(t, map[string]any{"a": int64(1), "b": 1.5, "c": []any{int64(2)}}, normalize(decoded))
	assert.Equal(t, int64(3), normalize(json.Number("3")))
	assert.Equal(t, 2.25, normalize(json.Number("2.25")))
	assert.Equal(t, int64(7), normalize(7))
	assert.Equal(t, "x", normalize("x"))
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	result := NewResult()
	errs := EvaluateAssertions(result, []Assertion{{Type: "final_state"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "final_state"`)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRequestCount,
		Expected: "POST accounts sent 2 time(s)",
		Actual:   "sent 1 time(s)",
		Trace:    sampleTrace()[:2],
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: request_count")
	assert.Contains(t, msg, "Expected: POST accounts sent 2 time(s)")
	assert.Contains(t, msg, "[2] step 1: POST accounts")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestResult_AddTrace(t *testing.T) {
	r := NewResult()
	r.AddTrace(TraceEvent{Method: "GET", Path: "a"})
	r.AddTrace(TraceEvent{Method: "GET", Path: "b", Seq: 99})
	assert.Equal(t, 1, r.Trace[0].Seq)
	assert.Equal(t, 2, r.Trace[1].Seq, "sequence numbers are assigned in order")
}
