package fetchxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dvsdk/internal/query"
)

func TestConditionTokens_Exhaustive(t *testing.T) {
	want := map[query.ConditionOperator]string{
		query.OpEqual:        "eq",
		query.OpNotEqual:     "ne",
		query.OpGreater:      "gt",
		query.OpGreaterEqual: "ge",
		query.OpLess:         "lt",
		query.OpLessEqual:    "le",
		query.OpBeginsWith:   "begins-with",
		query.OpNotBeginWith: "not-begin-with",
		query.OpEndsWith:     "ends-with",
		query.OpNotEndWith:   "not-end-with",
		query.OpIn:           "in",
		query.OpNotIn:        "not-in",
		query.OpNull:         "null",
		query.OpNotNull:      "not-null",
		query.OpLike:         "like",
		query.OpNotLike:      "not-like",
	}

	ops := query.ConditionOperators()
	require.Len(t, conditionTokens, len(ops), "token table must cover every operator")

	seen := make(map[string]bool)
	for _, op := range ops {
		tok, ok := ConditionOperatorToken(op)
		require.True(t, ok, "no token for %s", op)
		assert.Equal(t, want[op], tok, op.String())
		assert.False(t, seen[tok], "token %q mapped twice", tok)
		seen[tok] = true

		back, err := ParseConditionOperatorToken(tok)
		require.NoError(t, err)
		assert.Equal(t, op, back)
	}

	_, ok := ConditionOperatorToken(query.ConditionOperator(100))
	assert.False(t, ok)
	_, err := ParseConditionOperatorToken("not-ends-with")
	assert.Error(t, err)
}

func TestJoinTokens_Exhaustive(t *testing.T) {
	want := map[query.JoinOperator]string{
		query.JoinInner:         "inner",
		query.JoinOuter:         "outer",
		query.JoinAny:           "any",
		query.JoinNotAny:        "not any",
		query.JoinAll:           "all",
		query.JoinNotAll:        "not all",
		query.JoinExists:        "exists",
		query.JoinMatchFirstRow: "matchfirstrowusingcrossapply",
	}

	ops := query.JoinOperators()
	require.Len(t, joinTokens, len(ops), "token table must cover every join")

	for _, op := range ops {
		tok, ok := JoinOperatorToken(op)
		require.True(t, ok, "no token for %s", op)
		assert.Equal(t, want[op], tok, op.String())

		back, err := ParseJoinOperatorToken(tok)
		require.NoError(t, err)
		assert.Equal(t, op, back)
	}

	_, ok := JoinOperatorToken(query.JoinOperator(-1))
	assert.False(t, ok)
	_, err := ParseJoinOperatorToken("left")
	assert.Error(t, err)
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"", ""},
		{"a&b", "a&amp;b"},
		{"<tag>", "&lt;tag&gt;"},
		{`say "hi"`, "say &quot;hi&quot;"},
		{"it's", "it&apos;s"},
		{"&amp;", "&amp;amp;"},
		{`&<>"'`, "&amp;&lt;&gt;&quot;&apos;"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}
