package fetchxml

import (
	"fmt"

	"github.com/roach88/dvsdk/internal/query"
)

// conditionTokens maps every condition operator to its FetchXML token.
var conditionTokens = map[query.ConditionOperator]string{
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

// joinTokens maps every join operator to its FetchXML link-type token.
var joinTokens = map[query.JoinOperator]string{
	query.JoinInner:         "inner",
	query.JoinOuter:         "outer",
	query.JoinAny:           "any",
	query.JoinNotAny:        "not any",
	query.JoinAll:           "all",
	query.JoinNotAll:        "not all",
	query.JoinExists:        "exists",
	query.JoinMatchFirstRow: "matchfirstrowusingcrossapply",
}

// ConditionOperatorToken returns the FetchXML operator token for op.
// The second result is false for an undeclared operator.
func ConditionOperatorToken(op query.ConditionOperator) (string, bool) {
	tok, ok := conditionTokens[op]
	return tok, ok
}

// JoinOperatorToken returns the FetchXML link-type token for op.
// The second result is false for an undeclared operator.
func JoinOperatorToken(op query.JoinOperator) (string, bool) {
	tok, ok := joinTokens[op]
	return tok, ok
}

// ParseConditionOperatorToken resolves a FetchXML operator token ("eq",
// "not-begin-with", ...) back to its enum value.
func ParseConditionOperatorToken(token string) (query.ConditionOperator, error) {
	for op, tok := range conditionTokens {
		if tok == token {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown condition operator token %q", token)
}

// ParseJoinOperatorToken resolves a FetchXML link-type token ("inner",
// "not any", ...) back to its enum value.
func ParseJoinOperatorToken(token string) (query.JoinOperator, error) {
	for op, tok := range joinTokens {
		if tok == token {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown join operator token %q", token)
}
