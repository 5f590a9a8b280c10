package query

import (
	"fmt"
	"slices"

	"github.com/roach88/dvsdk/internal/ir"
)

// MaxInValues is the largest value list the service accepts for the in and
// not-in operators.
const MaxInValues = 500

// FilterOperator combines the conditions and child filters of a filter.
type FilterOperator int

const (
	FilterAnd FilterOperator = iota
	FilterOr
)

// Valid reports whether o is a declared FilterOperator.
func (o FilterOperator) Valid() bool {
	return o == FilterAnd || o == FilterOr
}

func (o FilterOperator) String() string {
	switch o {
	case FilterAnd:
		return "and"
	case FilterOr:
		return "or"
	default:
		return fmt.Sprintf("FilterOperator(%d)", int(o))
	}
}

// ConditionOperator is the comparison applied by a single condition.
type ConditionOperator int

const (
	OpEqual ConditionOperator = iota
	OpNotEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual
	OpBeginsWith
	OpNotBeginWith
	OpEndsWith
	OpNotEndWith
	OpIn
	OpNotIn
	OpNull
	OpNotNull
	OpLike
	OpNotLike

	conditionOperatorCount
)

var conditionOperatorNames = [conditionOperatorCount]string{
	OpEqual:        "equal",
	OpNotEqual:     "not-equal",
	OpGreater:      "greater",
	OpGreaterEqual: "greater-or-equal",
	OpLess:         "less",
	OpLessEqual:    "less-or-equal",
	OpBeginsWith:   "begins-with",
	OpNotBeginWith: "not-begins-with",
	OpEndsWith:     "ends-with",
	OpNotEndWith:   "not-ends-with",
	OpIn:           "in",
	OpNotIn:        "not-in",
	OpNull:         "null",
	OpNotNull:      "not-null",
	OpLike:         "like",
	OpNotLike:      "not-like",
}

// ConditionOperators returns every declared ConditionOperator in order.
func ConditionOperators() []ConditionOperator {
	ops := make([]ConditionOperator, 0, conditionOperatorCount)
	for op := OpEqual; op < conditionOperatorCount; op++ {
		ops = append(ops, op)
	}
	return ops
}

// Valid reports whether o is a declared ConditionOperator.
func (o ConditionOperator) Valid() bool {
	return o >= OpEqual && o < conditionOperatorCount
}

func (o ConditionOperator) String() string {
	if !o.Valid() {
		return fmt.Sprintf("ConditionOperator(%d)", int(o))
	}
	return conditionOperatorNames[o]
}

// IsNullCheck reports whether o takes no value.
func (o ConditionOperator) IsNullCheck() bool {
	return o == OpNull || o == OpNotNull
}

// IsSetMembership reports whether o takes a list of values.
func (o ConditionOperator) IsSetMembership() bool {
	return o == OpIn || o == OpNotIn
}

// ParseConditionOperator resolves the descriptive operator name
// ("equal", "begins-with", ...) to its enum value.
func ParseConditionOperator(name string) (ConditionOperator, error) {
	for op, n := range conditionOperatorNames {
		if n == name {
			return ConditionOperator(op), nil
		}
	}
	return 0, fmt.Errorf("unknown condition operator %q", name)
}

// JoinOperator is the kind of join a LinkEntity performs.
type JoinOperator int

const (
	JoinInner JoinOperator = iota
	JoinOuter
	JoinAny
	JoinNotAny
	JoinAll
	JoinNotAll
	JoinExists
	JoinMatchFirstRow

	joinOperatorCount
)

var joinOperatorNames = [joinOperatorCount]string{
	JoinInner:         "inner",
	JoinOuter:         "outer",
	JoinAny:           "any",
	JoinNotAny:        "not-any",
	JoinAll:           "all",
	JoinNotAll:        "not-all",
	JoinExists:        "exists",
	JoinMatchFirstRow: "match-first-row",
}

// JoinOperators returns every declared JoinOperator in order.
func JoinOperators() []JoinOperator {
	ops := make([]JoinOperator, 0, joinOperatorCount)
	for op := JoinInner; op < joinOperatorCount; op++ {
		ops = append(ops, op)
	}
	return ops
}

// Valid reports whether o is a declared JoinOperator.
func (o JoinOperator) Valid() bool {
	return o >= JoinInner && o < joinOperatorCount
}

func (o JoinOperator) String() string {
	if !o.Valid() {
		return fmt.Sprintf("JoinOperator(%d)", int(o))
	}
	return joinOperatorNames[o]
}

// ParseJoinOperator resolves a descriptive join name ("inner", "not-any", ...).
func ParseJoinOperator(name string) (JoinOperator, error) {
	for op, n := range joinOperatorNames {
		if n == name {
			return JoinOperator(op), nil
		}
	}
	return 0, fmt.Errorf("unknown join operator %q", name)
}

// OrderType is the sort direction of an OrderExpression.
type OrderType int

const (
	OrderAscending OrderType = iota
	OrderDescending
)

// Valid reports whether t is a declared OrderType.
func (t OrderType) Valid() bool {
	return t == OrderAscending || t == OrderDescending
}

func (t OrderType) String() string {
	switch t {
	case OrderAscending:
		return "ascending"
	case OrderDescending:
		return "descending"
	default:
		return fmt.Sprintf("OrderType(%d)", int(t))
	}
}

// ColumnSet is the projection of a query or link: either every attribute or
// an explicit, ordered list of attribute names.
//
// The zero value selects nothing and is rejected where a projection is
// required. Use AllColumns or NewColumnSet.
type ColumnSet struct {
	all     bool
	columns []string
}

// AllColumns returns the sentinel projection that selects every attribute.
func AllColumns() ColumnSet {
	return ColumnSet{all: true}
}

// IsAll reports whether the projection selects every attribute.
func (c ColumnSet) IsAll() bool {
	return c.all
}

// Columns returns a copy of the explicit attribute names, in order.
// Returns nil for the all-attributes sentinel.
func (c ColumnSet) Columns() []string {
	return slices.Clone(c.columns)
}

// IsZero reports whether c selects nothing (neither sentinel nor names).
func (c ColumnSet) IsZero() bool {
	return !c.all && len(c.columns) == 0
}

// ConditionExpression is a single predicate on one attribute.
//
// Values holds zero values for null checks, one scalar for comparison
// operators and one or more scalars for in/not-in. Build conditions with
// NewCondition so these rules are enforced.
type ConditionExpression struct {
	AttributeName string
	Operator      ConditionOperator
	Values        []ir.IRValue
}

// Value returns the single value of a comparison condition, or IRNull when
// the condition carries no value.
func (c ConditionExpression) Value() ir.IRValue {
	if len(c.Values) == 0 {
		return ir.IRNull{}
	}
	return c.Values[0]
}

// FilterExpression is a boolean node: its conditions and child filters are
// combined with FilterOperator.
type FilterExpression struct {
	FilterOperator FilterOperator
	Conditions     []ConditionExpression
	Filters        []FilterExpression
}

// IsEmpty reports whether the filter subtree contains no condition at any
// depth. Empty filters are elided from compiled output.
func (f FilterExpression) IsEmpty() bool {
	if len(f.Conditions) > 0 {
		return false
	}
	for _, child := range f.Filters {
		if !child.IsEmpty() {
			return false
		}
	}
	return true
}

// LinkEntity joins the parent entity to a related entity.
//
// The join matches LinkFromEntityName.LinkFromAttributeName (the parent
// side) against LinkToEntityName.LinkToAttributeName (the linked side).
// A nil Columns means every attribute of the linked entity.
type LinkEntity struct {
	LinkFromEntityName    string
	LinkFromAttributeName string
	LinkToEntityName      string
	LinkToAttributeName   string
	JoinOperator          JoinOperator
	Columns               *ColumnSet
	LinkCriteria          *FilterExpression
	LinkEntities          []LinkEntity
	EntityAlias           string
}

// OrderExpression sorts results by one attribute.
type OrderExpression struct {
	AttributeName string
	OrderType     OrderType
}

// PageInfo requests one page of a larger result set.
// PagingCookie is the opaque token returned with the previous page.
type PageInfo struct {
	Count        int
	PageNumber   int
	PagingCookie string
}

// QueryExpression is the root of a query tree.
type QueryExpression struct {
	EntityName   string
	ColumnSet    ColumnSet
	Criteria     *FilterExpression
	Orders       []OrderExpression
	LinkEntities []LinkEntity
	TopCount     *int
	Distinct     bool
	NoLock       bool
	PageInfo     *PageInfo
}
