package query

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/roach88/dvsdk/internal/ir"
)

// Validate checks a whole query tree against the construction rules and
// returns every violation found, joined with errors.Join. It returns nil for
// a well-formed tree.
//
// Validate is a pure function with no side effects. Trees built exclusively
// through the New* constructors always pass; Validate exists for trees
// assembled from struct literals or decoded from definitions.
func Validate(q QueryExpression) error {
	v := &validator{}
	v.validateQuery(q)
	return v.err()
}

// ValidateFilter checks a filter tree on its own.
func ValidateFilter(f FilterExpression) error {
	v := &validator{}
	v.validateFilter("", f)
	return v.err()
}

// ValidateLinkEntity checks a link tree on its own.
func ValidateLinkEntity(l LinkEntity) error {
	v := &validator{}
	v.validateLink("", l)
	return v.err()
}

// validator accumulates errors during traversal.
type validator struct {
	errs []error
}

func (v *validator) add(path string, code ValidationCode, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{
		Path:    path,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) err() error {
	if len(v.errs) == 0 {
		return nil
	}
	if len(v.errs) == 1 {
		return v.errs[0]
	}
	return errors.Join(v.errs...)
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func index(path, field string, i int) string {
	return fmt.Sprintf("%s[%d]", join(path, field), i)
}

func (v *validator) validateQuery(q QueryExpression) {
	if q.EntityName == "" {
		v.add("entity_name", CodeRequired, "entity name is required")
	}
	if q.ColumnSet.IsZero() {
		v.add("column_set", CodeRequired, "column set must select all columns or at least one attribute")
	}
	v.validateColumns("column_set", q.ColumnSet)

	if q.Criteria != nil {
		v.validateFilter("criteria", *q.Criteria)
	}
	for i, o := range q.Orders {
		v.validateOrder(index("", "orders", i), o)
	}
	for i, l := range q.LinkEntities {
		v.validateLink(index("", "link_entities", i), l)
	}

	if q.TopCount != nil && *q.TopCount < 1 {
		v.add("top_count", CodeOutOfRange, "top count must be greater than 0, got %d", *q.TopCount)
	}
	if q.PageInfo != nil {
		if q.PageInfo.Count < 1 {
			v.add("page_info.count", CodeOutOfRange, "page size must be greater than 0, got %d", q.PageInfo.Count)
		}
		if q.PageInfo.PageNumber < 1 {
			v.add("page_info.page_number", CodeOutOfRange, "page number must be greater than 0, got %d", q.PageInfo.PageNumber)
		}
		if q.TopCount != nil {
			v.add("page_info", CodeConflict, "top count and paging cannot be combined")
		}
	}
}

func (v *validator) validateColumns(path string, c ColumnSet) {
	for i, name := range c.columns {
		if name == "" {
			v.add(fmt.Sprintf("%s[%d]", path, i), CodeRequired, "attribute name is required")
		}
	}
}

func (v *validator) validateFilter(path string, f FilterExpression) {
	if !f.FilterOperator.Valid() {
		v.add(join(path, "filter_operator"), CodeInvalidOperator, "unknown filter operator %d", int(f.FilterOperator))
	}
	for i, c := range f.Conditions {
		v.validateCondition(index(path, "conditions", i), c)
	}
	for i, child := range f.Filters {
		v.validateFilter(index(path, "filters", i), child)
	}
}

func (v *validator) validateCondition(path string, c ConditionExpression) {
	if c.AttributeName == "" {
		v.add(join(path, "attribute_name"), CodeRequired, "attribute name is required")
	}
	if !c.Operator.Valid() {
		v.add(join(path, "operator"), CodeInvalidOperator, "unknown condition operator %d", int(c.Operator))
		return
	}

	valuesPath := join(path, "values")
	switch {
	case c.Operator.IsNullCheck():
		if len(c.Values) != 0 {
			v.add(valuesPath, CodeValueMismatch, "operator %s takes no value, got %d", c.Operator, len(c.Values))
		}

	case c.Operator.IsSetMembership():
		if len(c.Values) == 0 {
			v.add(valuesPath, CodeValueMismatch, "operator %s requires at least one value", c.Operator)
		}
		if len(c.Values) > MaxInValues {
			v.add(valuesPath, CodeOutOfRange, "operator %s accepts at most %d values, got %d", c.Operator, MaxInValues, len(c.Values))
		}
		for i, val := range c.Values {
			v.validateScalar(fmt.Sprintf("%s[%d]", valuesPath, i), val)
		}

	default:
		if len(c.Values) != 1 {
			v.add(valuesPath, CodeValueMismatch, "operator %s requires exactly one value, got %d", c.Operator, len(c.Values))
			return
		}
		v.validateScalar(valuesPath, c.Values[0])
	}
}

// validateScalar rejects non-scalar values and strings that cannot be
// carried in an XML document.
func (v *validator) validateScalar(path string, val ir.IRValue) {
	if !ir.IsScalar(val) {
		v.add(path, CodeValueMismatch, "value must be a scalar, got %T", val)
		return
	}
	s, ok := val.(ir.IRString)
	if !ok {
		return
	}
	if !utf8.ValidString(string(s)) {
		v.add(path, CodeValueMismatch, "string value is not valid UTF-8")
		return
	}
	for i, r := range string(s) {
		if !isXMLChar(r) {
			v.add(path, CodeValueMismatch, "string value has character %U at byte %d that XML cannot represent", r, i)
			return
		}
	}
}

// isXMLChar reports whether r is in the Char production of XML 1.0.
func isXMLChar(r rune) bool {
	switch {
	case r == 0x9, r == 0xA, r == 0xD:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

func (v *validator) validateLink(path string, l LinkEntity) {
	required := []struct {
		field string
		value string
	}{
		{"link_from_entity_name", l.LinkFromEntityName},
		{"link_from_attribute_name", l.LinkFromAttributeName},
		{"link_to_entity_name", l.LinkToEntityName},
		{"link_to_attribute_name", l.LinkToAttributeName},
	}
	for _, r := range required {
		if r.value == "" {
			v.add(join(path, r.field), CodeRequired, "%s is required", r.field)
		}
	}
	if !l.JoinOperator.Valid() {
		v.add(join(path, "join_operator"), CodeInvalidOperator, "unknown join operator %d", int(l.JoinOperator))
	}
	if l.Columns != nil {
		if l.Columns.IsZero() {
			v.add(join(path, "columns"), CodeRequired, "column set must select all columns or at least one attribute")
		}
		v.validateColumns(join(path, "columns"), *l.Columns)
	}
	if l.LinkCriteria != nil {
		v.validateFilter(join(path, "link_criteria"), *l.LinkCriteria)
	}
	for i, child := range l.LinkEntities {
		v.validateLink(index(path, "link_entities", i), child)
	}
}

func (v *validator) validateOrder(path string, o OrderExpression) {
	if o.AttributeName == "" {
		v.add(join(path, "attribute_name"), CodeRequired, "attribute name is required")
	}
	if !o.OrderType.Valid() {
		v.add(join(path, "order_type"), CodeInvalidOperator, "unknown order type %d", int(o.OrderType))
	}
}
