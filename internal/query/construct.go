package query

import (
	"slices"

	"github.com/roach88/dvsdk/internal/ir"
)

// DefaultPageSize is the page size used by NextPage when the query carries
// no PageInfo yet. It matches the service's maximum page size.
const DefaultPageSize = 5000

// NewColumnSet returns an explicit projection of the given attributes, in
// order. At least one name is required and names must be non-empty.
func NewColumnSet(columns ...string) (ColumnSet, error) {
	c := ColumnSet{columns: slices.Clone(columns)}
	if c.IsZero() {
		return ColumnSet{}, &ValidationError{
			Code:    CodeRequired,
			Message: "column set must select all columns or at least one attribute",
		}
	}
	v := &validator{}
	v.validateColumns("columns", c)
	if err := v.err(); err != nil {
		return ColumnSet{}, err
	}
	return c, nil
}

// MustColumnSet is like NewColumnSet but panics on error.
// Intended for tests and package-level literals.
func MustColumnSet(columns ...string) ColumnSet {
	c, err := NewColumnSet(columns...)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCondition builds a condition and checks its value against the operator.
//
// Null checks take no values. in and not-in take one or more values, given
// either as separate arguments or as a single slice. Every other operator
// takes exactly one value. Values are converted with ir.FromAny. A lone nil
// argument counts as no value; a nil anywhere else is rejected.
func NewCondition(attribute string, op ConditionOperator, values ...any) (ConditionExpression, error) {
	if len(values) == 1 && values[0] == nil {
		values = nil
	}
	if op.IsSetMembership() && len(values) == 1 {
		if arr, err := ir.FromAny(values[0]); err == nil {
			if items, ok := arr.(ir.IRArray); ok {
				values = make([]any, len(items))
				for i, item := range items {
					values[i] = item
				}
			}
		}
	}

	irValues := make([]ir.IRValue, 0, len(values))
	for i, raw := range values {
		val, err := ir.FromAny(raw)
		if err != nil {
			return ConditionExpression{}, &ValidationError{
				Path:    index("", "values", i),
				Code:    CodeValueMismatch,
				Message: err.Error(),
			}
		}
		irValues = append(irValues, val)
	}

	c := ConditionExpression{
		AttributeName: attribute,
		Operator:      op,
		Values:        irValues,
	}
	v := &validator{}
	v.validateCondition("", c)
	if err := v.err(); err != nil {
		return ConditionExpression{}, err
	}
	return c, nil
}

// MustCondition is like NewCondition but panics on error.
func MustCondition(attribute string, op ConditionOperator, values ...any) ConditionExpression {
	c, err := NewCondition(attribute, op, values...)
	if err != nil {
		panic(err)
	}
	return c
}

// NewFilter builds a filter node and validates the whole subtree.
func NewFilter(op FilterOperator, conditions []ConditionExpression, filters ...FilterExpression) (FilterExpression, error) {
	f := FilterExpression{
		FilterOperator: op,
		Conditions:     slices.Clone(conditions),
		Filters:        slices.Clone(filters),
	}
	if err := ValidateFilter(f); err != nil {
		return FilterExpression{}, err
	}
	return f, nil
}

// And returns a conjunction of the given conditions.
func And(conditions ...ConditionExpression) FilterExpression {
	return FilterExpression{FilterOperator: FilterAnd, Conditions: slices.Clone(conditions)}
}

// Or returns a disjunction of the given conditions.
func Or(conditions ...ConditionExpression) FilterExpression {
	return FilterExpression{FilterOperator: FilterOr, Conditions: slices.Clone(conditions)}
}

// WithFilters returns a copy of f with the given child filters appended.
func (f FilterExpression) WithFilters(children ...FilterExpression) FilterExpression {
	f.Conditions = slices.Clone(f.Conditions)
	f.Filters = append(slices.Clone(f.Filters), children...)
	return f
}

// NewLinkEntity builds a join from fromEntity.fromAttribute to
// toEntity.toAttribute. The result selects every attribute of the linked
// entity until WithColumns narrows it.
func NewLinkEntity(fromEntity, fromAttribute, toEntity, toAttribute string, join JoinOperator) (LinkEntity, error) {
	l := LinkEntity{
		LinkFromEntityName:    fromEntity,
		LinkFromAttributeName: fromAttribute,
		LinkToEntityName:      toEntity,
		LinkToAttributeName:   toAttribute,
		JoinOperator:          join,
	}
	if err := ValidateLinkEntity(l); err != nil {
		return LinkEntity{}, err
	}
	return l, nil
}

// WithColumns returns a copy of l projecting the given columns.
func (l LinkEntity) WithColumns(c ColumnSet) LinkEntity {
	l.Columns = &c
	return l
}

// WithCriteria returns a copy of l filtered by f.
func (l LinkEntity) WithCriteria(f FilterExpression) LinkEntity {
	l.LinkCriteria = &f
	return l
}

// WithAlias returns a copy of l with the given result alias.
func (l LinkEntity) WithAlias(alias string) LinkEntity {
	l.EntityAlias = alias
	return l
}

// WithLinks returns a copy of l with nested joins appended.
func (l LinkEntity) WithLinks(links ...LinkEntity) LinkEntity {
	l.LinkEntities = append(slices.Clone(l.LinkEntities), links...)
	return l
}

// NewOrder builds a sort on one attribute.
func NewOrder(attribute string, orderType OrderType) (OrderExpression, error) {
	o := OrderExpression{AttributeName: attribute, OrderType: orderType}
	v := &validator{}
	v.validateOrder("", o)
	if err := v.err(); err != nil {
		return OrderExpression{}, err
	}
	return o, nil
}

// Option configures a QueryExpression built by NewQuery.
type Option func(*QueryExpression)

// WithCriteria sets the root filter.
func WithCriteria(f FilterExpression) Option {
	return func(q *QueryExpression) {
		q.Criteria = &f
	}
}

// WithOrders appends sort orders.
func WithOrders(orders ...OrderExpression) Option {
	return func(q *QueryExpression) {
		q.Orders = append(q.Orders, orders...)
	}
}

// WithLinks appends joins.
func WithLinks(links ...LinkEntity) Option {
	return func(q *QueryExpression) {
		q.LinkEntities = append(q.LinkEntities, links...)
	}
}

// WithTop caps the number of rows returned.
func WithTop(n int) Option {
	return func(q *QueryExpression) {
		q.TopCount = &n
	}
}

// WithDistinct requests duplicate rows be removed.
func WithDistinct() Option {
	return func(q *QueryExpression) {
		q.Distinct = true
	}
}

// WithNoLock requests a read without shared locks.
func WithNoLock() Option {
	return func(q *QueryExpression) {
		q.NoLock = true
	}
}

// WithPage requests one page of the result set.
func WithPage(count, pageNumber int, cookie string) Option {
	return func(q *QueryExpression) {
		q.PageInfo = &PageInfo{Count: count, PageNumber: pageNumber, PagingCookie: cookie}
	}
}

// NewQuery builds a query over entity and validates the complete tree.
func NewQuery(entity string, columns ColumnSet, opts ...Option) (QueryExpression, error) {
	q := QueryExpression{EntityName: entity, ColumnSet: columns}
	for _, opt := range opts {
		opt(&q)
	}
	if err := Validate(q); err != nil {
		return QueryExpression{}, err
	}
	return q, nil
}

// MustQuery is like NewQuery but panics on error.
func MustQuery(entity string, columns ColumnSet, opts ...Option) QueryExpression {
	q, err := NewQuery(entity, columns, opts...)
	if err != nil {
		panic(err)
	}
	return q
}

// NextPage returns a copy of q requesting the page after the current one,
// carrying the paging cookie returned with the current page. A query without
// PageInfo is treated as page 1 of DefaultPageSize rows.
func (q QueryExpression) NextPage(cookie string) QueryExpression {
	next := PageInfo{Count: DefaultPageSize, PageNumber: 2, PagingCookie: cookie}
	if q.PageInfo != nil {
		next.Count = q.PageInfo.Count
		next.PageNumber = q.PageInfo.PageNumber + 1
	}
	q.PageInfo = &next
	return q
}
