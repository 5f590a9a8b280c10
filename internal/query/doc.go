// Package query provides the value-object model for platform query
// expressions: the entity to read, the column projection, a tree of boolean
// filters, joins to related entities, ordering, a row cap and paging.
//
// ARCHITECTURE:
//
// The query model sits between application code and the wire compiler:
//
//	[application] → [query.QueryExpression] → [fetchxml.Compile] → [messages.RetrieveMultiple]
//
// A QueryExpression is a tree of plain values. Filters and links are stored
// by value, so a tree can never contain a cycle and is owned entirely by the
// QueryExpression (or LinkEntity) that holds it. Nothing in this package or
// the compiler mutates a tree after construction.
//
// CLOSED ENUMERATIONS:
//
// FilterOperator, ConditionOperator, JoinOperator and OrderType are integer
// enums with a Valid method. Values outside the declared range are rejected
// by the constructors and by Validate, so the compiler never sees an unmapped
// operator.
//
// VALIDATION:
//
// Constructors (NewCondition, NewFilter, NewLinkEntity, NewOrder, NewQuery)
// validate their own arguments and return *ValidationError values. Trees
// assembled from struct literals can be checked with Validate, which walks
// the whole tree and reports every violation at once:
//
//	if err := query.Validate(q); err != nil {
//	    var verr *query.ValidationError
//	    errors.As(err, &verr) // first violation, with its path
//	}
//
// Value rules enforced per condition operator:
//
//	null, not-null      no value
//	in, not-in          1..500 scalar values
//	everything else     exactly one scalar value
package query
