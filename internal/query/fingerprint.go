package query

import (
	"github.com/roach88/dvsdk/internal/ir"
)

// ToIR converts a query tree into an IR object. Absent optional fields are
// omitted rather than emitted as null, so the result is always accepted by
// ir.MarshalCanonical.
//
// The object shape is stable and versioned through ir.DomainQuery.
func ToIR(q QueryExpression) ir.IRObject {
	obj := ir.IRObject{
		"entity_name": ir.IRString(q.EntityName),
		"column_set":  columnsToIR(q.ColumnSet),
		"distinct":    ir.IRBool(q.Distinct),
		"no_lock":     ir.IRBool(q.NoLock),
	}
	if q.Criteria != nil {
		obj["criteria"] = filterToIR(*q.Criteria)
	}
	if len(q.Orders) > 0 {
		orders := make(ir.IRArray, len(q.Orders))
		for i, o := range q.Orders {
			orders[i] = ir.IRObject{
				"attribute_name": ir.IRString(o.AttributeName),
				"order_type":     ir.IRString(o.OrderType.String()),
			}
		}
		obj["orders"] = orders
	}
	if len(q.LinkEntities) > 0 {
		obj["link_entities"] = linksToIR(q.LinkEntities)
	}
	if q.TopCount != nil {
		obj["top_count"] = ir.IRInt(*q.TopCount)
	}
	if q.PageInfo != nil {
		page := ir.IRObject{
			"count":       ir.IRInt(q.PageInfo.Count),
			"page_number": ir.IRInt(q.PageInfo.PageNumber),
		}
		if q.PageInfo.PagingCookie != "" {
			page["paging_cookie"] = ir.IRString(q.PageInfo.PagingCookie)
		}
		obj["page_info"] = page
	}
	return obj
}

// Fingerprint returns a stable content hash of q. Two structurally equal
// trees always share a fingerprint, which makes it usable as a cache key for
// compiled markup and result pages.
func Fingerprint(q QueryExpression) (string, error) {
	return ir.Fingerprint(ir.DomainQuery, ToIR(q))
}

func columnsToIR(c ColumnSet) ir.IRValue {
	if c.IsAll() {
		return ir.IRBool(true)
	}
	cols := make(ir.IRArray, len(c.columns))
	for i, name := range c.columns {
		cols[i] = ir.IRString(name)
	}
	return cols
}

func filterToIR(f FilterExpression) ir.IRObject {
	conds := make(ir.IRArray, len(f.Conditions))
	for i, c := range f.Conditions {
		values := make(ir.IRArray, len(c.Values))
		copy(values, c.Values)
		conds[i] = ir.IRObject{
			"attribute_name": ir.IRString(c.AttributeName),
			"operator":       ir.IRString(c.Operator.String()),
			"values":         values,
		}
	}
	children := make(ir.IRArray, len(f.Filters))
	for i, child := range f.Filters {
		children[i] = filterToIR(child)
	}
	return ir.IRObject{
		"filter_operator": ir.IRString(f.FilterOperator.String()),
		"conditions":      conds,
		"filters":         children,
	}
}

func linksToIR(links []LinkEntity) ir.IRArray {
	out := make(ir.IRArray, len(links))
	for i, l := range links {
		obj := ir.IRObject{
			"link_from_entity_name":    ir.IRString(l.LinkFromEntityName),
			"link_from_attribute_name": ir.IRString(l.LinkFromAttributeName),
			"link_to_entity_name":      ir.IRString(l.LinkToEntityName),
			"link_to_attribute_name":   ir.IRString(l.LinkToAttributeName),
			"join_operator":            ir.IRString(l.JoinOperator.String()),
		}
		if l.Columns != nil {
			obj["columns"] = columnsToIR(*l.Columns)
		}
		if l.LinkCriteria != nil {
			obj["link_criteria"] = filterToIR(*l.LinkCriteria)
		}
		if len(l.LinkEntities) > 0 {
			obj["link_entities"] = linksToIR(l.LinkEntities)
		}
		if l.EntityAlias != "" {
			obj["entity_alias"] = ir.IRString(l.EntityAlias)
		}
		out[i] = obj
	}
	return out
}
