package fetchxml

import (
	"encoding/xml"
	"fmt"

	"github.com/roach88/dvsdk/internal/ir"
	"github.com/roach88/dvsdk/internal/query"
)

type xmlFetch struct {
	XMLName      xml.Name  `xml:"fetch"`
	Top          *int      `xml:"top,attr"`
	Distinct     bool      `xml:"distinct,attr"`
	NoLock       bool      `xml:"no-lock,attr"`
	Count        *int      `xml:"count,attr"`
	Page         *int      `xml:"page,attr"`
	PagingCookie string    `xml:"paging-cookie,attr"`
	Entity       xmlEntity `xml:"entity"`
}

type xmlEmpty struct{}

type xmlEntity struct {
	Name          string         `xml:"name,attr"`
	AllAttributes *xmlEmpty      `xml:"all-attributes"`
	Attributes    []xmlAttribute `xml:"attribute"`
	Filters       []xmlFilter    `xml:"filter"`
	Links         []xmlLink      `xml:"link-entity"`
	Orders        []xmlOrder     `xml:"order"`
}

type xmlAttribute struct {
	Name string `xml:"name,attr"`
}

type xmlFilter struct {
	Type       string         `xml:"type,attr"`
	Conditions []xmlCondition `xml:"condition"`
	Filters    []xmlFilter    `xml:"filter"`
}

type xmlCondition struct {
	Attribute string   `xml:"attribute,attr"`
	Operator  string   `xml:"operator,attr"`
	Value     *string  `xml:"value,attr"`
	Values    []string `xml:"value"`
}

type xmlLink struct {
	Name          string         `xml:"name,attr"`
	From          string         `xml:"from,attr"`
	To            string         `xml:"to,attr"`
	LinkType      string         `xml:"link-type,attr"`
	Alias         string         `xml:"alias,attr"`
	AllAttributes *xmlEmpty      `xml:"all-attributes"`
	Attributes    []xmlAttribute `xml:"attribute"`
	Filters       []xmlFilter    `xml:"filter"`
	Links         []xmlLink      `xml:"link-entity"`
}

type xmlOrder struct {
	Attribute  string `xml:"attribute,attr"`
	Descending bool   `xml:"descending,attr"`
}

// Parse reads a FetchXML document back into a query tree.
//
// Markup carries no value types, so every condition value comes back as an
// ir.IRString; compiling the result reproduces the original document. A
// missing filter type means "and" and a missing link-type means "inner".
// The result is checked with query.Validate before it is returned.
func Parse(data []byte) (query.QueryExpression, error) {
	var doc xmlFetch
	if err := xml.Unmarshal(data, &doc); err != nil {
		return query.QueryExpression{}, fmt.Errorf("parse fetchxml: %w", err)
	}

	q := query.QueryExpression{
		EntityName: doc.Entity.Name,
		TopCount:   doc.Top,
		Distinct:   doc.Distinct,
		NoLock:     doc.NoLock,
	}
	if doc.Count != nil || doc.Page != nil {
		page := query.PageInfo{Count: query.DefaultPageSize, PageNumber: 1, PagingCookie: doc.PagingCookie}
		if doc.Count != nil {
			page.Count = *doc.Count
		}
		if doc.Page != nil {
			page.PageNumber = *doc.Page
		}
		q.PageInfo = &page
	}

	columns, err := parseColumns(doc.Entity.AllAttributes, doc.Entity.Attributes)
	if err != nil {
		return query.QueryExpression{}, fmt.Errorf("entity %q: %w", doc.Entity.Name, err)
	}
	q.ColumnSet = columns

	criteria, err := parseSingleFilter(doc.Entity.Filters)
	if err != nil {
		return query.QueryExpression{}, fmt.Errorf("entity %q: %w", doc.Entity.Name, err)
	}
	q.Criteria = criteria

	for _, o := range doc.Entity.Orders {
		order := query.OrderExpression{AttributeName: o.Attribute, OrderType: query.OrderAscending}
		if o.Descending {
			order.OrderType = query.OrderDescending
		}
		q.Orders = append(q.Orders, order)
	}

	for _, l := range doc.Entity.Links {
		link, err := parseLink(doc.Entity.Name, l)
		if err != nil {
			return query.QueryExpression{}, err
		}
		q.LinkEntities = append(q.LinkEntities, link)
	}

	if err := query.Validate(q); err != nil {
		return query.QueryExpression{}, fmt.Errorf("parse fetchxml: %w", err)
	}
	return q, nil
}

func parseColumns(all *xmlEmpty, attrs []xmlAttribute) (query.ColumnSet, error) {
	if all != nil {
		if len(attrs) > 0 {
			return query.ColumnSet{}, fmt.Errorf("all-attributes cannot be combined with attribute elements")
		}
		return query.AllColumns(), nil
	}
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return query.NewColumnSet(names...)
}

func parseSingleFilter(filters []xmlFilter) (*query.FilterExpression, error) {
	switch len(filters) {
	case 0:
		return nil, nil
	case 1:
		f, err := parseFilter(filters[0])
		if err != nil {
			return nil, err
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("expected at most one filter element, got %d", len(filters))
	}
}

func parseFilter(x xmlFilter) (query.FilterExpression, error) {
	f := query.FilterExpression{FilterOperator: query.FilterAnd}
	switch x.Type {
	case "", "and":
	case "or":
		f.FilterOperator = query.FilterOr
	default:
		return query.FilterExpression{}, fmt.Errorf("unknown filter type %q", x.Type)
	}

	for _, xc := range x.Conditions {
		op, err := ParseConditionOperatorToken(xc.Operator)
		if err != nil {
			return query.FilterExpression{}, fmt.Errorf("condition %q: %w", xc.Attribute, err)
		}
		c := query.ConditionExpression{AttributeName: xc.Attribute, Operator: op}
		switch {
		case op.IsNullCheck():
		case op.IsSetMembership() && len(xc.Values) > 0:
			for _, v := range xc.Values {
				c.Values = append(c.Values, ir.IRString(v))
			}
		case xc.Value != nil:
			c.Values = []ir.IRValue{ir.IRString(*xc.Value)}
		}
		f.Conditions = append(f.Conditions, c)
	}

	for _, child := range x.Filters {
		cf, err := parseFilter(child)
		if err != nil {
			return query.FilterExpression{}, err
		}
		f.Filters = append(f.Filters, cf)
	}
	return f, nil
}

func parseLink(parent string, x xmlLink) (query.LinkEntity, error) {
	join := query.JoinInner
	if x.LinkType != "" {
		var err error
		join, err = ParseJoinOperatorToken(x.LinkType)
		if err != nil {
			return query.LinkEntity{}, fmt.Errorf("link-entity %q: %w", x.Name, err)
		}
	}

	l := query.LinkEntity{
		LinkFromEntityName:    parent,
		LinkFromAttributeName: x.To,
		LinkToEntityName:      x.Name,
		LinkToAttributeName:   x.From,
		JoinOperator:          join,
		EntityAlias:           x.Alias,
	}

	if x.AllAttributes != nil || len(x.Attributes) > 0 {
		columns, err := parseColumns(x.AllAttributes, x.Attributes)
		if err != nil {
			return query.LinkEntity{}, fmt.Errorf("link-entity %q: %w", x.Name, err)
		}
		if !columns.IsAll() {
			l.Columns = &columns
		}
	}

	criteria, err := parseSingleFilter(x.Filters)
	if err != nil {
		return query.LinkEntity{}, fmt.Errorf("link-entity %q: %w", x.Name, err)
	}
	l.LinkCriteria = criteria

	for _, child := range x.Links {
		nested, err := parseLink(x.Name, child)
		if err != nil {
			return query.LinkEntity{}, err
		}
		l.LinkEntities = append(l.LinkEntities, nested)
	}
	return l, nil
}
