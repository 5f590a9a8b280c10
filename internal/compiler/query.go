package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/dvsdk/internal/fetchxml"
	"github.com/roach88/dvsdk/internal/query"
)

// CompileQuery parses a CUE value into a QueryExpression.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the query struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`query: activeAccounts: { entity: "account", columns: "all" }`)
//	q, err := CompileQuery(v.LookupPath(cue.ParsePath("query.activeAccounts")))
//
// Fields: entity (required), columns (required, "all" or a list of names),
// filter, links, orders, top, distinct, no_lock and page. Operators accept
// either the FetchXML token ("eq", "not any") or the descriptive name
// ("equal", "not-any").
func CompileQuery(v cue.Value) (*query.QueryExpression, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entity, err := requiredString(v, "entity")
	if err != nil {
		return nil, err
	}

	columns, err := parseColumns(v, "columns", true)
	if err != nil {
		return nil, err
	}

	var opts []query.Option

	if filterVal := v.LookupPath(cue.ParsePath("filter")); filterVal.Exists() {
		f, err := parseFilter(filterVal, "filter")
		if err != nil {
			return nil, err
		}
		opts = append(opts, query.WithCriteria(f))
	}

	links, err := parseLinks(v, entity, "links")
	if err != nil {
		return nil, err
	}
	if len(links) > 0 {
		opts = append(opts, query.WithLinks(links...))
	}

	orders, err := parseOrders(v)
	if err != nil {
		return nil, err
	}
	if len(orders) > 0 {
		opts = append(opts, query.WithOrders(orders...))
	}

	if top, ok, err := optionalInt(v, "top"); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, query.WithTop(top))
	}

	if distinct, _, err := optionalBool(v, "distinct"); err != nil {
		return nil, err
	} else if distinct {
		opts = append(opts, query.WithDistinct())
	}

	if noLock, _, err := optionalBool(v, "no_lock"); err != nil {
		return nil, err
	} else if noLock {
		opts = append(opts, query.WithNoLock())
	}

	if pageVal := v.LookupPath(cue.ParsePath("page")); pageVal.Exists() {
		opt, err := parsePage(pageVal)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}

	q, err := query.NewQuery(entity, columns, opts...)
	if err != nil {
		return nil, fromValidation(err, "", v.Pos())
	}
	return &q, nil
}

// parseColumns reads a projection: the string "all" or a list of names.
func parseColumns(v cue.Value, field string, required bool) (query.ColumnSet, error) {
	colVal := v.LookupPath(cue.ParsePath(field))
	if !colVal.Exists() {
		if required {
			return query.ColumnSet{}, &CompileError{
				Field:   field,
				Message: field + " is required",
				Pos:     v.Pos(),
			}
		}
		return query.ColumnSet{}, nil
	}

	if s, err := colVal.String(); err == nil {
		if s != "all" {
			return query.ColumnSet{}, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("expected \"all\" or a list of attribute names, got %q", s),
				Pos:     colVal.Pos(),
			}
		}
		return query.AllColumns(), nil
	}

	var names []string
	if err := colVal.Decode(&names); err != nil {
		return query.ColumnSet{}, formatCUEError(err)
	}
	cols, err := query.NewColumnSet(names...)
	if err != nil {
		return query.ColumnSet{}, fromValidation(err, field, colVal.Pos())
	}
	return cols, nil
}

// parseFilter parses a filter block and its nested filters.
func parseFilter(v cue.Value, path string) (query.FilterExpression, error) {
	op := query.FilterAnd
	if typ, ok, err := optionalString(v, "type"); err != nil {
		return query.FilterExpression{}, err
	} else if ok {
		switch typ {
		case "and":
		case "or":
			op = query.FilterOr
		default:
			return query.FilterExpression{}, &CompileError{
				Field:   path + ".type",
				Message: fmt.Sprintf("filter type must be \"and\" or \"or\", got %q", typ),
				Pos:     v.LookupPath(cue.ParsePath("type")).Pos(),
			}
		}
	}

	var conditions []query.ConditionExpression
	condVal := v.LookupPath(cue.ParsePath("conditions"))
	if condVal.Exists() {
		iter, err := condVal.List()
		if err != nil {
			return query.FilterExpression{}, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			c, err := parseCondition(iter.Value(), fmt.Sprintf("%s.conditions[%d]", path, i))
			if err != nil {
				return query.FilterExpression{}, err
			}
			conditions = append(conditions, c)
		}
	}

	var children []query.FilterExpression
	childVal := v.LookupPath(cue.ParsePath("filters"))
	if childVal.Exists() {
		iter, err := childVal.List()
		if err != nil {
			return query.FilterExpression{}, formatCUEError(err)
		}
		for i := 0; iter.Next(); i++ {
			child, err := parseFilter(iter.Value(), fmt.Sprintf("%s.filters[%d]", path, i))
			if err != nil {
				return query.FilterExpression{}, err
			}
			children = append(children, child)
		}
	}

	f, err := query.NewFilter(op, conditions, children...)
	if err != nil {
		return query.FilterExpression{}, fromValidation(err, path, v.Pos())
	}
	return f, nil
}

// parseCondition parses one condition. value may be a scalar, a list (for
// in and not-in) or absent (for null checks).
func parseCondition(v cue.Value, path string) (query.ConditionExpression, error) {
	attr, err := requiredString(v, "attribute")
	if err != nil {
		return query.ConditionExpression{}, err
	}
	opName, err := requiredString(v, "operator")
	if err != nil {
		return query.ConditionExpression{}, err
	}

	op, err := fetchxml.ParseConditionOperatorToken(opName)
	if err != nil {
		op, err = query.ParseConditionOperator(opName)
	}
	if err != nil {
		return query.ConditionExpression{}, &CompileError{
			Field:   path + ".operator",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("operator")).Pos(),
		}
	}

	var values []any
	valueVal := v.LookupPath(cue.ParsePath("value"))
	if valueVal.Exists() {
		decoded, err := decodeValue(valueVal, path+".value")
		if err != nil {
			return query.ConditionExpression{}, err
		}
		values = append(values, decoded)
	}

	c, err := query.NewCondition(attr, op, values...)
	if err != nil {
		return query.ConditionExpression{}, fromValidation(err, path, v.Pos())
	}
	return c, nil
}

// decodeValue converts a concrete CUE scalar or list of scalars into Go
// values accepted by query.NewCondition.
func decodeValue(v cue.Value, path string) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var items []any
		for i := 0; iter.Next(); i++ {
			item, err := decodeValue(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if items == nil {
			items = []any{}
		}
		return items, nil
	default:
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("value must be a concrete scalar or list, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// parseLinks parses the links list of a query or link. parent is the entity
// the links join from when their from.entity is omitted.
func parseLinks(v cue.Value, parent, path string) ([]query.LinkEntity, error) {
	linksVal := v.LookupPath(cue.ParsePath("links"))
	if !linksVal.Exists() {
		return nil, nil
	}
	iter, err := linksVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var links []query.LinkEntity
	for i := 0; iter.Next(); i++ {
		link, err := parseLink(iter.Value(), parent, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

func parseLink(v cue.Value, parent, path string) (query.LinkEntity, error) {
	fromVal := v.LookupPath(cue.ParsePath("from"))
	if !fromVal.Exists() {
		return query.LinkEntity{}, &CompileError{Field: path + ".from", Message: "from is required", Pos: v.Pos()}
	}
	toVal := v.LookupPath(cue.ParsePath("to"))
	if !toVal.Exists() {
		return query.LinkEntity{}, &CompileError{Field: path + ".to", Message: "to is required", Pos: v.Pos()}
	}

	fromEntity := parent
	if s, ok, err := optionalString(fromVal, "entity"); err != nil {
		return query.LinkEntity{}, err
	} else if ok {
		fromEntity = s
	}
	fromAttr, err := requiredString(fromVal, "attribute")
	if err != nil {
		return query.LinkEntity{}, err
	}
	toEntity, err := requiredString(toVal, "entity")
	if err != nil {
		return query.LinkEntity{}, err
	}
	toAttr, err := requiredString(toVal, "attribute")
	if err != nil {
		return query.LinkEntity{}, err
	}

	join := query.JoinInner
	if name, ok, err := optionalString(v, "join"); err != nil {
		return query.LinkEntity{}, err
	} else if ok {
		join, err = fetchxml.ParseJoinOperatorToken(name)
		if err != nil {
			join, err = query.ParseJoinOperator(name)
		}
		if err != nil {
			return query.LinkEntity{}, &CompileError{
				Field:   path + ".join",
				Message: err.Error(),
				Pos:     v.LookupPath(cue.ParsePath("join")).Pos(),
			}
		}
	}

	link, err := query.NewLinkEntity(fromEntity, fromAttr, toEntity, toAttr, join)
	if err != nil {
		return query.LinkEntity{}, fromValidation(err, path, v.Pos())
	}

	if v.LookupPath(cue.ParsePath("columns")).Exists() {
		cols, err := parseColumns(v, "columns", false)
		if err != nil {
			return query.LinkEntity{}, err
		}
		link = link.WithColumns(cols)
	}

	if alias, ok, err := optionalString(v, "alias"); err != nil {
		return query.LinkEntity{}, err
	} else if ok {
		link = link.WithAlias(alias)
	}

	if filterVal := v.LookupPath(cue.ParsePath("filter")); filterVal.Exists() {
		f, err := parseFilter(filterVal, path+".filter")
		if err != nil {
			return query.LinkEntity{}, err
		}
		link = link.WithCriteria(f)
	}

	nested, err := parseLinks(v, toEntity, path+".links")
	if err != nil {
		return query.LinkEntity{}, err
	}
	if len(nested) > 0 {
		link = link.WithLinks(nested...)
	}
	return link, nil
}

func parseOrders(v cue.Value) ([]query.OrderExpression, error) {
	ordersVal := v.LookupPath(cue.ParsePath("orders"))
	if !ordersVal.Exists() {
		return nil, nil
	}
	iter, err := ordersVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var orders []query.OrderExpression
	for i := 0; iter.Next(); i++ {
		ov := iter.Value()
		attr, err := requiredString(ov, "attribute")
		if err != nil {
			return nil, err
		}
		orderType := query.OrderAscending
		if desc, _, err := optionalBool(ov, "descending"); err != nil {
			return nil, err
		} else if desc {
			orderType = query.OrderDescending
		}
		o, err := query.NewOrder(attr, orderType)
		if err != nil {
			return nil, fromValidation(err, fmt.Sprintf("orders[%d]", i), ov.Pos())
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func parsePage(v cue.Value) (query.Option, error) {
	count, ok, err := optionalInt(v, "count")
	if err != nil {
		return nil, err
	}
	if !ok {
		count = query.DefaultPageSize
	}
	number, ok, err := optionalInt(v, "number")
	if err != nil {
		return nil, err
	}
	if !ok {
		number = 1
	}
	cookie, _, err := optionalString(v, "cookie")
	if err != nil {
		return nil, err
	}
	return query.WithPage(count, number, cookie), nil
}

// requiredString returns the string at field, or a CompileError when it is
// missing or not a string.
func requiredString(v cue.Value, field string) (string, error) {
	s, ok, err := optionalString(v, field)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a string", field),
			Pos:     fv.Pos(),
		}
	}
	return s, true, nil
}

func optionalInt(v cue.Value, field string) (int, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, false, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be an integer", field),
			Pos:     fv.Pos(),
		}
	}
	return int(n), true, nil
}

func optionalBool(v cue.Value, field string) (bool, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, false, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a boolean", field),
			Pos:     fv.Pos(),
		}
	}
	return b, true, nil
}
