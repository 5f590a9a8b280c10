package fetchxml

import (
	"strconv"
	"strings"

	"github.com/roach88/dvsdk/internal/ir"
	"github.com/roach88/dvsdk/internal/query"
)

// escaper replaces the five reserved XML characters.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// attrEscaper also writes tab, line feed and carriage return as character
// references so attribute-value normalization leaves them intact.
var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
	"\t", "&#9;",
	"\n", "&#10;",
	"\r", "&#13;",
)

// textEscaper keeps carriage returns inside <value> text from being
// folded into line feeds by end-of-line handling.
var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
	"\r", "&#13;",
)

// Escape returns s with &, <, >, " and ' replaced by their entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Compile converts a query tree into a FetchXML document.
//
// Same input, same bytes: Compile never sorts, deduplicates or reorders.
// The output carries no XML declaration and no insignificant whitespace.
func Compile(q query.QueryExpression) string {
	var b strings.Builder
	writeFetch(&b, q)
	return b.String()
}

func writeFetch(b *strings.Builder, q query.QueryExpression) {
	b.WriteString(`<fetch version="1.0" output-format="xml-platform" mapping="logical"`)
	if q.TopCount != nil {
		writeAttr(b, "top", strconv.Itoa(*q.TopCount))
	}
	if q.Distinct {
		writeAttr(b, "distinct", "true")
	}
	if q.NoLock {
		writeAttr(b, "no-lock", "true")
	}
	if q.PageInfo != nil {
		writeAttr(b, "count", strconv.Itoa(q.PageInfo.Count))
		writeAttr(b, "page", strconv.Itoa(q.PageInfo.PageNumber))
		if q.PageInfo.PagingCookie != "" {
			writeAttr(b, "paging-cookie", q.PageInfo.PagingCookie)
		}
	}
	b.WriteString(">")

	b.WriteString("<entity")
	writeAttr(b, "name", q.EntityName)
	b.WriteString(">")

	writeColumns(b, q.ColumnSet)
	if q.Criteria != nil {
		writeFilter(b, *q.Criteria)
	}
	for _, link := range q.LinkEntities {
		writeLink(b, link)
	}
	for _, order := range q.Orders {
		writeOrder(b, order)
	}

	b.WriteString("</entity></fetch>")
}

// writeAttr appends ` name="value"` with value escaped.
func writeAttr(b *strings.Builder, name, value string) {
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(attrEscaper.Replace(value))
	b.WriteByte('"')
}

func writeColumns(b *strings.Builder, c query.ColumnSet) {
	if c.IsAll() {
		b.WriteString("<all-attributes />")
		return
	}
	for _, name := range c.Columns() {
		b.WriteString("<attribute")
		writeAttr(b, "name", name)
		b.WriteString(" />")
	}
}

// writeFilter emits f and its non-empty descendants. An empty subtree
// writes nothing.
func writeFilter(b *strings.Builder, f query.FilterExpression) {
	if f.IsEmpty() {
		return
	}
	b.WriteString("<filter")
	writeAttr(b, "type", f.FilterOperator.String())
	b.WriteString(">")

	for _, c := range f.Conditions {
		writeCondition(b, c)
	}
	for _, child := range f.Filters {
		writeFilter(b, child)
	}

	b.WriteString("</filter>")
}

func writeCondition(b *strings.Builder, c query.ConditionExpression) {
	token, _ := ConditionOperatorToken(c.Operator)

	b.WriteString("<condition")
	writeAttr(b, "attribute", c.AttributeName)
	writeAttr(b, "operator", token)

	switch {
	case c.Operator.IsNullCheck():
		b.WriteString(" />")

	case c.Operator.IsSetMembership():
		b.WriteString(">")
		for _, v := range c.Values {
			b.WriteString("<value>")
			b.WriteString(textEscaper.Replace(ir.FormatScalar(v)))
			b.WriteString("</value>")
		}
		b.WriteString("</condition>")

	default:
		writeAttr(b, "value", ir.FormatScalar(c.Value()))
		b.WriteString(" />")
	}
}

func writeLink(b *strings.Builder, l query.LinkEntity) {
	token, _ := JoinOperatorToken(l.JoinOperator)

	b.WriteString("<link-entity")
	writeAttr(b, "name", l.LinkToEntityName)
	writeAttr(b, "from", l.LinkToAttributeName)
	writeAttr(b, "to", l.LinkFromAttributeName)
	writeAttr(b, "link-type", token)
	if l.EntityAlias != "" {
		writeAttr(b, "alias", l.EntityAlias)
	}
	b.WriteString(">")

	if l.Columns != nil {
		writeColumns(b, *l.Columns)
	} else {
		writeColumns(b, query.AllColumns())
	}
	if l.LinkCriteria != nil {
		writeFilter(b, *l.LinkCriteria)
	}
	for _, child := range l.LinkEntities {
		writeLink(b, child)
	}

	b.WriteString("</link-entity>")
}

func writeOrder(b *strings.Builder, o query.OrderExpression) {
	b.WriteString("<order")
	writeAttr(b, "attribute", o.AttributeName)
	if o.OrderType == query.OrderDescending {
		writeAttr(b, "descending", "true")
	}
	b.WriteString(" />")
}
