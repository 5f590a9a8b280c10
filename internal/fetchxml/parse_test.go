package fetchxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dvsdk/internal/ir"
	"github.com/roach88/dvsdk/internal/query"
)

func TestParse_RoundTrip(t *testing.T) {
	nested := mustLink(t, "contact", "parentcustomerid", "account", "accountid", query.JoinNotAll).
		WithColumns(query.MustColumnSet("name"))
	link := mustLink(t, "opportunity", "customerid", "contact", "contactid", query.JoinMatchFirstRow).
		WithAlias("c").
		WithCriteria(query.Or(
			query.MustCondition("firstname", query.OpBeginsWith, "J"),
			query.MustCondition("lastname", query.OpNotIn, "Doe", "Roe"),
		)).
		WithLinks(nested)

	queries := map[string]query.QueryExpression{
		"all columns": query.MustQuery("account", query.AllColumns()),
		"top distinct": query.MustQuery("account", query.MustColumnSet("name"),
			query.WithTop(3), query.WithDistinct(), query.WithNoLock()),
		"paged": query.MustQuery("account", query.MustColumnSet("name"),
			query.WithPage(10, 4, `<cookie page="3" />`)),
		"filters and links": query.MustQuery("opportunity", query.MustColumnSet("name", "estimatedvalue"),
			query.WithCriteria(query.And(
				query.MustCondition("estimatedvalue", query.OpGreater, 5000.5),
				query.MustCondition("parentaccountid", query.OpNull),
			).WithFilters(query.Or(query.MustCondition("name", query.OpLike, "%O'Brien & Co%")))),
			query.WithLinks(link),
			query.WithOrders(
				query.OrderExpression{AttributeName: "estimatedvalue", OrderType: query.OrderDescending},
				query.OrderExpression{AttributeName: "name"},
			)),
	}

	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			doc := Compile(q)

			parsed, err := Parse([]byte(doc))
			require.NoError(t, err)
			assert.Equal(t, doc, Compile(parsed))
		})
	}
}

func TestParse_LinkDirection(t *testing.T) {
	doc := `<fetch><entity name="account"><all-attributes />` +
		`<link-entity name="contact" from="contactid" to="primarycontactid" link-type="outer"><attribute name="fullname" /></link-entity>` +
		`</entity></fetch>`

	q, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, q.LinkEntities, 1)

	l := q.LinkEntities[0]
	assert.Equal(t, "account", l.LinkFromEntityName)
	assert.Equal(t, "primarycontactid", l.LinkFromAttributeName)
	assert.Equal(t, "contact", l.LinkToEntityName)
	assert.Equal(t, "contactid", l.LinkToAttributeName)
	assert.Equal(t, query.JoinOuter, l.JoinOperator)
	require.NotNil(t, l.Columns)
	assert.Equal(t, []string{"fullname"}, l.Columns.Columns())
}

func TestParse_Defaults(t *testing.T) {
	doc := `<fetch><entity name="account"><attribute name="name" />` +
		`<filter><condition attribute="name" operator="eq" value="Acme" /></filter>` +
		`<link-entity name="contact" from="contactid" to="primarycontactid" />` +
		`</entity></fetch>`

	q, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.NotNil(t, q.Criteria)
	assert.Equal(t, query.FilterAnd, q.Criteria.FilterOperator)
	assert.Equal(t, ir.IRString("Acme"), q.Criteria.Conditions[0].Value())
	assert.Equal(t, query.JoinInner, q.LinkEntities[0].JoinOperator)
	assert.Nil(t, q.LinkEntities[0].Columns)
	assert.Nil(t, q.TopCount)
	assert.Nil(t, q.PageInfo)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", `<fetch`},
		{"wrong root", `<query><entity name="a"><all-attributes /></entity></query>`},
		{"no projection", `<fetch><entity name="account"></entity></fetch>`},
		{"mixed projection", `<fetch><entity name="account"><all-attributes /><attribute name="x" /></entity></fetch>`},
		{"unknown operator", `<fetch><entity name="a"><all-attributes /><filter><condition attribute="x" operator="between" value="1" /></filter></entity></fetch>`},
		{"unknown filter type", `<fetch><entity name="a"><all-attributes /><filter type="xor"><condition attribute="x" operator="null" /></filter></entity></fetch>`},
		{"unknown link type", `<fetch><entity name="a"><all-attributes /><link-entity name="b" from="x" to="y" link-type="left" /></entity></fetch>`},
		{"two root filters", `<fetch><entity name="a"><all-attributes /><filter><condition attribute="x" operator="null" /></filter><filter><condition attribute="y" operator="null" /></filter></entity></fetch>`},
		{"missing value", `<fetch><entity name="a"><all-attributes /><filter><condition attribute="x" operator="eq" /></filter></entity></fetch>`},
		{"empty in", `<fetch><entity name="a"><all-attributes /><filter><condition attribute="x" operator="in" /></filter></entity></fetch>`},
		{"zero top", `<fetch top="0"><entity name="a"><all-attributes /></entity></fetch>`},
		{"missing entity name", `<fetch><entity><all-attributes /></entity></fetch>`},
		{"mixed link projection", `<fetch><entity name="a"><all-attributes /><link-entity name="b" from="x" to="y"><all-attributes /><attribute name="z" /></link-entity></entity></fetch>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_WhitespaceSurvives(t *testing.T) {
	const tricky = "a\r\nb\tc"

	q := query.MustQuery("account", query.MustColumnSet("name"),
		query.WithCriteria(query.And(
			query.MustCondition("name", query.OpEqual, tricky),
			query.MustCondition("description", query.OpIn, tricky, "plain"),
		)))

	doc := Compile(q)
	assert.Contains(t, doc, `value="a&#13;&#10;b&#9;c"`)
	assert.Contains(t, doc, "<value>a&#13;\nb\tc</value>")

	parsed, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.NotNil(t, parsed.Criteria)
	require.Len(t, parsed.Criteria.Conditions, 2)
	assert.Equal(t, ir.IRString(tricky), parsed.Criteria.Conditions[0].Values[0])
	assert.Equal(t, ir.IRString(tricky), parsed.Criteria.Conditions[1].Values[0])
	assert.Equal(t, doc, Compile(parsed))
}
