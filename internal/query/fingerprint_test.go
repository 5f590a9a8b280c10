package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAccountQuery(t *testing.T, top int) QueryExpression {
	t.Helper()
	link, err := NewLinkEntity("account", "primarycontactid", "contact", "contactid", JoinOuter)
	require.NoError(t, err)

	q, err := NewQuery("account", MustColumnSet("name"),
		WithCriteria(And(MustCondition("statecode", OpEqual, 0), MustCondition("industrycode", OpIn, 1, 2))),
		WithLinks(link.WithColumns(MustColumnSet("fullname")).WithAlias("pc")),
		WithOrders(OrderExpression{AttributeName: "name"}),
		WithTop(top),
	)
	require.NoError(t, err)
	return q
}

func TestFingerprint_Deterministic(t *testing.T) {
	a, err := Fingerprint(buildAccountQuery(t, 10))
	require.NoError(t, err)
	b, err := Fingerprint(buildAccountQuery(t, 10))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_StructureSensitive(t *testing.T) {
	a, err := Fingerprint(buildAccountQuery(t, 10))
	require.NoError(t, err)
	b, err := Fingerprint(buildAccountQuery(t, 11))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	paged := MustQuery("account", AllColumns(), WithPage(50, 1, ""))
	c, err := Fingerprint(paged)
	require.NoError(t, err)
	d, err := Fingerprint(paged.NextPage("cookie"))
	require.NoError(t, err)
	assert.NotEqual(t, c, d)
}

func TestToIR_OmitsAbsentFields(t *testing.T) {
	obj := ToIR(MustQuery("account", AllColumns()))

	_, hasCriteria := obj["criteria"]
	_, hasTop := obj["top_count"]
	_, hasPage := obj["page_info"]
	assert.False(t, hasCriteria)
	assert.False(t, hasTop)
	assert.False(t, hasPage)
}
