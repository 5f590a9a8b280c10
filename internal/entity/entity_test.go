package entity

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	accountID = uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f")
	contactID = uuid.MustParse("0a1b2c3d-4e5f-4a6b-9c7d-8e9fa0b1c2d3")
	ownerID   = uuid.MustParse("11111111-2222-4333-8444-555555555555")
)

func decodeRow(t *testing.T, raw string) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.UseNumber()
	var row map[string]any
	require.NoError(t, dec.Decode(&row))
	return row
}

func TestParseEntity(t *testing.T) {
	row := decodeRow(t, `{
		"@odata.etag": "W/\"123\"",
		"accountid": "6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f",
		"name": "Contoso",
		"name@OData.Community.Display.V1.FormattedValue": "Contoso",
		"revenue": 1500000.5,
		"numberofemployees": 250,
		"industrycode": 7,
		"industrycode@OData.Community.Display.V1.FormattedValue": "Consulting",
		"_primarycontactid_value": "0a1b2c3d-4e5f-4a6b-9c7d-8e9fa0b1c2d3",
		"_primarycontactid_value@Microsoft.Dynamics.CRM.lookuplogicalname": "contact",
		"_primarycontactid_value@OData.Community.Display.V1.FormattedValue": "Yvonne McKay",
		"_ownerid_value": "11111111-2222-4333-8444-555555555555",
		"_ownerid_value@Microsoft.Dynamics.CRM.lookuplogicalname": "systemuser",
		"_parentaccountid_value": null,
		"donotemail": false,
		"description": null
	}`)

	e, err := ParseEntity("account", row)
	require.NoError(t, err)

	assert.Equal(t, "account", e.LogicalName)
	assert.Equal(t, accountID, e.ID)

	name, ok := e.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "Contoso", name)

	assert.Equal(t, 1500000.5, e.Attributes["revenue"])
	assert.Equal(t, int64(250), e.Attributes["numberofemployees"])
	assert.Equal(t, false, e.Attributes["donotemail"])
	assert.Nil(t, e.Attributes["description"])

	opt, ok := e.GetOptionSet("industrycode")
	require.True(t, ok)
	assert.Equal(t, OptionSet{Value: 7, Label: "Consulting"}, opt)

	contact, ok := e.GetReference("primarycontactid")
	require.True(t, ok)
	assert.Equal(t, EntityReference{LogicalName: "contact", ID: contactID, Name: "Yvonne McKay"}, contact)

	owner, ok := e.GetReference("ownerid")
	require.True(t, ok)
	assert.Equal(t, EntityReference{LogicalName: "systemuser", ID: ownerID}, owner)

	_, hasNullLookup := e.Get("parentaccountid")
	assert.False(t, hasNullLookup)
	for _, k := range e.AttributeNames() {
		assert.NotContains(t, k, "@")
		assert.NotContains(t, k, "_value")
	}
}

func TestParseEntity_Errors(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"bad id", `{"accountid": "not-a-guid"}`},
		{"non-string id", `{"accountid": 42}`},
		{"bad lookup id", `{"_ownerid_value": "nope", "_ownerid_value@Microsoft.Dynamics.CRM.lookuplogicalname": "systemuser"}`},
		{"lookup without logical name", `{"_ownerid_value": "11111111-2222-4333-8444-555555555555"}`},
		{"non-string lookup", `{"_ownerid_value": 5, "_ownerid_value@Microsoft.Dynamics.CRM.lookuplogicalname": "systemuser"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEntity("account", decodeRow(t, tt.row))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}

	_, err := ParseEntity("", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestParseEntity_PlainFloatRow(t *testing.T) {
	// Rows decoded without UseNumber carry float64 numbers.
	row := map[string]any{
		"statuscode": float64(1),
		"statuscode@OData.Community.Display.V1.FormattedValue": "Active",
		"ratio": 0.5,
	}
	e, err := ParseEntity("account", row)
	require.NoError(t, err)

	opt, ok := e.GetOptionSet("statuscode")
	require.True(t, ok)
	assert.Equal(t, OptionSet{Value: 1, Label: "Active"}, opt)
	assert.Equal(t, 0.5, e.Attributes["ratio"])
}

func TestEntityAccessors(t *testing.T) {
	e := New("contact")
	e.Set("firstname", "Yvonne")
	e.ID = contactID

	v, ok := e.Get("firstname")
	assert.True(t, ok)
	assert.Equal(t, "Yvonne", v)

	_, ok = e.GetReference("firstname")
	assert.False(t, ok)

	e.Delete("firstname")
	_, ok = e.Get("firstname")
	assert.False(t, ok)

	assert.Equal(t, EntityReference{LogicalName: "contact", ID: contactID}, e.Reference())

	var zero Entity
	zero.Set("x", 1)
	assert.Equal(t, 1, zero.Attributes["x"])
}

func TestEntityToMap(t *testing.T) {
	e := New("account")
	e.ID = accountID
	e.Set("name", "Contoso")
	e.Set("id", "shadowed")

	m := e.ToMap()
	assert.Equal(t, accountID.String(), m["id"])
	assert.Equal(t, "account", m["logical_name"])
	assert.Equal(t, "Contoso", m["name"])
	assert.Equal(t, "shadowed", e.Attributes["id"], "record is unchanged")
}

func TestEntityReference(t *testing.T) {
	_, err := NewEntityReference("", accountID)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	ref, err := ParseEntityReference("account", accountID.String())
	require.NoError(t, err)
	assert.Equal(t, accountID, ref.ID)

	_, err = ParseEntityReference("account", "xyz")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	data, err := json.Marshal(EntityReference{LogicalName: "account", ID: accountID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"logical_name":"account","id":"6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f"}`, string(data))
}
