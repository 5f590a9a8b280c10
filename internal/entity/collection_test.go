package entity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(logicalName string, id uuid.UUID) *Entity {
	e := New(logicalName)
	e.ID = id
	return e
}

func TestEntityCollection(t *testing.T) {
	_, err := NewEntityCollection("")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	c, err := NewEntityCollection("account")
	require.NoError(t, err)

	require.NoError(t, c.Add(record("account", accountID)))
	require.NoError(t, c.Add(record("account", accountID)), "duplicate is ignored")
	require.NoError(t, c.Add(record("account", ownerID)))
	assert.Equal(t, 2, c.Len())

	assert.ErrorIs(t, c.Add(record("contact", contactID)), ErrInvalidRecord)
	assert.ErrorIs(t, c.Add(record("account", uuid.Nil)), ErrInvalidRecord)
	assert.ErrorIs(t, c.Add(nil), ErrInvalidRecord)

	require.NoError(t, c.Remove(record("account", accountID)))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, ownerID, c.Entities[0].ID)

	maps := c.ToMaps()
	require.Len(t, maps, 1)
	assert.Equal(t, ownerID.String(), maps[0]["id"])
}

func TestEntityCollectionAppend(t *testing.T) {
	a, _ := NewEntityCollection("account")
	b, _ := NewEntityCollection("account")
	require.NoError(t, a.Add(record("account", accountID)))
	require.NoError(t, b.Add(record("account", accountID)))
	require.NoError(t, b.Add(record("account", ownerID)))

	require.NoError(t, a.Append(b))
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, ownerID, a.Entities[2].ID)

	other, _ := NewEntityCollection("contact")
	require.NoError(t, other.Add(record("contact", contactID)))
	assert.ErrorIs(t, a.Append(other), ErrInvalidRecord)
}

func TestEntityCollectionAddRow(t *testing.T) {
	c, _ := NewEntityCollection("account")
	first := record("account", accountID)
	first.Set("c.fullname", "Ana Ruiz")
	second := record("account", accountID)
	second.Set("c.fullname", "Ben Ode")

	require.NoError(t, c.AddRow(first))
	require.NoError(t, c.AddRow(second))
	require.Equal(t, 2, c.Len())
	assert.Equal(t, "Ana Ruiz", c.Entities[0].Attributes["c.fullname"])
	assert.Equal(t, "Ben Ode", c.Entities[1].Attributes["c.fullname"])

	assert.ErrorIs(t, c.AddRow(&Entity{LogicalName: "account"}), ErrInvalidRecord)
	assert.ErrorIs(t, c.AddRow(record("contact", contactID)), ErrInvalidRecord)
}

func TestEntityReferenceCollection(t *testing.T) {
	ref := EntityReference{LogicalName: "contact", ID: contactID}

	_, err := NewEntityReferenceCollection("contact")
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, err = NewEntityReferenceCollection("", ref)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, err = NewEntityReferenceCollection("account", ref)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, err = NewEntityReferenceCollection("contact", EntityReference{LogicalName: "contact"})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	c, err := NewEntityReferenceCollection("contact", ref, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	other := EntityReference{LogicalName: "contact", ID: ownerID}
	require.NoError(t, c.Add(other))
	assert.Equal(t, 2, c.Len())

	c.Remove(ref)
	assert.Equal(t, []EntityReference{other}, c.References)
}
