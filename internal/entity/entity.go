// Package entity provides the record model exchanged with the Web API:
// Entity, EntityReference, OptionSet and their collections, plus parsing of
// annotated JSON rows into typed records.
package entity

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
)

// ErrInvalidRecord is wrapped by every construction error in this package.
var ErrInvalidRecord = errors.New("invalid record")

// EntityReference points at one record of a given logical type.
type EntityReference struct {
	LogicalName string    `json:"logical_name"`
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name,omitempty"`
}

// NewEntityReference returns a reference to logicalName/id.
// The logical name is required; the ID may be uuid.Nil for references that
// are resolved later.
func NewEntityReference(logicalName string, id uuid.UUID) (EntityReference, error) {
	if logicalName == "" {
		return EntityReference{}, fmt.Errorf("%w: entity reference logical name is required", ErrInvalidRecord)
	}
	return EntityReference{LogicalName: logicalName, ID: id}, nil
}

// ParseEntityReference is like NewEntityReference but parses id from text.
func ParseEntityReference(logicalName, id string) (EntityReference, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return EntityReference{}, fmt.Errorf("%w: entity reference id %q: %v", ErrInvalidRecord, id, err)
	}
	return NewEntityReference(logicalName, parsed)
}

// OptionSet is a choice value with its display label.
type OptionSet struct {
	Value int    `json:"value"`
	Label string `json:"label,omitempty"`
}

// Entity is a record instance: a logical type, an optional ID and a bag of
// attribute values.
//
// Attribute values are plain Go values (string, bool, int64, float64, nil,
// nested maps and slices) or the typed EntityReference and OptionSet.
type Entity struct {
	LogicalName string
	ID          uuid.UUID
	Attributes  map[string]any
}

// New returns an empty record of the given type.
func New(logicalName string) *Entity {
	return &Entity{LogicalName: logicalName, Attributes: make(map[string]any)}
}

// Get returns the value of attribute name.
func (e *Entity) Get(name string) (any, bool) {
	v, ok := e.Attributes[name]
	return v, ok
}

// Set stores value under attribute name.
func (e *Entity) Set(name string, value any) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[name] = value
}

// Delete removes attribute name.
func (e *Entity) Delete(name string) {
	delete(e.Attributes, name)
}

// GetString returns attribute name when it holds a string.
func (e *Entity) GetString(name string) (string, bool) {
	s, ok := e.Attributes[name].(string)
	return s, ok
}

// GetReference returns attribute name when it holds an EntityReference.
func (e *Entity) GetReference(name string) (EntityReference, bool) {
	ref, ok := e.Attributes[name].(EntityReference)
	return ref, ok
}

// GetOptionSet returns attribute name when it holds an OptionSet.
func (e *Entity) GetOptionSet(name string) (OptionSet, bool) {
	opt, ok := e.Attributes[name].(OptionSet)
	return opt, ok
}

// AttributeNames returns the attribute names in sorted order.
func (e *Entity) AttributeNames() []string {
	return slices.Sorted(maps.Keys(e.Attributes))
}

// Reference returns a reference to this record.
func (e *Entity) Reference() EntityReference {
	return EntityReference{LogicalName: e.LogicalName, ID: e.ID}
}

// ToMap flattens the record into a map with "id" and "logical_name" keys
// next to its attributes. Attributes never override those two keys.
func (e *Entity) ToMap() map[string]any {
	out := make(map[string]any, len(e.Attributes)+2)
	maps.Copy(out, e.Attributes)
	out["id"] = e.ID.String()
	out["logical_name"] = e.LogicalName
	return out
}
