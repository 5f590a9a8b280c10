package entity

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// EntityCollection holds records of one logical type, as returned by a
// retrieve-multiple request.
//
// PagingCookie and MoreRecords carry the paging state reported with the
// page the collection was parsed from.
type EntityCollection struct {
	LogicalName  string
	Entities     []*Entity
	PagingCookie string
	MoreRecords  bool
}

// NewEntityCollection returns an empty collection for logicalName.
func NewEntityCollection(logicalName string) (*EntityCollection, error) {
	if logicalName == "" {
		return nil, fmt.Errorf("%w: collection logical name is required", ErrInvalidRecord)
	}
	return &EntityCollection{LogicalName: logicalName}, nil
}

// Len returns the number of records.
func (c *EntityCollection) Len() int {
	return len(c.Entities)
}

// Add appends e. The record must carry an ID and the collection's logical
// name. A record already present (same logical name and ID) is ignored.
func (c *EntityCollection) Add(e *Entity) error {
	if err := c.check(e); err != nil {
		return err
	}
	if c.indexOf(e.LogicalName, e.ID) >= 0 {
		return nil
	}
	c.Entities = append(c.Entities, e)
	return nil
}

// AddRow appends e without the duplicate check. Result pages of queries
// with one-to-many links repeat the parent record once per child row, and
// every row is kept.
func (c *EntityCollection) AddRow(e *Entity) error {
	if err := c.check(e); err != nil {
		return err
	}
	c.Entities = append(c.Entities, e)
	return nil
}

// Remove drops the record with e's logical name and ID, if present.
func (c *EntityCollection) Remove(e *Entity) error {
	if err := c.check(e); err != nil {
		return err
	}
	c.Entities = slices.DeleteFunc(c.Entities, func(x *Entity) bool {
		return x.LogicalName == e.LogicalName && x.ID == e.ID
	})
	return nil
}

// Append adds every row of other in order with AddRow. other must share
// the logical name.
func (c *EntityCollection) Append(other *EntityCollection) error {
	for _, e := range other.Entities {
		if err := c.AddRow(e); err != nil {
			return err
		}
	}
	return nil
}

// ToMaps flattens every record with Entity.ToMap.
func (c *EntityCollection) ToMaps() []map[string]any {
	out := make([]map[string]any, len(c.Entities))
	for i, e := range c.Entities {
		out[i] = e.ToMap()
	}
	return out
}

func (c *EntityCollection) check(e *Entity) error {
	if e == nil || e.ID == uuid.Nil || e.LogicalName == "" {
		return fmt.Errorf("%w: entity must have an ID and a logical name", ErrInvalidRecord)
	}
	if e.LogicalName != c.LogicalName {
		return fmt.Errorf("%w: entity %q does not belong to a %q collection", ErrInvalidRecord, e.LogicalName, c.LogicalName)
	}
	return nil
}

func (c *EntityCollection) indexOf(logicalName string, id uuid.UUID) int {
	return slices.IndexFunc(c.Entities, func(x *Entity) bool {
		return x.LogicalName == logicalName && x.ID == id
	})
}

// EntityReferenceCollection holds references of one logical type, as used by
// associate and disassociate requests.
type EntityReferenceCollection struct {
	LogicalName string
	References  []EntityReference
}

// NewEntityReferenceCollection returns a collection of refs. At least one
// reference is required, and every reference must carry an ID and
// logicalName.
func NewEntityReferenceCollection(logicalName string, refs ...EntityReference) (*EntityReferenceCollection, error) {
	if logicalName == "" {
		return nil, fmt.Errorf("%w: collection logical name is required", ErrInvalidRecord)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: at least one entity reference is required", ErrInvalidRecord)
	}
	c := &EntityReferenceCollection{LogicalName: logicalName}
	for _, ref := range refs {
		if err := c.Add(ref); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Len returns the number of references.
func (c *EntityReferenceCollection) Len() int {
	return len(c.References)
}

// Add appends ref, ignoring duplicates.
func (c *EntityReferenceCollection) Add(ref EntityReference) error {
	if ref.LogicalName != c.LogicalName {
		return fmt.Errorf("%w: reference %q does not belong to a %q collection", ErrInvalidRecord, ref.LogicalName, c.LogicalName)
	}
	if ref.ID == uuid.Nil {
		return fmt.Errorf("%w: entity reference ID is required", ErrInvalidRecord)
	}
	if slices.ContainsFunc(c.References, func(x EntityReference) bool { return x.ID == ref.ID }) {
		return nil
	}
	c.References = append(c.References, ref)
	return nil
}

// Remove drops the reference with ref's ID, if present.
func (c *EntityReferenceCollection) Remove(ref EntityReference) {
	c.References = slices.DeleteFunc(c.References, func(x EntityReference) bool {
		return x.LogicalName == ref.LogicalName && x.ID == ref.ID
	})
}
