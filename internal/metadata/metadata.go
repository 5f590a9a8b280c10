// Package metadata decodes the organization's entity definitions and answers
// the lookups the request builders need: collection names, attribute types,
// $select column lists and relationship names.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/dvsdk/internal/ir"
)

// ErrNotFound is wrapped when an entity, attribute or relationship is not
// present in the loaded metadata.
var ErrNotFound = errors.New("metadata not found")

const attributeSelect = "Attributes($select=LogicalName,AttributeType,SchemaName)"

// DefinitionsPath returns the Web API path, relative to the service root,
// that lists every entity definition with its attributes. With
// relationships set the three relationship collections are expanded too.
func DefinitionsPath(apiVersion string, relationships bool) string {
	expand := attributeSelect
	if relationships {
		expand += ",OneToManyRelationships,ManyToOneRelationships,ManyToManyRelationships"
	}
	return "api/data/" + apiVersion + "/EntityDefinitions?$expand=" + expand
}

// AttributeMetadata describes one column of an entity.
type AttributeMetadata struct {
	LogicalName   string `json:"LogicalName"`
	AttributeType string `json:"AttributeType"`
	SchemaName    string `json:"SchemaName"`
}

// IsLookup reports whether the attribute holds a reference to another
// record. Lookup columns are read as _<name>_value and written with
// @odata.bind.
func (a AttributeMetadata) IsLookup() bool {
	switch a.AttributeType {
	case "Lookup", "Owner", "Customer":
		return true
	default:
		return false
	}
}

// EntityMetadata describes one entity definition.
type EntityMetadata struct {
	LogicalName           string              `json:"LogicalName"`
	LogicalCollectionName string              `json:"LogicalCollectionName"`
	SchemaName            string              `json:"SchemaName"`
	PrimaryIDAttribute    string              `json:"PrimaryIdAttribute"`
	PrimaryNameAttribute  string              `json:"PrimaryNameAttribute"`
	Attributes            []AttributeMetadata `json:"Attributes"`

	OneToManyRelationships  []OneToManyRelationship  `json:"OneToManyRelationships,omitempty"`
	ManyToOneRelationships  []OneToManyRelationship  `json:"ManyToOneRelationships,omitempty"`
	ManyToManyRelationships []ManyToManyRelationship `json:"ManyToManyRelationships,omitempty"`
}

// Attribute returns the attribute with the given logical name.
func (e *EntityMetadata) Attribute(logicalName string) (*AttributeMetadata, error) {
	for i := range e.Attributes {
		if e.Attributes[i].LogicalName == logicalName {
			return &e.Attributes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: attribute %s.%s", ErrNotFound, e.LogicalName, logicalName)
}

func (e *EntityMetadata) hasRelationships() bool {
	return e.OneToManyRelationships != nil || e.ManyToOneRelationships != nil || e.ManyToManyRelationships != nil
}

// OrgMetadata is the set of entity definitions of one organization.
type OrgMetadata struct {
	Entities []EntityMetadata

	// ContainsRelationships is set when the definitions were fetched with
	// their relationship collections expanded.
	ContainsRelationships bool

	byName map[string]int
}

// New indexes entities by logical name. Later duplicates shadow earlier ones.
func New(entities []EntityMetadata, containsRelationships bool) *OrgMetadata {
	m := &OrgMetadata{
		Entities:              entities,
		ContainsRelationships: containsRelationships,
		byName:                make(map[string]int, len(entities)),
	}
	for i, e := range entities {
		m.byName[e.LogicalName] = i
	}
	return m
}

// Decode reads an EntityDefinitions response body. A body with no entity
// definitions is an error.
func Decode(r io.Reader) (*OrgMetadata, error) {
	var body struct {
		Value []EntityMetadata `json:"value"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode entity definitions: %w", err)
	}
	if len(body.Value) == 0 {
		return nil, fmt.Errorf("%w: response contains no entity definitions", ErrNotFound)
	}
	withRelationships := false
	for i := range body.Value {
		if body.Value[i].hasRelationships() {
			withRelationships = true
			break
		}
	}
	return New(body.Value, withRelationships), nil
}

// Entity returns the definition for logicalName.
func (m *OrgMetadata) Entity(logicalName string) (*EntityMetadata, error) {
	if m.byName != nil {
		if i, ok := m.byName[logicalName]; ok {
			return &m.Entities[i], nil
		}
	} else {
		for i := len(m.Entities) - 1; i >= 0; i-- {
			if m.Entities[i].LogicalName == logicalName {
				return &m.Entities[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: entity %s", ErrNotFound, logicalName)
}

// CollectionName returns the entity set name used in Web API URLs.
func (m *OrgMetadata) CollectionName(logicalName string) (string, error) {
	e, err := m.Entity(logicalName)
	if err != nil {
		return "", err
	}
	if e.LogicalCollectionName == "" {
		return "", fmt.Errorf("%w: entity %s has no collection name", ErrNotFound, logicalName)
	}
	return e.LogicalCollectionName, nil
}

// Attribute returns attribute attr of entity.
func (m *OrgMetadata) Attribute(entity, attr string) (*AttributeMetadata, error) {
	e, err := m.Entity(entity)
	if err != nil {
		return nil, err
	}
	return e.Attribute(attr)
}

// Fingerprint identifies the entity and attribute shape of m. Relationship
// collections are included when present.
func (m *OrgMetadata) Fingerprint() (string, error) {
	entities := make(ir.IRObject, len(m.Entities))
	for _, e := range m.Entities {
		attrs := make(ir.IRObject, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs[a.LogicalName] = ir.IRString(a.AttributeType)
		}
		obj := ir.IRObject{
			"collection": ir.IRString(e.LogicalCollectionName),
			"attributes": attrs,
		}
		if e.hasRelationships() {
			rels := ir.IRArray{}
			for _, r := range e.OneToManyRelationships {
				rels = append(rels, ir.IRString("1:N "+r.SchemaName))
			}
			for _, r := range e.ManyToOneRelationships {
				rels = append(rels, ir.IRString("N:1 "+r.SchemaName))
			}
			for _, r := range e.ManyToManyRelationships {
				rels = append(rels, ir.IRString("N:N "+r.SchemaName))
			}
			obj["relationships"] = rels
		}
		entities[e.LogicalName] = obj
	}
	return ir.Fingerprint(ir.DomainMetadata, ir.IRObject{
		"entities":      entities,
		"relationships": ir.IRBool(m.ContainsRelationships),
	})
}
