package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAmbiguousRelationship is returned when more than one relationship
// connects two entities and no schema name was given to pick one.
var ErrAmbiguousRelationship = errors.New("ambiguous relationship")

// OneToManyRelationship is a 1:N or N:1 relationship definition. The
// referenced entity is the "one" side.
type OneToManyRelationship struct {
	SchemaName                              string `json:"SchemaName"`
	ReferencedAttribute                     string `json:"ReferencedAttribute"`
	ReferencedEntity                        string `json:"ReferencedEntity"`
	ReferencedEntityNavigationPropertyName  string `json:"ReferencedEntityNavigationPropertyName"`
	ReferencingAttribute                    string `json:"ReferencingAttribute"`
	ReferencingEntity                       string `json:"ReferencingEntity"`
	ReferencingEntityNavigationPropertyName string `json:"ReferencingEntityNavigationPropertyName"`
}

// ManyToManyRelationship is an N:N relationship through an intersect entity.
type ManyToManyRelationship struct {
	SchemaName                    string `json:"SchemaName"`
	IntersectEntityName           string `json:"IntersectEntityName"`
	Entity1LogicalName            string `json:"Entity1LogicalName"`
	Entity1IntersectAttribute     string `json:"Entity1IntersectAttribute"`
	Entity1NavigationPropertyName string `json:"Entity1NavigationPropertyName"`
	Entity2LogicalName            string `json:"Entity2LogicalName"`
	Entity2IntersectAttribute     string `json:"Entity2IntersectAttribute"`
	Entity2NavigationPropertyName string `json:"Entity2NavigationPropertyName"`
}

// RelationshipKind distinguishes the three relationship collections.
type RelationshipKind int

const (
	OneToMany RelationshipKind = iota
	ManyToOne
	ManyToMany
)

func (k RelationshipKind) String() string {
	switch k {
	case OneToMany:
		return "one-to-many"
	case ManyToOne:
		return "many-to-one"
	case ManyToMany:
		return "many-to-many"
	default:
		return fmt.Sprintf("RelationshipKind(%d)", int(k))
	}
}

// Relationship is a resolved relationship seen from the primary entity.
//
// NavigationProperty is the property on the primary entity that addresses
// the related records; associate and disassociate requests put it in the
// URL. It falls back to SchemaName when the definition has none.
type Relationship struct {
	Kind               RelationshipKind
	SchemaName         string
	NavigationProperty string
}

// FindRelationship resolves the relationship that connects primary to
// related records.
//
// With schemaName set, the relationship with that schema name (compared
// case-insensitively) is returned. Without it the relationship is inferred,
// and more than one candidate is ErrAmbiguousRelationship.
func (m *OrgMetadata) FindRelationship(primary, related, schemaName string) (Relationship, error) {
	if !m.ContainsRelationships {
		return Relationship{}, fmt.Errorf("%w: metadata was loaded without relationships", ErrNotFound)
	}
	e, err := m.Entity(primary)
	if err != nil {
		return Relationship{}, err
	}

	var candidates []Relationship
	add := func(kind RelationshipKind, name, nav string) {
		if schemaName != "" && !strings.EqualFold(name, schemaName) {
			return
		}
		if nav == "" {
			nav = name
		}
		candidates = append(candidates, Relationship{Kind: kind, SchemaName: name, NavigationProperty: nav})
	}

	for _, r := range e.OneToManyRelationships {
		if r.ReferencedEntity == primary && r.ReferencingEntity == related {
			add(OneToMany, r.SchemaName, r.ReferencedEntityNavigationPropertyName)
		}
	}
	for _, r := range e.ManyToOneRelationships {
		if r.ReferencingEntity == primary && r.ReferencedEntity == related {
			add(ManyToOne, r.SchemaName, r.ReferencingEntityNavigationPropertyName)
		}
	}
	for _, r := range e.ManyToManyRelationships {
		switch {
		case r.Entity1LogicalName == primary && r.Entity2LogicalName == related:
			add(ManyToMany, r.SchemaName, r.Entity1NavigationPropertyName)
		case r.Entity2LogicalName == primary && r.Entity1LogicalName == related:
			add(ManyToMany, r.SchemaName, r.Entity2NavigationPropertyName)
		}
	}

	switch len(candidates) {
	case 0:
		if schemaName != "" {
			return Relationship{}, fmt.Errorf("%w: relationship %s between %s and %s", ErrNotFound, schemaName, primary, related)
		}
		return Relationship{}, fmt.Errorf("%w: no relationship between %s and %s", ErrNotFound, primary, related)
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.SchemaName
		}
		return Relationship{}, fmt.Errorf("%w: %s and %s are connected by %s", ErrAmbiguousRelationship, primary, related, strings.Join(names, ", "))
	}
}
