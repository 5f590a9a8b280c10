package messages

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/dvsdk/internal/entity"
)

// BindSuffix marks a property that binds a lookup to another record.
const BindSuffix = "@odata.bind"

// EntityBody converts a record into a create or update payload.
//
// EntityReference values must target lookup attributes and become
// "<SchemaName>@odata.bind": "/<collection>(<id>)". OptionSet values are
// sent as their integer value. Every other value is sent as is.
func (b *Builder) EntityBody(e *entity.Entity) (map[string]any, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: entity is required", ErrInvalidRequest)
	}
	meta, err := b.Metadata.Entity(e.LogicalName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	body := make(map[string]any, len(e.Attributes))
	for _, name := range e.AttributeNames() {
		value := e.Attributes[name]
		switch v := value.(type) {
		case *entity.EntityReference:
			if v == nil {
				body[name] = nil
				continue
			}
			value = *v
		case *entity.OptionSet:
			if v == nil {
				body[name] = nil
				continue
			}
			value = *v
		}

		switch v := value.(type) {
		case entity.EntityReference:
			attr, err := meta.Attribute(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
			}
			if !attr.IsLookup() {
				return nil, fmt.Errorf("%w: attribute %s.%s is %s, not a lookup", ErrInvalidRequest, e.LogicalName, name, attr.AttributeType)
			}
			if v.ID == uuid.Nil {
				return nil, fmt.Errorf("%w: lookup %s has no ID", ErrInvalidRequest, name)
			}
			target, err := b.EntityPath(v.LogicalName, v.ID)
			if err != nil {
				return nil, err
			}
			body[attr.SchemaName+BindSuffix] = "/" + target
		case entity.OptionSet:
			body[name] = v.Value
		default:
			body[name] = value
		}
	}
	return body, nil
}
