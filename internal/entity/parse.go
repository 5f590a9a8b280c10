package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Annotation suffixes returned when a request sends
// Prefer: odata.include-annotations="*".
const (
	LookupLogicalNameAnnotation = "@Microsoft.Dynamics.CRM.lookuplogicalname"
	FormattedValueAnnotation    = "@OData.Community.Display.V1.FormattedValue"
)

// ParseEntity converts one annotated Web API row into a record.
//
// Rules, applied per key:
//   - keys starting with "@" (row metadata such as @odata.etag) are dropped
//   - keys containing "@" are annotations of another key and are consumed by it
//   - "_x_value" with a lookuplogicalname annotation becomes attribute x holding
//     an EntityReference named by the formatted value; a null lookup is dropped
//   - an integer with a formatted value becomes an OptionSet
//   - "<logicalName>id" also sets Entity.ID
//
// JSON numbers decoded with UseNumber are normalized to int64 or float64.
func ParseEntity(logicalName string, row map[string]any) (*Entity, error) {
	if logicalName == "" {
		return nil, fmt.Errorf("%w: logical name is required", ErrInvalidRecord)
	}
	e := New(logicalName)
	idKey := logicalName + "id"

	for _, key := range slices.Sorted(maps.Keys(row)) {
		raw := row[key]
		switch {
		case strings.Contains(key, "@"):
			continue

		case strings.HasPrefix(key, "_") && strings.HasSuffix(key, "_value") && len(key) > len("__value"):
			if raw == nil {
				continue
			}
			ref, err := parseLookup(key, raw, row)
			if err != nil {
				return nil, err
			}
			e.Set(key[1:len(key)-len("_value")], ref)

		default:
			value := normalizeNumber(raw)
			if n, ok := asInt(value); ok {
				if label, has := row[key+FormattedValueAnnotation]; has {
					s, _ := label.(string)
					e.Set(key, OptionSet{Value: n, Label: s})
					continue
				}
			}
			if key == idKey {
				s, ok := raw.(string)
				if !ok {
					return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidRecord, key, raw)
				}
				id, err := uuid.Parse(s)
				if err != nil {
					return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, key, err)
				}
				e.ID = id
			}
			e.Set(key, value)
		}
	}
	return e, nil
}

func parseLookup(key string, raw any, row map[string]any) (EntityReference, error) {
	idText, ok := raw.(string)
	if !ok {
		return EntityReference{}, fmt.Errorf("%w: lookup %s must be a string, got %T", ErrInvalidRecord, key, raw)
	}
	target, _ := row[key+LookupLogicalNameAnnotation].(string)
	ref, err := ParseEntityReference(target, idText)
	if err != nil {
		return EntityReference{}, fmt.Errorf("lookup %s: %w", key, err)
	}
	if name, ok := row[key+FormattedValueAnnotation].(string); ok {
		ref.Name = name
	}
	return ref, nil
}

// normalizeNumber converts json.Number into int64 or float64 and leaves every
// other value untouched.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// asInt reports whether v is an integral number that fits in an int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
