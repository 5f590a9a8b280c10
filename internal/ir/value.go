package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
)

// IRValue is a sealed interface representing constrained value types.
// Only IRNull, IRString, IRInt, IRDecimal, IRBool, IRGuid, IRArray and
// IRObject implement it.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents an absent value.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value.
type IRInt int64

func (IRInt) irValue() {}

// IRDecimal represents a finite decimal number (money, decimal and float
// columns on the service side).
type IRDecimal float64

func (IRDecimal) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRGuid represents a unique identifier.
type IRGuid uuid.UUID

func (IRGuid) irValue() {}

// String returns the canonical lowercase 8-4-4-4-12 form.
func (g IRGuid) String() string {
	return uuid.UUID(g).String()
}

// IRArray represents an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// NewIRString creates an IRString value.
func NewIRString(s string) IRString {
	return IRString(s)
}

// NewIRInt creates an IRInt value.
func NewIRInt(n int64) IRInt {
	return IRInt(n)
}

// NewIRBool creates an IRBool value.
func NewIRBool(b bool) IRBool {
	return IRBool(b)
}

// NewIRGuid creates an IRGuid value.
func NewIRGuid(id uuid.UUID) IRGuid {
	return IRGuid(id)
}

// NewIRDecimal creates an IRDecimal value.
// Returns an error for NaN or infinite input.
func NewIRDecimal(f float64) (IRDecimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("decimal must be finite, got %v", f)
	}
	return IRDecimal(f), nil
}

// NewIRArray creates an IRArray from values.
func NewIRArray(vals ...IRValue) IRArray {
	return IRArray(vals)
}

// IsScalar reports whether v is a single non-null scalar.
func IsScalar(v IRValue) bool {
	switch v.(type) {
	case IRString, IRInt, IRDecimal, IRBool, IRGuid:
		return true
	default:
		return false
	}
}

// FromAny converts a Go value into an IRValue.
//
// Accepted inputs: nil, string, all integer kinds, float32/float64 (finite),
// bool, uuid.UUID, IRValue, map[string]any and slices of any of these
// ([]int, []uuid.UUID, ...). Nested slices and maps are converted recursively.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int8:
		return IRInt(val), nil
	case int16:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint8:
		return IRInt(val), nil
	case uint16:
		return IRInt(val), nil
	case uint32:
		return IRInt(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return IRInt(val), nil
	case float32:
		return NewIRDecimal(float64(val))
	case float64:
		return NewIRDecimal(val)
	case bool:
		return IRBool(val), nil
	case uuid.UUID:
		return IRGuid(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return IRInt(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return NewIRDecimal(f)
	case []string:
		arr := make(IRArray, len(val))
		for i, s := range val {
			arr[i] = IRString(s)
		}
		return arr, nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return nil, fmt.Errorf("unsupported type: %T", v)
		}
		arr := make(IRArray, rv.Len())
		for i := range rv.Len() {
			irElem, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	}
}

// FormatScalar renders a value the way the service expects it inside
// markup and URLs:
//   - strings verbatim
//   - GUIDs in canonical lowercase form
//   - booleans as true/false
//   - integers in decimal
//   - decimals in shortest round-trip form, never with an exponent
//
// IRNull renders as the empty string. Lists render their elements joined by
// commas; callers that need one entry per element iterate themselves.
func FormatScalar(v IRValue) string {
	switch val := v.(type) {
	case nil, IRNull:
		return ""
	case IRString:
		return string(val)
	case IRGuid:
		return val.String()
	case IRBool:
		return strconv.FormatBool(bool(val))
	case IRInt:
		return strconv.FormatInt(int64(val), 10)
	case IRDecimal:
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case IRArray:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = FormatScalar(elem)
		}
		return strings.Join(parts, ",")
	case IRObject:
		b, err := MarshalCanonical(val)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for some ranges.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
