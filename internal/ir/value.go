package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/shopspring/decimal"
)

// TimeLayout is the wire and storage layout for date/time values.
// Millisecond precision, always UTC.
const TimeLayout = "2006-01-02 15:04:05.000"

// DecimalScale is the number of fractional digits every stored decimal keeps.
// Both backends round to it so aggregates agree.
const DecimalScale = 4

// IRValue is a sealed interface representing the values a query can produce.
// Only the types in this file implement it.
// NO floats - decimals are exact (IRDecimal) so both backends agree bit for bit.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents an absent value.
// Using an explicit type ensures all IRValues satisfy the sealed interface.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRDecimal represents an exact decimal value.
type IRDecimal struct {
	decimal.Decimal
}

func (IRDecimal) irValue() {}

// IRTime represents a date/time value, normalized to UTC milliseconds.
type IRTime struct {
	time.Time
}

func (IRTime) irValue() {}

// IRLite is a light reference to an entity: its type, id and display text.
// ToStr may be empty until the provider fills it.
type IRLite struct {
	Type  string
	ID    int64
	ToStr string
}

func (IRLite) irValue() {}

// Key returns the "Type;id" form used on the wire.
func (l IRLite) Key() string {
	return l.Type + ";" + strconv.FormatInt(l.ID, 10)
}

// IREntity is a full entity row: one version of one entity with all its fields.
// Only the source level of an in-memory query carries IREntity values; every
// projection turns them into lites.
type IREntity struct {
	Type    string
	ID      int64
	Fields  IRObject
	SysFrom *time.Time
	SysTo   *time.Time
}

func (IREntity) irValue() {}

// ToLite drops the fields, keeping identity.
func (e IREntity) ToLite() IRLite {
	return IRLite{Type: e.Type, ID: e.ID}
}

// IRArray represents an array of IRValue elements.
// Query rows (tuples) are IRArrays indexed by slot.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Embedded values and collection elements are IRObjects.
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

// NewIRDecimal wraps a decimal.
func NewIRDecimal(d decimal.Decimal) IRDecimal {
	return IRDecimal{Decimal: d}
}

// MustDecimal parses a decimal literal. Panics on malformed input; tests only.
func MustDecimal(s string) IRDecimal {
	return IRDecimal{Decimal: decimal.RequireFromString(s)}
}

// NewIRTime normalizes t to UTC with millisecond precision.
func NewIRTime(t time.Time) IRTime {
	return IRTime{Time: t.UTC().Truncate(time.Millisecond)}
}

// NewIRArray creates an IRArray from values.
func NewIRArray(vals ...IRValue) IRArray {
	return IRArray(vals)
}

// IRPair represents a key-value pair for typed IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// NewIRObjectFromPairs creates an IRObject from typed key-value pairs.
// Example: NewIRObjectFromPairs(O("Name", NewIRString("Ada")), O("Age", NewIRInt(36)))
func NewIRObjectFromPairs(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// O is a shorthand for IRPair for ergonomic construction.
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// IsNull reports whether v is absent. A nil interface counts as null.
func IsNull(v IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(IRNull)
	return ok
}

// ParseLiteKey parses the "Type;id" wire form of a lite.
func ParseLiteKey(s string) (IRLite, error) {
	typ, id, ok := strings.Cut(s, ";")
	if !ok || typ == "" {
		return IRLite{}, fmt.Errorf("invalid lite key %q: expected Type;id", s)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return IRLite{}, fmt.Errorf("invalid lite key %q: %w", s, err)
	}
	return IRLite{Type: typ, ID: n}, nil
}

// ParseTime accepts "2006-01-02", "2006-01-02 15:04:05[.000]" and RFC 3339.
func ParseTime(s string) (time.Time, error) {
	layouts := []string{TimeLayout, "2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date/time %q", s)
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys (RFC 8785 ordering).
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON writes the lite as {"entityType", "id", "toStr"}.
func (l IRLite) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EntityType string `json:"entityType"`
		ID         int64  `json:"id"`
		ToStr      string `json:"toStr,omitempty"`
	}{l.Type, l.ID, l.ToStr})
}

// MarshalIRValue marshals an IRValue to JSON bytes.
// Decimals are written as JSON numbers in their exact textual form.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRDecimal:
		return []byte(val.String()), nil
	case IRTime:
		return json.Marshal(val.UTC().Format(TimeLayout))
	case IRLite:
		return val.MarshalJSON()
	case IREntity:
		return val.ToLite().MarshalJSON()
	case IRArray:
		return marshalIRArray(val)
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// marshalIRArray marshals an IRArray to JSON bytes.
func marshalIRArray(arr IRArray) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Display renders v as plain text for tables and logs.
func Display(v IRValue) string {
	switch val := v.(type) {
	case nil, IRNull:
		return ""
	case IRString:
		return string(val)
	case IRInt:
		return strconv.FormatInt(int64(val), 10)
	case IRBool:
		return strconv.FormatBool(bool(val))
	case IRDecimal:
		return val.String()
	case IRTime:
		return val.UTC().Format(TimeLayout)
	case IRLite:
		if val.ToStr != "" {
			return val.ToStr
		}
		return val.Key()
	case IREntity:
		return val.ToLite().Key()
	default:
		b, err := MarshalIRValue(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
