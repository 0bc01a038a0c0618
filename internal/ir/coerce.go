package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// CoerceScalar converts a decoded JSON/YAML scalar to a value of type t.
// Accepted inputs per kind:
//   - string, enum: strings (enum values must be declared)
//   - int: integers, integral floats, json.Number, numeric strings
//   - decimal: numbers or decimal strings, rounded to DecimalScale
//   - bool: booleans or "true"/"false"
//   - datetime: time.Time or strings accepted by ParseTime
//   - lite: "Type;id", {entityType, id}, or a bare id when t has exactly
//     one implementation
//
// nil becomes IRNull regardless of nullability; callers decide whether
// null is acceptable.
func CoerceScalar(t TypeRef, raw any) (IRValue, error) {
	if raw == nil {
		return IRNull{}, nil
	}
	if v, ok := raw.(IRValue); ok {
		return coerceIR(t, v)
	}
	switch t.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return IRString(s), nil
	case KindEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected enum string, got %T", raw)
		}
		if len(t.Values) > 0 && !slices.Contains(t.Values, s) {
			return nil, fmt.Errorf("%q is not one of %v", s, t.Values)
		}
		return IRString(s), nil
	case KindInt:
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		return IRInt(n), nil
	case KindDecimal:
		d, err := toDecimal(raw)
		if err != nil {
			return nil, err
		}
		return NewIRDecimal(d.Round(DecimalScale)), nil
	case KindBool:
		switch b := raw.(type) {
		case bool:
			return IRBool(b), nil
		case string:
			v, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected bool, got %q", b)
			}
			return IRBool(v), nil
		}
		return nil, fmt.Errorf("expected bool, got %T", raw)
	case KindDateTime:
		switch tv := raw.(type) {
		case time.Time:
			return NewIRTime(tv), nil
		case string:
			parsed, err := ParseTime(tv)
			if err != nil {
				return nil, err
			}
			return NewIRTime(parsed), nil
		}
		return nil, fmt.Errorf("expected date/time, got %T", raw)
	case KindLite:
		return coerceLite(t, raw)
	}
	return nil, fmt.Errorf("cannot coerce a literal to %s", t)
}

func coerceIR(t TypeRef, v IRValue) (IRValue, error) {
	switch val := v.(type) {
	case IRNull:
		return val, nil
	case IRString:
		return CoerceScalar(t, string(val))
	case IRInt:
		return CoerceScalar(t, int64(val))
	case IRBool:
		return CoerceScalar(t, bool(val))
	case IRDecimal:
		if t.Kind == KindDecimal {
			return NewIRDecimal(val.Round(DecimalScale)), nil
		}
		return CoerceScalar(t, val.String())
	case IRTime:
		return CoerceScalar(t, val.Time)
	case IRLite:
		return coerceLite(t, val)
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, t)
}

func coerceLite(t TypeRef, raw any) (IRValue, error) {
	var lite IRLite
	switch v := raw.(type) {
	case IRLite:
		lite = v
	case string:
		l, err := ParseLiteKey(v)
		if err != nil {
			return nil, err
		}
		lite = l
	case map[string]any:
		typ, _ := v["entityType"].(string)
		id, err := toInt64(v["id"])
		if err != nil {
			return nil, fmt.Errorf("lite id: %w", err)
		}
		lite = IRLite{Type: typ, ID: id}
		if s, ok := v["toStr"].(string); ok {
			lite.ToStr = s
		}
	default:
		id, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("expected lite, got %T", raw)
		}
		only, ok := t.Implementations.Only()
		if !ok {
			return nil, fmt.Errorf("bare id %d needs a single implementation, %s has several", id, t)
		}
		lite = IRLite{Type: only, ID: id}
	}
	if lite.Type == "" {
		if only, ok := t.Implementations.Only(); ok {
			lite.Type = only
		}
	}
	if !t.Implementations.Contains(lite.Type) {
		return nil, fmt.Errorf("%s is not an implementation of %s", lite.Type, t)
	}
	return lite, nil
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("expected decimal, got %q", v)
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("expected decimal, got %T", raw)
}

// Coerce converts a decoded value of any declared type, including embedded
// values and collections.
func (s *Schema) Coerce(t TypeRef, raw any) (IRValue, error) {
	switch t.Kind {
	case KindEmbedded:
		if raw == nil {
			return IRNull{}, nil
		}
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected %s object, got %T", t.Embedded, raw)
		}
		emb, ok := s.Embedded[t.Embedded]
		if !ok {
			return nil, fmt.Errorf("unknown embedded type %q", t.Embedded)
		}
		obj := IRObject{}
		for key := range m {
			if _, ok := emb.Property(key); !ok {
				return nil, fmt.Errorf("%s has no property %q", t.Embedded, key)
			}
		}
		for _, p := range emb.Properties {
			v, err := s.Coerce(p.Type, m[p.Name])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Embedded, p.Name, err)
			}
			if IsNull(v) && !p.Type.Nullable && p.Type.Kind != KindCollection {
				return nil, fmt.Errorf("%s.%s: value required", t.Embedded, p.Name)
			}
			obj[p.Name] = v
		}
		return obj, nil
	case KindCollection:
		if raw == nil {
			return IRArray{}, nil
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", raw)
		}
		arr := make(IRArray, len(items))
		for i, item := range items {
			v, err := s.Coerce(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	}
	return CoerceScalar(t, raw)
}
