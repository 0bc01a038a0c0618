package querysql

import (
	"fmt"
	"strings"
	"time"

	goslug "github.com/gosimple/slug"
	"github.com/shopspring/decimal"

	"github.com/roach88/dynq/internal/ir"
)

// Storage layout shared by the compiler and the store:
//
//	e_<entity>              row_id, id, sys_from, sys_to, one column per scalar
//	                        property, embedded properties inlined as <prop>_<sub>
//	c_<entity>__<property>  row_id, parent_row, then "value" for scalar and lite
//	                        elements or the embedded columns
//	dynq_entity             id, type (resolves polymorphic references)
//
// Decimals are stored as integers scaled by 10^DecimalScale, date/times as
// TEXT in ir.TimeLayout (UTC), booleans as 0/1 and lites as the entity id.

// EntityIndexTable maps every entity id to its type.
const EntityIndexTable = "dynq_entity"

// ValueColumn holds scalar and lite collection elements.
const ValueColumn = "value"

var decimalFactor = decimal.New(1, ir.DecimalScale)

// Ident derives a SQL identifier from a schema name.
func Ident(name string) string {
	return strings.ReplaceAll(goslug.Make(name), "-", "_")
}

// Quote quotes an identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// EntityTable is the table holding the versions of entity.
func EntityTable(entity string) string {
	return "e_" + Ident(entity)
}

// CollectionTable is the child table of a collection property.
func CollectionTable(entity, property string) string {
	return "c_" + Ident(entity) + "__" + Ident(property)
}

// EmbeddedPrefix is the column prefix of an embedded property's fields.
func EmbeddedPrefix(prefix, property string) string {
	return prefix + Ident(property) + "_"
}

// Encode converts a value of declared type t to its stored form.
func Encode(v ir.IRValue, t ir.TypeRef) (any, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		if t.Kind == ir.KindDecimal {
			return int64(val) * decimalFactor.IntPart(), nil
		}
		return int64(val), nil
	case ir.IRDecimal:
		return val.Round(ir.DecimalScale).Mul(decimalFactor).IntPart(), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRTime:
		return val.UTC().Format(ir.TimeLayout), nil
	case ir.IRLite:
		return val.ID, nil
	case ir.IREntity:
		return val.ID, nil
	}
	return nil, fmt.Errorf("%T cannot be stored in a column", v)
}

// Decode converts a scanned column back to a value of type t. Lites come
// back with their type set only when t has a single implementation; the
// caller fills polymorphic types and display text.
func Decode(raw any, t ir.TypeRef) (ir.IRValue, error) {
	if raw == nil {
		return ir.IRNull{}, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	switch t.Kind {
	case ir.KindString, ir.KindEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("decode %s: got %T", t, raw)
		}
		return ir.IRString(s), nil
	case ir.KindInt:
		n, err := scanInt(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		return ir.IRInt(n), nil
	case ir.KindDecimal:
		n, err := scanInt(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		return ir.NewIRDecimal(decimal.New(n, -ir.DecimalScale)), nil
	case ir.KindBool:
		n, err := scanInt(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		return ir.IRBool(n != 0), nil
	case ir.KindDateTime:
		switch v := raw.(type) {
		case string:
			parsed, err := time.Parse(ir.TimeLayout, v)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", t, err)
			}
			return ir.NewIRTime(parsed), nil
		case time.Time:
			return ir.NewIRTime(v), nil
		}
		return nil, fmt.Errorf("decode %s: got %T", t, raw)
	case ir.KindLite:
		id, err := scanInt(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		lite := ir.IRLite{ID: id}
		if only, ok := t.Implementations.Only(); ok {
			lite.Type = only
		}
		return lite, nil
	}
	return nil, fmt.Errorf("decode: %s values are not stored in a single column", t)
}

func scanInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}
