package token

import (
	"fmt"
	"slices"

	"github.com/roach88/dynq/internal/ir"
)

// FilterType is the filter category of a token type; it decides which
// operations a condition may use.
type FilterType string

const (
	FilterString   FilterType = "String"
	FilterInteger  FilterType = "Integer"
	FilterDecimal  FilterType = "Decimal"
	FilterDateTime FilterType = "DateTime"
	FilterBoolean  FilterType = "Boolean"
	FilterEnum     FilterType = "Enum"
	FilterLite     FilterType = "Lite"
)

// Operation is a filter comparison.
type Operation string

const (
	OpEqualTo            Operation = "EqualTo"
	OpDistinctTo         Operation = "DistinctTo"
	OpGreaterThan        Operation = "GreaterThan"
	OpGreaterThanOrEqual Operation = "GreaterThanOrEqual"
	OpLessThan           Operation = "LessThan"
	OpLessThanOrEqual    Operation = "LessThanOrEqual"
	OpContains           Operation = "Contains"
	OpStartsWith         Operation = "StartsWith"
	OpEndsWith           Operation = "EndsWith"
	OpNotContains        Operation = "NotContains"
	OpNotStartsWith      Operation = "NotStartsWith"
	OpNotEndsWith        Operation = "NotEndsWith"
	OpIsIn               Operation = "IsIn"
	OpIsNotIn            Operation = "IsNotIn"
)

var (
	equality   = []Operation{OpEqualTo, OpDistinctTo, OpIsIn, OpIsNotIn}
	comparable = []Operation{OpEqualTo, OpDistinctTo, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual, OpIsIn, OpIsNotIn}
	textual    = []Operation{OpEqualTo, OpDistinctTo, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
		OpContains, OpStartsWith, OpEndsWith, OpNotContains, OpNotStartsWith, OpNotEndsWith, OpIsIn, OpIsNotIn}
)

// FilterTypeOf maps a declared type to its filter category. Embedded values
// and collections have none.
func FilterTypeOf(t ir.TypeRef) (FilterType, bool) {
	switch t.Kind {
	case ir.KindString:
		return FilterString, true
	case ir.KindInt:
		return FilterInteger, true
	case ir.KindDecimal:
		return FilterDecimal, true
	case ir.KindDateTime:
		return FilterDateTime, true
	case ir.KindBool:
		return FilterBoolean, true
	case ir.KindEnum:
		return FilterEnum, true
	case ir.KindLite:
		return FilterLite, true
	}
	return "", false
}

// OperationsFor lists the operations a filter category accepts.
func OperationsFor(ft FilterType) []Operation {
	switch ft {
	case FilterString:
		return textual
	case FilterInteger, FilterDecimal, FilterDateTime:
		return comparable
	case FilterBoolean, FilterEnum, FilterLite:
		return equality
	}
	return nil
}

// IsList reports operations whose value is a list.
func (op Operation) IsList() bool {
	return op == OpIsIn || op == OpIsNotIn
}

// CanFilter returns "" when conditions may test t, or the reason they may
// not.
func CanFilter(t Token) string {
	if _, ok := FilterTypeOf(t.Type()); !ok {
		return fmt.Sprintf("%s (%s) is not filterable", t.FullKey(), t.Type())
	}
	return ""
}

// CanFilterWith extends CanFilter with the operation check.
func CanFilterWith(t Token, op Operation) string {
	if reason := CanFilter(t); reason != "" {
		return reason
	}
	ft, _ := FilterTypeOf(t.Type())
	if !slices.Contains(OperationsFor(ft), op) {
		return fmt.Sprintf("%s does not accept %s on %s values", t.FullKey(), op, ft)
	}
	return ""
}

// CanOrder returns "" when t may be a sort key.
func CanOrder(t Token) string {
	switch t.Type().Kind {
	case ir.KindEmbedded, ir.KindCollection:
		return fmt.Sprintf("%s (%s) is not orderable", t.FullKey(), t.Type())
	}
	if e, ok := t.(*Element); ok && e.Mode != ModeElement {
		return fmt.Sprintf("%s is only usable in filters", t.FullKey())
	}
	if HasAnyAll(t) {
		return fmt.Sprintf("%s is only usable in filters", t.FullKey())
	}
	return ""
}

// CanColumn returns "" when t may be a result column.
func CanColumn(t Token) string {
	switch t.Type().Kind {
	case ir.KindEmbedded, ir.KindCollection:
		return fmt.Sprintf("%s (%s) is not selectable", t.FullKey(), t.Type())
	}
	if HasAnyAll(t) {
		return fmt.Sprintf("%s is only usable in filters", t.FullKey())
	}
	return ""
}
