package expr

import (
	"github.com/roach88/dynq/internal/ir"
)

// Expr is a typed expression over the current row.
//
// This is a sealed interface - only types in this package implement it.
// Both interpreters (Eval here, the SQL lowering in querysql) switch over
// the closed set of node types.
type Expr interface {
	Type() ir.TypeRef
	exprNode() // Marker method - seals interface to this package
}

// Row is the current source row: the queried entity itself.
// Only valid before the first projection.
type Row struct {
	T ir.TypeRef
}

// Slot is field Index of the current tuple.
type Slot struct {
	Index int
	T     ir.TypeRef
}

// Param is a value bound by an enclosing Quantifier.
type Param struct {
	Name string
	T    ir.TypeRef
}

// Const is a literal.
type Const struct {
	Value ir.IRValue
	T     ir.TypeRef
}

// Member reads Property of an entity, a lite (by navigating to the entity)
// or an embedded value. A null target yields null.
type Member struct {
	Target   Expr
	Property string
	T        ir.TypeRef
}

// ID is the identifier of an entity reference.
type ID struct {
	Target Expr
}

// AsType narrows a polymorphic reference to Entity, or null when the
// reference points to another type.
type AsType struct {
	Target Expr
	Entity string
}

// DatePartKind names a component of a date/time value.
type DatePartKind string

const (
	PartYear        DatePartKind = "Year"
	PartMonth       DatePartKind = "Month"
	PartDay         DatePartKind = "Day"
	PartDayOfYear   DatePartKind = "DayOfYear"
	PartDayOfWeek   DatePartKind = "DayOfWeek"
	PartHour        DatePartKind = "Hour"
	PartMinute      DatePartKind = "Minute"
	PartSecond      DatePartKind = "Second"
	PartMillisecond DatePartKind = "Millisecond"
	PartMonthStart  DatePartKind = "MonthStart"
	PartDate        DatePartKind = "Date"
)

// DatePart extracts a component of a date/time. MonthStart and Date stay
// date/times; the rest are integers.
type DatePart struct {
	Target Expr
	Part   DatePartKind
}

// RoundMode is Ceil or Floor.
type RoundMode string

const (
	RoundCeil  RoundMode = "Ceil"
	RoundFloor RoundMode = "Floor"
)

// Round applies ceil or floor to a number.
type Round struct {
	Target Expr
	Mode   RoundMode
}

// Count is the number of elements of a collection.
type Count struct {
	Collection Expr
}

// Quantifier binds each element of Collection to Param and tests Pred.
// Any is true when some element satisfies Pred; All when every element does.
// A null predicate result counts as not satisfied.
type Quantifier struct {
	Collection Expr
	Param      Param
	Pred       Expr
	All        bool
}

// CompareOp is a binary comparison.
type CompareOp string

const (
	OpEq         CompareOp = "="
	OpNe         CompareOp = "<>"
	OpGt         CompareOp = ">"
	OpGe         CompareOp = ">="
	OpLt         CompareOp = "<"
	OpLe         CompareOp = "<="
	OpContains   CompareOp = "contains"
	OpStartsWith CompareOp = "startsWith"
	OpEndsWith   CompareOp = "endsWith"
)

// Compare is a null-propagating comparison: any null operand gives null.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

// In tests membership in a literal list. An empty list is always false.
type In struct {
	Target Expr
	Values []ir.IRValue
}

// IsNull tests for null. Never null itself.
type IsNull struct {
	Target Expr
}

// Not negates a boolean; null stays null.
type Not struct {
	Inner Expr
}

// And is the three-valued conjunction. No terms is true.
type And struct {
	Terms []Expr
}

// Or is the three-valued disjunction. No terms is false.
type Or struct {
	Terms []Expr
}

// Convert widens an integer to a decimal and/or strips nullability by
// replacing null with zero.
type Convert struct {
	Target Expr
	T      ir.TypeRef
}

func (Row) exprNode()        {}
func (Slot) exprNode()       {}
func (Param) exprNode()      {}
func (Const) exprNode()      {}
func (Member) exprNode()     {}
func (ID) exprNode()         {}
func (AsType) exprNode()     {}
func (DatePart) exprNode()   {}
func (Round) exprNode()      {}
func (Count) exprNode()      {}
func (Quantifier) exprNode() {}
func (Compare) exprNode()    {}
func (In) exprNode()         {}
func (IsNull) exprNode()     {}
func (Not) exprNode()        {}
func (And) exprNode()        {}
func (Or) exprNode()         {}
func (Convert) exprNode()    {}

func (e Row) Type() ir.TypeRef    { return e.T }
func (e Slot) Type() ir.TypeRef   { return e.T }
func (e Param) Type() ir.TypeRef  { return e.T }
func (e Const) Type() ir.TypeRef  { return e.T }
func (e Member) Type() ir.TypeRef { return e.T }

func (e ID) Type() ir.TypeRef {
	return nullableLike(ir.Scalar(ir.KindInt), e.Target)
}

func (e AsType) Type() ir.TypeRef {
	return ir.Lite(e.Entity).Nullify()
}

func (e DatePart) Type() ir.TypeRef {
	if e.Part == PartMonthStart || e.Part == PartDate {
		return nullableLike(ir.Scalar(ir.KindDateTime), e.Target)
	}
	return nullableLike(ir.Scalar(ir.KindInt), e.Target)
}

func (e Round) Type() ir.TypeRef { return e.Target.Type() }

func (Count) Type() ir.TypeRef      { return ir.Scalar(ir.KindInt) }
func (Quantifier) Type() ir.TypeRef { return ir.Scalar(ir.KindBool) }
func (Compare) Type() ir.TypeRef    { return ir.Scalar(ir.KindBool).Nullify() }
func (In) Type() ir.TypeRef         { return ir.Scalar(ir.KindBool).Nullify() }
func (IsNull) Type() ir.TypeRef     { return ir.Scalar(ir.KindBool) }
func (Not) Type() ir.TypeRef        { return ir.Scalar(ir.KindBool).Nullify() }
func (And) Type() ir.TypeRef        { return ir.Scalar(ir.KindBool).Nullify() }
func (Or) Type() ir.TypeRef         { return ir.Scalar(ir.KindBool).Nullify() }
func (e Convert) Type() ir.TypeRef  { return e.T }

func nullableLike(t ir.TypeRef, target Expr) ir.TypeRef {
	if target.Type().Nullable {
		return t.Nullify()
	}
	return t
}

// Conj AND-combines predicates without wrapping a single one.
func Conj(terms ...Expr) Expr {
	if len(terms) == 1 {
		return terms[0]
	}
	return And{Terms: terms}
}
