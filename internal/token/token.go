package token

import (
	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
)

// Token is one step of a navigable path into a query's rows.
//
// This is a sealed interface - only types in this package implement it.
// Tokens are immutable once built and compare equal by (QueryName, FullKey);
// use Equal rather than ==, since the same path may be discovered twice.
type Token interface {
	// Key is the path segment of this step ("Customer", "(Employee)").
	Key() string

	// FullKey is the dot-joined path from the root column.
	FullKey() string

	// Parent is the previous step, nil for root columns and the root Count.
	Parent() Token

	// Type is the declared type of the values this token yields.
	Type() ir.TypeRef

	// QueryName is the logical query the path starts from.
	QueryName() string

	// DisplayName is the text shown to users and used for sorting.
	DisplayName() string

	// BuildExpression returns the expression bound to this token in ctx, or
	// builds one from the parent's expression.
	BuildExpression(ctx Context) (expr.Expr, error)

	base() *node // Marker method - seals interface to this package
}

// Context resolves tokens against the current row shape.
type Context interface {
	// Lookup returns the expression a projection bound to t.
	Lookup(t Token) (expr.Expr, bool)

	// Row returns the source row while rows are still entities.
	Row() (expr.Expr, bool)
}

// node holds the fields every token shares.
type node struct {
	parent  Token
	query   string
	key     string
	display string
	typ     ir.TypeRef
}

func (n *node) base() *node         { return n }
func (n *node) Key() string         { return n.key }
func (n *node) Parent() Token       { return n.parent }
func (n *node) Type() ir.TypeRef    { return n.typ }
func (n *node) QueryName() string   { return n.query }
func (n *node) DisplayName() string { return n.display }
func (n *node) String() string      { return n.FullKey() }

func (n *node) FullKey() string {
	if n.parent == nil {
		return n.key
	}
	return n.parent.FullKey() + "." + n.key
}

func child(parent Token, key, display string, typ ir.TypeRef) node {
	return node{parent: parent, query: parent.QueryName(), key: key, display: display, typ: typ}
}

// Equal reports whether a and b denote the same path of the same query.
func Equal(a, b Token) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.QueryName() == b.QueryName() && a.FullKey() == b.FullKey()
}

// build resolves t through ctx first, then through its own rule.
func build(t Token, ctx Context, own func() (expr.Expr, error)) (expr.Expr, error) {
	if e, ok := ctx.Lookup(t); ok {
		return e, nil
	}
	return own()
}

func parentExpr(t Token, ctx Context) (expr.Expr, error) {
	return t.Parent().BuildExpression(ctx)
}

// Column is a root column of the query description.
type Column struct {
	node
	Column ir.ColumnDescription
}

// NewColumn builds the root token for one described column.
func NewColumn(query string, col ir.ColumnDescription) *Column {
	return &Column{
		node:   node{query: query, key: col.Name, display: col.DisplayName, typ: col.Type},
		Column: col,
	}
}

// IsEntity reports whether this is the row's entity column.
func (c *Column) IsEntity() bool { return c.Column.IsEntity }

func (c *Column) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(c, ctx, func() (expr.Expr, error) {
		row, ok := ctx.Row()
		if !ok {
			return nil, notAvailable(c, "the column was not kept by the last projection")
		}
		switch {
		case c.Column.IsEntity:
			return row, nil
		case c.Column.Property == "Id":
			return expr.ID{Target: row}, nil
		}
		return expr.Member{Target: row, Property: c.Column.Property, T: c.typ}, nil
	})
}

// Property reads a declared property of an entity reference or an
// embedded value.
type Property struct {
	node
	Property ir.PropertySpec
}

func newProperty(parent Token, p ir.PropertySpec) *Property {
	typ := p.Type
	if parent.Type().Nullable {
		typ = typ.Nullify()
	}
	display := p.DisplayName
	if display == "" {
		display = p.Name
	}
	return &Property{node: child(parent, p.Name, display, typ), Property: p}
}

func (p *Property) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(p, ctx, func() (expr.Expr, error) {
		target, err := parentExpr(p, ctx)
		if err != nil {
			return nil, err
		}
		return expr.Member{Target: target, Property: p.Property.Name, T: p.typ}, nil
	})
}

// ID is the identifier of an entity reference.
type ID struct {
	node
}

func newID(parent Token) *ID {
	typ := ir.Scalar(ir.KindInt)
	if parent.Type().Nullable {
		typ = typ.Nullify()
	}
	return &ID{node: child(parent, "Id", "Id", typ)}
}

func (t *ID) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(t, ctx, func() (expr.Expr, error) {
		target, err := parentExpr(t, ctx)
		if err != nil {
			return nil, err
		}
		return expr.ID{Target: target}, nil
	})
}

// ToString is the display text of an entity reference: the entity's toStr
// property.
type ToString struct {
	node
	Property string
}

func newToString(parent Token, entity *ir.EntitySpec) *ToString {
	typ := ir.Scalar(ir.KindString)
	if p, ok := entity.Property(entity.ToStr); ok {
		typ = p.Type
	}
	if parent.Type().Nullable {
		typ = typ.Nullify()
	}
	return &ToString{node: child(parent, "ToString", "ToString", typ), Property: entity.ToStr}
}

func (t *ToString) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(t, ctx, func() (expr.Expr, error) {
		target, err := parentExpr(t, ctx)
		if err != nil {
			return nil, err
		}
		return expr.Member{Target: target, Property: t.Property, T: t.typ}, nil
	})
}

// AsType narrows a polymorphic reference to one implementation.
type AsType struct {
	node
	Entity string
}

func newAsType(parent Token, entity string) *AsType {
	key := "(" + entity + ")"
	return &AsType{node: child(parent, key, key, ir.Lite(entity).Nullify()), Entity: entity}
}

func (t *AsType) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(t, ctx, func() (expr.Expr, error) {
		target, err := parentExpr(t, ctx)
		if err != nil {
			return nil, err
		}
		return expr.AsType{Target: target, Entity: t.Entity}, nil
	})
}

// DatePart extracts a component of a date/time.
type DatePart struct {
	node
	Part expr.DatePartKind
}

var partDisplay = map[expr.DatePartKind]string{
	expr.PartYear:        "Year",
	expr.PartMonth:       "Month",
	expr.PartMonthStart:  "Month start",
	expr.PartDay:         "Day",
	expr.PartDayOfYear:   "Day of year",
	expr.PartDayOfWeek:   "Day of week",
	expr.PartDate:        "Date",
	expr.PartHour:        "Hour",
	expr.PartMinute:      "Minute",
	expr.PartSecond:      "Second",
	expr.PartMillisecond: "Millisecond",
}

func newDatePart(parent Token, part expr.DatePartKind) *DatePart {
	typ := ir.Scalar(ir.KindInt)
	if part == expr.PartMonthStart || part == expr.PartDate {
		typ = ir.Scalar(ir.KindDateTime)
	}
	if parent.Type().Nullable {
		typ = typ.Nullify()
	}
	return &DatePart{node: child(parent, string(part), partDisplay[part], typ), Part: part}
}

func (t *DatePart) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(t, ctx, func() (expr.Expr, error) {
		target, err := parentExpr(t, ctx)
		if err != nil {
			return nil, err
		}
		return expr.DatePart{Target: target, Part: t.Part}, nil
	})
}

// Round is Ceil or Floor of a decimal.
type Round struct {
	node
	Mode expr.RoundMode
}

func newRound(parent Token, mode expr.RoundMode) *Round {
	return &Round{node: child(parent, string(mode), string(mode), parent.Type()), Mode: mode}
}

func (t *Round) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(t, ctx, func() (expr.Expr, error) {
		target, err := parentExpr(t, ctx)
		if err != nil {
			return nil, err
		}
		return expr.Round{Target: target, Mode: t.Mode}, nil
	})
}

// Count is the number of elements of a collection.
type Count struct {
	node
}

func newCount(parent Token) *Count {
	return &Count{node: child(parent, "Count", "Count", ir.Scalar(ir.KindInt))}
}

func (t *Count) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(t, ctx, func() (expr.Expr, error) {
		target, err := parentExpr(t, ctx)
		if err != nil {
			return nil, err
		}
		return expr.Count{Collection: target}, nil
	})
}

// ElementMode says how a collection element token is bound.
type ElementMode string

const (
	// ModeElement flattens the collection: one row per element.
	ModeElement ElementMode = "Element"
	// ModeAny tests whether some element satisfies a filter.
	ModeAny ElementMode = "Any"
	// ModeAll tests whether every element satisfies a filter.
	ModeAll ElementMode = "All"
)

// Element stands for the elements of a collection. It only has an
// expression once a SelectMany or a quantifier binds it.
type Element struct {
	node
	Mode ElementMode
}

func newElement(parent Token, mode ElementMode) *Element {
	elem := ir.Scalar(ir.KindString)
	if e := parent.Type().Elem; e != nil {
		elem = *e
	}
	if mode == ModeElement {
		elem = elem.Nullify()
	}
	return &Element{node: child(parent, string(mode), string(mode), elem), Mode: mode}
}

func (t *Element) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(t, ctx, func() (expr.Expr, error) {
		if t.Mode == ModeElement {
			return nil, notAvailable(t, "elements are only available after flattening the collection")
		}
		return nil, notAvailable(t, "quantified elements are only available inside a filter")
	})
}

// AggregateFunc names the aggregate an Aggregate token computes.
type AggregateFunc string

const (
	AggCount         AggregateFunc = "Count"
	AggCountDistinct AggregateFunc = "CountDistinct"
	AggSum           AggregateFunc = "Sum"
	AggAverage       AggregateFunc = "Average"
	AggMin           AggregateFunc = "Min"
	AggMax           AggregateFunc = "Max"
)

var aggDisplay = map[AggregateFunc]string{
	AggCount:         "Count",
	AggCountDistinct: "Count distinct",
	AggSum:           "Sum",
	AggAverage:       "Average",
	AggMin:           "Min",
	AggMax:           "Max",
}

// Aggregate is an aggregate over the rows of a group. The root Count has
// no parent; every other aggregate reads its parent token. A Count with an
// Operation counts the rows where the parent compares to Value.
type Aggregate struct {
	node
	Func      AggregateFunc
	Operation Operation // count-with-condition only
	Value     ir.IRValue
}

// NewRootCount builds the Count aggregate over whole rows.
func NewRootCount(query string) *Aggregate {
	return &Aggregate{
		node: node{query: query, key: "Count", display: "Count", typ: ir.Scalar(ir.KindInt)},
		Func: AggCount,
	}
}

func newAggregate(parent Token, fn AggregateFunc) *Aggregate {
	pt := parent.Type()
	var typ ir.TypeRef
	switch fn {
	case AggSum:
		typ = pt.UnNullify()
	case AggAverage:
		typ = ir.Scalar(ir.KindDecimal).Nullify()
	case AggMin, AggMax:
		typ = pt.Nullify()
	default:
		typ = ir.Scalar(ir.KindInt)
	}
	return &Aggregate{node: child(parent, string(fn), aggDisplay[fn], typ), Func: fn}
}

func newCountWhere(parent Token, op Operation, value ir.IRValue) *Aggregate {
	text := valueText(value)
	return &Aggregate{
		node:      child(parent, "Count("+string(op)+","+text+")", "Count ("+string(op)+" "+text+")", ir.Scalar(ir.KindInt)),
		Func:      AggCount,
		Operation: op,
		Value:     value,
	}
}

// IsConditional reports a count-with-condition.
func (a *Aggregate) IsConditional() bool { return a.Operation != "" }

func (a *Aggregate) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(a, ctx, func() (expr.Expr, error) {
		return nil, notAvailable(a, "aggregates are only available after grouping")
	})
}

// Extended is a synthetic subtoken contributed by an Extension.
type Extended struct {
	node
	ext Extension
}

func newExtended(parent Token, ext Extension) *Extended {
	typ := ext.Type
	if parent.Type().Nullable {
		typ = typ.Nullify()
	}
	display := ext.DisplayName
	if display == "" {
		display = ext.Key
	}
	return &Extended{node: child(parent, ext.Key, display, typ), ext: ext}
}

func (t *Extended) BuildExpression(ctx Context) (expr.Expr, error) {
	return build(t, ctx, func() (expr.Expr, error) {
		target, err := parentExpr(t, ctx)
		if err != nil {
			return nil, err
		}
		e, err := t.ext.Build(target)
		if err != nil {
			return nil, &Error{Code: CodeNotAvailable, Path: t.FullKey(), Message: err.Error()}
		}
		return e, nil
	})
}

// HasAnyAll reports whether t or one of its ancestors is an Any or All
// element.
func HasAnyAll(t Token) bool {
	for ; t != nil; t = t.Parent() {
		if e, ok := t.(*Element); ok && e.Mode != ModeElement {
			return true
		}
	}
	return false
}

// AnyAllRoot returns the outermost Any/All element on t's path.
func AnyAllRoot(t Token) (*Element, bool) {
	var found *Element
	for ; t != nil; t = t.Parent() {
		if e, ok := t.(*Element); ok && e.Mode != ModeElement {
			found = e
		}
	}
	return found, found != nil
}

// Elements returns the Element-mode tokens on t's path, outermost first.
func Elements(t Token) []*Element {
	var out []*Element
	for ; t != nil; t = t.Parent() {
		if e, ok := t.(*Element); ok && e.Mode == ModeElement {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// IsAggregate reports whether t is an aggregate.
func IsAggregate(t Token) bool {
	_, ok := t.(*Aggregate)
	return ok
}

// Dominates reports whether fixing a fully determines b: a is a strict
// ancestor of b and no step from a down to b multiplies or aggregates rows.
func Dominates(a, b Token) bool {
	for t := b; t != nil; t = t.Parent() {
		switch t.(type) {
		case *Element, *Aggregate:
			return false
		}
		if p := t.Parent(); p != nil && Equal(p, a) {
			return true
		}
	}
	return false
}

// Path splits a full key into its segments. Dots inside parentheses do not
// split: "Lines.Count(GreaterThan,2.5)" has two segments.
func Path(fullKey string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range fullKey {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '.':
			if depth == 0 {
				parts = append(parts, fullKey[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, fullKey[start:])
}

func valueText(v ir.IRValue) string {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return "null"
	case ir.IRLite:
		return val.Key()
	}
	return ir.Display(v)
}
