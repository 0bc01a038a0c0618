package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
)

// Shape is the row type a plan produces.
type Shape struct {
	// Tuple is false while rows are still source entities.
	Tuple bool
	// Slots are the tuple field types (nil when !Tuple).
	Slots []ir.TypeRef
	// Entity is the source entity type.
	Entity string
}

// ShapeOf computes the row type of p.
func ShapeOf(p Plan) (Shape, error) {
	switch n := p.(type) {
	case Source:
		return Shape{Entity: n.Entity}, nil
	case Where:
		return ShapeOf(n.Input)
	case OrderBy:
		return ShapeOf(n.Input)
	case ThenBy:
		return ShapeOf(n.Input)
	case Skip:
		return ShapeOf(n.Input)
	case Take:
		return ShapeOf(n.Input)
	case Select:
		in, err := ShapeOf(n.Input)
		if err != nil {
			return Shape{}, err
		}
		return Shape{Tuple: true, Slots: types(n.Columns), Entity: in.Entity}, nil
	case SelectMany:
		in, err := ShapeOf(n.Input)
		if err != nil {
			return Shape{}, err
		}
		slots := types(n.Keep)
		elem := n.Collection.Type().Elem
		if elem == nil {
			return Shape{}, fmt.Errorf("SelectMany over non-collection %s", n.Collection.Type())
		}
		return Shape{Tuple: true, Slots: append(slots, elem.Nullify()), Entity: in.Entity}, nil
	case GroupBy:
		in, err := ShapeOf(n.Input)
		if err != nil {
			return Shape{}, err
		}
		return Shape{Tuple: true, Slots: n.Grouping.Slots(), Entity: in.Entity}, nil
	case nil:
		return Shape{}, fmt.Errorf("nil plan")
	}
	return Shape{}, fmt.Errorf("unsupported plan node %T", p)
}

// Slots returns the output tuple types of a grouping.
func (g Grouping) Slots() []ir.TypeRef {
	slots := types(g.Keys)
	for _, r := range g.Redundant {
		slots = append(slots, r.FromRow.Type())
	}
	for _, a := range g.Aggregates {
		slots = append(slots, a.T)
	}
	return slots
}

func types(es []expr.Expr) []ir.TypeRef {
	out := make([]ir.TypeRef, len(es))
	for i, e := range es {
		out[i] = e.Type()
	}
	return out
}

// SourceOf returns the Source at the root of p.
func SourceOf(p Plan) (Source, error) {
	for {
		switch n := p.(type) {
		case Source:
			return n, nil
		case Where:
			p = n.Input
		case OrderBy:
			p = n.Input
		case ThenBy:
			p = n.Input
		case Select:
			p = n.Input
		case SelectMany:
			p = n.Input
		case GroupBy:
			p = n.Input
		case Skip:
			p = n.Input
		case Take:
			p = n.Input
		default:
			return Source{}, fmt.Errorf("unsupported plan node %T", p)
		}
	}
}

// Explain renders p one node per line, innermost first.
// Used for debug logging and plan assertions in tests.
func Explain(p Plan) string {
	var lines []string
	explain(p, &lines)
	return strings.Join(lines, "\n")
}

func explain(p Plan, lines *[]string) {
	add := func(format string, args ...any) {
		*lines = append(*lines, fmt.Sprintf(format, args...))
	}
	switch n := p.(type) {
	case Source:
		scope := "current"
		if n.Scope != nil {
			scope = string(n.Scope.Mode)
		}
		add("Source %s (%s) [%s]", n.Query, n.Entity, scope)
	case Where:
		explain(n.Input, lines)
		add("Where %s", expr.Format(n.Pred))
	case OrderBy:
		explain(n.Input, lines)
		add("OrderBy %s", formatKeys(n.Keys))
	case ThenBy:
		explain(n.Input, lines)
		add("ThenBy %s", formatKeys(n.Keys))
	case Select:
		explain(n.Input, lines)
		add("Select %s", formatExprs(n.Columns))
	case SelectMany:
		explain(n.Input, lines)
		add("SelectMany %s keep %s", expr.Format(n.Collection), formatExprs(n.Keep))
	case GroupBy:
		explain(n.Input, lines)
		aggs := make([]string, len(n.Aggregates))
		for i, a := range n.Aggregates {
			switch {
			case a.Func == AggCountWhere:
				aggs[i] = fmt.Sprintf("%s(%s)", a.Func, expr.Format(a.Pred))
			case a.Arg != nil:
				aggs[i] = fmt.Sprintf("%s(%s)", a.Func, expr.Format(a.Arg))
			default:
				aggs[i] = string(a.Func) + "()"
			}
		}
		red := make([]expr.Expr, len(n.Redundant))
		for i, r := range n.Redundant {
			red[i] = r.FromRow
		}
		add("GroupBy %s redundant %s aggregates [%s]", formatExprs(n.Keys), formatExprs(red), strings.Join(aggs, ", "))
	case Skip:
		explain(n.Input, lines)
		add("Skip %d", n.N)
	case Take:
		explain(n.Input, lines)
		add("Take %d", n.N)
	default:
		add("?%T", p)
	}
}

func formatExprs(es []expr.Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = expr.Format(e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatKeys(keys []OrderKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		dir := "asc"
		if k.Desc {
			dir = "desc"
		}
		parts[i] = expr.Format(k.Expr) + " " + dir
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
