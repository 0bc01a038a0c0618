package queryir

import (
	"fmt"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
)

// ValidationResult lists every structural problem found in a plan.
type ValidationResult struct {
	// Valid is true when Errors is empty.
	Valid bool

	// Errors lists problems innermost node first.
	Errors []string
}

// Validate checks that every expression in a plan fits the row shape it is
// evaluated against:
//  1. expr.Row only appears before the first projection
//  2. expr.Slot indexes exist in the input tuple
//  3. Where predicates are boolean
//  4. Skip/Take counts are not negative
//  5. Aggregates carry the operands their function needs
//
// Both interpreters call Validate before running a plan, so a malformed
// plan fails the same way on both backends.
//
// Validate is a pure function with no side effects.
func Validate(p Plan) ValidationResult {
	v := &validator{errors: []string{}}
	v.validatePlan(p)
	return ValidationResult{Valid: len(v.errors) == 0, Errors: v.errors}
}

// validator accumulates errors during traversal.
type validator struct {
	errors []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validatePlan(p Plan) {
	if p == nil {
		v.addError("nil plan")
		return
	}

	var input Plan
	switch n := p.(type) {
	case Source:
		if n.Entity == "" {
			v.addError("Source %q has no entity", n.Query)
		}
		if err := n.Scope.Validate(); err != nil {
			v.addError("Source %q: %v", n.Query, err)
		}
		return
	case Where:
		input = n.Input
	case OrderBy:
		input = n.Input
	case ThenBy:
		input = n.Input
	case Select:
		input = n.Input
	case SelectMany:
		input = n.Input
	case GroupBy:
		input = n.Input
	case Skip:
		input = n.Input
	case Take:
		input = n.Input
	default:
		v.addError("unsupported plan node %T", p)
		return
	}

	v.validatePlan(input)
	shape, err := ShapeOf(input)
	if err != nil {
		v.addError("%v", err)
		return
	}

	switch n := p.(type) {
	case Where:
		v.checkExpr("Where", n.Pred, shape)
		if n.Pred != nil && n.Pred.Type().Kind != ir.KindBool {
			v.addError("Where: predicate is %s, not bool", n.Pred.Type())
		}
	case OrderBy:
		v.checkKeys("OrderBy", n.Keys, shape)
	case ThenBy:
		v.checkKeys("ThenBy", n.Keys, shape)
	case Select:
		if len(n.Columns) == 0 {
			v.addError("Select: no columns")
		}
		for i, c := range n.Columns {
			v.checkExpr(fmt.Sprintf("Select[%d]", i), c, shape)
		}
	case SelectMany:
		for i, c := range n.Keep {
			v.checkExpr(fmt.Sprintf("SelectMany keep[%d]", i), c, shape)
		}
		v.checkExpr("SelectMany collection", n.Collection, shape)
		if n.Collection != nil && n.Collection.Type().Kind != ir.KindCollection {
			v.addError("SelectMany: %s is not a collection", n.Collection.Type())
		}
	case GroupBy:
		for i, k := range n.Keys {
			v.checkExpr(fmt.Sprintf("GroupBy key[%d]", i), k, shape)
		}
		keyShape := Shape{Tuple: true, Slots: types(n.Keys), Entity: shape.Entity}
		for i, r := range n.Redundant {
			v.checkExpr(fmt.Sprintf("GroupBy redundant[%d]", i), r.FromRow, shape)
			v.checkExpr(fmt.Sprintf("GroupBy redundant[%d] from key", i), r.FromKey, keyShape)
		}
		for i, a := range n.Aggregates {
			v.checkAggregate(i, a, shape)
		}
	case Skip:
		if n.N < 0 {
			v.addError("Skip: negative count %d", n.N)
		}
	case Take:
		if n.N < 0 {
			v.addError("Take: negative count %d", n.N)
		}
	}
}

func (v *validator) checkKeys(node string, keys []OrderKey, shape Shape) {
	if len(keys) == 0 {
		v.addError("%s: no keys", node)
	}
	for i, k := range keys {
		v.checkExpr(fmt.Sprintf("%s[%d]", node, i), k.Expr, shape)
	}
}

func (v *validator) checkAggregate(i int, a Aggregate, shape Shape) {
	where := fmt.Sprintf("GroupBy aggregate[%d] %s", i, a.Func)
	switch a.Func {
	case AggCount:
	case AggCountWhere:
		if a.Pred == nil {
			v.addError("%s: missing predicate", where)
			return
		}
		v.checkExpr(where, a.Pred, shape)
	case AggCountDistinct, AggSum, AggAverage, AggMin, AggMax:
		if a.Arg == nil {
			v.addError("%s: missing argument", where)
			return
		}
		v.checkExpr(where, a.Arg, shape)
		if (a.Func == AggSum || a.Func == AggAverage) && !a.Arg.Type().IsNumeric() {
			v.addError("%s: argument is %s, not numeric", where, a.Arg.Type())
		}
	default:
		v.addError("%s: unknown aggregate", where)
	}
}

func (v *validator) checkExpr(where string, e expr.Expr, shape Shape) {
	if e == nil {
		v.addError("%s: nil expression", where)
		return
	}
	if shape.Tuple && expr.UsesRow(e) {
		v.addError("%s: %s reads the source row after a projection", where, expr.Format(e))
	}
	if m := expr.MaxSlot(e); m >= 0 {
		if !shape.Tuple {
			v.addError("%s: %s reads slot %d before any projection", where, expr.Format(e), m)
		} else if m >= len(shape.Slots) {
			v.addError("%s: slot %d out of range (tuple has %d)", where, m, len(shape.Slots))
		}
	}
}
