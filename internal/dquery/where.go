package dquery

import (
	"fmt"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/token"
)

var compareOps = map[token.Operation]expr.CompareOp{
	token.OpEqualTo:            expr.OpEq,
	token.OpDistinctTo:         expr.OpNe,
	token.OpGreaterThan:        expr.OpGt,
	token.OpGreaterThanOrEqual: expr.OpGe,
	token.OpLessThan:           expr.OpLt,
	token.OpLessThanOrEqual:    expr.OpLe,
	token.OpContains:           expr.OpContains,
	token.OpStartsWith:         expr.OpStartsWith,
	token.OpEndsWith:           expr.OpEndsWith,
	token.OpNotContains:        expr.OpContains,
	token.OpNotStartsWith:      expr.OpStartsWith,
	token.OpNotEndsWith:        expr.OpEndsWith,
}

var negated = map[token.Operation]bool{
	token.OpNotContains:   true,
	token.OpNotStartsWith: true,
	token.OpNotEndsWith:   true,
}

// whereStep builds the predicate of filters, or nil when there are none.
// Top-level filters are AND-ed.
func whereStep(ctx *Context, filters []Filter) (expr.Expr, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	b := &predicateBuilder{}
	terms := make([]expr.Expr, len(filters))
	for i, f := range filters {
		e, err := b.filter(ctx, f)
		if err != nil {
			return nil, err
		}
		terms[i] = e
	}
	return expr.Conj(terms...), nil
}

// validateFilters checks every condition and reports all failures at once.
// Value failures win over capability failures when they are the only kind.
func validateFilters(filters []Filter) error {
	var reasons, values []string
	for _, f := range filters {
		if g, ok := f.(*FilterGroup); ok {
			reasons = append(reasons, validateGroup(g)...)
		}
		for _, c := range f.Conditions() {
			if r := token.CanFilterWith(c.Token, c.Operation); r != "" {
				reasons = append(reasons, r)
				continue
			}
			if _, err := coerceValue(c.Token.Type(), c.Operation, c.Value); err != nil {
				values = append(values, fmt.Sprintf("%s %s: %v", c.Token.FullKey(), c.Operation, err))
			}
		}
	}
	if len(reasons) > 0 {
		return invalid(ErrCodeInvalidFilter, "filters", append(reasons, values...))
	}
	return invalid(ErrCodeInvalidValue, "filter values", values)
}

func validateGroup(g *FilterGroup) []string {
	var reasons []string
	if g.Operation != GroupAnd && g.Operation != GroupOr {
		reasons = append(reasons, fmt.Sprintf("unknown group operation %q", g.Operation))
	}
	if g.Token != nil {
		if e, ok := g.Token.(*token.Element); !ok || e.Mode == token.ModeElement {
			reasons = append(reasons, fmt.Sprintf("group token %s is not an Any or All token", g.Token.FullKey()))
		}
	}
	for _, f := range g.Filters {
		if sub, ok := f.(*FilterGroup); ok {
			reasons = append(reasons, validateGroup(sub)...)
		}
	}
	return reasons
}

// coerceValue converts a raw filter value to the token's type. List
// operations take a slice.
func coerceValue(t ir.TypeRef, op token.Operation, raw any) (ir.IRValue, error) {
	t = t.UnNullify()
	if !op.IsList() {
		if _, ok := raw.([]any); ok {
			return nil, fmt.Errorf("%s takes a single value", op)
		}
		return ir.CoerceScalar(t, raw)
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case ir.IRArray:
		for _, x := range v {
			items = append(items, x)
		}
	default:
		return nil, fmt.Errorf("%s takes a list, got %T", op, raw)
	}
	out := make(ir.IRArray, len(items))
	for i, item := range items {
		v, err := ir.CoerceScalar(t, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// condition builds the predicate "target op raw" for a value of tok's type.
func condition(target expr.Expr, tok token.Token, op token.Operation, raw any) (expr.Expr, error) {
	v, err := coerceValue(tok.Type(), op, raw)
	if err != nil {
		return nil, &QueryError{Code: ErrCodeInvalidValue, Message: err.Error(), Token: tok.FullKey()}
	}
	switch op {
	case token.OpIsIn, token.OpIsNotIn:
		in := expr.In{Target: target, Values: v.(ir.IRArray)}
		if op == token.OpIsNotIn {
			return expr.Not{Inner: in}, nil
		}
		return in, nil
	}
	if ir.IsNull(v) {
		switch op {
		case token.OpEqualTo:
			return expr.IsNull{Target: target}, nil
		case token.OpDistinctTo:
			return expr.Not{Inner: expr.IsNull{Target: target}}, nil
		}
		return nil, &QueryError{Code: ErrCodeInvalidValue, Message: fmt.Sprintf("%s does not accept null", op), Token: tok.FullKey()}
	}
	cmpOp, ok := compareOps[op]
	if !ok {
		return nil, &QueryError{Code: ErrCodeInvalidFilter, Message: fmt.Sprintf("unknown operation %q", op), Token: tok.FullKey()}
	}
	cmp := expr.Compare{Op: cmpOp, Left: target, Right: expr.Const{Value: v, T: tok.Type().UnNullify()}}
	if negated[op] {
		return expr.Not{Inner: cmp}, nil
	}
	return cmp, nil
}

// predicateBuilder numbers the parameters of nested quantifiers.
type predicateBuilder struct {
	params int
}

func (b *predicateBuilder) filter(ctx *Context, f Filter) (expr.Expr, error) {
	switch n := f.(type) {
	case *FilterCondition:
		if q, ok := unboundQuantifier(ctx, n.Token); ok {
			return b.quantify(ctx, q, func(inner *Context) (expr.Expr, error) {
				return b.filter(inner, n)
			})
		}
		target, err := n.Token.BuildExpression(ctx)
		if err != nil {
			return nil, err
		}
		return condition(target, n.Token, n.Operation, n.Value)
	case *FilterGroup:
		if n.Token != nil {
			if q, ok := n.Token.(*token.Element); ok {
				if _, bound := ctx.Lookup(q); !bound {
					return b.quantify(ctx, q, func(inner *Context) (expr.Expr, error) {
						return b.group(inner, n)
					})
				}
			}
		}
		return b.group(ctx, n)
	}
	return nil, fmt.Errorf("unknown filter %T", f)
}

func (b *predicateBuilder) group(ctx *Context, g *FilterGroup) (expr.Expr, error) {
	terms := make([]expr.Expr, 0, len(g.Filters))
	for _, f := range g.Filters {
		e, err := b.filter(ctx, f)
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}
	switch {
	case len(terms) == 0 && g.Operation == GroupOr:
		return expr.Const{Value: ir.IRBool(false), T: ir.Scalar(ir.KindBool)}, nil
	case len(terms) == 0:
		return expr.Const{Value: ir.IRBool(true), T: ir.Scalar(ir.KindBool)}, nil
	case len(terms) == 1:
		return terms[0], nil
	case g.Operation == GroupOr:
		return expr.Or{Terms: terms}, nil
	}
	return expr.And{Terms: terms}, nil
}

// quantify binds q to a fresh parameter over its collection and wraps the
// predicate body builds in a quantifier.
func (b *predicateBuilder) quantify(ctx *Context, q *token.Element, body func(*Context) (expr.Expr, error)) (expr.Expr, error) {
	coll, err := q.Parent().BuildExpression(ctx)
	if err != nil {
		return nil, err
	}
	b.params++
	param := expr.Param{Name: fmt.Sprintf("p%d", b.params), T: q.Type()}
	pred, err := body(ctx.with(q, param))
	if err != nil {
		return nil, err
	}
	return expr.Quantifier{Collection: coll, Param: param, Pred: pred, All: q.Mode == token.ModeAll}, nil
}

// unboundQuantifier returns the outermost Any/All element on t's path that
// ctx does not bind yet.
func unboundQuantifier(ctx *Context, t token.Token) (*token.Element, bool) {
	var found *token.Element
	for ; t != nil; t = t.Parent() {
		e, ok := t.(*token.Element)
		if !ok || e.Mode == token.ModeElement {
			continue
		}
		if _, bound := ctx.Lookup(e); !bound {
			found = e
		}
	}
	return found, found != nil
}
