package dquery

import (
	"fmt"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryir"
	"github.com/roach88/dynq/internal/token"
)

// The step builders below are shared by DQueryable and DEnumerable: they
// turn tokens into expressions over the current context and compute the
// context of the next shape. Each mode only decides where the expressions
// run.

// selectStep builds the projection of tokens and the context binding each
// token to its slot.
func selectStep(ctx *Context, tokens []token.Token) ([]expr.Expr, *Context, error) {
	tokens = distinct(tokens)
	var reasons []string
	for _, t := range tokens {
		if r := token.CanColumn(t); r != "" {
			reasons = append(reasons, r)
		}
	}
	if err := invalid(ErrCodeInvalidColumn, "columns", reasons); err != nil {
		return nil, nil, err
	}
	cols := make([]expr.Expr, len(tokens))
	types := make([]ir.TypeRef, len(tokens))
	for i, t := range tokens {
		e, err := t.BuildExpression(ctx)
		if err != nil {
			return nil, nil, err
		}
		cols[i] = e
		types[i] = e.Type()
	}
	return cols, projected(tokens, types), nil
}

// selectManyStep flattens the collection elem belongs to. Every token
// bound so far is re-keyed to its slot in the new tuple and elem takes the
// last slot.
func selectManyStep(ctx *Context, elem *token.Element) (keep []expr.Expr, coll expr.Expr, next *Context, err error) {
	if elem.Mode != token.ModeElement {
		return nil, nil, nil, &QueryError{
			Code:    ErrCodeInvalidColumn,
			Message: fmt.Sprintf("%s cannot be flattened", elem.FullKey()),
			Token:   elem.FullKey(),
		}
	}
	coll, err = elem.Parent().BuildExpression(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if coll.Type().Kind != ir.KindCollection {
		return nil, nil, nil, shapeMismatch("%s is %s, not a collection", elem.Parent().FullKey(), coll.Type())
	}
	keep = ctx.Exprs()
	tokens := append(ctx.Tokens(), token.Token(elem))
	types := make([]ir.TypeRef, 0, len(tokens))
	for _, e := range keep {
		types = append(types, e.Type())
	}
	types = append(types, coll.Type().Elem.Nullify())
	return keep, coll, projected(tokens, types), nil
}

// orderStep validates every key before building any of them.
func orderStep(ctx *Context, orders []Order) ([]queryir.OrderKey, error) {
	var reasons []string
	for _, o := range orders {
		if r := token.CanOrder(o.Token); r != "" {
			reasons = append(reasons, r)
		}
	}
	if err := invalid(ErrCodeInvalidOrder, "orders", reasons); err != nil {
		return nil, err
	}
	keys := make([]queryir.OrderKey, len(orders))
	for i, o := range orders {
		e, err := o.Token.BuildExpression(ctx)
		if err != nil {
			return nil, err
		}
		keys[i] = queryir.OrderKey{Expr: e, Desc: o.Desc}
	}
	return keys, nil
}

// rootKeys splits keys into the ones no other key dominates and the
// redundant rest.
func rootKeys(keys []token.Token) (roots, redundant []token.Token) {
	for _, k := range keys {
		dominated := false
		for _, o := range keys {
			if !token.Equal(o, k) && token.Dominates(o, k) {
				dominated = true
				break
			}
		}
		if dominated {
			redundant = append(redundant, k)
		} else {
			roots = append(roots, k)
		}
	}
	return roots, redundant
}

// groupStep builds the grouping of keys with aggregates. The new context
// binds the root keys, then the redundant keys, then the aggregates.
func groupStep(ctx *Context, keys []token.Token, aggs []*token.Aggregate) (queryir.Grouping, *Context, error) {
	keys = distinct(keys)
	var reasons []string
	for _, k := range keys {
		if token.IsAggregate(k) {
			reasons = append(reasons, fmt.Sprintf("%s is an aggregate, not a grouping key", k.FullKey()))
		} else if r := token.CanColumn(k); r != "" {
			reasons = append(reasons, r)
		}
	}
	if err := invalid(ErrCodeInvalidColumn, "grouping keys", reasons); err != nil {
		return queryir.Grouping{}, nil, err
	}

	roots, redundant := rootKeys(keys)
	var g queryir.Grouping
	for _, k := range roots {
		e, err := k.BuildExpression(ctx)
		if err != nil {
			return queryir.Grouping{}, nil, err
		}
		g.Keys = append(g.Keys, e)
	}

	keyTypes := make([]ir.TypeRef, len(g.Keys))
	for i, e := range g.Keys {
		keyTypes[i] = e.Type()
	}
	keyCtx := projected(roots, keyTypes)
	for _, k := range redundant {
		fromRow, err := k.BuildExpression(ctx)
		if err != nil {
			return queryir.Grouping{}, nil, err
		}
		fromKey, err := k.BuildExpression(keyCtx)
		if err != nil {
			return queryir.Grouping{}, nil, err
		}
		g.Redundant = append(g.Redundant, queryir.RedundantKey{FromRow: fromRow, FromKey: fromKey})
	}

	var aggTokens []token.Token
	for _, a := range aggs {
		if containsToken(aggTokens, a) {
			continue
		}
		qa, err := aggregateOf(ctx, a)
		if err != nil {
			return queryir.Grouping{}, nil, err
		}
		g.Aggregates = append(g.Aggregates, qa)
		aggTokens = append(aggTokens, a)
	}

	tokens := append(append(append([]token.Token{}, roots...), redundant...), aggTokens...)
	return g, projected(tokens, g.Slots()), nil
}

func aggregateOf(ctx *Context, a *token.Aggregate) (queryir.Aggregate, error) {
	if a.Parent() == nil {
		return queryir.Aggregate{Func: queryir.AggCount, T: a.Type()}, nil
	}
	arg, err := a.Parent().BuildExpression(ctx)
	if err != nil {
		return queryir.Aggregate{}, err
	}
	switch a.Func {
	case token.AggCount:
		if !a.IsConditional() {
			// Count below a token counts rows, like the root Count.
			return queryir.Aggregate{Func: queryir.AggCount, T: a.Type()}, nil
		}
		pred, err := condition(arg, a.Parent(), a.Operation, a.Value)
		if err != nil {
			return queryir.Aggregate{}, err
		}
		return queryir.Aggregate{Func: queryir.AggCountWhere, Pred: pred, T: a.Type()}, nil
	case token.AggCountDistinct:
		return queryir.Aggregate{Func: queryir.AggCountDistinct, Arg: arg, T: a.Type()}, nil
	case token.AggSum, token.AggAverage, token.AggMin, token.AggMax:
		t := a.Type()
		if arg.Type().Kind != t.Kind {
			arg = expr.Convert{Target: arg, T: ir.TypeRef{Kind: t.Kind, Nullable: arg.Type().Nullable}}
		}
		return queryir.Aggregate{Func: queryir.AggregateFunc(a.Func), Arg: arg, T: t}, nil
	}
	return queryir.Aggregate{}, &QueryError{
		Code:    ErrCodeUnsupportedAggregate,
		Message: fmt.Sprintf("aggregate %s is not supported", a.Func),
		Token:   a.FullKey(),
	}
}

func containsToken(tokens []token.Token, t token.Token) bool {
	for _, o := range tokens {
		if token.Equal(o, t) {
			return true
		}
	}
	return false
}
