package dquery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/provider"
	"github.com/roach88/dynq/internal/queryir"
	"github.com/roach88/dynq/internal/token"
)

// DQueryable is a provider-translatable query: a plan plus the context
// that says what each token means over its rows. Operators return a new
// DQueryable and never modify the receiver; nothing runs until
// ToDEnumerable, Count or TryPaginate asks the provider.
type DQueryable struct {
	plan     queryir.Plan
	ctx      *Context
	provider provider.Provider
	scope    *ir.SystemTime
}

// NewQueryable starts a query over the rows of desc visible under scope.
func NewQueryable(p provider.Provider, desc ir.QueryDescription, scope *ir.SystemTime) (*DQueryable, error) {
	if err := scope.Validate(); err != nil {
		return nil, &QueryError{Code: ErrCodeInvalidValue, Message: err.Error()}
	}
	ctx, err := NewContext(desc)
	if err != nil {
		return nil, err
	}
	return &DQueryable{
		plan:     queryir.Source{Query: desc.QueryName, Entity: desc.Entity, Scope: scope},
		ctx:      ctx,
		provider: p,
		scope:    scope,
	}, nil
}

// Plan returns the plan built so far.
func (q *DQueryable) Plan() queryir.Plan { return q.plan }

// Context returns the token bindings of the current row shape.
func (q *DQueryable) Context() *Context { return q.ctx }

// Scope returns the temporal scope of the query.
func (q *DQueryable) Scope() *ir.SystemTime { return q.scope }

func (q *DQueryable) next(p queryir.Plan, ctx *Context) *DQueryable {
	return &DQueryable{plan: p, ctx: ctx, provider: q.provider, scope: q.scope}
}

// Select projects the rows onto tokens.
func (q *DQueryable) Select(tokens []token.Token) (*DQueryable, error) {
	cols, ctx, err := selectStep(q.ctx, tokens)
	if err != nil {
		return nil, err
	}
	return q.next(queryir.Select{Input: q.plan, Columns: cols}, ctx), nil
}

// SelectMany flattens the collections of elems, outer collections first.
func (q *DQueryable) SelectMany(elems []*token.Element) (*DQueryable, error) {
	out := q
	for _, e := range elems {
		keep, coll, ctx, err := selectManyStep(out.ctx, e)
		if err != nil {
			return nil, err
		}
		out = out.next(queryir.SelectMany{Input: out.plan, Keep: keep, Collection: coll}, ctx)
	}
	return out, nil
}

// Where keeps the rows matching every filter. No filters returns q itself.
func (q *DQueryable) Where(filters ...Filter) (*DQueryable, error) {
	pred, err := whereStep(q.ctx, filters)
	if err != nil || pred == nil {
		return q, err
	}
	return q.next(queryir.Where{Input: q.plan, Pred: pred}, q.ctx), nil
}

// OrderBy sorts by orders, the first one being the primary key.
func (q *DQueryable) OrderBy(orders []Order) (*DQueryable, error) {
	if len(orders) == 0 {
		return q, nil
	}
	keys, err := orderStep(q.ctx, orders)
	if err != nil {
		return nil, err
	}
	return q.next(queryir.OrderBy{Input: q.plan, Keys: keys}, q.ctx), nil
}

// GroupBy groups by keys and computes aggs per group.
func (q *DQueryable) GroupBy(keys []token.Token, aggs []*token.Aggregate) (*DQueryable, error) {
	g, ctx, err := groupStep(q.ctx, keys, aggs)
	if err != nil {
		return nil, err
	}
	return q.next(queryir.GroupBy{Input: q.plan, Grouping: g}, ctx), nil
}

// OrderAlsoByKeys appends an ascending order on every lite slot, the
// entity column first, so that pages are stable. With no lite slot every
// slot is used.
func (q *DQueryable) OrderAlsoByKeys() (*DQueryable, error) {
	if !q.ctx.IsTuple() {
		return nil, shapeMismatch("OrderAlsoByKeys needs projected rows")
	}
	keys := tieBreakKeys(q.ctx)
	if len(keys) == 0 {
		return q, nil
	}
	return q.next(queryir.ThenBy{Input: q.plan, Keys: keys}, q.ctx), nil
}

func tieBreakKeys(ctx *Context) []queryir.OrderKey {
	exprs := ctx.Exprs()
	var keys []queryir.OrderKey
	if ent, ok := ctx.EntityToken(); ok {
		e, _ := ctx.Lookup(ent)
		keys = append(keys, queryir.OrderKey{Expr: e})
	}
	for i, t := range ctx.Tokens() {
		if col, ok := t.(*token.Column); ok && col.IsEntity() {
			continue
		}
		if exprs[i].Type().IsLite() {
			keys = append(keys, queryir.OrderKey{Expr: exprs[i]})
		}
	}
	if len(keys) > 0 {
		return keys
	}
	for _, e := range exprs {
		keys = append(keys, queryir.OrderKey{Expr: e})
	}
	return keys
}

// Skip drops the first n rows.
func (q *DQueryable) Skip(n int) *DQueryable {
	return q.next(queryir.Skip{Input: q.plan, N: n}, q.ctx)
}

// Take keeps at most n rows.
func (q *DQueryable) Take(n int) *DQueryable {
	return q.next(queryir.Take{Input: q.plan, N: n}, q.ctx)
}

// TryTake applies Take when n is set.
func (q *DQueryable) TryTake(n *int) *DQueryable {
	if n == nil {
		return q
	}
	return q.Take(*n)
}

// SelectOne projects the rows onto a single token.
func (q *DQueryable) SelectOne(t token.Token) (*DQueryable, error) {
	return q.Select([]token.Token{t})
}

// ToDEnumerable runs the query and materializes its rows.
func (q *DQueryable) ToDEnumerable(ctx context.Context) (*DEnumerable, error) {
	if !q.ctx.IsTuple() {
		return nil, shapeMismatch("ToDEnumerable needs projected rows; add a Select")
	}
	slog.Debug("list", "backend", q.provider.Name(), "plan", queryir.Explain(q.plan))
	rows, err := q.provider.List(ctx, q.plan)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", q.provider.Name(), err)
	}
	return &DEnumerable{rows: rows, ctx: q.ctx, resolver: q.provider.Resolver(ctx, q.scope)}, nil
}

// Count runs the count of q's rows.
func (q *DQueryable) Count(ctx context.Context) (int, error) {
	n, err := q.provider.Count(ctx, q.plan)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.provider.Name(), err)
	}
	return n, nil
}
