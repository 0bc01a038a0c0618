package dquery

import (
	"fmt"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/querymem"
	"github.com/roach88/dynq/internal/token"
)

// DEnumerable is a materialized sequence of tuples with the context that
// binds its tokens. The operators mirror DQueryable's and run in memory
// through the querymem row operators.
type DEnumerable struct {
	rows     []ir.IRArray
	ctx      *Context
	resolver expr.Resolver
}

// NewDEnumerable wraps rows already shaped as ctx describes.
func NewDEnumerable(rows []ir.IRArray, ctx *Context, resolver expr.Resolver) (*DEnumerable, error) {
	if !ctx.IsTuple() {
		return nil, shapeMismatch("enumerable rows must be projected tuples")
	}
	n := len(ctx.binds)
	for i, r := range rows {
		if len(r) != n {
			return nil, shapeMismatch("row %d has %d slots, context binds %d", i, len(r), n)
		}
	}
	return &DEnumerable{rows: rows, ctx: ctx, resolver: resolver}, nil
}

// Rows returns the tuples. Callers must not modify them.
func (e *DEnumerable) Rows() []ir.IRArray { return e.rows }

// Context returns the token bindings of the rows.
func (e *DEnumerable) Context() *Context { return e.ctx }

// Len returns the number of rows.
func (e *DEnumerable) Len() int { return len(e.rows) }

func (e *DEnumerable) env() *expr.Env {
	return &expr.Env{Resolver: e.resolver}
}

func (e *DEnumerable) next(rows []ir.IRValue, ctx *Context) (*DEnumerable, error) {
	out := make([]ir.IRArray, len(rows))
	for i, r := range rows {
		t, ok := r.(ir.IRArray)
		if !ok {
			return nil, shapeMismatch("row %d is %T, not a tuple", i, r)
		}
		out[i] = t
	}
	return &DEnumerable{rows: out, ctx: ctx, resolver: e.resolver}, nil
}

func (e *DEnumerable) values() []ir.IRValue {
	out := make([]ir.IRValue, len(e.rows))
	for i, r := range e.rows {
		out[i] = r
	}
	return out
}

// Select projects the rows onto tokens.
func (e *DEnumerable) Select(tokens []token.Token) (*DEnumerable, error) {
	cols, ctx, err := selectStep(e.ctx, tokens)
	if err != nil {
		return nil, err
	}
	rows, err := querymem.Project(e.values(), cols, e.env())
	if err != nil {
		return nil, err
	}
	return e.next(rows, ctx)
}

// SelectOne projects the rows onto a single token.
func (e *DEnumerable) SelectOne(t token.Token) (*DEnumerable, error) {
	return e.Select([]token.Token{t})
}

// SelectMany flattens the collections of elems, outer collections first.
func (e *DEnumerable) SelectMany(elems []*token.Element) (*DEnumerable, error) {
	out := e
	for _, el := range elems {
		keep, coll, ctx, err := selectManyStep(out.ctx, el)
		if err != nil {
			return nil, err
		}
		rows, err := querymem.Flatten(out.values(), keep, coll, out.env())
		if err != nil {
			return nil, err
		}
		if out, err = out.next(rows, ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Where keeps the rows matching every filter. No filters returns e itself.
func (e *DEnumerable) Where(filters ...Filter) (*DEnumerable, error) {
	pred, err := whereStep(e.ctx, filters)
	if err != nil || pred == nil {
		return e, err
	}
	rows, err := querymem.Filter(e.values(), pred, e.env())
	if err != nil {
		return nil, err
	}
	return e.next(rows, e.ctx)
}

// OrderBy stable-sorts by orders, the first one being the primary key.
func (e *DEnumerable) OrderBy(orders []Order) (*DEnumerable, error) {
	if len(orders) == 0 {
		return e, nil
	}
	keys, err := orderStep(e.ctx, orders)
	if err != nil {
		return nil, err
	}
	rows, err := querymem.Sort(e.values(), keys, e.env())
	if err != nil {
		return nil, err
	}
	return e.next(rows, e.ctx)
}

// GroupBy groups by keys and computes aggs per group.
func (e *DEnumerable) GroupBy(keys []token.Token, aggs []*token.Aggregate) (*DEnumerable, error) {
	g, ctx, err := groupStep(e.ctx, keys, aggs)
	if err != nil {
		return nil, err
	}
	rows, err := querymem.Group(e.values(), g, e.env())
	if err != nil {
		return nil, err
	}
	return e.next(rows, ctx)
}

// TryTake keeps the first *n rows when n is set.
func (e *DEnumerable) TryTake(n *int) *DEnumerable {
	if n == nil || *n >= len(e.rows) {
		return e
	}
	return &DEnumerable{rows: e.rows[:max(*n, 0)], ctx: e.ctx, resolver: e.resolver}
}

// WithCount attaches a total to the sequence.
func (e *DEnumerable) WithCount(total *int) *DEnumerableCount {
	return &DEnumerableCount{DEnumerable: e, Total: total}
}

// Values evaluates t over every row.
func (e *DEnumerable) Values(t token.Token) ([]ir.IRValue, error) {
	x, err := t.BuildExpression(e.ctx)
	if err != nil {
		return nil, err
	}
	env := e.env()
	out := make([]ir.IRValue, len(e.rows))
	for i, r := range e.rows {
		v, err := expr.Eval(x, env.WithRow(r))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", t.FullKey(), i, err)
		}
		out[i] = expr.Project(v)
	}
	return out, nil
}

// ExpandColumn is a column computed from the entity of each row, for
// values no token can express.
type ExpandColumn struct {
	Token token.Token
	Value func(entity ir.IRLite) (ir.IRValue, error)
}

// ReplaceColumns sets the slot of every expand column to the value computed
// from the row's entity. A token not bound yet gets a new slot.
func (e *DEnumerable) ReplaceColumns(cols ...ExpandColumn) (*DEnumerable, error) {
	ent, ok := e.ctx.EntityToken()
	if !ok {
		return nil, shapeMismatch("ReplaceColumns needs the entity column")
	}
	entities, err := e.Values(ent)
	if err != nil {
		return nil, err
	}

	tokens, types := e.ctx.Tokens(), e.ctx.SlotTypes()
	slots := make([]int, len(cols))
	for i, c := range cols {
		slots[i] = -1
		for j, t := range tokens {
			if token.Equal(t, c.Token) {
				slots[i] = j
				types[j] = c.Token.Type()
			}
		}
		if slots[i] < 0 {
			slots[i] = len(tokens)
			tokens = append(tokens, c.Token)
			types = append(types, c.Token.Type())
		}
	}

	rows := make([]ir.IRArray, len(e.rows))
	for i, r := range e.rows {
		row := make(ir.IRArray, len(tokens))
		copy(row, r)
		for j := len(r); j < len(row); j++ {
			row[j] = ir.IRNull{}
		}
		lite, isLite := entities[i].(ir.IRLite)
		for k, c := range cols {
			if !isLite {
				row[slots[k]] = ir.IRNull{}
				continue
			}
			v, err := c.Value(lite)
			if err != nil {
				return nil, fmt.Errorf("%s of %s: %w", c.Token.FullKey(), lite.Key(), err)
			}
			row[slots[k]] = v
		}
		rows[i] = row
	}
	return &DEnumerable{rows: rows, ctx: projected(tokens, types), resolver: e.resolver}, nil
}

// DEnumerableCount is a page of rows plus the total of the sequence it was
// taken from. Total is nil when it was not computed.
type DEnumerableCount struct {
	*DEnumerable
	Total *int
}

// Concat appends b to a. Both must bind the same tokens to slots of the
// same types; the total is the sum, or nil when either is unknown.
func Concat(a, b *DEnumerableCount) (*DEnumerableCount, error) {
	if !a.ctx.sameShape(b.ctx) {
		return nil, shapeMismatch("concat: shapes differ:\n%s---\n%s", a.ctx.Describe(), b.ctx.Describe())
	}
	rows := make([]ir.IRArray, 0, len(a.rows)+len(b.rows))
	rows = append(append(rows, a.rows...), b.rows...)
	var total *int
	if a.Total != nil && b.Total != nil {
		n := *a.Total + *b.Total
		total = &n
	}
	return &DEnumerableCount{
		DEnumerable: &DEnumerable{rows: rows, ctx: a.ctx, resolver: a.resolver},
		Total:       total,
	}, nil
}
