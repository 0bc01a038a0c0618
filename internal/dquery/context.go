package dquery

import (
	"fmt"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/token"
)

// Context binds tokens to expressions over the current row shape.
//
// Before the first projection the row is the source entity and every
// column of the query description is bound to its row expression. Every
// shape change (Select, SelectMany, GroupBy) builds a new Context whose
// bindings are tuple slots in binding order; a Context is never mutated.
type Context struct {
	row   expr.Expr
	binds []binding
	index map[string]int
}

type binding struct {
	token token.Token
	expr  expr.Expr
}

func contextKey(t token.Token) string {
	return t.QueryName() + ":" + t.FullKey()
}

// NewContext returns the context of a source query: row is the entity row
// and every column of desc is bound through it.
func NewContext(desc ir.QueryDescription) (*Context, error) {
	row := expr.Row{T: ir.Lite(desc.Entity)}
	rowOnly := &Context{row: row}
	c := &Context{row: row, index: map[string]int{}}
	for _, col := range desc.Columns {
		t := token.NewColumn(desc.QueryName, col)
		e, err := t.BuildExpression(rowOnly)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		c.add(t, e)
	}
	return c, nil
}

// projected returns a context binding tokens[i] to slot i.
func projected(tokens []token.Token, types []ir.TypeRef) *Context {
	c := &Context{index: make(map[string]int, len(tokens))}
	for i, t := range tokens {
		c.add(t, expr.Slot{Index: i, T: types[i]})
	}
	return c
}

func (c *Context) add(t token.Token, e expr.Expr) {
	if c.index == nil {
		c.index = map[string]int{}
	}
	if i, ok := c.index[contextKey(t)]; ok {
		c.binds[i].expr = e
		return
	}
	c.index[contextKey(t)] = len(c.binds)
	c.binds = append(c.binds, binding{token: t, expr: e})
}

// with returns a copy of c that also binds t to e. Quantifiers use it to
// bind an Any/All token to the element parameter.
func (c *Context) with(t token.Token, e expr.Expr) *Context {
	out := &Context{row: c.row, binds: make([]binding, len(c.binds)), index: make(map[string]int, len(c.index)+1)}
	copy(out.binds, c.binds)
	for k, v := range c.index {
		out.index[k] = v
	}
	out.add(t, e)
	return out
}

// Lookup implements token.Context.
func (c *Context) Lookup(t token.Token) (expr.Expr, bool) {
	i, ok := c.index[contextKey(t)]
	if !ok {
		return nil, false
	}
	return c.binds[i].expr, true
}

// Row implements token.Context.
func (c *Context) Row() (expr.Expr, bool) {
	return c.row, c.row != nil
}

// Tokens returns the bound tokens in binding order.
func (c *Context) Tokens() []token.Token {
	out := make([]token.Token, len(c.binds))
	for i, b := range c.binds {
		out[i] = b.token
	}
	return out
}

// Exprs returns the bound expressions in binding order.
func (c *Context) Exprs() []expr.Expr {
	out := make([]expr.Expr, len(c.binds))
	for i, b := range c.binds {
		out[i] = b.expr
	}
	return out
}

// IsTuple reports whether rows are projected tuples.
func (c *Context) IsTuple() bool { return c.row == nil }

// SlotTypes returns the tuple field types of a projected context.
func (c *Context) SlotTypes() []ir.TypeRef {
	out := make([]ir.TypeRef, len(c.binds))
	for i, b := range c.binds {
		out[i] = b.expr.Type()
	}
	return out
}

// EntityToken returns the bound entity column, if any.
func (c *Context) EntityToken() (token.Token, bool) {
	for _, b := range c.binds {
		if col, ok := b.token.(*token.Column); ok && col.IsEntity() {
			return col, true
		}
	}
	return nil, false
}

// sameShape reports whether c and o bind the same tokens to slots of the
// same types.
func (c *Context) sameShape(o *Context) bool {
	if c.IsTuple() != o.IsTuple() || len(c.binds) != len(o.binds) {
		return false
	}
	for i := range c.binds {
		if !token.Equal(c.binds[i].token, o.binds[i].token) {
			return false
		}
		if !c.binds[i].expr.Type().SameShape(o.binds[i].expr.Type()) {
			return false
		}
	}
	return true
}

// Describe renders the bindings one per line; used in debug logs.
func (c *Context) Describe() string {
	s := ""
	if c.row != nil {
		s = "row: " + c.row.Type().String() + "\n"
	}
	for _, b := range c.binds {
		s += b.token.FullKey() + " => " + expr.Format(b.expr) + "\n"
	}
	return s
}
