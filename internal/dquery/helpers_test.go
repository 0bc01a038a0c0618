package dquery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/provider"
	"github.com/roach88/dynq/internal/testutil"
	"github.com/roach88/dynq/internal/token"
)

const allOptions = token.CanElement | token.CanAnyAll | token.CanAggregate

type fixture struct {
	schema    *ir.Schema
	catalog   *token.Catalog
	orders    ir.QueryDescription
	customers ir.QueryDescription
	providers []provider.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	schema, d := testutil.Orders(t)
	catalog, err := token.NewCatalog(schema)
	require.NoError(t, err)
	orders, err := schema.Describe("Orders")
	require.NoError(t, err)
	customers, err := schema.Describe("Customers")
	require.NoError(t, err)
	sql, err := provider.OpenSQLite(context.Background(), ":memory:", schema, d)
	require.NoError(t, err)
	t.Cleanup(func() { sql.Close() })
	return &fixture{
		schema:    schema,
		catalog:   catalog,
		orders:    orders,
		customers: customers,
		providers: []provider.Provider{provider.NewMemory(d), sql},
	}
}

// each runs fn once per provider; both must give the same answers.
func (f *fixture) each(t *testing.T, fn func(t *testing.T, p provider.Provider)) {
	t.Helper()
	for _, p := range f.providers {
		t.Run(p.Name(), func(t *testing.T) { fn(t, p) })
	}
}

func (f *fixture) tok(t *testing.T, key string) token.Token {
	t.Helper()
	return f.tokIn(t, f.orders, key)
}

func (f *fixture) tokIn(t *testing.T, desc ir.QueryDescription, key string) token.Token {
	t.Helper()
	tok, err := f.catalog.Parse(desc, key, allOptions)
	require.NoError(t, err)
	return tok
}

func (f *fixture) elem(t *testing.T, key string) *token.Element {
	t.Helper()
	e, ok := f.tok(t, key).(*token.Element)
	require.True(t, ok, "%s is not an element token", key)
	return e
}

func (f *fixture) agg(t *testing.T, key string) *token.Aggregate {
	t.Helper()
	a, ok := f.tok(t, key).(*token.Aggregate)
	require.True(t, ok, "%s is not an aggregate token", key)
	return a
}

func (f *fixture) query(t *testing.T, p provider.Provider, scope *ir.SystemTime) *DQueryable {
	t.Helper()
	q, err := NewQueryable(p, f.orders, scope)
	require.NoError(t, err)
	return q
}

func (f *fixture) cond(t *testing.T, key string, op token.Operation, v any) *FilterCondition {
	t.Helper()
	return &FilterCondition{Token: f.tok(t, key), Operation: op, Value: v}
}

func (f *fixture) columns(t *testing.T, keys ...string) []Column {
	t.Helper()
	out := make([]Column, len(keys))
	for i, k := range keys {
		out[i] = Column{Token: f.tok(t, k)}
	}
	return out
}

func (f *fixture) tokens(t *testing.T, keys ...string) []token.Token {
	t.Helper()
	out := make([]token.Token, len(keys))
	for i, k := range keys {
		out[i] = f.tok(t, k)
	}
	return out
}

// entityIDs returns the ids of the row entities of a table.
func entityIDs(t *testing.T, table *ResultTable) []int64 {
	t.Helper()
	out := make([]int64, len(table.Entities))
	for i, v := range table.Entities {
		l, ok := v.(ir.IRLite)
		require.True(t, ok, "entity %d is %T", i, v)
		out[i] = l.ID
	}
	return out
}

// columnValues returns the decompressed values of a column.
func columnValues(t *testing.T, table *ResultTable, key string) []ir.IRValue {
	t.Helper()
	c, ok := table.Column(key)
	require.True(t, ok, "no column %s", key)
	out := make([]ir.IRValue, table.Len())
	for i := range out {
		out[i] = c.Value(i)
	}
	return out
}

func liteIDs(t *testing.T, values []ir.IRValue) []int64 {
	t.Helper()
	out := make([]int64, len(values))
	for i, v := range values {
		switch l := v.(type) {
		case ir.IRLite:
			out[i] = l.ID
		case ir.IRNull:
			out[i] = 0
		default:
			t.Fatalf("value %d is %T, not a lite", i, v)
		}
	}
	return out
}

func ints(n ...int64) []ir.IRValue {
	out := make([]ir.IRValue, len(n))
	for i, v := range n {
		out[i] = ir.IRInt(v)
	}
	return out
}

func idRange(from, to int64) []int64 {
	var out []int64
	if from <= to {
		for i := from; i <= to; i++ {
			out = append(out, i)
		}
		return out
	}
	for i := from; i >= to; i-- {
		out = append(out, i)
	}
	return out
}
