package dquery

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/provider"
	"github.com/roach88/dynq/internal/queryir"
	"github.com/roach88/dynq/internal/token"
)

func TestExecuteQueryGroupCount(t *testing.T) {
	f := newFixture(t)
	f.each(t, func(t *testing.T, p provider.Provider) {
		req := &QueryRequest{
			QueryName:    "Orders",
			Filters:      []Filter{f.cond(t, "Id", token.OpIsIn, []any{101, 104, 102})},
			Columns:      f.columns(t, "Customer", "Count"),
			Pagination:   All{},
			GroupResults: true,
		}
		table, err := ExecuteQuery(context.Background(), f.query(t, p, nil), req)
		require.NoError(t, err)
		assert.Nil(t, table.Entities, "grouped rows have no entity")
		assert.Equal(t, []int64{1, 2}, liteIDs(t, columnValues(t, table, "Customer")))
		assert.Equal(t, ints(2, 1), columnValues(t, table, "Count"))
		require.NotNil(t, table.TotalElements)
		assert.Equal(t, 2, *table.TotalElements)

		customer, _ := table.Column("Customer")
		assert.True(t, customer.Compressed())
	})
}

func TestExecuteQueryGroupRedundantKeys(t *testing.T) {
	f := newFixture(t)
	f.each(t, func(t *testing.T, p provider.Provider) {
		req := &QueryRequest{
			QueryName:    "Orders",
			Columns:      f.columns(t, "Customer", "Customer.Name", "Count"),
			Pagination:   All{},
			GroupResults: true,
		}
		table, err := ExecuteQuery(context.Background(), f.query(t, p, nil), req)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1, 2, 3}, liteIDs(t, columnValues(t, table, "Customer")))
		assert.Equal(t, []ir.IRValue{ir.IRNull{}, ir.IRString("Ada"), ir.IRString("Bob"), ir.IRString("Cid")},
			columnValues(t, table, "Customer.Name"))
		assert.Equal(t, ints(3, 8, 7, 7), columnValues(t, table, "Count"))

		name, _ := table.Column("Customer.Name")
		assert.True(t, name.Compressed(), "key columns of a multi-key grouping are compressed")
		assert.Equal(t, []int{NoIndex, 0, 1, 2}, name.Indexes)
		count, _ := table.Column("Count")
		assert.False(t, count.Compressed())
	})
}

func TestExecuteQueryGroupAggregates(t *testing.T) {
	f := newFixture(t)
	f.each(t, func(t *testing.T, p provider.Provider) {
		req := &QueryRequest{
			QueryName:    "Orders",
			Orders:       []Order{{Token: f.tok(t, "Total.Sum"), Desc: true}},
			Columns:      f.columns(t, "Customer", "Total.Sum", "Total.Max", "Entity.Lines.Count.Average"),
			Pagination:   All{},
			GroupResults: true,
		}
		table, err := ExecuteQuery(context.Background(), f.query(t, p, nil), req)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3, 2, 0}, liteIDs(t, columnValues(t, table, "Customer")))

		sums := columnValues(t, table, "Total.Sum")
		for i, want := range []int64{848, 668, 660, 324} {
			assert.True(t, sums[i].(ir.IRDecimal).Equal(decimal.NewFromInt(want)), "sum %d = %s", i, sums[i])
		}
		maxes := columnValues(t, table, "Total.Max")
		assert.True(t, maxes[0].(ir.IRDecimal).Equal(decimal.NewFromInt(196)))

		avg := columnValues(t, table, "Entity.Lines.Count.Average")
		assert.IsType(t, ir.IRDecimal{}, avg[0])
	})
}

func TestExecuteQueryGroupAggregatesElements(t *testing.T) {
	f := newFixture(t)
	f.each(t, func(t *testing.T, p provider.Provider) {
		req := &QueryRequest{
			QueryName:    "Orders",
			Columns:      f.columns(t, "Customer", "Entity.Lines.Element.Price.Sum"),
			Pagination:   All{},
			GroupResults: true,
		}
		table, err := ExecuteQuery(context.Background(), f.query(t, p, nil), req)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1, 2, 3}, liteIDs(t, columnValues(t, table, "Customer")))

		sums := columnValues(t, table, "Entity.Lines.Element.Price.Sum")
		for i, want := range []string{"25", "60", "105", "7.5"} {
			assert.True(t, sums[i].(ir.IRDecimal).Equal(decimal.RequireFromString(want)), "sum %d = %s", i, sums[i])
		}
	})
}

func TestExecuteQueryGroupAggregateFilter(t *testing.T) {
	f := newFixture(t)
	f.each(t, func(t *testing.T, p provider.Provider) {
		req := &QueryRequest{
			QueryName: "Orders",
			Filters: []Filter{
				f.cond(t, "Count", token.OpGreaterThan, 7),
				f.cond(t, "Shipped", token.OpEqualTo, false),
			},
			Columns:      f.columns(t, "Customer", "Count"),
			Pagination:   All{},
			GroupResults: true,
		}
		table, err := ExecuteQuery(context.Background(), f.query(t, p, nil), req)
		require.NoError(t, err)
		assert.Equal(t, 0, table.Len(), "no customer has more than 7 unshipped orders")

		req.Filters = req.Filters[:1]
		table, err = ExecuteQuery(context.Background(), f.query(t, p, nil), req)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, liteIDs(t, columnValues(t, table, "Customer")))
		assert.Equal(t, ints(8), columnValues(t, table, "Count"))
	})
}

func TestExecuteQueryGroupCountWhere(t *testing.T) {
	f := newFixture(t)
	f.each(t, func(t *testing.T, p provider.Provider) {
		req := &QueryRequest{
			QueryName:    "Orders",
			Columns:      f.columns(t, "Shipped", "Total.Count(GreaterThan,100)", "Customer.CountDistinct"),
			Pagination:   All{},
			GroupResults: true,
		}
		table, err := ExecuteQuery(context.Background(), f.query(t, p, nil), req)
		require.NoError(t, err)
		assert.Equal(t, []ir.IRValue{ir.IRBool(false), ir.IRBool(true)}, columnValues(t, table, "Shipped"))
		assert.Equal(t, ints(6, 6), columnValues(t, table, "Total.Count(GreaterThan,100)"))
		assert.Equal(t, ints(3, 3), columnValues(t, table, "Customer.CountDistinct"))
	})
}

func TestRootKeys(t *testing.T) {
	f := newFixture(t)

	roots, redundant := rootKeys(f.tokens(t, "Customer.Name", "Customer", "State", "Customer.Country"))
	assert.Equal(t, []string{"Customer", "State"}, fullKeys(roots))
	assert.Equal(t, []string{"Customer.Name", "Customer.Country"}, fullKeys(redundant))

	roots, redundant = rootKeys(f.tokens(t, "Entity.Lines.Element", "Entity.Lines.Element.Quantity", "Entity"))
	assert.Equal(t, []string{"Entity.Lines.Element", "Entity"}, fullKeys(roots), "an element is not determined by its owner")
	assert.Equal(t, []string{"Entity.Lines.Element.Quantity"}, fullKeys(redundant))
}

func TestGroupStepPlan(t *testing.T) {
	f := newFixture(t)
	q := f.query(t, f.providers[0], nil)

	g, err := q.GroupBy(f.tokens(t, "Customer", "Customer.Name"), []*token.Aggregate{f.agg(t, "Count"), f.agg(t, "Count")})
	require.NoError(t, err)
	node, ok := g.Plan().(queryir.GroupBy)
	require.True(t, ok)
	assert.Len(t, node.Keys, 1)
	assert.Len(t, node.Redundant, 1)
	assert.Len(t, node.Aggregates, 1, "duplicate aggregates are computed once")
	assert.Equal(t, []string{"Customer", "Customer.Name", "Count"}, fullKeys(g.Context().Tokens()))

	_, err = q.GroupBy(f.tokens(t, "Count"), nil)
	code, _ := CodeOf(err)
	assert.Equal(t, ErrCodeInvalidColumn, code)
}

func fullKeys(tokens []token.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.FullKey()
	}
	return out
}
