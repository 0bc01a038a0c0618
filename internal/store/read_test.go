package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryir"
	"github.com/roach88/dynq/internal/querysql"
)

var (
	orderRow = expr.Row{T: ir.Lite("Order")}
	orders   = queryir.Source{Query: "Orders", Entity: "Order"}
)

func compile(t *testing.T, s *Store, p queryir.Plan) querysql.Query {
	t.Helper()
	q, err := querysql.NewSQLCompiler(s.Schema()).Compile(p)
	require.NoError(t, err)
	return q
}

func TestQuery_DecodesSlots(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	p := queryir.Select{Input: orders, Columns: []expr.Expr{
		orderRow,
		expr.Member{Target: orderRow, Property: "Total", T: decT.Nullify()},
		expr.Member{Target: orderRow, Property: "Owner", T: ownT},
		expr.Count{Collection: expr.Member{Target: orderRow, Property: "Lines", T: ir.TypeRef{Kind: ir.KindCollection, Elem: &lineT}}},
	}}
	rows, err := s.Query(ctx, compile(t, s, p))
	require.NoError(t, err)
	require.Len(t, rows, 1, "only the current version by default")

	assert.Equal(t, ir.IRLite{Type: "Order", ID: 10}, rows[0][0])
	assert.Equal(t, 0, ir.Compare(ir.MustDecimal("12.25"), rows[0][1]))
	assert.Equal(t, ir.IRLite{ID: 2}, rows[0][2], "polymorphic lites come back untyped")
	assert.Equal(t, ir.IRInt(2), rows[0][3])

	values := []ir.IRValue{rows[0]}
	require.NoError(t, s.CompleteLites(ctx, values))
	row := values[0].(ir.IRArray)
	assert.Equal(t, ir.IRLite{Type: "Order", ID: 10, ToStr: "SO-10"}, row[0])
	assert.Equal(t, ir.IRLite{Type: "Employee", ID: 2, ToStr: "Grace"}, row[2])
}

func TestQuery_EmptyResult(t *testing.T) {
	s := createTestStore(t)
	rows, err := s.Query(context.Background(), compile(t, s, queryir.Select{Input: orders, Columns: []expr.Expr{orderRow}}))
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestCount(t *testing.T) {
	s := seededStore(t)
	q, err := querysql.NewSQLCompiler(s.Schema()).CompileCount(queryir.Source{Query: "Orders", Entity: "Order", Scope: ir.AllVersions("")})
	require.NoError(t, err)

	n, err := s.Count(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCompleteLites_UsesLatestVersionText(t *testing.T) {
	s := seededStore(t)
	_, err := s.db.Exec(`UPDATE "e_order" SET "number" = 'SO-10-old' WHERE sys_to IS NOT NULL`)
	require.NoError(t, err)

	values := []ir.IRValue{ir.IRArray{ir.IRLite{ID: 10}, ir.IRLite{ID: 99}}}
	require.NoError(t, s.CompleteLites(context.Background(), values))
	assert.Equal(t, ir.IRArray{ir.IRLite{Type: "Order", ID: 10, ToStr: "SO-10"}, ir.IRLite{ID: 99}}, values[0])
}

func TestLoadEntity(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	current, ok, err := s.LoadEntity(ctx, ir.IRLite{Type: "Order", ID: 10}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, *day(5), *current.SysFrom)
	assert.Nil(t, current.SysTo)
	assert.Equal(t, ir.IRLite{Type: "Employee", ID: 2, ToStr: "Grace"}, current.Fields["Owner"])
	assert.Equal(t, ir.IRObject{"Street": ir.IRString("1 Main St"), "City": ir.IRString("Springfield")}, current.Fields["Address"])
	assert.Equal(t, ir.IRArray{
		ir.IRObject{"Product": ir.IRString("Widget"), "Quantity": ir.IRInt(2)},
		ir.IRObject{"Product": ir.IRString("Gadget"), "Quantity": ir.IRInt(1)},
	}, current.Fields["Lines"])
	assert.Equal(t, ir.IRArray{ir.IRString("rush")}, current.Fields["Tags"])

	old, ok, err := s.LoadEntity(ctx, ir.IRLite{ID: 10}, ir.AsOf(*day(2)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Order", old.Type)
	assert.Equal(t, ir.IRNull{}, old.Fields["Address"])
	assert.Equal(t, ir.IRArray{}, old.Fields["Lines"])
	assert.Equal(t, 0, ir.Compare(ir.MustDecimal("10.5"), old.Fields["Total"]))

	earliest, ok, err := s.LoadEntity(ctx, ir.IRLite{Type: "Order", ID: 10}, ir.AllVersions(""))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, *day(1), *earliest.SysFrom)

	_, ok, err = s.LoadEntity(ctx, ir.IRLite{Type: "Order", ID: 10}, ir.AsOf(*day(0)))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.LoadEntity(ctx, ir.IRLite{ID: 404}, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	cust, ok, err := s.LoadEntity(ctx, ir.IRLite{Type: "Customer", ID: 1}, ir.AsOf(*day(0)))
	require.NoError(t, err)
	require.True(t, ok, "non-temporal entities ignore the scope")
	assert.Equal(t, ir.IRString("Ada"), cust.Fields["Name"])
}
