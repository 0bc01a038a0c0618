package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
)

var (
	orderRow = expr.Row{T: ir.Lite("Order")}
	totalT   = ir.Scalar(ir.KindDecimal)
	lineT    = ir.TypeRef{Kind: ir.KindEmbedded, Embedded: "OrderLine"}
	linesT   = ir.TypeRef{Kind: ir.KindCollection, Elem: &lineT}
)

func source() Source {
	return Source{Query: "Orders", Entity: "Order"}
}

func total() expr.Expr {
	return expr.Member{Target: orderRow, Property: "Total", T: totalT}
}

func TestPlanNodesAreSealed(t *testing.T) {
	var _ Plan = Source{}
	var _ Plan = Where{}
	var _ Plan = OrderBy{}
	var _ Plan = ThenBy{}
	var _ Plan = Select{}
	var _ Plan = SelectMany{}
	var _ Plan = GroupBy{}
	var _ Plan = Skip{}
	var _ Plan = Take{}
}

func TestShapeOf(t *testing.T) {
	src := source()

	shape, err := ShapeOf(Where{Input: src, Pred: expr.IsNull{Target: total()}})
	require.NoError(t, err)
	assert.False(t, shape.Tuple)
	assert.Equal(t, "Order", shape.Entity)

	sel := Select{Input: src, Columns: []expr.Expr{orderRow, total()}}
	shape, err = ShapeOf(Take{Input: sel, N: 3})
	require.NoError(t, err)
	assert.True(t, shape.Tuple)
	assert.Equal(t, []ir.TypeRef{ir.Lite("Order"), totalT}, shape.Slots)

	many := SelectMany{Input: src, Keep: []expr.Expr{orderRow},
		Collection: expr.Member{Target: orderRow, Property: "Lines", T: linesT}}
	shape, err = ShapeOf(many)
	require.NoError(t, err)
	require.Len(t, shape.Slots, 2)
	assert.True(t, shape.Slots[1].Nullable, "element slot is nullable: empty collections keep the row")
}

func TestGroupingSlots(t *testing.T) {
	customer := expr.Member{Target: orderRow, Property: "Customer", T: ir.Lite("Customer")}
	name := expr.Member{Target: customer, Property: "Name", T: ir.Scalar(ir.KindString)}
	g := Grouping{
		Keys:      []expr.Expr{customer},
		Redundant: []RedundantKey{{FromRow: name, FromKey: expr.Member{Target: expr.Slot{Index: 0, T: ir.Lite("Customer")}, Property: "Name", T: ir.Scalar(ir.KindString)}}},
		Aggregates: []Aggregate{
			{Func: AggCount, T: ir.Scalar(ir.KindInt)},
			{Func: AggSum, Arg: total(), T: totalT},
		},
	}
	assert.Equal(t, []ir.TypeRef{ir.Lite("Customer"), ir.Scalar(ir.KindString), ir.Scalar(ir.KindInt), totalT}, g.Slots())
}

func TestSourceOf(t *testing.T) {
	p := Take{Input: OrderBy{Input: Select{Input: source(), Columns: []expr.Expr{orderRow}},
		Keys: []OrderKey{{Expr: expr.Slot{Index: 0, T: ir.Lite("Order")}}}}, N: 1}
	src, err := SourceOf(p)
	require.NoError(t, err)
	assert.Equal(t, "Orders", src.Query)
}

func TestExplain(t *testing.T) {
	p := Take{N: 10, Input: Skip{N: 10, Input: OrderBy{
		Input: Where{Input: source(), Pred: expr.Compare{Op: expr.OpGt, Left: total(), Right: expr.Const{Value: ir.IRInt(100), T: ir.Scalar(ir.KindInt)}}},
		Keys:  []OrderKey{{Expr: total(), Desc: true}},
	}}}

	want := "Source Orders (Order) [current]\n" +
		"Where row.Total > 100\n" +
		"OrderBy [row.Total desc]\n" +
		"Skip 10\n" +
		"Take 10"
	assert.Equal(t, want, Explain(p))
}
