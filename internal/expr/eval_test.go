package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/ir"
)

type mapResolver map[int64]ir.IREntity

func (m mapResolver) Resolve(l ir.IRLite) (ir.IREntity, bool, error) {
	e, ok := m[l.ID]
	return e, ok, nil
}

var (
	strT  = ir.Scalar(ir.KindString)
	intT  = ir.Scalar(ir.KindInt)
	decT  = ir.Scalar(ir.KindDecimal)
	dateT = ir.Scalar(ir.KindDateTime)
)

func orderEntity() ir.IREntity {
	return ir.IREntity{Type: "Order", ID: 10, Fields: ir.IRObject{
		"Number":    ir.IRString("SO-10"),
		"Total":     ir.MustDecimal("150.25"),
		"OrderDate": ir.NewIRTime(time.Date(2024, 2, 29, 13, 45, 10, 250e6, time.UTC)),
		"Customer":  ir.IRLite{Type: "Customer", ID: 1},
		"Address":   ir.IRObject{"City": ir.IRString("Paris")},
		"Tags":      ir.IRArray{ir.IRString("rush"), ir.IRString("gift")},
		"Lines": ir.IRArray{
			ir.IRObject{"Quantity": ir.IRInt(2)},
			ir.IRObject{"Quantity": ir.IRInt(5)},
		},
	}}
}

func env() *Env {
	return &Env{
		Row: orderEntity(),
		Resolver: mapResolver{
			1: {Type: "Customer", ID: 1, Fields: ir.IRObject{"Name": ir.IRString("Ada")}},
		},
	}
}

func row() Row { return Row{T: ir.Lite("Order")} }

func member(target Expr, prop string, t ir.TypeRef) Member {
	return Member{Target: target, Property: prop, T: t}
}

func TestEvalMemberAndNavigation(t *testing.T) {
	tests := []struct {
		name string
		e    Expr
		want ir.IRValue
	}{
		{"entity field", member(row(), "Number", strT), ir.IRString("SO-10")},
		{"missing field is null", member(row(), "Nope", strT), ir.IRNull{}},
		{"navigate lite", member(member(row(), "Customer", ir.Lite("Customer")), "Name", strT), ir.IRString("Ada")},
		{"embedded", member(member(row(), "Address", ir.TypeRef{Kind: ir.KindEmbedded, Embedded: "Address"}), "City", strT), ir.IRString("Paris")},
		{"id of row", ID{Target: row()}, ir.IRInt(10)},
		{"as matching type", AsType{Target: member(row(), "Customer", ir.Lite("Customer")), Entity: "Customer"}, ir.IRLite{Type: "Customer", ID: 1}},
		{"as other type", AsType{Target: member(row(), "Customer", ir.Lite("Customer")), Entity: "Employee"}, ir.IRNull{}},
		{"count", Count{Collection: member(row(), "Lines", ir.TypeRef{Kind: ir.KindCollection})}, ir.IRInt(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.e, env())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalNavigationToMissingEntityIsNull(t *testing.T) {
	e := member(Const{Value: ir.IRLite{Type: "Customer", ID: 99}, T: ir.Lite("Customer")}, "Name", strT)
	got, err := Eval(e, env())
	require.NoError(t, err)
	assert.Equal(t, ir.IRNull{}, got)
}

func TestEvalDateParts(t *testing.T) {
	date := member(row(), "OrderDate", dateT)
	tests := []struct {
		part DatePartKind
		want ir.IRValue
	}{
		{PartYear, ir.IRInt(2024)},
		{PartMonth, ir.IRInt(2)},
		{PartDay, ir.IRInt(29)},
		{PartDayOfYear, ir.IRInt(60)},
		{PartDayOfWeek, ir.IRInt(4)},
		{PartHour, ir.IRInt(13)},
		{PartMinute, ir.IRInt(45)},
		{PartSecond, ir.IRInt(10)},
		{PartMillisecond, ir.IRInt(250)},
		{PartMonthStart, ir.NewIRTime(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))},
		{PartDate, ir.NewIRTime(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))},
	}
	for _, tt := range tests {
		t.Run(string(tt.part), func(t *testing.T) {
			got, err := Eval(DatePart{Target: date, Part: tt.part}, env())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalRound(t *testing.T) {
	total := member(row(), "Total", decT)
	ceil, err := Eval(Round{Target: total, Mode: RoundCeil}, env())
	require.NoError(t, err)
	floor, err := Eval(Round{Target: total, Mode: RoundFloor}, env())
	require.NoError(t, err)
	assert.Equal(t, "151", ir.Display(ceil))
	assert.Equal(t, "150", ir.Display(floor))

	neg, err := Eval(Round{Target: Const{Value: ir.MustDecimal("-1.5"), T: decT}, Mode: RoundFloor}, env())
	require.NoError(t, err)
	assert.Equal(t, "-2", ir.Display(neg))
}

func TestEvalThreeValuedLogic(t *testing.T) {
	null := Const{Value: ir.IRNull{}, T: intT.Nullify()}
	one := Const{Value: ir.IRInt(1), T: intT}
	tr := Compare{Op: OpEq, Left: one, Right: one}
	fa := Compare{Op: OpNe, Left: one, Right: one}
	unknown := Compare{Op: OpEq, Left: null, Right: one}

	tests := []struct {
		name string
		e    Expr
		want ir.IRValue
	}{
		{"null comparison", unknown, ir.IRNull{}},
		{"true and null", And{Terms: []Expr{tr, unknown}}, ir.IRNull{}},
		{"false and null", And{Terms: []Expr{fa, unknown}}, ir.IRBool(false)},
		{"true or null", Or{Terms: []Expr{unknown, tr}}, ir.IRBool(true)},
		{"false or null", Or{Terms: []Expr{fa, unknown}}, ir.IRNull{}},
		{"not null", Not{Inner: unknown}, ir.IRNull{}},
		{"is null", IsNull{Target: null}, ir.IRBool(true)},
		{"empty and", And{}, ir.IRBool(true)},
		{"empty or", Or{}, ir.IRBool(false)},
		{"in empty list", In{Target: null}, ir.IRBool(false)},
		{"null in list", In{Target: null, Values: []ir.IRValue{ir.IRInt(1)}}, ir.IRNull{}},
		{"in match", In{Target: one, Values: []ir.IRValue{ir.IRInt(3), ir.IRInt(1)}}, ir.IRBool(true)},
		{"in miss with null", In{Target: one, Values: []ir.IRValue{ir.IRNull{}, ir.IRInt(3)}}, ir.IRNull{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.e, env())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalStringOperations(t *testing.T) {
	number := member(row(), "Number", strT)
	lit := func(s string) Const { return Const{Value: ir.IRString(s), T: strT} }

	tests := []struct {
		op   CompareOp
		arg  string
		want bool
	}{
		{OpContains, "-1", true},
		{OpStartsWith, "SO", true},
		{OpStartsWith, "so", false},
		{OpEndsWith, "10", true},
		{OpEndsWith, "", true},
		{OpContains, "X", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.op)+" "+tt.arg, func(t *testing.T) {
			got, err := Eval(Compare{Op: tt.op, Left: number, Right: lit(tt.arg)}, env())
			require.NoError(t, err)
			assert.Equal(t, ir.IRBool(tt.want), got)
		})
	}
}

func TestEvalQuantifiers(t *testing.T) {
	lineT := ir.TypeRef{Kind: ir.KindEmbedded, Embedded: "OrderLine"}
	lines := member(row(), "Lines", ir.TypeRef{Kind: ir.KindCollection, Elem: &lineT})
	p := Param{Name: "p0", T: lineT}
	qtyGt := func(n int64) Expr {
		return Compare{Op: OpGt, Left: member(p, "Quantity", intT), Right: Const{Value: ir.IRInt(n), T: intT}}
	}

	anyGt4, err := Eval(Quantifier{Collection: lines, Param: p, Pred: qtyGt(4)}, env())
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(true), anyGt4)

	allGt4, err := Eval(Quantifier{Collection: lines, Param: p, Pred: qtyGt(4), All: true}, env())
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(false), allGt4)

	allGt1, err := Eval(Quantifier{Collection: lines, Param: p, Pred: qtyGt(1), All: true}, env())
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(true), allGt1)

	empty := Const{Value: ir.IRArray{}, T: ir.TypeRef{Kind: ir.KindCollection, Elem: &lineT}}
	anyEmpty, err := Eval(Quantifier{Collection: empty, Param: p, Pred: qtyGt(0)}, env())
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(false), anyEmpty)
	allEmpty, err := Eval(Quantifier{Collection: empty, Param: p, Pred: qtyGt(0), All: true}, env())
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(true), allEmpty)
}

func TestEvalConvert(t *testing.T) {
	got, err := Eval(Convert{Target: Const{Value: ir.IRInt(3), T: intT}, T: decT}, env())
	require.NoError(t, err)
	assert.Equal(t, ir.KindDecimal, decimalKind(got))

	zero, err := Eval(Convert{Target: Const{Value: ir.IRNull{}, T: decT.Nullify()}, T: decT}, env())
	require.NoError(t, err)
	assert.Equal(t, "0", ir.Display(zero))

	null, err := Eval(Convert{Target: Const{Value: ir.IRNull{}, T: decT.Nullify()}, T: decT.Nullify()}, env())
	require.NoError(t, err)
	assert.True(t, ir.IsNull(null))
}

func decimalKind(v ir.IRValue) ir.Kind {
	if _, ok := v.(ir.IRDecimal); ok {
		return ir.KindDecimal
	}
	return ""
}

func TestEvalSlotsAndErrors(t *testing.T) {
	e := &Env{Row: ir.IRArray{ir.IRInt(7), nil}}

	v, err := Eval(Slot{Index: 0, T: intT}, e)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(7), v)

	v, err = Eval(Slot{Index: 1, T: intT}, e)
	require.NoError(t, err)
	assert.Equal(t, ir.IRNull{}, v)

	_, err = Eval(Slot{Index: 2, T: intT}, e)
	assert.ErrorContains(t, err, "out of range")

	_, err = Eval(Param{Name: "x"}, e)
	assert.ErrorContains(t, err, "unbound parameter")

	_, err = Eval(member(Const{Value: ir.IRLite{Type: "Customer", ID: 1}}, "Name", strT), &Env{})
	assert.ErrorContains(t, err, "without a resolver")
}

func TestProject(t *testing.T) {
	assert.Equal(t, ir.IRLite{Type: "Order", ID: 10}, Project(orderEntity()))
	assert.Equal(t, ir.IRNull{}, Project(nil))
	assert.Equal(t, ir.IRInt(1), Project(ir.IRInt(1)))
}

func TestFormat(t *testing.T) {
	e := And{Terms: []Expr{
		Compare{Op: OpGt, Left: member(row(), "Total", decT), Right: Const{Value: ir.IRInt(100), T: intT}},
		Not{Inner: IsNull{Target: member(Slot{Index: 1, T: ir.Lite("Customer")}, "Name", strT)}},
	}}
	assert.Equal(t, "(row.Total > 100 and not($1.Name is null))", Format(e))
}
