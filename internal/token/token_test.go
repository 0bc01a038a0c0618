package token

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/testutil"
)

type fixture struct {
	schema  *ir.Schema
	catalog *Catalog
	orders  ir.QueryDescription
}

func newFixture(t *testing.T, opts ...CatalogOption) *fixture {
	t.Helper()
	schema, _ := testutil.Orders(t)
	c, err := NewCatalog(schema, opts...)
	require.NoError(t, err)
	desc, err := schema.Describe("Orders")
	require.NoError(t, err)
	return &fixture{schema: schema, catalog: c, orders: desc}
}

func (f *fixture) parse(t *testing.T, key string, opts Options) Token {
	t.Helper()
	tok, err := f.catalog.Parse(f.orders, key, opts)
	require.NoError(t, err)
	return tok
}

func keys(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Key()
	}
	return out
}

// rowContext is the context before any projection.
type rowContext struct {
	row   expr.Expr
	slots map[string]expr.Expr
}

func (c rowContext) Lookup(t Token) (expr.Expr, bool) {
	e, ok := c.slots[t.FullKey()]
	return e, ok
}

func (c rowContext) Row() (expr.Expr, bool) {
	return c.row, c.row != nil
}

var orderRow = expr.Row{T: ir.Lite("Order")}

func TestColumns(t *testing.T) {
	f := newFixture(t)

	cols := f.catalog.Columns(f.orders, 0)
	assert.Equal(t, []string{"Entity", "Id", "Number", "Customer", "Total", "OrderDate", "State", "Shipped", "Responsible"}, keys(cols))
	assert.True(t, cols[0].(*Column).IsEntity())

	withCount := f.catalog.Columns(f.orders, CanAggregate)
	last := withCount[len(withCount)-1]
	assert.Equal(t, "Count", last.Key())
	assert.Nil(t, last.Parent())
	assert.True(t, IsAggregate(last))
}

func TestFullKeyAndEquality(t *testing.T) {
	f := newFixture(t)

	a := f.parse(t, "Entity.Customer.Name", 0)
	b := f.parse(t, "Entity.Customer.Name", 0)
	assert.Equal(t, "Entity.Customer.Name", a.FullKey())
	assert.Equal(t, "Name", a.Key())
	assert.Equal(t, "Entity.Customer", a.Parent().FullKey())
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, f.parse(t, "Customer.Name", 0)))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(a, nil))

	customers, err := f.schema.Describe("Customers")
	require.NoError(t, err)
	other, err := f.catalog.Parse(customers, "Id", 0)
	require.NoError(t, err)
	assert.False(t, Equal(f.parse(t, "Id", 0), other), "same key, different query")
}

func TestTypes(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		key  string
		want string
	}{
		{"Entity", "lite<Order>"},
		{"Id", "int"},
		{"Customer", "lite<Customer>?"},
		{"Customer.Name", "string?"},
		{"Customer.Id", "int?"},
		{"Customer.ToString", "string?"},
		{"Entity.Address.City", "string?"},
		{"Entity.Lines", "list<embedded OrderLine>"},
		{"Entity.Lines.Count", "int"},
		{"Entity.Lines.Element", "embedded OrderLine?"},
		{"Entity.Lines.Element.Quantity", "int?"},
		{"Entity.Lines.Any", "embedded OrderLine"},
		{"Entity.Lines.Any.Quantity", "int"},
		{"Responsible.(Employee)", "lite<Employee>?"},
		{"Responsible.(Employee).Name", "string?"},
		{"OrderDate.Year", "int"},
		{"OrderDate.MonthStart", "datetime"},
		{"Total.Ceil", "decimal"},
		{"Total.Sum", "decimal"},
		{"Total.Average", "decimal?"},
		{"Total.Max", "decimal?"},
		{"Customer.CountDistinct", "int"},
		{"Total.Count(GreaterThan,100)", "int"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			tok := f.parse(t, tt.key, CanElement|CanAnyAll|CanAggregate)
			assert.Equal(t, tt.want, tok.Type().String())
		})
	}
}

func TestBuildExpression(t *testing.T) {
	f := newFixture(t)
	ctx := rowContext{row: orderRow}

	tests := []struct {
		key  string
		want string
	}{
		{"Entity", "row"},
		{"Id", "row.Id"},
		{"Customer.Name", "row.Customer.Name"},
		{"Customer.ToString", "row.Customer.Name"},
		{"Entity.Number", "row.Number"},
		{"Responsible.(Employee).Name", "(row.Responsible as Employee).Name"},
		{"OrderDate.Year", "row.OrderDate.Year"},
		{"Total.Floor", "Floor(row.Total)"},
		{"Total.Ceil", "Ceil(row.Total)"},
		{"Entity.Lines.Count", "count(row.Lines)"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			e, err := f.parse(t, tt.key, CanElement).BuildExpression(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Format(e))
		})
	}
}

func TestBuildExpressionUsesContextFirst(t *testing.T) {
	f := newFixture(t)
	slot := expr.Slot{Index: 2, T: ir.Lite("Customer").Nullify()}
	ctx := rowContext{slots: map[string]expr.Expr{"Customer": slot}}

	name := f.parse(t, "Customer.Name", 0)
	e, err := name.BuildExpression(ctx)
	require.NoError(t, err)
	assert.Equal(t, "$2.Name", expr.Format(e))

	_, err = f.parse(t, "Total", 0).BuildExpression(ctx)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeNotAvailable, te.Code)
	assert.Equal(t, "Total", te.Path)
}

func TestBuildExpressionUnbound(t *testing.T) {
	f := newFixture(t)
	ctx := rowContext{row: orderRow}

	for _, key := range []string{"Entity.Lines.Element", "Entity.Lines.Any.Quantity", "Total.Sum", "Count"} {
		t.Run(key, func(t *testing.T) {
			_, err := f.parse(t, key, CanElement|CanAnyAll|CanAggregate).BuildExpression(ctx)
			var te *Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, CodeNotAvailable, te.Code)
		})
	}

	param := expr.Param{Name: "l", T: ir.TypeRef{Kind: ir.KindEmbedded, Embedded: "OrderLine"}}
	bound := rowContext{row: orderRow, slots: map[string]expr.Expr{"Entity.Lines.Any": param}}
	e, err := f.parse(t, "Entity.Lines.Any.Quantity", CanAnyAll).BuildExpression(bound)
	require.NoError(t, err)
	assert.Equal(t, "@l.Quantity", expr.Format(e))
}

func TestDominates(t *testing.T) {
	f := newFixture(t)
	opts := CanElement | CanAnyAll | CanAggregate
	p := func(key string) Token { return f.parse(t, key, opts) }

	tests := []struct {
		a, b string
		want bool
	}{
		{"Customer", "Customer.Name", true},
		{"Entity", "Entity.Customer.Name", true},
		{"Entity", "Entity.Lines.Count", true},
		{"Entity", "Entity.OrderDate.Year", true},
		{"Responsible", "Responsible.(Employee).Name", true},
		{"Customer.Name", "Customer", false},
		{"Customer", "Customer", false},
		{"Entity", "Customer.Name", false},
		{"Entity", "Entity.Lines.Element.Quantity", false},
		{"Entity.Lines", "Entity.Lines.Element", false},
		{"Total", "Total.Sum", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+" > "+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Dominates(p(tt.a), p(tt.b)))
		})
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, []string{"Customer", "Name"}, Path("Customer.Name"))
	assert.Equal(t, []string{"Responsible", "(Employee)", "Name"}, Path("Responsible.(Employee).Name"))
	assert.Equal(t, []string{"Total", "Count(GreaterThan,2.5)"}, Path("Total.Count(GreaterThan,2.5)"))
	assert.Equal(t, []string{"Id"}, Path("Id"))
}

func TestHelpers(t *testing.T) {
	f := newFixture(t)
	opts := CanElement | CanAnyAll

	quantity := f.parse(t, "Entity.Lines.All.Quantity", opts)
	assert.True(t, HasAnyAll(quantity))
	root, ok := AnyAllRoot(quantity)
	require.True(t, ok)
	assert.Equal(t, "Entity.Lines.All", root.FullKey())
	assert.Equal(t, ModeAll, root.Mode)

	flat := f.parse(t, "Entity.Lines.Element.Price", opts)
	assert.False(t, HasAnyAll(flat))
	elems := Elements(flat)
	require.Len(t, elems, 1)
	assert.Equal(t, "Entity.Lines.Element", elems[0].FullKey())
}

func TestExtendedToken(t *testing.T) {
	big := Extension{
		Entity:      "Order",
		Key:         "IsLarge",
		DisplayName: "Is large",
		Type:        ir.Scalar(ir.KindBool),
		Build: func(target expr.Expr) (expr.Expr, error) {
			total := expr.Member{Target: target, Property: "Total", T: ir.Scalar(ir.KindDecimal)}
			return expr.Compare{Op: expr.OpGt, Left: total, Right: expr.Const{Value: ir.MustDecimal("100"), T: ir.Scalar(ir.KindDecimal)}}, nil
		},
	}
	broken := Extension{
		Entity: "Customer",
		Key:    "Broken",
		Type:   ir.Scalar(ir.KindInt),
		Build:  func(expr.Expr) (expr.Expr, error) { return nil, errors.New("no expression") },
	}
	f := newFixture(t, WithExtensions(big, broken))

	tok := f.parse(t, "Entity.IsLarge", 0)
	assert.Equal(t, "Is large", tok.DisplayName())
	e, err := tok.BuildExpression(rowContext{row: orderRow})
	require.NoError(t, err)
	assert.Equal(t, "row.Total > 100", expr.Format(e))

	_, err = f.parse(t, "Customer.Broken", 0).BuildExpression(rowContext{row: orderRow})
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "no expression")
}
