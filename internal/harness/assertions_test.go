package harness

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/engine"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/provider"
	"github.com/roach88/dynq/internal/testutil"
)

// executeStep runs one step on the in-memory backend.
func executeStep(t *testing.T, step Step) Outcome {
	t.Helper()
	schema, d := testutil.Orders(t)
	h, err := newHarness(schema, provider.NewMemory(d), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return h.execute(context.Background(), step)
}

func firstBobOrders() Step {
	return Step{
		Name: "bob",
		Query: &engine.QueryRequestDTO{
			QueryName:  "Orders",
			Filters:    []engine.FilterDTO{{Token: "Customer", Operation: "EqualTo", Value: "Customer;2"}},
			Orders:     []engine.OrderDTO{{Token: "Id"}},
			Columns:    []engine.ColumnDTO{{Token: "Number"}, {Token: "Customer"}},
			Pagination: &engine.PaginationDTO{Mode: "Firsts", ElementsPerPage: 2},
		},
	}
}

func TestCheckExpect_Query(t *testing.T) {
	step := firstBobOrders()
	out := executeStep(t, step)
	require.Empty(t, out.Error, out.Message)

	tests := []struct {
		name    string
		expect  *Expect
		wantMsg string
	}{
		{name: "no expectations", expect: nil},
		{name: "rows", expect: &Expect{Rows: intp(2)}},
		{name: "wrong rows", expect: &Expect{Rows: intp(3)}, wantMsg: "expect rows: want 3, got 2"},
		{name: "no total", expect: &Expect{NoTotal: true}},
		{name: "total unknown", expect: &Expect{Total: intp(7)}, wantMsg: "expect total: want 7, got unknown"},
		{name: "entities", expect: &Expect{Entities: []string{"Order;102", "Order;105"}}},
		{name: "wrong entities", expect: &Expect{Entities: []string{"Order;105"}}, wantMsg: "want [Order;105], got [Order;102, Order;105]"},
		{name: "columns", expect: &Expect{Columns: map[string][]string{
			"Number":   {"O-002", "O-005"},
			"Customer": {"Customer;2", "Customer;2"},
		}}},
		{name: "missing column", expect: &Expect{Columns: map[string][]string{"Total": {"1"}}}, wantMsg: "no such column"},
		{name: "unexpected success", expect: &Expect{Error: "TOKEN_NOT_FOUND"}, wantMsg: "want TOKEN_NOT_FOUND, got success"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step.Expect = tt.expect
			msgs := CheckExpect(step, out)
			if tt.wantMsg == "" {
				assert.Empty(t, msgs)
				return
			}
			require.Len(t, msgs, 1)
			assert.Contains(t, msgs[0], tt.wantMsg)
		})
	}
}

func TestCheckExpect_Failure(t *testing.T) {
	step := Step{
		Name:  "bad",
		Query: &engine.QueryRequestDTO{QueryName: "Orders", Columns: []engine.ColumnDTO{{Token: "Nope"}}},
	}
	out := executeStep(t, step)
	assert.Equal(t, "TOKEN_NOT_FOUND", out.Error)

	msgs := CheckExpect(step, out)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "expect success: want no error")

	step.Expect = &Expect{Error: "TOKEN_NOT_FOUND", Rows: intp(99)}
	assert.Empty(t, CheckExpect(step, out), "other expectations are skipped on an expected failure")

	step.Expect = &Expect{Error: "QUERY_NOT_FOUND"}
	msgs = CheckExpect(step, out)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "want QUERY_NOT_FOUND, got TOKEN_NOT_FOUND")
}

func TestCheckExpect_Value(t *testing.T) {
	step := Step{
		Name:   "names",
		Value:  &engine.ValueRequestDTO{QueryName: "Customers", ValueToken: "Name", MultipleValues: true},
		Expect: &Expect{Value: strp("[Ada, Bob, Cid]")},
	}
	out := executeStep(t, step)
	require.Empty(t, out.Error, out.Message)
	assert.Empty(t, CheckExpect(step, out))

	step.Expect.Value = strp("Ada")
	msgs := CheckExpect(step, out)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "expect value: want Ada")
}

func TestCheckExpect_Entities(t *testing.T) {
	two := 2
	step := Step{
		Name: "lites",
		Entities: &engine.EntitiesRequestDTO{
			QueryName: "Orders",
			Orders:    []engine.OrderDTO{{Token: "Id", OrderType: engine.OrderDescending}},
			Count:     &two,
		},
		Expect: &Expect{Entities: []string{"Order;125", "Order;124"}},
	}
	out := executeStep(t, step)
	require.Empty(t, out.Error, out.Message)
	assert.Empty(t, CheckExpect(step, out))

	step.Full = true
	out = executeStep(t, step)
	require.Empty(t, out.Error, out.Message)
	assert.Empty(t, CheckExpect(step, out))
	assert.Contains(t, string(out.Output), `"entity":"Order;125"`)
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		name string
		v    ir.IRValue
		want string
	}{
		{"nil", nil, "null"},
		{"null", ir.IRNull{}, "null"},
		{"lite with toStr", ir.IRLite{Type: "Customer", ID: 1, ToStr: "Ada"}, "Customer;1"},
		{"int", ir.IRInt(3), "3"},
		{"string", ir.IRString("O-001"), "O-001"},
		{"decimal", ir.MustDecimal("12.50"), "12.5"},
		{"bool", ir.IRBool(true), "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, display(tt.v))
		})
	}
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{Type: "rows", Expected: "3", Actual: "2"}
	assert.Equal(t, "expect rows: want 3, got 2", err.Error())
}
