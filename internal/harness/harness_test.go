package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/engine"
	"github.com/roach88/dynq/internal/provider"
	"github.com/roach88/dynq/internal/testutil"
)

func intp(n int) *int       { return &n }
func strp(s string) *string { return &s }

func TestRun_ExampleScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
			assert.Equal(t, []string{provider.BackendMemory, provider.BackendSQLite}, result.Backends)
			assert.Len(t, result.Steps, len(scenario.Steps))
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Count every order",
		Steps: []Step{{
			Name:   "count",
			Value:  &engine.ValueRequestDTO{QueryName: "Orders"},
			Expect: &Expect{Value: strp("25")},
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 1)

	out := result.Steps[0]
	assert.Equal(t, "count", out.Step)
	assert.Equal(t, KindValue, out.Kind)
	assert.Empty(t, out.Error)
	assert.JSONEq(t, `25`, string(out.Output))
}

func TestRun_FailedExpectationReportedPerBackend(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong",
		Description: "Expect the wrong count",
		Steps: []Step{{
			Name:   "count",
			Value:  &engine.ValueRequestDTO{QueryName: "Orders"},
			Expect: &Expect{Value: strp("3")},
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "count [memory]")
	assert.Contains(t, result.Errors[0], "want 3, got 25")
	assert.Contains(t, result.Errors[1], "count [sqlite]")
}

func TestRun_ErrorExpect(t *testing.T) {
	scenario := &Scenario{
		Name:        "errors",
		Description: "Unknown tokens fail",
		Steps: []Step{
			{
				Name:   "expected",
				Query:  &engine.QueryRequestDTO{QueryName: "Orders", Columns: []engine.ColumnDTO{{Token: "Nope"}}},
				Expect: &Expect{Error: "TOKEN_NOT_FOUND"},
			},
			{
				Name:  "unexpected",
				Query: &engine.QueryRequestDTO{QueryName: "Orders", Columns: []engine.ColumnDTO{{Token: "Nope"}}},
			},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	first := result.Steps[0]
	assert.Equal(t, "TOKEN_NOT_FOUND", first.Error)
	assert.Contains(t, first.Message, "Nope")
	assert.Equal(t, "req-0001", first.RequestID)
	assert.Empty(t, first.Output)

	for _, msg := range result.Errors {
		assert.True(t, strings.HasPrefix(msg, "unexpected ["), "only the second step fails: %s", msg)
	}
}

func TestRun_QueryExpectations(t *testing.T) {
	scenario := &Scenario{
		Name:        "query",
		Description: "Second page of large orders",
		Steps: []Step{{
			Name: "page",
			Query: &engine.QueryRequestDTO{
				QueryName:  "Orders",
				Filters:    []engine.FilterDTO{{Token: "Total", Operation: "GreaterThan", Value: 100}},
				Orders:     []engine.OrderDTO{{Token: "Id"}},
				Columns:    []engine.ColumnDTO{{Token: "Customer"}},
				Pagination: &engine.PaginationDTO{Mode: "Paginate", ElementsPerPage: 5, CurrentPage: 2},
			},
			Expect: &Expect{
				Rows:     intp(5),
				Total:    intp(12),
				Entities: []string{"Order;119", "Order;120", "Order;121", "Order;122", "Order;123"},
				Columns:  map[string][]string{"Customer": {"Customer;1", "Customer;2", "null", "Customer;1", "Customer;2"}},
			},
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "values.yaml"))
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := MarshalSnapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_SchemaAndDataFiles(t *testing.T) {
	dir := t.TempDir()
	schemaDir := filepath.Join(dir, "schema")
	require.NoError(t, os.Mkdir(schemaDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "orders.cue"), []byte(testutil.OrdersSchemaSource), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.yaml"), testutil.OrdersDataSource, 0644))

	scenario := &Scenario{
		Name:        "files",
		Description: "Fixture loaded from disk",
		Schema:      schemaDir,
		Data:        filepath.Join(dir, "orders.yaml"),
		Steps: []Step{{
			Name:   "customers",
			Value:  &engine.ValueRequestDTO{QueryName: "Customers"},
			Expect: &Expect{Value: strp("3")},
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BadFixture(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad",
		Description: "Missing schema directory",
		Schema:      filepath.Join(t.TempDir(), "missing"),
		Data:        "data.yaml",
		Steps:       []Step{{Name: "s", Value: &engine.ValueRequestDTO{QueryName: "Orders"}}},
	}
	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schema")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	assert.Empty(t, r.Errors)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestCompareOutcomes(t *testing.T) {
	base := Outcome{Step: "s", Kind: KindValue, RequestID: "req-0001", Output: []byte(`12`)}

	assert.Empty(t, compareOutcomes(base, base))

	other := base
	other.Output = []byte(`13`)
	assert.Contains(t, compareOutcomes(base, other), "output")

	other = base
	other.Error = "INVALID_VALUE"
	assert.Contains(t, compareOutcomes(base, other), "error")

	other = base
	other.RequestID = "req-0002"
	assert.Contains(t, compareOutcomes(base, other), "request id")
}
