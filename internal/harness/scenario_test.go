package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/scenario.yaml and returns the path.
func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: test_scenario
description: "Test scenario for validation"
steps:
  - name: page
    query:
      queryName: Orders
      filters:
        - { token: Total, operation: GreaterThan, value: 100 }
      orders:
        - { token: OrderDate, orderType: Descending }
      columns:
        - { token: Number, displayName: No }
      pagination: { mode: Paginate, elementsPerPage: 10, currentPage: 1 }
    expect:
      rows: 10
      total: 12
  - name: count
    value: { queryName: Orders }
    expect: { value: "25" }
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	require.Len(t, scenario.Steps, 2)

	page := scenario.Steps[0]
	assert.Equal(t, KindQuery, page.Kind())
	assert.Equal(t, "Orders", page.Query.QueryName)
	assert.Equal(t, "GreaterThan", page.Query.Filters[0].Operation)
	assert.Equal(t, 100, page.Query.Filters[0].Value)
	assert.Equal(t, "No", page.Query.Columns[0].DisplayName)
	assert.Equal(t, "Paginate", page.Query.Pagination.Mode)
	require.NotNil(t, page.Expect.Rows)
	assert.Equal(t, 10, *page.Expect.Rows)
	assert.Equal(t, 12, *page.Expect.Total)

	assert.Equal(t, KindValue, scenario.Steps[1].Kind())
	assert.Equal(t, "25", *scenario.Steps[1].Expect.Value)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "name: [unclosed\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: d
steps: [{ name: s, value: { queryName: Orders } }]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
steps: [{ name: s, value: { queryName: Orders } }]
`,
			wantErr: "description is required",
		},
		{
			name: "no steps",
			content: `
name: n
description: d
`,
			wantErr: "steps list is required",
		},
		{
			name: "unnamed step",
			content: `
name: n
description: d
steps: [{ value: { queryName: Orders } }]
`,
			wantErr: "steps[0]: name is required",
		},
		{
			name: "duplicate step",
			content: `
name: n
description: d
steps:
  - { name: s, value: { queryName: Orders } }
  - { name: s, value: { queryName: Orders } }
`,
			wantErr: `duplicate step name "s"`,
		},
		{
			name: "no request",
			content: `
name: n
description: d
steps: [{ name: s }]
`,
			wantErr: "exactly one of query, value, unique or entities is required, got 0",
		},
		{
			name: "two requests",
			content: `
name: n
description: d
steps:
  - name: s
    value: { queryName: Orders }
    query: { queryName: Orders }
`,
			wantErr: "got 2",
		},
		{
			name: "full on a query",
			content: `
name: n
description: d
steps:
  - { name: s, full: true, query: { queryName: Orders } }
`,
			wantErr: "full applies to entities steps only",
		},
		{
			name: "total and no_total",
			content: `
name: n
description: d
steps:
  - name: s
    query: { queryName: Orders }
    expect: { total: 3, no_total: true }
`,
			wantErr: "total and no_total are exclusive",
		},
		{
			name: "schema without data",
			content: `
name: n
description: d
schema: schema
steps: [{ name: s, value: { queryName: Orders } }]
`,
			wantErr: "schema and data must be given together",
		},
		{
			name: "unknown field",
			content: `
name: n
description: d
steps:
  - name: s
    value: { queryName: Orders }
    expects: { value: "1" }
`,
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_RelativeFixture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "schema"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.yaml"), []byte("{}\n"), 0644))

	path := writeScenario(t, dir, `
name: n
description: d
schema: schema
data: data.yaml
steps: [{ name: s, value: { queryName: Orders } }]
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "schema"), scenario.Schema)
	assert.Equal(t, filepath.Join(dir, "data.yaml"), scenario.Data)
}

func TestLoadScenario_FixtureNotFound(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: n
description: d
schema: schema
data: data.yaml
steps: [{ name: s, value: { queryName: Orders } }]
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

// TestLoadExampleScenarios validates the scenario files in testdata/scenarios.
// These serve as documentation and regression tests.
func TestLoadExampleScenarios(t *testing.T) {
	tests := []struct {
		file      string
		wantName  string
		wantSteps int
	}{
		{"orders-pagination.yaml", "orders_pagination", 5},
		{"grouping.yaml", "orders_grouping", 3},
		{"errors.yaml", "request_errors", 5},
		{"values.yaml", "values_and_entities", 8},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, scenario.Name)
			assert.Len(t, scenario.Steps, tt.wantSteps)
		})
	}
}
