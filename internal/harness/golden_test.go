package harness

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/engine"
)

func TestGoldenName(t *testing.T) {
	assert.Equal(t, "orders-pagination", GoldenName("orders_pagination"))
	assert.Equal(t, "large-orders-by-date", GoldenName("Large orders by date"))
	assert.Equal(t, "values-and-entities", GoldenName("values_and_entities"))
}

func TestMarshalSnapshot(t *testing.T) {
	result := NewResult()
	result.Steps = append(result.Steps, Outcome{Step: "count", Kind: KindValue, RequestID: "req-0001", Output: json.RawMessage(`25`)})

	data, err := MarshalSnapshot("values", result)
	require.NoError(t, err)
	assert.Equal(t, `{
  "scenario_name": "values",
  "steps": [
    {
      "step": "count",
      "kind": "value",
      "request_id": "req-0001",
      "output": 25
    }
  ]
}
`, string(data))
}

func TestRunWithGolden_UpdateThenAssert(t *testing.T) {
	dir := t.TempDir()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "orders-pagination.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	data, err := MarshalSnapshot(scenario.Name, result)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, GoldenName(scenario.Name)+".golden"), data, 0644))

	// A second run matches the snapshot of the first.
	again, err := RunWithGolden(t, scenario, dir)
	require.NoError(t, err)
	assert.True(t, again.Pass)
}

func TestAssertGolden_FromResult(t *testing.T) {
	dir := t.TempDir()
	scenario := &Scenario{
		Name:        "unique order",
		Description: "Largest order",
		Steps: []Step{{
			Name: "largest",
			Unique: &engine.UniqueEntityRequestDTO{
				QueryName:  "Orders",
				Orders:     []engine.OrderDTO{{Token: "Total", OrderType: engine.OrderDescending}},
				UniqueType: "First",
			},
		}},
	}
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	data, err := MarshalSnapshot(scenario.Name, result)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unique-order.golden"), data, 0644))

	require.NoError(t, AssertGolden(t, scenario.Name, result, dir))
}
