package harness

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/gosimple/slug"
	"github.com/sebdah/goldie/v2"
)

// GoldenDir is where scenario snapshots live, relative to the package
// under test.
const GoldenDir = "testdata/golden"

// Snapshot is the golden form of a scenario run: the reference backend's
// outcome of every step.
type Snapshot struct {
	ScenarioName string    `json:"scenario_name"`
	Steps        []Outcome `json:"steps"`
}

// GoldenName returns the golden file name (without suffix) of a scenario.
// Underscores become hyphens so names match the scenario file names.
func GoldenName(scenarioName string) string {
	return slug.Make(strings.ReplaceAll(scenarioName, "_", "-"))
}

// MarshalSnapshot renders the snapshot of a result. Equal runs produce
// identical bytes.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(Snapshot{ScenarioName: scenarioName, Steps: result.Steps}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in dir (GoldenDir when empty), named after the scenario.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario, dir string) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result, dir)
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result, dir string) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}
	newGoldie(t, dir).Assert(t, GoldenName(scenarioName), data)
	return nil
}

func newGoldie(t *testing.T, dir string) *goldie.Goldie {
	if dir == "" {
		dir = GoldenDir
	}
	return goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
}
