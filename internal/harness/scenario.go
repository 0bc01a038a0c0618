package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dynq/internal/engine"
)

// Scenario is a sequence of engine requests with expectations. Every
// scenario runs on each backend; the backends must agree step by step.
type Scenario struct {
	// Name uniquely identifies this scenario; its slug names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is a directory of CUE definitions and Data a YAML dataset.
	// Both are relative to the scenario file. When both are empty the
	// shared Orders fixture is used.
	Schema string `yaml:"schema,omitempty"`
	Data   string `yaml:"data,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is one request. Exactly one of Query, Value, Unique and Entities
// is set.
type Step struct {
	Name string `yaml:"name"`

	Query    *engine.QueryRequestDTO        `yaml:"query,omitempty"`
	Value    *engine.ValueRequestDTO        `yaml:"value,omitempty"`
	Unique   *engine.UniqueEntityRequestDTO `yaml:"unique,omitempty"`
	Entities *engine.EntitiesRequestDTO     `yaml:"entities,omitempty"`

	// Full asks an entities step for full entities instead of lites.
	Full bool `yaml:"full,omitempty"`

	// Expect is checked against every backend's outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Step kinds.
const (
	KindQuery    = "query"
	KindValue    = "value"
	KindUnique   = "unique"
	KindEntities = "entities"
)

// Kind names the request the step carries.
func (s *Step) Kind() string {
	switch {
	case s.Query != nil:
		return KindQuery
	case s.Value != nil:
		return KindValue
	case s.Unique != nil:
		return KindUnique
	case s.Entities != nil:
		return KindEntities
	}
	return ""
}

func (s *Step) requestCount() int {
	n := 0
	for _, set := range []bool{s.Query != nil, s.Value != nil, s.Unique != nil, s.Entities != nil} {
		if set {
			n++
		}
	}
	return n
}

// Expect lists what a step must produce. Unset fields are not checked.
type Expect struct {
	// Error is the expected error code ("TOKEN_NOT_FOUND", ...). A step
	// without it must succeed.
	Error string `yaml:"error,omitempty"`

	// Rows and Total check a table's row count and total elements.
	// NoTotal expects the total to be unknown.
	Rows    *int `yaml:"rows,omitempty"`
	Total   *int `yaml:"total,omitempty"`
	NoTotal bool `yaml:"no_total,omitempty"`

	// Entities lists the "Type;id" keys of a table's rows, or of the
	// entities an entities step returns, in order.
	Entities []string `yaml:"entities,omitempty"`

	// Columns maps a column's full key to its displayed values, in row
	// order. Null displays as "null".
	Columns map[string][]string `yaml:"columns,omitempty"`

	// Value is the displayed result of a value or unique step.
	Value *string `yaml:"value,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "expects:" vs "expect:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths relative to the scenario BEFORE validation
	base := filepath.Dir(path)
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(base, scenario.Schema)
	}
	if scenario.Data != "" && !filepath.IsAbs(scenario.Data) {
		scenario.Data = filepath.Join(base, scenario.Data)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Schema == "") != (s.Data == "") {
		return fmt.Errorf("schema and data must be given together")
	}
	for _, p := range []string{s.Schema, s.Data} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", p)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	names := map[string]bool{}
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if names[step.Name] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		names[step.Name] = true
		if n := step.requestCount(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of query, value, unique or entities is required, got %d", i, n)
		}
		if step.Full && step.Kind() != KindEntities {
			return fmt.Errorf("steps[%d]: full applies to entities steps only", i)
		}
		if e := step.Expect; e != nil && e.Total != nil && e.NoTotal {
			return fmt.Errorf("steps[%d].expect: total and no_total are exclusive", i)
		}
	}
	return nil
}
