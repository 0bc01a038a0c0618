package harness

import (
	"encoding/json"

	"github.com/roach88/dynq/internal/dquery"
	"github.com/roach88/dynq/internal/ir"
)

// Outcome is what one step produced on one backend.
type Outcome struct {
	Step      string `json:"step"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`

	// Error is the code of a failed step, Message its text.
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	// Output is the JSON wire form of the step's result.
	Output json.RawMessage `json:"output,omitempty"`

	table    *dquery.ResultTable
	value    ir.IRValue
	lites    []ir.IRLite
	entities []ir.IREntity
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation held and the
	// backends agreed on every step.
	Pass bool `json:"pass"`

	// Steps holds the outcomes of the reference backend, in step order.
	Steps []Outcome `json:"steps"`

	// Backends lists the backends the scenario ran on; the first is the
	// reference.
	Backends []string `json:"backends"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []Outcome{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
