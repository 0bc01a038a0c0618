package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/dynq/internal/compiler"
	"github.com/roach88/dynq/internal/dataset"
	"github.com/roach88/dynq/internal/engine"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/provider"
	"github.com/roach88/dynq/internal/testutil"
)

// Harness runs the steps of one scenario against one backend.
type Harness struct {
	backend string
	engine  *engine.Engine
	logger  *slog.Logger
}

// Run executes a scenario on the in-memory backend (the reference) and on
// an in-memory SQLite database, checks every expectation on both and
// requires both backends to produce identical outputs.
//
// The returned error reports a scenario that could not run at all; step
// failures are recorded in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	schema, d, err := loadFixture(scenario)
	if err != nil {
		return nil, err
	}

	sql, err := provider.OpenSQLite(ctx, ":memory:", schema, d)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer sql.Close()

	backends := []provider.Provider{provider.NewMemory(d), sql}
	result := NewResult()
	outcomes := make([][]Outcome, len(backends))
	for i, p := range backends {
		h, err := newHarness(schema, p, logger)
		if err != nil {
			return nil, err
		}
		result.Backends = append(result.Backends, p.Name())
		for _, step := range scenario.Steps {
			outcomes[i] = append(outcomes[i], h.execute(ctx, step))
		}
	}
	result.Steps = outcomes[0]

	for i, step := range scenario.Steps {
		for b := range backends {
			for _, msg := range CheckExpect(step, outcomes[b][i]) {
				result.AddError(fmt.Sprintf("%s [%s]: %s", step.Name, result.Backends[b], msg))
			}
		}
		for b := 1; b < len(backends); b++ {
			if msg := compareOutcomes(outcomes[0][i], outcomes[b][i]); msg != "" {
				result.AddError(fmt.Sprintf("%s: %s and %s differ: %s",
					step.Name, result.Backends[0], result.Backends[b], msg))
			}
		}
	}
	return result, nil
}

func loadFixture(s *Scenario) (*ir.Schema, *dataset.Dataset, error) {
	if s.Schema == "" {
		schema, d, err := testutil.LoadOrders()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load fixture: %w", err)
		}
		return schema, d, nil
	}
	schema, err := compiler.LoadDir(s.Schema)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schema: %w", err)
	}
	d, err := dataset.LoadFile(schema, s.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load data: %w", err)
	}
	return schema, d, nil
}

func newHarness(schema *ir.Schema, p provider.Provider, logger *slog.Logger) (*Harness, error) {
	eng, err := engine.New(schema, p, engine.WithRequestIDs(testutil.NewSequentialRequestIDs()))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return &Harness{backend: p.Name(), engine: eng, logger: logger}, nil
}

// execute runs one step, capturing its output or error.
func (h *Harness) execute(ctx context.Context, step Step) Outcome {
	out := Outcome{Step: step.Name, Kind: step.Kind()}
	start := time.Now()

	var (
		payload any
		err     error
	)
	switch out.Kind {
	case KindQuery:
		var resp *engine.QueryResponse
		if resp, err = h.engine.ExecuteQuery(ctx, step.Query); err == nil {
			out.RequestID = resp.RequestID
			out.table = resp.Table
			payload = resp.Table
		}
	case KindValue:
		if out.value, err = h.engine.ExecuteQueryValue(ctx, step.Value); err == nil {
			payload = out.value
		}
	case KindUnique:
		if out.value, err = h.engine.ExecuteUniqueEntity(ctx, step.Unique); err == nil {
			payload = out.value
		}
	case KindEntities:
		if step.Full {
			if out.entities, err = h.engine.GetEntitiesFull(ctx, step.Entities); err == nil {
				payload = fullEntities(out.entities)
			}
		} else if out.lites, err = h.engine.GetEntitiesLite(ctx, step.Entities); err == nil {
			payload = out.lites
		}
	}

	if err != nil {
		out.Error = string(engine.Code(err))
		if out.Error == "" {
			out.Error = "ERROR"
		}
		out.Message = err.Error()
		out.RequestID = engine.RequestIDOf(err)
	} else if out.Output, err = marshalOutput(payload); err != nil {
		out.Error = "ERROR"
		out.Message = fmt.Sprintf("marshal output: %v", err)
	}

	h.logger.Info("step executed",
		"step", step.Name,
		"backend", h.backend,
		"kind", out.Kind,
		"error", out.Error,
		"duration", time.Since(start),
	)
	return out
}

func marshalOutput(v any) (json.RawMessage, error) {
	if iv, ok := v.(ir.IRValue); ok {
		return ir.MarshalIRValue(iv)
	}
	return json.Marshal(v)
}

// fullEntities renders entities with their fields in canonical form.
func fullEntities(ents []ir.IREntity) []any {
	out := make([]any, len(ents))
	for i, e := range ents {
		out[i] = struct {
			Entity string      `json:"entity"`
			Fields ir.IRObject `json:"fields"`
		}{e.ToLite().Key(), e.Fields}
	}
	return out
}

// compareOutcomes returns "" when both backends produced the same result.
func compareOutcomes(a, b Outcome) string {
	if a.Error != b.Error {
		return fmt.Sprintf("error %q vs %q", a.Error, b.Error)
	}
	if a.RequestID != b.RequestID {
		return fmt.Sprintf("request id %q vs %q", a.RequestID, b.RequestID)
	}
	if !bytes.Equal(a.Output, b.Output) {
		return fmt.Sprintf("output\n  %s\nvs\n  %s", a.Output, b.Output)
	}
	return ""
}
