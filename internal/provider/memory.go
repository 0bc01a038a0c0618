package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dynq/internal/dataset"
	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryir"
	"github.com/roach88/dynq/internal/querymem"
)

// Memory interprets plans over an in-memory dataset.
type Memory struct {
	data *dataset.Dataset
}

// NewMemory returns a provider over d.
func NewMemory(d *dataset.Dataset) *Memory {
	return &Memory{data: d}
}

func (m *Memory) Name() string { return BackendMemory }

func (m *Memory) Schema() *ir.Schema { return m.data.Schema() }

// Dataset returns the data the provider reads.
func (m *Memory) Dataset() *dataset.Dataset { return m.data }

func (m *Memory) List(ctx context.Context, p queryir.Plan) ([]ir.IRArray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := requireTuples(p); err != nil {
		return nil, err
	}
	rows, err := querymem.Run(p, m.data)
	if err != nil {
		return nil, fmt.Errorf("memory list: %w", err)
	}
	out := make([]ir.IRArray, len(rows))
	for i, r := range rows {
		tuple, ok := r.(ir.IRArray)
		if !ok {
			return nil, fmt.Errorf("memory list: row %d is %T, not a tuple", i, r)
		}
		out[i] = m.complete(tuple).(ir.IRArray)
	}
	slog.Debug("memory list", "rows", len(out))
	return out, nil
}

func (m *Memory) Count(ctx context.Context, p queryir.Plan) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := querymem.Count(p, m.data)
	if err != nil {
		return 0, fmt.Errorf("memory count: %w", err)
	}
	return n, nil
}

func (m *Memory) Resolver(_ context.Context, scope *ir.SystemTime) expr.Resolver {
	return memoryResolver{m: m, inner: m.data.Resolver(scope)}
}

// complete fills lite types and display text, the way the SQL provider does.
func (m *Memory) complete(v ir.IRValue) ir.IRValue {
	switch val := v.(type) {
	case ir.IRLite:
		typ, ok := m.data.TypeOf(val.ID)
		if !ok {
			return val
		}
		val.Type = typ
		val.ToStr = m.data.ToStr(val)
		return val
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, item := range val {
			out[i] = m.complete(item)
		}
		return out
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, item := range val {
			out[k] = m.complete(item)
		}
		return out
	}
	return v
}

type memoryResolver struct {
	m     *Memory
	inner expr.Resolver
}

func (r memoryResolver) Resolve(lite ir.IRLite) (ir.IREntity, bool, error) {
	e, ok, err := r.inner.Resolve(lite)
	if err != nil || !ok {
		return e, ok, err
	}
	e.Fields = r.m.complete(e.Fields).(ir.IRObject)
	return e, true, nil
}
