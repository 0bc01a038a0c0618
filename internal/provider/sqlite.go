package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dynq/internal/dataset"
	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryir"
	"github.com/roach88/dynq/internal/querysql"
	"github.com/roach88/dynq/internal/store"
)

// SQLite compiles plans to SQL and runs them on a store.
type SQLite struct {
	store    *store.Store
	compiler *querysql.SQLCompiler
}

// NewSQLite wraps an open store.
func NewSQLite(s *store.Store) *SQLite {
	return &SQLite{store: s, compiler: querysql.NewSQLCompiler(s.Schema())}
}

// OpenSQLite opens the database at path and, when d is not nil, replaces
// its contents with d.
func OpenSQLite(ctx context.Context, path string, schema *ir.Schema, d *dataset.Dataset) (*SQLite, error) {
	s, err := store.Open(path, schema)
	if err != nil {
		return nil, err
	}
	if d != nil {
		if err := s.Seed(ctx, d); err != nil {
			s.Close()
			return nil, err
		}
	}
	return NewSQLite(s), nil
}

func (p *SQLite) Name() string { return BackendSQLite }

func (p *SQLite) Schema() *ir.Schema { return p.store.Schema() }

// Close closes the underlying store.
func (p *SQLite) Close() error { return p.store.Close() }

func (p *SQLite) List(ctx context.Context, plan queryir.Plan) ([]ir.IRArray, error) {
	if err := requireTuples(plan); err != nil {
		return nil, err
	}
	q, err := p.compiler.Compile(plan)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	rows, err := p.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	values := make([]ir.IRValue, len(rows))
	for i, r := range rows {
		values[i] = r
	}
	if err := p.store.CompleteLites(ctx, values); err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	slog.Debug("sqlite list", "rows", len(rows))
	return rows, nil
}

func (p *SQLite) Count(ctx context.Context, plan queryir.Plan) (int, error) {
	q, err := p.compiler.CompileCount(plan)
	if err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	n, err := p.store.Count(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("sqlite count: %w", err)
	}
	return n, nil
}

func (p *SQLite) Resolver(ctx context.Context, scope *ir.SystemTime) expr.Resolver {
	return sqliteResolver{ctx: ctx, store: p.store, scope: scope}
}

type sqliteResolver struct {
	ctx   context.Context
	store *store.Store
	scope *ir.SystemTime
}

func (r sqliteResolver) Resolve(lite ir.IRLite) (ir.IREntity, bool, error) {
	return r.store.LoadEntity(r.ctx, lite, r.scope)
}
