package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/dynq/internal/dquery"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/provider"
	"github.com/roach88/dynq/internal/token"
)

// Engine answers query requests over a registry of logical queries.
//
// Thread-safety model:
//   - Every entry point may be called from any goroutine.
//   - Requests share only the registry, which is read-only, and the
//     token cache, which holds immutable tokens.
//   - Contexts, queryables and result tables are built per request.
//
// INVARIANTS:
//   - Every request gets exactly one request id, logged with its outcome
//     and carried by its error.
//   - The row entity of a query is checked against the authorizer before
//     any row is read.
type Engine struct {
	registry *Registry
	ids      RequestIDGenerator
}

type options struct {
	catalog []token.CatalogOption
	sources map[string]provider.Provider
	ids     RequestIDGenerator
}

// Option configures an Engine.
type Option func(*options)

// WithAuthorizer filters every token through a.
func WithAuthorizer(a token.Authorizer) Option {
	return func(o *options) { o.catalog = append(o.catalog, token.WithAuthorizer(a)) }
}

// WithExtensions registers synthetic subtokens.
func WithExtensions(exts ...token.Extension) Option {
	return func(o *options) { o.catalog = append(o.catalog, token.WithExtensions(exts...)) }
}

// WithPrecision sets the finest date part tokens expose.
func WithPrecision(p token.Precision) Option {
	return func(o *options) { o.catalog = append(o.catalog, token.WithPrecision(p)) }
}

// WithCacheSize bounds the subtoken cache.
func WithCacheSize(n int) Option {
	return func(o *options) { o.catalog = append(o.catalog, token.WithCacheSize(n)) }
}

// WithSource backs one query with its own provider.
func WithSource(queryName string, p provider.Provider) Option {
	return func(o *options) { o.sources[queryName] = p }
}

// WithRequestIDs replaces the UUIDv7 request id generator.
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// New creates an Engine whose queries run against p unless WithSource
// says otherwise.
func New(schema *ir.Schema, p provider.Provider, opts ...Option) (*Engine, error) {
	o := &options{sources: map[string]provider.Provider{}, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(o)
	}
	r, err := NewRegistry(schema, p, o.sources, o.catalog...)
	if err != nil {
		return nil, err
	}
	return &Engine{registry: r, ids: o.ids}, nil
}

// Registry returns the engine's query registry.
func (e *Engine) Registry() *Registry { return e.registry }

// QueryNames returns the names of every registered query.
func (e *Engine) QueryNames() []string { return e.registry.QueryNames() }

// QueryDescription returns the columns of a query.
func (e *Engine) QueryDescription(name string) (ir.QueryDescription, error) {
	return e.registry.Description(name)
}

// SubTokens lists the allowed children of the token fullKey of a query;
// an empty fullKey lists the query's root tokens.
func (e *Engine) SubTokens(name, fullKey string, opts token.Options) ([]token.Token, error) {
	desc, err := e.registry.Description(name)
	if err != nil {
		return nil, err
	}
	catalog := e.registry.Catalog()
	if fullKey == "" {
		var out []token.Token
		for _, t := range catalog.Columns(desc, opts) {
			if catalog.Authorizer().IsAllowed(t) == "" {
				out = append(out, t)
			}
		}
		return out, nil
	}
	parent, err := catalog.Parse(desc, fullKey, opts)
	if err != nil {
		return nil, err
	}
	return catalog.SubTokens(parent, opts), nil
}

// ParseTokens resolves several full keys of a query, reporting every
// failure at once.
func (e *Engine) ParseTokens(name string, keys []string, opts token.Options) ([]token.Token, error) {
	desc, err := e.registry.Description(name)
	if err != nil {
		return nil, err
	}
	return e.registry.Catalog().ParseAll(desc, keys, opts)
}

// QueryResponse is the answer to a table request.
type QueryResponse struct {
	RequestID string `json:"requestId"`
	QueryName string `json:"queryName"`
	// RequestHash is the request's Fingerprint; equal hashes mean equal
	// requests.
	RequestHash string              `json:"requestHash,omitempty"`
	Table       *dquery.ResultTable `json:"table"`
}

// ExecuteQuery runs a table request.
func (e *Engine) ExecuteQuery(ctx context.Context, dto *QueryRequestDTO) (*QueryResponse, error) {
	id := e.ids.Generate()
	start := time.Now()

	table, err := e.executeQuery(ctx, dto)
	if err != nil {
		return nil, e.fail("query", id, dto.QueryName, err)
	}

	hash, err := Fingerprint(dto)
	if err != nil {
		slog.Warn("request fingerprint failed", "request_id", id, "error", err)
	}
	slog.Info("query executed",
		"request_id", id,
		"query", dto.QueryName,
		"request_hash", hash,
		"rows", table.Len(),
		"total", totalAttr(table.TotalElements),
		"duration", time.Since(start),
	)
	return &QueryResponse{RequestID: id, QueryName: dto.QueryName, RequestHash: hash, Table: table}, nil
}

func (e *Engine) executeQuery(ctx context.Context, dto *QueryRequestDTO) (*dquery.ResultTable, error) {
	desc, err := e.registry.Description(dto.QueryName)
	if err != nil {
		return nil, err
	}
	req, err := ToQueryRequest(e.registry.Catalog(), desc, dto)
	if err != nil {
		return nil, err
	}
	if err := e.checkEntity(desc); err != nil {
		return nil, err
	}
	if req.SystemTime.IsInterval() {
		slog.Warn("interval scope: paginating in memory",
			"query", desc.QueryName,
			"mode", req.SystemTime.Mode,
		)
	}
	q, err := e.registry.Queryable(desc.QueryName, req.SystemTime)
	if err != nil {
		return nil, err
	}
	return dquery.ExecuteQuery(ctx, q, req)
}

// ExecuteQueryValue answers a value request: the row count, an
// aggregate, or the value(s) of a token.
func (e *Engine) ExecuteQueryValue(ctx context.Context, dto *ValueRequestDTO) (ir.IRValue, error) {
	id := e.ids.Generate()
	v, err := func() (ir.IRValue, error) {
		desc, err := e.registry.Description(dto.QueryName)
		if err != nil {
			return nil, err
		}
		req, err := ToValueRequest(e.registry.Catalog(), desc, dto)
		if err != nil {
			return nil, err
		}
		if err := e.checkEntity(desc); err != nil {
			return nil, err
		}
		q, err := e.registry.Queryable(desc.QueryName, req.SystemTime)
		if err != nil {
			return nil, err
		}
		return dquery.ExecuteQueryValue(ctx, q, req)
	}()
	if err != nil {
		return nil, e.fail("value", id, dto.QueryName, err)
	}
	slog.Info("value executed", "request_id", id, "query", dto.QueryName, "token", dto.ValueToken)
	return v, nil
}

// ExecuteUniqueEntity returns the lite of the entity the request's
// UniqueType picks, or IRNull.
func (e *Engine) ExecuteUniqueEntity(ctx context.Context, dto *UniqueEntityRequestDTO) (ir.IRValue, error) {
	id := e.ids.Generate()
	v, err := func() (ir.IRValue, error) {
		desc, err := e.registry.Description(dto.QueryName)
		if err != nil {
			return nil, err
		}
		req, err := ToUniqueEntityRequest(e.registry.Catalog(), desc, dto)
		if err != nil {
			return nil, err
		}
		if err := e.checkEntity(desc); err != nil {
			return nil, err
		}
		q, err := e.registry.Queryable(desc.QueryName, req.SystemTime)
		if err != nil {
			return nil, err
		}
		return dquery.ExecuteUniqueEntity(ctx, q, req)
	}()
	if err != nil {
		return nil, e.fail("unique", id, dto.QueryName, err)
	}
	slog.Info("unique entity executed", "request_id", id, "query", dto.QueryName, "unique_type", dto.UniqueType)
	return v, nil
}

// GetEntitiesLite returns the lites of the matching rows.
func (e *Engine) GetEntitiesLite(ctx context.Context, dto *EntitiesRequestDTO) ([]ir.IRLite, error) {
	id := e.ids.Generate()
	lites, err := entities(ctx, e, dto, dquery.GetEntitiesLite)
	if err != nil {
		return nil, e.fail("entities", id, dto.QueryName, err)
	}
	slog.Info("entities executed", "request_id", id, "query", dto.QueryName, "count", len(lites))
	return lites, nil
}

// GetEntitiesFull returns the full entities of the matching rows.
func (e *Engine) GetEntitiesFull(ctx context.Context, dto *EntitiesRequestDTO) ([]ir.IREntity, error) {
	id := e.ids.Generate()
	ents, err := entities(ctx, e, dto, dquery.GetEntitiesFull)
	if err != nil {
		return nil, e.fail("entities", id, dto.QueryName, err)
	}
	slog.Info("entities executed", "request_id", id, "query", dto.QueryName, "count", len(ents), "full", true)
	return ents, nil
}

func entities[T any](ctx context.Context, e *Engine, dto *EntitiesRequestDTO,
	run func(context.Context, *dquery.DQueryable, *dquery.QueryEntitiesRequest) ([]T, error)) ([]T, error) {
	desc, err := e.registry.Description(dto.QueryName)
	if err != nil {
		return nil, err
	}
	req, err := ToEntitiesRequest(e.registry.Catalog(), desc, dto)
	if err != nil {
		return nil, err
	}
	if err := e.checkEntity(desc); err != nil {
		return nil, err
	}
	q, err := e.registry.Queryable(desc.QueryName, req.SystemTime)
	if err != nil {
		return nil, err
	}
	return run(ctx, q, req)
}

// checkEntity rejects queries whose entity column the caller may not use.
func (e *Engine) checkEntity(desc ir.QueryDescription) error {
	for _, col := range desc.Columns {
		if !col.IsEntity {
			continue
		}
		t := token.NewColumn(desc.QueryName, col)
		if reason := e.registry.Catalog().Authorizer().IsAllowed(t); reason != "" {
			return &token.Error{Code: token.CodeNotAllowed, Path: t.FullKey(), Message: reason}
		}
		return nil
	}
	return fmt.Errorf("query %s has no entity column", desc.QueryName)
}

func (e *Engine) fail(op, id, query string, err error) error {
	code, _ := dquery.CodeOf(err)
	slog.Info("request failed",
		"request_id", id,
		"op", op,
		"query", query,
		"code", code,
		"error", err,
	)
	return &RequestError{RequestID: id, QueryName: query, Op: op, Err: err}
}

func totalAttr(total *int) any {
	if total == nil {
		return "unknown"
	}
	return *total
}
