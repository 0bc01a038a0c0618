package engine

import (
	"fmt"

	"github.com/roach88/dynq/internal/dquery"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/provider"
	"github.com/roach88/dynq/internal/token"
)

// Registry maps logical query names to their description and backing
// source. It owns the token catalog, and with it the subtoken cache.
//
// A Registry is populated once by NewRegistry and read-only afterwards,
// so it may be shared by concurrent requests.
type Registry struct {
	schema       *ir.Schema
	catalog      *token.Catalog
	descriptions map[string]ir.QueryDescription
	sources      map[string]provider.Provider
}

// NewRegistry describes every query of schema. Queries run against
// fallback unless sources names another provider for them.
func NewRegistry(schema *ir.Schema, fallback provider.Provider, sources map[string]provider.Provider, opts ...token.CatalogOption) (*Registry, error) {
	catalog, err := token.NewCatalog(schema, opts...)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		schema:       schema,
		catalog:      catalog,
		descriptions: make(map[string]ir.QueryDescription, len(schema.Queries)),
		sources:      make(map[string]provider.Provider, len(schema.Queries)),
	}
	for _, name := range schema.QueryNames() {
		desc, err := schema.Describe(name)
		if err != nil {
			return nil, fmt.Errorf("describe: %w", err)
		}
		r.descriptions[name] = desc
		r.sources[name] = fallback
	}
	for name, p := range sources {
		if _, ok := r.descriptions[name]; !ok {
			return nil, fmt.Errorf("source for unknown query %q", name)
		}
		r.sources[name] = p
	}
	for name, p := range r.sources {
		if p == nil {
			return nil, fmt.Errorf("query %q has no source", name)
		}
	}
	return r, nil
}

// Schema returns the schema the registry was built from.
func (r *Registry) Schema() *ir.Schema { return r.schema }

// Catalog returns the token catalog shared by every query.
func (r *Registry) Catalog() *token.Catalog { return r.catalog }

// QueryNames returns the registered query names, sorted.
func (r *Registry) QueryNames() []string { return r.schema.QueryNames() }

// Description returns the description of a query.
func (r *Registry) Description(name string) (ir.QueryDescription, error) {
	desc, ok := r.descriptions[name]
	if !ok {
		return ir.QueryDescription{}, NewQueryNotFound(name, r.QueryNames())
	}
	return desc, nil
}

// Source returns the provider backing a query.
func (r *Registry) Source(name string) (provider.Provider, error) {
	p, ok := r.sources[name]
	if !ok {
		return nil, NewQueryNotFound(name, r.QueryNames())
	}
	return p, nil
}

// Queryable starts a fresh query over the rows of name visible under scope.
func (r *Registry) Queryable(name string, scope *ir.SystemTime) (*dquery.DQueryable, error) {
	desc, err := r.Description(name)
	if err != nil {
		return nil, err
	}
	return dquery.NewQueryable(r.sources[name], desc, scope)
}
