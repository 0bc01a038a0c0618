package dquery

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/token"
)

// ExecuteQuery runs a table request over q, which must be fresh from
// NewQueryable.
//
// Plain requests: SelectMany → Where → OrderBy → Select (columns plus the
// entity column) → TryPaginate. Grouped requests group after the simple
// filters and apply aggregate filters to the groups.
func ExecuteQuery(ctx context.Context, q *DQueryable, req *QueryRequest) (*ResultTable, error) {
	if req.Pagination == nil {
		return nil, &QueryError{Code: ErrCodeUnsupportedPagination, Message: "request has no pagination"}
	}
	if req.GroupResults {
		return executeQueryGroup(ctx, q, req)
	}
	var reasons []string
	for _, t := range req.AllTokens() {
		if token.IsAggregate(t) {
			reasons = append(reasons, fmt.Sprintf("%s needs GroupResults", t.FullKey()))
		}
	}
	if err := invalid(ErrCodeInvalidColumn, "aggregates", reasons); err != nil {
		return nil, err
	}

	ent, ok := q.Context().EntityToken()
	if !ok {
		return nil, shapeMismatch("query %s has no entity column", req.QueryName)
	}
	q, err := q.SelectMany(req.Multiplications())
	if err != nil {
		return nil, err
	}
	if q, err = q.Where(req.Filters...); err != nil {
		return nil, err
	}
	if q, err = q.OrderBy(req.Orders); err != nil {
		return nil, err
	}
	if q, err = q.Select(append(req.ColumnTokens(), ent)); err != nil {
		return nil, err
	}
	page, err := q.TryPaginate(ctx, req.Pagination)
	if err != nil {
		return nil, err
	}
	return ToResultTable(page, req)
}

func executeQueryGroup(ctx context.Context, q *DQueryable, req *QueryRequest) (*ResultTable, error) {
	var simple, aggregate []Filter
	for _, f := range req.Filters {
		if IsAggregateFilter(f) {
			aggregate = append(aggregate, f)
		} else {
			simple = append(simple, f)
		}
	}
	var keys []token.Token
	for _, c := range req.Columns {
		if !token.IsAggregate(c.Token) {
			keys = append(keys, c.Token)
		}
	}
	var aggs []*token.Aggregate
	for _, t := range req.AllTokens() {
		if a, ok := t.(*token.Aggregate); ok && !slices.ContainsFunc(aggs, func(o *token.Aggregate) bool { return token.Equal(o, a) }) {
			aggs = append(aggs, a)
		}
	}

	q, err := q.SelectMany(req.Multiplications())
	if err != nil {
		return nil, err
	}
	if q, err = q.Where(simple...); err != nil {
		return nil, err
	}
	if q, err = q.GroupBy(keys, aggs); err != nil {
		return nil, err
	}
	if q, err = q.Where(aggregate...); err != nil {
		return nil, err
	}
	if q, err = q.OrderBy(req.Orders); err != nil {
		return nil, err
	}
	if q, err = q.Select(req.ColumnTokens()); err != nil {
		return nil, err
	}
	page, err := q.TryPaginate(ctx, req.Pagination)
	if err != nil {
		return nil, err
	}
	return ToResultTable(page, req)
}

// SimpleAggregate computes a over every row of q as a single group.
func (q *DQueryable) SimpleAggregate(ctx context.Context, a *token.Aggregate) (ir.IRValue, error) {
	g, err := q.GroupBy(nil, []*token.Aggregate{a})
	if err != nil {
		return nil, err
	}
	e, err := g.ToDEnumerable(ctx)
	if err != nil {
		return nil, err
	}
	if e.Len() != 1 || len(e.rows[0]) != 1 {
		return nil, shapeMismatch("aggregate %s returned %d rows", a.FullKey(), e.Len())
	}
	return e.rows[0][0], nil
}

// SimpleAggregate computes a over every row of e as a single group.
func (e *DEnumerable) SimpleAggregate(a *token.Aggregate) (ir.IRValue, error) {
	g, err := e.GroupBy(nil, []*token.Aggregate{a})
	if err != nil {
		return nil, err
	}
	if g.Len() != 1 {
		return nil, shapeMismatch("aggregate %s returned %d rows", a.FullKey(), g.Len())
	}
	return g.rows[0][0], nil
}

// QueryValueRequest asks for one value of a query: the row count when
// ValueToken is nil, an aggregate over every row, or the value of a token
// in the single matching row (every matching row with MultipleValues).
type QueryValueRequest struct {
	QueryName      string
	Filters        []Filter
	ValueToken     token.Token
	MultipleValues bool
	SystemTime     *ir.SystemTime
}

// ExecuteQueryValue answers req over q. Multiple values come back as an
// ir.IRArray.
func ExecuteQueryValue(ctx context.Context, q *DQueryable, req *QueryValueRequest) (ir.IRValue, error) {
	tokens := slices.Clone(filterTokensOf(req.Filters))
	if req.ValueToken != nil {
		tokens = append(tokens, req.ValueToken)
	}
	q, err := q.SelectMany(multiplications(tokens))
	if err != nil {
		return nil, err
	}
	if q, err = q.Where(req.Filters...); err != nil {
		return nil, err
	}

	if req.ValueToken == nil {
		n, err := q.Count(ctx)
		if err != nil {
			return nil, err
		}
		return ir.IRInt(n), nil
	}
	if a, ok := req.ValueToken.(*token.Aggregate); ok {
		return q.SimpleAggregate(ctx, a)
	}
	sel, err := q.SelectOne(req.ValueToken)
	if err != nil {
		return nil, err
	}
	if !req.MultipleValues {
		sel = sel.Take(uniqueLimit(UniqueSingleOrDefault))
	}
	e, err := sel.ToDEnumerable(ctx)
	if err != nil {
		return nil, err
	}
	values := make([]ir.IRValue, e.Len())
	for i, r := range e.rows {
		values[i] = r[0]
	}
	if req.MultipleValues {
		return ir.IRArray(values), nil
	}
	v, err := Unique(values, UniqueSingleOrDefault)
	if err != nil || v == nil {
		return ir.IRNull{}, err
	}
	return v, nil
}

// UniqueEntityRequest asks for the entity of the one row that UniqueType
// picks among the matching rows.
type UniqueEntityRequest struct {
	QueryName  string
	Filters    []Filter
	Orders     []Order
	UniqueType UniqueType
	SystemTime *ir.SystemTime
}

// ExecuteUniqueEntity returns the lite of the picked entity, or IRNull.
func ExecuteUniqueEntity(ctx context.Context, q *DQueryable, req *UniqueEntityRequest) (ir.IRValue, error) {
	limit := uniqueLimit(req.UniqueType)
	lites, err := entityLites(ctx, q, req.Filters, req.Orders, &limit)
	if err != nil {
		return nil, err
	}
	v, err := Unique(lites, req.UniqueType)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return ir.IRNull{}, nil
	}
	return v, nil
}

// QueryEntitiesRequest asks for the entities of the matching rows,
// at most Count of them when set.
type QueryEntitiesRequest struct {
	QueryName  string
	Filters    []Filter
	Orders     []Order
	Count      *int
	SystemTime *ir.SystemTime
}

// GetEntitiesLite returns the lites of the matching rows without building
// a result table.
func GetEntitiesLite(ctx context.Context, q *DQueryable, req *QueryEntitiesRequest) ([]ir.IRLite, error) {
	values, err := entityLites(ctx, q, req.Filters, req.Orders, req.Count)
	if err != nil {
		return nil, err
	}
	out := make([]ir.IRLite, 0, len(values))
	for _, v := range values {
		if l, ok := v.(ir.IRLite); ok {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetEntitiesFull is GetEntitiesLite followed by loading every entity
// through the provider's resolver.
func GetEntitiesFull(ctx context.Context, q *DQueryable, req *QueryEntitiesRequest) ([]ir.IREntity, error) {
	lites, err := GetEntitiesLite(ctx, q, req)
	if err != nil {
		return nil, err
	}
	resolver := q.provider.Resolver(ctx, q.scope)
	out := make([]ir.IREntity, 0, len(lites))
	for _, l := range lites {
		ent, ok, err := resolver.Resolve(l)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", l.Key(), err)
		}
		if ok {
			out = append(out, ent)
		}
	}
	return out, nil
}

func entityLites(ctx context.Context, q *DQueryable, filters []Filter, orders []Order, limit *int) ([]ir.IRValue, error) {
	ent, ok := q.Context().EntityToken()
	if !ok {
		return nil, shapeMismatch("query has no entity column")
	}
	tokens := filterTokensOf(filters)
	for _, o := range orders {
		tokens = append(tokens, o.Token)
	}
	q, err := q.SelectMany(multiplications(tokens))
	if err != nil {
		return nil, err
	}
	if q, err = q.Where(filters...); err != nil {
		return nil, err
	}
	if q, err = q.OrderBy(orders); err != nil {
		return nil, err
	}
	if q, err = q.SelectOne(ent); err != nil {
		return nil, err
	}
	e, err := q.TryTake(limit).ToDEnumerable(ctx)
	if err != nil {
		return nil, err
	}
	return e.Values(ent)
}

func filterTokensOf(filters []Filter) []token.Token {
	var out []token.Token
	for _, f := range filters {
		out = append(out, filterTokens(f)...)
	}
	return out
}
