package dquery

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// TryPaginate materializes the rows pagination selects.
//
//   - All: every row; the total is the row count.
//   - Firsts: the first N rows; the total stays nil.
//   - Paginate: one page, ordered also by keys for stability. Page 1 runs
//     first and a short page gives the total without a count query; later
//     pages fetch the page and the count concurrently.
//
// Under an interval scope the provider's rows are per version, so the
// whole result is listed and paged in memory.
//
// NOTE: the short-page total is only right while nothing filters rows
// after the provider's Take.
func (q *DQueryable) TryPaginate(ctx context.Context, p Pagination) (*DEnumerableCount, error) {
	if err := ValidatePagination(p); err != nil {
		return nil, err
	}
	switch v := p.(type) {
	case All:
		e, err := q.ToDEnumerable(ctx)
		if err != nil {
			return nil, err
		}
		return e.WithCount(intPtr(e.Len())), nil

	case Firsts:
		e, err := q.Take(v.N).ToDEnumerable(ctx)
		if err != nil {
			return nil, err
		}
		return e.WithCount(nil), nil

	case Paginate:
		ordered, err := q.OrderAlsoByKeys()
		if err != nil {
			return nil, err
		}
		if q.scope.IsInterval() {
			slog.Warn("paginating in memory under an interval scope",
				"mode", q.scope.Mode, "page", v.Page, "page_size", v.PageSize)
			all, err := ordered.ToDEnumerable(ctx)
			if err != nil {
				return nil, err
			}
			return all.WithCount(intPtr(all.Len())).TryPaginate(p)
		}
		page := ordered.Skip((v.Page - 1) * v.PageSize).Take(v.PageSize)
		if v.Page == 1 {
			e, err := page.ToDEnumerable(ctx)
			if err != nil {
				return nil, err
			}
			if e.Len() < v.PageSize {
				return e.WithCount(intPtr(e.Len())), nil
			}
			total, err := q.Count(ctx)
			if err != nil {
				return nil, err
			}
			return e.WithCount(&total), nil
		}

		var (
			e     *DEnumerable
			total int
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			e, err = page.ToDEnumerable(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			total, err = q.Count(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return e.WithCount(&total), nil
	}
	return nil, &QueryError{Code: ErrCodeUnsupportedPagination, Message: "unreachable"}
}

// TryPaginate pages a materialized sequence. The total is the sequence
// length, except for Firsts where it stays nil.
func (e *DEnumerable) TryPaginate(p Pagination) (*DEnumerableCount, error) {
	return e.WithCount(intPtr(e.Len())).TryPaginate(p)
}

// TryPaginate pages the sequence keeping its known total: All and
// Paginate keep it, Firsts drops it.
func (c *DEnumerableCount) TryPaginate(p Pagination) (*DEnumerableCount, error) {
	if err := ValidatePagination(p); err != nil {
		return nil, err
	}
	switch v := p.(type) {
	case All:
		return c, nil
	case Firsts:
		return c.TryTake(&v.N).WithCount(nil), nil
	case Paginate:
		start := min((v.Page-1)*v.PageSize, c.Len())
		end := min(start+v.PageSize, c.Len())
		rows := c.rows[start:end]
		return (&DEnumerable{rows: rows, ctx: c.ctx, resolver: c.resolver}).WithCount(c.Total), nil
	}
	return nil, &QueryError{Code: ErrCodeUnsupportedPagination, Message: "unreachable"}
}

func intPtr(n int) *int { return &n }
