// Package dquery turns query requests into results.
//
// A request names columns, filters and orders as tokens. The pipeline
// resolves each token to an expression through a Context and chains the
// operators a request needs: SelectMany, Where, OrderBy, GroupBy, Select
// and a pagination step. Every operator exists in two modes:
//
//   - DQueryable extends a query plan that the provider runs (SQLite or
//     the in-memory interpreter). Only ToDEnumerable, Count and
//     TryPaginate reach the provider.
//   - DEnumerable applies the same step to rows already in memory.
//
// Both modes build their expressions with the same step functions, so a
// token means the same thing in either.
//
// CRITICAL PATTERNS:
//
// Context re-keying:
// Select, SelectMany and GroupBy change the row shape. Each builds a new
// Context binding every surviving token to its tuple slot; later operators
// resolve tokens through the current Context only.
//
// Aggregated validation:
// Capability checks (filterable, orderable, selectable) run over every
// token of an operator before anything is built, and report all failures
// in one QueryError.
//
// Immutability:
// Operators return new values. A Context, DQueryable or ResultTable is
// never modified once returned, so they may be shared across goroutines.
package dquery
