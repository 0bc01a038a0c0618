// Package queryir provides the composable query plan that pipeline operators
// extend and backing providers execute.
//
// ARCHITECTURE:
//
// A plan is an immutable chain of nodes rooted at a Source:
//
//	Source → Where → OrderBy → Select → Skip → Take
//
// Two interpreters execute the same plan:
//
//	[plan] → [querymem] (in-memory rows)
//	       → [querysql] (SQLite SQL)
//
// Expressions inside nodes are expr.Expr trees. Before the first Select,
// SelectMany or GroupBy an expression reads the source entity (expr.Row);
// afterwards it reads tuple slots (expr.Slot). Validate enforces this.
//
// SEALED INTERFACES:
//
// Plan is a sealed interface using the marker method pattern. Only types in
// this package implement it, so interpreters can switch exhaustively:
//
//	switch n := plan.(type) {
//	case queryir.Source:
//	    // Scan
//	case queryir.Where:
//	    // Filter
//	...
//	}
//
// CRITICAL PATTERNS:
//
// Deterministic order: every plan has a base order (source id, version
// start, collection element) that survives every sort as the last
// tie-break. OrderBy is stable; ThenBy appends. GroupBy emits groups
// ordered by key. Both interpreters honor this so their outputs match row
// for row.
//
// Whole-query aggregates: a GroupBy with no keys always yields exactly one
// row, even over an empty input.
package queryir
