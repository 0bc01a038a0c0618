// Package expr is the expression AST every query token compiles to, and its
// in-memory interpreter.
//
// The same tree is handed to two interpreters: Eval here, which walks an
// in-memory row, and querysql, which lowers it to SQLite. Keeping a single
// AST is what keeps both backends returning the same rows.
//
// CRITICAL PATTERNS:
//
// Sealed nodes: Expr is sealed with a marker method so both interpreters
// can switch exhaustively.
//
// Three-valued logic: comparisons with a null operand are null, And/Or are
// Kleene, Not keeps null. Where keeps a row only when its predicate is
// exactly true (see Truthy).
//
// Rows: before the first projection the row is an ir.IREntity (Row); after
// it the row is an ir.IRArray tuple addressed by Slot. Projections store
// lites, never full entities (see Project).
package expr
