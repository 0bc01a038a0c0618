package queryir

import (
	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
)

// Plan is a composable query over one logical query's rows.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in both interpreters (querymem and querysql).
//
// A plan is a chain: every node except Source wraps an Input. Before the
// first Select/SelectMany/GroupBy the row is the source entity (expr.Row);
// after it the row is a tuple (expr.Slot).
type Plan interface {
	queryNode() // Marker method - seals interface to this package
}

// Source reads the versions of Entity visible under Scope, ordered by
// (id, version start).
type Source struct {
	Query  string          // logical query name
	Entity string          // root entity type
	Scope  *ir.SystemTime  // nil = current versions
}

// Where keeps rows whose predicate is exactly true.
type Where struct {
	Input Plan
	Pred  expr.Expr
}

// OrderKey is one sort key.
type OrderKey struct {
	Expr expr.Expr
	Desc bool
}

// OrderBy stable-sorts by Keys. The previous ordering survives as the
// tie-break, so OrderBy(a) then OrderBy(b) sorts by (b, a).
type OrderBy struct {
	Input Plan
	Keys  []OrderKey
}

// ThenBy appends Keys after the current ordering.
type ThenBy struct {
	Input Plan
	Keys  []OrderKey
}

// Select projects every row into a tuple of Columns.
// Entities are projected as lites.
type Select struct {
	Input   Plan
	Columns []expr.Expr
}

// SelectMany pairs each row with each element of Collection, keeping a row
// with a null element when the collection is empty. The output tuple is
// Keep followed by the element.
type SelectMany struct {
	Input      Plan
	Keep       []expr.Expr
	Collection expr.Expr
}

// GroupBy groups rows by Keys. The output tuple is Keys, then the redundant
// keys, then the aggregates; groups come out ordered by key.
type GroupBy struct {
	Input Plan
	Grouping
}

// Skip drops the first N rows.
type Skip struct {
	Input Plan
	N     int
}

// Take keeps at most N rows.
type Take struct {
	Input Plan
	N     int
}

func (Source) queryNode()     {}
func (Where) queryNode()      {}
func (OrderBy) queryNode()    {}
func (ThenBy) queryNode()     {}
func (Select) queryNode()     {}
func (SelectMany) queryNode() {}
func (GroupBy) queryNode()    {}
func (Skip) queryNode()       {}
func (Take) queryNode()       {}

// Grouping describes a GroupBy.
//
// With no Keys every input row falls into a single group, which exists even
// when the input is empty; that is how whole-query aggregates are computed.
type Grouping struct {
	Keys       []expr.Expr    // over the input row
	Redundant  []RedundantKey // keys dominated by a root key
	Aggregates []Aggregate
}

// RedundantKey is a grouping key fully determined by the root keys.
// The in-memory interpreter reads it from the first row of the group
// (FromRow, over the input row); SQL re-derives it from the key tuple
// (FromKey, over a tuple holding only the root keys).
type RedundantKey struct {
	FromRow expr.Expr
	FromKey expr.Expr
}

// AggregateFunc names an aggregate.
type AggregateFunc string

const (
	AggCount         AggregateFunc = "Count"
	AggCountWhere    AggregateFunc = "CountWhere"
	AggCountDistinct AggregateFunc = "CountDistinct"
	AggSum           AggregateFunc = "Sum"
	AggAverage       AggregateFunc = "Average"
	AggMin           AggregateFunc = "Min"
	AggMax           AggregateFunc = "Max"
)

// Aggregate is one aggregate column of a GroupBy.
//
//   - Count: number of rows in the group (Arg and Pred unused)
//   - CountWhere: rows where Pred is true
//   - CountDistinct: distinct non-null values of Arg
//   - Sum, Average, Min, Max: over the non-null values of Arg, already
//     converted to T by the caller
type Aggregate struct {
	Func AggregateFunc
	Arg  expr.Expr
	Pred expr.Expr
	T    ir.TypeRef
}
