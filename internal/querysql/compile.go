package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryir"
)

// SQLCompiler lowers query plans to parameterized SQLite SQL over the
// layout described in layout.go.
//
// CRITICAL: every list query ends in ORDER BY with the base order (source
// id, version start, collection element row) as the final tie-break, so
// the result sequence matches the in-memory interpreter row for row.
// CRITICAL: values are never interpolated; each one is bound as ?N.
type SQLCompiler struct {
	schema *ir.Schema
}

// NewSQLCompiler creates a compiler for schema.
func NewSQLCompiler(schema *ir.Schema) *SQLCompiler {
	return &SQLCompiler{schema: schema}
}

// Query is a compiled statement. Slots are the types of the selected
// columns, in order; Decode turns each column back into a value.
type Query struct {
	SQL    string
	Params []any
	Slots  []ir.TypeRef
}

// Compile lowers a plan that ends in a projection to a list query.
func (c *SQLCompiler) Compile(p queryir.Plan) (Query, error) {
	comp, l, err := c.lowerPlan(p)
	if err != nil {
		return Query{}, err
	}
	if !l.tuple {
		return Query{}, fmt.Errorf("compile: plan rows are entities; add a Select")
	}
	cols := make([]string, len(l.scope.slots))
	for i, s := range l.scope.slots {
		cols[i] = fmt.Sprintf("%s AS c%d", s, i)
	}
	return Query{SQL: l.render(cols, true), Params: comp.params, Slots: l.scope.types}, nil
}

// CompileCount lowers p to a query returning its row count.
func (c *SQLCompiler) CompileCount(p queryir.Plan) (Query, error) {
	comp, l, err := c.lowerPlan(p)
	if err != nil {
		return Query{}, err
	}
	inner := l.render([]string{"1"}, false)
	return Query{
		SQL:    "SELECT COUNT(*) FROM (" + inner + ")",
		Params: comp.params,
		Slots:  []ir.TypeRef{ir.Scalar(ir.KindInt)},
	}, nil
}

func (c *SQLCompiler) lowerPlan(p queryir.Plan) (*compilation, *level, error) {
	if p == nil {
		return nil, nil, fmt.Errorf("cannot compile nil plan")
	}
	if res := queryir.Validate(p); !res.Valid {
		return nil, nil, fmt.Errorf("invalid plan: %s", strings.Join(res.Errors, "; "))
	}
	src, err := queryir.SourceOf(p)
	if err != nil {
		return nil, nil, err
	}
	comp := &compilation{schema: c.schema, scope: src.Scope}
	l, err := comp.plan(p)
	if err != nil {
		return nil, nil, err
	}
	return comp, l, nil
}

// compilation is the state of one Compile call.
type compilation struct {
	schema  *ir.Schema
	scope   *ir.SystemTime
	params  []any
	aliases int
}

func (c *compilation) bind(v any) string {
	c.params = append(c.params, v)
	return "?" + strconv.Itoa(len(c.params))
}

func (c *compilation) alias(prefix string) string {
	c.aliases++
	return prefix + strconv.Itoa(c.aliases)
}

func (c *compilation) temporal(entity string) bool {
	e, ok := c.schema.Entities[entity]
	return ok && e.Temporal
}

// level is a SELECT under construction.
type level struct {
	from   string
	where  []string
	group  []string
	orders []orderTerm
	base   []string
	limit  int // -1: none
	offset int
	tuple  bool
	scope  *scope
}

type orderTerm struct {
	sql  string
	desc bool
}

func (l *level) limited() bool {
	return l.limit >= 0 || l.offset > 0
}

func (l *level) render(cols []string, ordered bool) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(l.from)
	if len(l.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(l.where, " AND "))
	}
	if len(l.group) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(l.group, ", "))
	}
	if ordered || l.limited() {
		var terms []string
		for _, o := range l.orders {
			dir := "ASC"
			if o.desc {
				dir = "DESC"
			}
			terms = append(terms, o.sql+" COLLATE BINARY "+dir)
		}
		for _, base := range l.base {
			terms = append(terms, base+" ASC")
		}
		if len(terms) > 0 {
			b.WriteString(" ORDER BY ")
			b.WriteString(strings.Join(terms, ", "))
		}
	}
	if l.limited() {
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", l.limit, l.offset)
	}
	return b.String()
}

// wrap turns l into a subquery exposing cols as c0.., its order keys as
// o0.., its base keys as b0.. and extras as x0... The returned level reads
// from that subquery; its scope is left for the caller to fill.
func (c *compilation) wrap(l *level, cols, extras []string) (*level, string) {
	a := c.alias("t")
	var sel []string
	for i, col := range cols {
		sel = append(sel, fmt.Sprintf("%s AS c%d", col, i))
	}
	for i, o := range l.orders {
		sel = append(sel, fmt.Sprintf("%s AS o%d", o.sql, i))
	}
	for i, b := range l.base {
		sel = append(sel, fmt.Sprintf("%s AS b%d", b, i))
	}
	for i, x := range extras {
		sel = append(sel, fmt.Sprintf("%s AS x%d", x, i))
	}
	if len(sel) == 0 {
		sel = []string{"1 AS z"}
	}
	out := &level{from: "(" + l.render(sel, false) + ") " + a, limit: -1}
	for i, o := range l.orders {
		out.orders = append(out.orders, orderTerm{sql: fmt.Sprintf("%s.o%d", a, i), desc: o.desc})
	}
	for i := range l.base {
		out.base = append(out.base, fmt.Sprintf("%s.b%d", a, i))
	}
	return out, a
}

// rewrap wraps l without changing its row shape, so filters and limits
// can be stacked on top of an existing LIMIT.
func (c *compilation) rewrap(l *level) *level {
	if !l.tuple {
		out, a := c.wrap(l, []string{l.scope.row.rowIDExpr()}, nil)
		row := *l.scope.row
		out.scope = &scope{row: &rowRef{table: row.table, entity: row.entity, rowID: a + ".c0"}}
		return out
	}
	out, a := c.wrap(l, l.scope.slots, nil)
	out.tuple = true
	out.scope = tupleScope(a, l.scope.types)
	return out
}

func tupleScope(alias string, types []ir.TypeRef) *scope {
	s := &scope{types: types}
	for i := range types {
		s.slots = append(s.slots, fmt.Sprintf("%s.c%d", alias, i))
	}
	return s
}

func (c *compilation) plan(p queryir.Plan) (*level, error) {
	switch n := p.(type) {
	case queryir.Source:
		a := c.alias("t")
		l := &level{
			from:  Quote(EntityTable(n.Entity)) + " " + a,
			limit: -1,
			base:  []string{a + ".id", a + ".sys_from"},
			scope: &scope{row: &rowRef{table: EntityTable(n.Entity), entity: n.Entity, alias: a}},
		}
		if c.temporal(n.Entity) {
			if pred := c.versionPredicate(a, n.Scope); pred != "" {
				l.where = append(l.where, pred)
			}
		}
		return l, nil

	case queryir.Where:
		l, err := c.plan(n.Input)
		if err != nil {
			return nil, err
		}
		if l.limited() {
			l = c.rewrap(l)
		}
		pred, err := c.scalar(n.Pred, l.scope)
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		l.where = append(l.where, pred)
		return l, nil

	case queryir.OrderBy:
		l, err := c.plan(n.Input)
		if err != nil {
			return nil, err
		}
		if l.limited() {
			l = c.rewrap(l)
		}
		keys, err := c.orderTerms(n.Keys, l.scope)
		if err != nil {
			return nil, fmt.Errorf("order by: %w", err)
		}
		l.orders = append(keys, l.orders...)
		return l, nil

	case queryir.ThenBy:
		l, err := c.plan(n.Input)
		if err != nil {
			return nil, err
		}
		if l.limited() {
			l = c.rewrap(l)
		}
		keys, err := c.orderTerms(n.Keys, l.scope)
		if err != nil {
			return nil, fmt.Errorf("then by: %w", err)
		}
		l.orders = append(l.orders, keys...)
		return l, nil

	case queryir.Select:
		l, err := c.plan(n.Input)
		if err != nil {
			return nil, err
		}
		cols, err := c.scalars(n.Columns, l.scope)
		if err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		out, a := c.wrap(l, cols, nil)
		out.tuple = true
		out.scope = tupleScope(a, exprTypes(n.Columns))
		return out, nil

	case queryir.SelectMany:
		return c.selectMany(n)

	case queryir.GroupBy:
		return c.groupBy(n)

	case queryir.Skip:
		l, err := c.plan(n.Input)
		if err != nil {
			return nil, err
		}
		if l.limit >= 0 {
			l = c.rewrap(l)
		}
		l.offset += n.N
		return l, nil

	case queryir.Take:
		l, err := c.plan(n.Input)
		if err != nil {
			return nil, err
		}
		if l.limit < 0 || n.N < l.limit {
			l.limit = n.N
		}
		return l, nil
	}
	return nil, fmt.Errorf("unsupported plan node %T", p)
}

func (c *compilation) orderTerms(keys []queryir.OrderKey, s *scope) ([]orderTerm, error) {
	out := make([]orderTerm, len(keys))
	for i, k := range keys {
		sql, err := c.scalar(k.Expr, s)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		out[i] = orderTerm{sql: sql, desc: k.Desc}
	}
	return out, nil
}

func (c *compilation) selectMany(n queryir.SelectMany) (*level, error) {
	l, err := c.plan(n.Input)
	if err != nil {
		return nil, err
	}
	keep, err := c.scalars(n.Keep, l.scope)
	if err != nil {
		return nil, fmt.Errorf("select many: %w", err)
	}
	coll, err := c.lower(n.Collection, l.scope)
	if err != nil {
		return nil, fmt.Errorf("select many: %w", err)
	}
	if coll.coll == nil {
		return nil, fmt.Errorf("select many: %s is not a stored collection", expr.Format(n.Collection))
	}

	out, a := c.wrap(l, keep, []string{coll.coll.parent})
	child := c.alias("c")
	out.from += fmt.Sprintf(" LEFT JOIN %s %s ON %s.parent_row = %s.x0", Quote(coll.coll.table), child, child, a)
	out.base = append(out.base, child+".row_id")

	elem := n.Collection.Type().Elem.Nullify()
	types := append(exprTypes(n.Keep), elem)
	out.tuple = true
	out.scope = tupleScope(a, types)
	if elem.Kind == ir.KindEmbedded {
		out.scope.slots[len(keep)] = child + ".row_id"
	} else {
		out.scope.slots[len(keep)] = child + "." + Quote(ValueColumn)
	}
	return out, nil
}

func (c *compilation) groupBy(n queryir.GroupBy) (*level, error) {
	l, err := c.plan(n.Input)
	if err != nil {
		return nil, err
	}
	if l.limited() {
		l = c.rewrap(l)
	}
	keys, err := c.scalars(n.Keys, l.scope)
	if err != nil {
		return nil, fmt.Errorf("group by: %w", err)
	}
	keyScope := &scope{slots: keys, types: exprTypes(n.Keys)}

	cols := append([]string(nil), keys...)
	for i, r := range n.Redundant {
		sql, err := c.scalar(r.FromKey, keyScope)
		if err != nil {
			return nil, fmt.Errorf("group by redundant key %d: %w", i, err)
		}
		cols = append(cols, sql)
	}
	for i, agg := range n.Aggregates {
		sql, err := c.aggregate(agg, l.scope)
		if err != nil {
			return nil, fmt.Errorf("aggregate %d (%s): %w", i, agg.Func, err)
		}
		cols = append(cols, sql)
	}

	grouped := &level{from: l.from, where: l.where, group: keys, limit: -1}
	a := c.alias("t")
	sel := make([]string, len(cols))
	for i, col := range cols {
		sel[i] = fmt.Sprintf("%s AS c%d", col, i)
	}
	if len(sel) == 0 {
		sel = []string{"1 AS z"}
	}
	out := &level{from: "(" + grouped.render(sel, false) + ") " + a, limit: -1, tuple: true}
	out.scope = tupleScope(a, n.Grouping.Slots())
	for i := range keys {
		out.orders = append(out.orders, orderTerm{sql: fmt.Sprintf("%s.c%d", a, i)})
	}
	return out, nil
}

func (c *compilation) aggregate(a queryir.Aggregate, s *scope) (string, error) {
	switch a.Func {
	case queryir.AggCount:
		return "COUNT(*)", nil
	case queryir.AggCountWhere:
		pred, err := c.scalar(a.Pred, s)
		if err != nil {
			return "", err
		}
		return "COUNT(CASE WHEN " + pred + " THEN 1 END)", nil
	}
	arg, err := c.scalar(a.Arg, s)
	if err != nil {
		return "", err
	}
	switch a.Func {
	case queryir.AggCountDistinct:
		return "COUNT(DISTINCT " + arg + ")", nil
	case queryir.AggMin:
		return "MIN(" + arg + ")", nil
	case queryir.AggMax:
		return "MAX(" + arg + ")", nil
	case queryir.AggSum:
		if a.T.Nullable {
			return "SUM(" + arg + ")", nil
		}
		return "COALESCE(SUM(" + arg + "), 0)", nil
	case queryir.AggAverage:
		// Decimals are scaled integers, so rounding the mean to an integer
		// rounds it to DecimalScale places.
		return "CAST(ROUND(AVG(" + arg + ")) AS INTEGER)", nil
	}
	return "", fmt.Errorf("unsupported aggregate %q", a.Func)
}

// versionPredicate restricts the versions under alias to the root rows
// of scope.
func (c *compilation) versionPredicate(alias string, st *ir.SystemTime) string {
	if st == nil {
		return alias + ".sys_to IS NULL"
	}
	from, to := alias+".sys_from", alias+".sys_to"
	switch st.Mode {
	case ir.SystemTimeAsOf:
		t := c.bind(st.Start.Format(ir.TimeLayout))
		return fmt.Sprintf("(%s IS NULL OR %s <= %s) AND (%s IS NULL OR %s < %s)", from, from, t, to, t, to)
	case ir.SystemTimeBetween:
		start, end := c.bind(st.Start.Format(ir.TimeLayout)), c.bind(st.End.Format(ir.TimeLayout))
		return fmt.Sprintf("(%s IS NULL OR %s < %s) AND (%s IS NULL OR %s > %s)", from, from, end, to, to, start)
	case ir.SystemTimeContainedIn:
		start, end := c.bind(st.Start.Format(ir.TimeLayout)), c.bind(st.End.Format(ir.TimeLayout))
		return fmt.Sprintf("%s IS NOT NULL AND %s >= %s AND %s IS NOT NULL AND %s <= %s", from, from, start, to, to, end)
	}
	return ""
}

// navigate returns the row_id of the version a reference to entity with
// id idSQL lands on: the current one, or the earliest the scope accepts.
func (c *compilation) navigate(entity, idSQL string) string {
	n := c.alias("n")
	where := n + ".id = " + idSQL
	if c.temporal(entity) {
		pred := n + ".sys_to IS NULL"
		if !c.scope.NavigatesCurrent() {
			pred = c.versionPredicate(n, c.scope)
		}
		if pred != "" {
			where += " AND " + pred
		}
	}
	return fmt.Sprintf("(SELECT %s.row_id FROM %s %s WHERE %s ORDER BY %s.sys_from ASC LIMIT 1)",
		n, Quote(EntityTable(entity)), n, where, n)
}

func exprTypes(es []expr.Expr) []ir.TypeRef {
	out := make([]ir.TypeRef, len(es))
	for i, e := range es {
		out[i] = e.Type()
	}
	return out
}
