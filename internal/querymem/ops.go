package querymem

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryir"
)

// relation is a row set plus the values of its active sort keys, one slice
// per row. Carrying the key values lets ThenBy extend an ordering after a
// projection has dropped the expressions it came from.
type relation struct {
	rows []ir.IRValue
	keys [][]ir.IRValue
	desc []bool
}

func newRelation(rows []ir.IRValue) *relation {
	return &relation{rows: rows, keys: make([][]ir.IRValue, len(rows))}
}

// Filter keeps the rows whose predicate evaluates to true.
func Filter(rows []ir.IRValue, pred expr.Expr, env *expr.Env) ([]ir.IRValue, error) {
	r, err := newRelation(rows).filter(pred, env)
	if err != nil {
		return nil, err
	}
	return r.rows, nil
}

// Sort stable-sorts rows by keys; the incoming order is the tie-break.
func Sort(rows []ir.IRValue, keys []queryir.OrderKey, env *expr.Env) ([]ir.IRValue, error) {
	r, err := newRelation(rows).orderBy(keys, env)
	if err != nil {
		return nil, err
	}
	return r.rows, nil
}

// Project maps every row to the tuple of columns.
func Project(rows []ir.IRValue, columns []expr.Expr, env *expr.Env) ([]ir.IRValue, error) {
	r, err := newRelation(rows).project(columns, env)
	if err != nil {
		return nil, err
	}
	return r.rows, nil
}

// Flatten pairs each row with each element of coll (null for an empty
// collection), keeping keep in front.
func Flatten(rows []ir.IRValue, keep []expr.Expr, coll expr.Expr, env *expr.Env) ([]ir.IRValue, error) {
	r, err := newRelation(rows).flatten(keep, coll, env)
	if err != nil {
		return nil, err
	}
	return r.rows, nil
}

// Group groups rows and evaluates the aggregates of g.
func Group(rows []ir.IRValue, g queryir.Grouping, env *expr.Env) ([]ir.IRValue, error) {
	r, err := newRelation(rows).group(g, env)
	if err != nil {
		return nil, err
	}
	return r.rows, nil
}

func (r *relation) filter(pred expr.Expr, env *expr.Env) (*relation, error) {
	out := &relation{desc: r.desc}
	for i, row := range r.rows {
		v, err := expr.Eval(pred, env.WithRow(row))
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		if expr.Truthy(v) {
			out.rows = append(out.rows, row)
			out.keys = append(out.keys, r.keys[i])
		}
	}
	return out, nil
}

func evalKeys(keys []queryir.OrderKey, row ir.IRValue, env *expr.Env) ([]ir.IRValue, error) {
	vals := make([]ir.IRValue, len(keys))
	for i, k := range keys {
		v, err := expr.Eval(k.Expr, env.WithRow(row))
		if err != nil {
			return nil, fmt.Errorf("order key %d: %w", i, err)
		}
		vals[i] = expr.Project(v)
	}
	return vals, nil
}

func compareKeys(a, b []ir.IRValue, desc []bool) int {
	for i := range a {
		c := ir.Compare(a[i], b[i])
		if desc[i] {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

type keyed struct {
	row  ir.IRValue
	sort []ir.IRValue
	all  []ir.IRValue
}

func (r *relation) orderBy(keys []queryir.OrderKey, env *expr.Env) (*relation, error) {
	desc := make([]bool, len(keys))
	for i, k := range keys {
		desc[i] = k.Desc
	}
	items := make([]keyed, len(r.rows))
	for i, row := range r.rows {
		vals, err := evalKeys(keys, row, env)
		if err != nil {
			return nil, fmt.Errorf("order by: %w", err)
		}
		items[i] = keyed{row: row, sort: vals, all: append(vals, r.keys[i]...)}
	}
	slices.SortStableFunc(items, func(a, b keyed) int { return compareKeys(a.sort, b.sort, desc) })

	out := &relation{desc: append(desc, r.desc...)}
	for _, it := range items {
		out.rows = append(out.rows, it.row)
		out.keys = append(out.keys, it.all)
	}
	return out, nil
}

func (r *relation) thenBy(keys []queryir.OrderKey, env *expr.Env) (*relation, error) {
	desc := append(slices.Clone(r.desc), make([]bool, len(keys))...)
	for i, k := range keys {
		desc[len(r.desc)+i] = k.Desc
	}
	items := make([]keyed, len(r.rows))
	for i, row := range r.rows {
		vals, err := evalKeys(keys, row, env)
		if err != nil {
			return nil, fmt.Errorf("then by: %w", err)
		}
		all := append(slices.Clone(r.keys[i]), vals...)
		items[i] = keyed{row: row, sort: all, all: all}
	}
	slices.SortStableFunc(items, func(a, b keyed) int { return compareKeys(a.sort, b.sort, desc) })

	out := &relation{desc: desc}
	for _, it := range items {
		out.rows = append(out.rows, it.row)
		out.keys = append(out.keys, it.all)
	}
	return out, nil
}

func (r *relation) project(columns []expr.Expr, env *expr.Env) (*relation, error) {
	out := &relation{desc: r.desc, keys: r.keys, rows: make([]ir.IRValue, len(r.rows))}
	for i, row := range r.rows {
		tuple, err := evalTuple(columns, row, env)
		if err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		out.rows[i] = tuple
	}
	return out, nil
}

func evalTuple(columns []expr.Expr, row ir.IRValue, env *expr.Env) (ir.IRArray, error) {
	rowEnv := env.WithRow(row)
	tuple := make(ir.IRArray, len(columns))
	for j, c := range columns {
		v, err := expr.Eval(c, rowEnv)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", j, err)
		}
		tuple[j] = expr.Project(v)
	}
	return tuple, nil
}

func (r *relation) flatten(keep []expr.Expr, coll expr.Expr, env *expr.Env) (*relation, error) {
	out := &relation{desc: r.desc}
	for i, row := range r.rows {
		prefix, err := evalTuple(keep, row, env)
		if err != nil {
			return nil, fmt.Errorf("select many: %w", err)
		}
		v, err := expr.Eval(coll, env.WithRow(row))
		if err != nil {
			return nil, fmt.Errorf("select many: %w", err)
		}
		elems, _ := v.(ir.IRArray)
		if len(elems) == 0 {
			elems = ir.IRArray{ir.IRNull{}}
		}
		for _, e := range elems {
			tuple := append(slices.Clone(prefix), expr.Project(e))
			out.rows = append(out.rows, tuple)
			out.keys = append(out.keys, r.keys[i])
		}
	}
	return out, nil
}

type group struct {
	key  ir.IRArray
	rows []ir.IRValue
}

func (r *relation) group(g queryir.Grouping, env *expr.Env) (*relation, error) {
	var groups []*group
	index := map[string]*group{}
	for _, row := range r.rows {
		key, err := evalTuple(g.Keys, row, env)
		if err != nil {
			return nil, fmt.Errorf("group by: %w", err)
		}
		k := ir.CanonicalKey(key)
		grp, ok := index[k]
		if !ok {
			grp = &group{key: key}
			index[k] = grp
			groups = append(groups, grp)
		}
		grp.rows = append(grp.rows, row)
	}
	if len(g.Keys) == 0 && len(groups) == 0 {
		groups = append(groups, &group{key: ir.IRArray{}})
	}
	slices.SortStableFunc(groups, func(a, b *group) int { return ir.Compare(a.key, b.key) })

	out := &relation{}
	for _, grp := range groups {
		tuple := slices.Clone(grp.key)
		for i, red := range g.Redundant {
			var v ir.IRValue = ir.IRNull{}
			if len(grp.rows) > 0 {
				var err error
				v, err = expr.Eval(red.FromRow, env.WithRow(grp.rows[0]))
				if err != nil {
					return nil, fmt.Errorf("group by redundant key %d: %w", i, err)
				}
			}
			tuple = append(tuple, expr.Project(v))
		}
		for i, a := range g.Aggregates {
			v, err := aggregate(a, grp.rows, env)
			if err != nil {
				return nil, fmt.Errorf("aggregate %d (%s): %w", i, a.Func, err)
			}
			tuple = append(tuple, v)
		}
		out.rows = append(out.rows, tuple)
		out.keys = append(out.keys, slices.Clone(grp.key))
	}
	out.desc = make([]bool, len(g.Keys))
	return out, nil
}

func aggregate(a queryir.Aggregate, rows []ir.IRValue, env *expr.Env) (ir.IRValue, error) {
	switch a.Func {
	case queryir.AggCount:
		return ir.IRInt(len(rows)), nil
	case queryir.AggCountWhere:
		n := 0
		for _, row := range rows {
			v, err := expr.Eval(a.Pred, env.WithRow(row))
			if err != nil {
				return nil, err
			}
			if expr.Truthy(v) {
				n++
			}
		}
		return ir.IRInt(n), nil
	}

	var vals []ir.IRValue
	for _, row := range rows {
		v, err := expr.Eval(a.Arg, env.WithRow(row))
		if err != nil {
			return nil, err
		}
		if !ir.IsNull(v) {
			vals = append(vals, expr.Project(v))
		}
	}

	switch a.Func {
	case queryir.AggCountDistinct:
		seen := map[string]bool{}
		for _, v := range vals {
			seen[ir.CanonicalKey(v)] = true
		}
		return ir.IRInt(len(seen)), nil
	case queryir.AggMin, queryir.AggMax:
		if len(vals) == 0 {
			return ir.IRNull{}, nil
		}
		best := vals[0]
		for _, v := range vals[1:] {
			c := ir.Compare(v, best)
			if (a.Func == queryir.AggMin && c < 0) || (a.Func == queryir.AggMax && c > 0) {
				best = v
			}
		}
		return best, nil
	case queryir.AggSum:
		if len(vals) == 0 {
			if a.T.Nullable {
				return ir.IRNull{}, nil
			}
			return expr.Zero(a.T.Kind)
		}
		return sum(vals, a.T.Kind)
	case queryir.AggAverage:
		if len(vals) == 0 {
			return ir.IRNull{}, nil
		}
		total := decimal.Zero
		for _, v := range vals {
			d, err := toDecimal(v)
			if err != nil {
				return nil, err
			}
			total = total.Add(d)
		}
		return ir.NewIRDecimal(total.DivRound(decimal.NewFromInt(int64(len(vals))), ir.DecimalScale)), nil
	}
	return nil, fmt.Errorf("unsupported aggregate %q", a.Func)
}

func sum(vals []ir.IRValue, k ir.Kind) (ir.IRValue, error) {
	if k == ir.KindInt {
		var n int64
		for _, v := range vals {
			i, ok := v.(ir.IRInt)
			if !ok {
				return nil, fmt.Errorf("sum: %T in an integer sum", v)
			}
			n += int64(i)
		}
		return ir.IRInt(n), nil
	}
	total := decimal.Zero
	for _, v := range vals {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		total = total.Add(d)
	}
	return ir.NewIRDecimal(total), nil
}

func toDecimal(v ir.IRValue) (decimal.Decimal, error) {
	switch n := v.(type) {
	case ir.IRDecimal:
		return n.Decimal, nil
	case ir.IRInt:
		return decimal.NewFromInt(int64(n)), nil
	}
	return decimal.Zero, fmt.Errorf("%T is not numeric", v)
}

func (r *relation) skip(n int) *relation {
	n = min(n, len(r.rows))
	return &relation{rows: r.rows[n:], keys: r.keys[n:], desc: r.desc}
}

func (r *relation) take(n int) *relation {
	n = min(n, len(r.rows))
	return &relation{rows: r.rows[:n], keys: r.keys[:n], desc: r.desc}
}
