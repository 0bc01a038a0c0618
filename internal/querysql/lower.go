package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
)

// scope says what Row, Slot and Param mean at the current level.
type scope struct {
	row    *rowRef
	slots  []string
	types  []ir.TypeRef
	params map[string]lowered
}

func (s *scope) withParam(name string, v lowered) *scope {
	params := make(map[string]lowered, len(s.params)+1)
	for k, p := range s.params {
		params[k] = p
	}
	params[name] = v
	return &scope{row: s.row, slots: s.slots, types: s.types, params: params}
}

// rowRef addresses one stored row: an entity version, or an embedded value
// inlined into an entity or collection row. Either alias names the row in
// the current FROM, or rowID is an expression yielding its row_id.
type rowRef struct {
	table  string
	entity string // set for entity rows
	alias  string
	rowID  string
	prefix string // embedded column prefix
}

func (r rowRef) rowIDExpr() string {
	if r.alias != "" {
		return r.alias + ".row_id"
	}
	return r.rowID
}

func (r rowRef) column(name string) string {
	col := Quote(r.prefix + name)
	if r.alias != "" {
		return r.alias + "." + col
	}
	return fmt.Sprintf("(SELECT %s FROM %s WHERE row_id = %s)", col, Quote(r.table), r.rowID)
}

// collRef addresses the elements of one collection.
type collRef struct {
	table  string
	parent string // row_id of the owning entity version
}

// lowered is exactly one of a scalar SQL expression, a row or a collection.
type lowered struct {
	sql  string
	row  *rowRef
	coll *collRef
}

func (c *compilation) scalars(es []expr.Expr, s *scope) ([]string, error) {
	out := make([]string, len(es))
	for i, e := range es {
		sql, err := c.scalar(e, s)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		out[i] = sql
	}
	return out, nil
}

// scalar lowers e to a single SQL value. Entity rows become their id.
func (c *compilation) scalar(e expr.Expr, s *scope) (string, error) {
	v, err := c.lower(e, s)
	if err != nil {
		return "", err
	}
	switch {
	case v.sql != "":
		return v.sql, nil
	case v.row != nil && v.row.entity != "":
		return v.row.column("id"), nil
	case v.row != nil:
		return "", fmt.Errorf("embedded value %s has no single-column form", expr.Format(e))
	}
	return "", fmt.Errorf("collection %s has no single-column form", expr.Format(e))
}

// deref turns a lowered reference into the row it points to.
func (c *compilation) deref(v lowered, t ir.TypeRef) (rowRef, error) {
	if v.row != nil {
		return *v.row, nil
	}
	if v.sql != "" && t.Kind == ir.KindLite {
		entity, ok := t.Implementations.Only()
		if !ok {
			return rowRef{}, fmt.Errorf("cannot navigate %s without narrowing it to one type", t)
		}
		return rowRef{table: EntityTable(entity), entity: entity, rowID: c.navigate(entity, v.sql)}, nil
	}
	return rowRef{}, fmt.Errorf("cannot read members of %s", t)
}

func (c *compilation) lower(e expr.Expr, s *scope) (lowered, error) {
	switch n := e.(type) {
	case expr.Row:
		if s.row == nil {
			return lowered{}, fmt.Errorf("row used after a projection")
		}
		return lowered{row: s.row}, nil

	case expr.Slot:
		if n.Index < 0 || n.Index >= len(s.slots) {
			return lowered{}, fmt.Errorf("slot %d out of range (tuple has %d)", n.Index, len(s.slots))
		}
		t := s.types[n.Index]
		if t.Kind == ir.KindEmbedded {
			if t.Owner == nil {
				return lowered{}, fmt.Errorf("slot %d: embedded element without an owning collection", n.Index)
			}
			table := CollectionTable(t.Owner.Entity, t.Owner.Property)
			return lowered{row: &rowRef{table: table, rowID: s.slots[n.Index]}}, nil
		}
		return lowered{sql: s.slots[n.Index]}, nil

	case expr.Param:
		v, ok := s.params[n.Name]
		if !ok {
			return lowered{}, fmt.Errorf("unbound parameter %q", n.Name)
		}
		return v, nil

	case expr.Const:
		if ir.IsNull(n.Value) {
			return lowered{sql: "NULL"}, nil
		}
		param, err := Encode(n.Value, n.T)
		if err != nil {
			return lowered{}, err
		}
		return lowered{sql: c.bind(param)}, nil

	case expr.Member:
		target, err := c.lower(n.Target, s)
		if err != nil {
			return lowered{}, err
		}
		ref, err := c.deref(target, n.Target.Type())
		if err != nil {
			return lowered{}, fmt.Errorf("member %s: %w", n.Property, err)
		}
		switch n.T.Kind {
		case ir.KindEmbedded:
			emb := ref
			emb.entity = ""
			emb.prefix = EmbeddedPrefix(ref.prefix, n.Property)
			return lowered{row: &emb}, nil
		case ir.KindCollection:
			if ref.entity == "" {
				return lowered{}, fmt.Errorf("member %s: collections belong to entities", n.Property)
			}
			return lowered{coll: &collRef{table: CollectionTable(ref.entity, n.Property), parent: ref.rowIDExpr()}}, nil
		}
		return lowered{sql: ref.column(Ident(n.Property))}, nil

	case expr.ID:
		target, err := c.lower(n.Target, s)
		if err != nil {
			return lowered{}, err
		}
		if target.row != nil && target.row.entity != "" {
			return lowered{sql: target.row.column("id")}, nil
		}
		if target.sql != "" {
			return target, nil
		}
		return lowered{}, fmt.Errorf("id of %s", n.Target.Type())

	case expr.AsType:
		target, err := c.lower(n.Target, s)
		if err != nil {
			return lowered{}, err
		}
		if target.row != nil {
			if target.row.entity == n.Entity {
				return lowered{sql: target.row.column("id")}, nil
			}
			return lowered{sql: "NULL"}, nil
		}
		a := c.alias("a")
		return lowered{sql: fmt.Sprintf("(CASE WHEN EXISTS (SELECT 1 FROM %s %s WHERE %s.id = %s) THEN %s END)",
			Quote(EntityTable(n.Entity)), a, a, target.sql, target.sql)}, nil

	case expr.DatePart:
		x, err := c.scalar(n.Target, s)
		if err != nil {
			return lowered{}, err
		}
		sql, err := datePart(x, n.Part)
		return lowered{sql: sql}, err

	case expr.Round:
		x, err := c.scalar(n.Target, s)
		if err != nil {
			return lowered{}, err
		}
		if n.Target.Type().Kind != ir.KindDecimal {
			return lowered{sql: x}, nil
		}
		return lowered{sql: round(x, n.Mode)}, nil

	case expr.Count:
		coll, err := c.collection(n.Collection, s)
		if err != nil {
			return lowered{}, err
		}
		a := c.alias("q")
		return lowered{sql: fmt.Sprintf("(SELECT COUNT(*) FROM %s %s WHERE %s.parent_row = %s)",
			Quote(coll.table), a, a, coll.parent)}, nil

	case expr.Quantifier:
		return c.quantifier(n, s)

	case expr.Compare:
		return c.compare(n, s)

	case expr.In:
		if len(n.Values) == 0 {
			return lowered{sql: "0"}, nil
		}
		x, err := c.scalar(n.Target, s)
		if err != nil {
			return lowered{}, err
		}
		t := n.Target.Type()
		items := make([]string, len(n.Values))
		for i, v := range n.Values {
			if ir.IsNull(v) {
				items[i] = "NULL"
				continue
			}
			param, err := Encode(v, t)
			if err != nil {
				return lowered{}, fmt.Errorf("in: %w", err)
			}
			items[i] = c.bind(param)
		}
		return lowered{sql: "(" + x + " IN (" + strings.Join(items, ", ") + "))"}, nil

	case expr.IsNull:
		x, err := c.scalar(n.Target, s)
		if err != nil {
			return lowered{}, err
		}
		return lowered{sql: "(" + x + " IS NULL)"}, nil

	case expr.Not:
		x, err := c.scalar(n.Inner, s)
		if err != nil {
			return lowered{}, err
		}
		return lowered{sql: "(NOT " + x + ")"}, nil

	case expr.And:
		return c.logic(n.Terms, " AND ", "1", s)

	case expr.Or:
		return c.logic(n.Terms, " OR ", "0", s)

	case expr.Convert:
		x, err := c.scalar(n.Target, s)
		if err != nil {
			return lowered{}, err
		}
		from := n.Target.Type()
		if n.T.Kind == ir.KindDecimal && from.Kind == ir.KindInt {
			x = "(" + x + " * 10000)"
		}
		if from.Nullable && !n.T.Nullable {
			zero, err := zeroSQL(n.T.Kind)
			if err != nil {
				return lowered{}, err
			}
			x = "COALESCE(" + x + ", " + zero + ")"
		}
		return lowered{sql: x}, nil
	}
	return lowered{}, fmt.Errorf("unsupported expression %T", e)
}

func (c *compilation) collection(e expr.Expr, s *scope) (*collRef, error) {
	v, err := c.lower(e, s)
	if err != nil {
		return nil, err
	}
	if v.coll == nil {
		return nil, fmt.Errorf("%s is not a stored collection", expr.Format(e))
	}
	return v.coll, nil
}

func (c *compilation) quantifier(n expr.Quantifier, s *scope) (lowered, error) {
	coll, err := c.collection(n.Collection, s)
	if err != nil {
		return lowered{}, err
	}
	a := c.alias("q")
	var elem lowered
	if n.Param.T.Kind == ir.KindEmbedded {
		elem = lowered{row: &rowRef{table: coll.table, alias: a}}
	} else {
		elem = lowered{sql: a + "." + Quote(ValueColumn)}
	}
	pred, err := c.scalar(n.Pred, s.withParam(n.Param.Name, elem))
	if err != nil {
		return lowered{}, err
	}
	from := fmt.Sprintf("%s %s WHERE %s.parent_row = %s", Quote(coll.table), a, a, coll.parent)
	if n.All {
		return lowered{sql: fmt.Sprintf("(NOT EXISTS (SELECT 1 FROM %s AND NOT COALESCE(%s, 0)))", from, pred)}, nil
	}
	return lowered{sql: fmt.Sprintf("(EXISTS (SELECT 1 FROM %s AND %s))", from, pred)}, nil
}

func (c *compilation) compare(n expr.Compare, s *scope) (lowered, error) {
	l, err := c.scalar(n.Left, s)
	if err != nil {
		return lowered{}, err
	}
	r, err := c.scalar(n.Right, s)
	if err != nil {
		return lowered{}, err
	}
	lk, rk := n.Left.Type().Kind, n.Right.Type().Kind
	if lk == ir.KindDecimal && rk == ir.KindInt {
		r = "(" + r + " * 10000)"
	}
	if lk == ir.KindInt && rk == ir.KindDecimal {
		l = "(" + l + " * 10000)"
	}
	switch n.Op {
	case expr.OpEq, expr.OpNe, expr.OpGt, expr.OpGe, expr.OpLt, expr.OpLe:
		return lowered{sql: "(" + l + " " + string(n.Op) + " " + r + ")"}, nil
	case expr.OpContains:
		return lowered{sql: "(instr(" + l + ", " + r + ") > 0)"}, nil
	case expr.OpStartsWith:
		return lowered{sql: "(substr(" + l + ", 1, length(" + r + ")) = " + r + ")"}, nil
	case expr.OpEndsWith:
		return lowered{sql: fmt.Sprintf("(CASE WHEN %s IS NULL OR %s IS NULL THEN NULL WHEN length(%s) = 0 THEN 1 ELSE substr(%s, -length(%s)) = %s END)",
			l, r, r, l, r, r)}, nil
	}
	return lowered{}, fmt.Errorf("unknown comparison %q", n.Op)
}

func (c *compilation) logic(terms []expr.Expr, sep, empty string, s *scope) (lowered, error) {
	if len(terms) == 0 {
		return lowered{sql: empty}, nil
	}
	parts, err := c.scalars(terms, s)
	if err != nil {
		return lowered{}, err
	}
	return lowered{sql: "(" + strings.Join(parts, sep) + ")"}, nil
}

func datePart(x string, part expr.DatePartKind) (string, error) {
	sub := func(start, n int) string {
		return fmt.Sprintf("CAST(substr(%s, %d, %d) AS INTEGER)", x, start, n)
	}
	switch part {
	case expr.PartYear:
		return sub(1, 4), nil
	case expr.PartMonth:
		return sub(6, 2), nil
	case expr.PartDay:
		return sub(9, 2), nil
	case expr.PartHour:
		return sub(12, 2), nil
	case expr.PartMinute:
		return sub(15, 2), nil
	case expr.PartSecond:
		return sub(18, 2), nil
	case expr.PartMillisecond:
		return sub(21, 3), nil
	case expr.PartDayOfYear:
		return "CAST(strftime('%j', " + x + ") AS INTEGER)", nil
	case expr.PartDayOfWeek:
		return "CAST(strftime('%w', " + x + ") AS INTEGER)", nil
	case expr.PartMonthStart:
		return "(substr(" + x + ", 1, 7) || '-01 00:00:00.000')", nil
	case expr.PartDate:
		return "(substr(" + x + ", 1, 10) || ' 00:00:00.000')", nil
	}
	return "", fmt.Errorf("unknown date part %q", part)
}

// round applies ceil/floor to a scaled decimal with integer arithmetic;
// SQLite integer division truncates toward zero.
func round(x string, mode expr.RoundMode) string {
	if mode == expr.RoundCeil {
		return fmt.Sprintf("(CASE WHEN %s >= 0 THEN ((%s + 9999) / 10000) * 10000 ELSE (%s / 10000) * 10000 END)", x, x, x)
	}
	return fmt.Sprintf("(CASE WHEN %s >= 0 THEN (%s / 10000) * 10000 ELSE ((%s - 9999) / 10000) * 10000 END)", x, x, x)
}

func zeroSQL(k ir.Kind) (string, error) {
	switch k {
	case ir.KindInt, ir.KindDecimal, ir.KindBool:
		return "0", nil
	case ir.KindString:
		return "''", nil
	}
	return "", fmt.Errorf("no zero value for %s", k)
}
