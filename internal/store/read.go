package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/querysql"
)

// Query runs a compiled list query and decodes each row by q.Slots.
// Returns an empty slice (not nil) when no row matches.
func (s *Store) Query(ctx context.Context, q querysql.Query) ([]ir.IRArray, error) {
	slog.Debug("sql query", "sql", q.SQL, "params", len(q.Params))
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := []ir.IRArray{}
	raw := make([]any, len(q.Slots))
	ptrs := make([]any, len(q.Slots))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		tuple := make(ir.IRArray, len(q.Slots))
		for i, t := range q.Slots {
			v, err := querysql.Decode(raw[i], t)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", len(out), i, err)
			}
			tuple[i] = v
		}
		out = append(out, tuple)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Count runs a compiled count query.
func (s *Store) Count(ctx context.Context, q querysql.Query) (int, error) {
	slog.Debug("sql count", "sql", q.SQL, "params", len(q.Params))
	var n int
	if err := s.db.QueryRowContext(ctx, q.SQL, q.Params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// CompleteLites fills the type and display text of every lite in values,
// descending into arrays and objects. Lites of unknown ids are left as is.
func (s *Store) CompleteLites(ctx context.Context, values []ir.IRValue) error {
	var ids []int64
	for _, v := range values {
		collectLiteIDs(v, &ids)
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	types, err := s.entityTypes(ctx, ids)
	if err != nil {
		return err
	}
	byType := map[string][]int64{}
	for _, id := range ids {
		if t, ok := types[id]; ok {
			byType[t] = append(byType[t], id)
		}
	}
	texts := map[int64]string{}
	for typ, group := range byType {
		if err := s.toStrings(ctx, typ, group, texts); err != nil {
			return err
		}
	}
	for i, v := range values {
		values[i] = completeLite(v, types, texts)
	}
	return nil
}

func collectLiteIDs(v ir.IRValue, ids *[]int64) {
	switch val := v.(type) {
	case ir.IRLite:
		*ids = append(*ids, val.ID)
	case ir.IRArray:
		for _, item := range val {
			collectLiteIDs(item, ids)
		}
	case ir.IRObject:
		for _, item := range val {
			collectLiteIDs(item, ids)
		}
	}
}

func completeLite(v ir.IRValue, types map[int64]string, texts map[int64]string) ir.IRValue {
	switch val := v.(type) {
	case ir.IRLite:
		if t, ok := types[val.ID]; ok {
			val.Type = t
			val.ToStr = texts[val.ID]
		}
		return val
	case ir.IRArray:
		for i, item := range val {
			val[i] = completeLite(item, types, texts)
		}
		return val
	case ir.IRObject:
		for k, item := range val {
			val[k] = completeLite(item, types, texts)
		}
		return val
	}
	return v
}

// maxParams keeps IN lists well below SQLite's bound-variable limit.
const maxParams = 500

func chunks(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > maxParams {
		out = append(out, ids[:maxParams])
		ids = ids[maxParams:]
	}
	return append(out, ids)
}

func inList(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(marks, ", ") + ")", args
}

func (s *Store) entityTypes(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for _, chunk := range chunks(ids) {
		list, args := inList(chunk)
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, type FROM "+querysql.Quote(querysql.EntityIndexTable)+" WHERE id IN "+list, args...)
		if err != nil {
			return nil, fmt.Errorf("entity types: %w", err)
		}
		for rows.Next() {
			var id int64
			var typ string
			if err := rows.Scan(&id, &typ); err != nil {
				rows.Close()
				return nil, fmt.Errorf("entity types: %w", err)
			}
			out[id] = typ
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("entity types: %w", err)
		}
	}
	return out, nil
}

// toStrings reads display text from the current version of each entity, or
// its most recent one when it has been closed.
func (s *Store) toStrings(ctx context.Context, typ string, ids []int64, into map[int64]string) error {
	spec, ok := s.schema.Entities[typ]
	if !ok || spec.ToStr == "" {
		return nil
	}
	p, ok := spec.Property(spec.ToStr)
	if !ok {
		return fmt.Errorf("%s: toStr property %q not found", typ, spec.ToStr)
	}
	for _, chunk := range chunks(ids) {
		list, args := inList(chunk)
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
			"SELECT id, %s FROM %s WHERE id IN %s ORDER BY id ASC, sys_to IS NULL DESC, sys_from DESC",
			querysql.Quote(querysql.Ident(p.Name)), querysql.Quote(querysql.EntityTable(typ)), list), args...)
		if err != nil {
			return fmt.Errorf("%s display text: %w", typ, err)
		}
		for rows.Next() {
			var id int64
			var raw any
			if err := rows.Scan(&id, &raw); err != nil {
				rows.Close()
				return fmt.Errorf("%s display text: %w", typ, err)
			}
			if _, done := into[id]; done {
				continue
			}
			v, err := querysql.Decode(raw, p.Type)
			if err != nil {
				rows.Close()
				return fmt.Errorf("%s display text: %w", typ, err)
			}
			into[id] = ir.Display(v)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("%s display text: %w", typ, err)
		}
	}
	return nil
}

// LoadEntity reads the version of lite a navigation under scope lands on:
// the current version, or the earliest version the scope accepts. ok is
// false when the entity does not exist or no version qualifies.
func (s *Store) LoadEntity(ctx context.Context, lite ir.IRLite, scope *ir.SystemTime) (ir.IREntity, bool, error) {
	typ := lite.Type
	if typ == "" {
		types, err := s.entityTypes(ctx, []int64{lite.ID})
		if err != nil {
			return ir.IREntity{}, false, err
		}
		if typ = types[lite.ID]; typ == "" {
			return ir.IREntity{}, false, nil
		}
	}
	spec, ok := s.schema.Entities[typ]
	if !ok {
		return ir.IREntity{}, false, fmt.Errorf("unknown entity type %q", typ)
	}
	cols, err := columns(s.schema, spec.Properties, "", nil, map[string]bool{})
	if err != nil {
		return ir.IREntity{}, false, err
	}
	selected := append([]string{"row_id", "sys_from", "sys_to"}, columnNames(cols)...)
	for i, c := range selected {
		selected[i] = querysql.Quote(c)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = ? ORDER BY sys_from ASC",
		strings.Join(selected, ", "), querysql.Quote(querysql.EntityTable(typ))), lite.ID)
	if err != nil {
		return ir.IREntity{}, false, fmt.Errorf("load %s: %w", lite.Key(), err)
	}
	defer rows.Close()

	raw := make([]any, len(selected))
	ptrs := make([]any, len(selected))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return ir.IREntity{}, false, fmt.Errorf("load %s: %w", lite.Key(), err)
		}
		from, err := scanBound(raw[1])
		if err != nil {
			return ir.IREntity{}, false, err
		}
		to, err := scanBound(raw[2])
		if err != nil {
			return ir.IREntity{}, false, err
		}
		if spec.Temporal && !scope.AcceptsNavigation(from, to) {
			continue
		}
		rowID, _ := raw[0].(int64)
		fields, err := unflatten(s.schema, spec.Properties, cols, raw[3:])
		if err != nil {
			return ir.IREntity{}, false, fmt.Errorf("load %s: %w", lite.Key(), err)
		}
		rows.Close()
		if err := s.loadCollections(ctx, spec, rowID, fields); err != nil {
			return ir.IREntity{}, false, fmt.Errorf("load %s: %w", lite.Key(), err)
		}
		if err := s.completeFields(ctx, fields); err != nil {
			return ir.IREntity{}, false, err
		}
		return ir.IREntity{Type: typ, ID: lite.ID, Fields: fields, SysFrom: from, SysTo: to}, true, nil
	}
	if err := rows.Err(); err != nil {
		return ir.IREntity{}, false, fmt.Errorf("load %s: %w", lite.Key(), err)
	}
	return ir.IREntity{}, false, nil
}

func (s *Store) loadCollections(ctx context.Context, spec *ir.EntitySpec, rowID int64, fields ir.IRObject) error {
	for _, p := range spec.Properties {
		if p.Type.Kind != ir.KindCollection {
			continue
		}
		elemCols, err := elementColumns(s.schema, p)
		if err != nil {
			return err
		}
		items, err := s.readElements(ctx, spec.Name, p, elemCols, rowID)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		fields[p.Name] = items
	}
	return nil
}

func (s *Store) readElements(ctx context.Context, entity string, p ir.PropertySpec, cols []column, rowID int64) (ir.IRArray, error) {
	names := columnNames(cols)
	for i, n := range names {
		names[i] = querysql.Quote(n)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE parent_row = ? ORDER BY row_id ASC",
		strings.Join(names, ", "), querysql.Quote(querysql.CollectionTable(entity, p.Name))), rowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := ir.IRArray{}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	elem := *p.Type.Elem
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		if elem.Kind != ir.KindEmbedded {
			v, err := querysql.Decode(raw[0], elem)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
			continue
		}
		emb := s.schema.Embedded[elem.Embedded]
		obj, err := unflatten(s.schema, emb.Properties, cols, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	return items, rows.Err()
}

// completeFields fills polymorphic lite types and display text inside the
// fields of a loaded entity.
func (s *Store) completeFields(ctx context.Context, fields ir.IRObject) error {
	keys := fields.SortedKeys()
	values := make([]ir.IRValue, len(keys))
	for i, k := range keys {
		values[i] = fields[k]
	}
	if err := s.CompleteLites(ctx, values); err != nil {
		return err
	}
	for i, k := range keys {
		fields[k] = values[i]
	}
	return nil
}

func scanBound(raw any) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	str, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("version bound: got %T", raw)
	}
	t, err := time.Parse(ir.TimeLayout, str)
	if err != nil {
		return nil, fmt.Errorf("version bound: %w", err)
	}
	return &t, nil
}

