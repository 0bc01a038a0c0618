package store

import (
	"fmt"
	"strings"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/querysql"
)

// column is one stored column of a property, after embedded values have
// been inlined.
type column struct {
	name string
	sql  string
	path []string // property path from the row, through embedded values
	t    ir.TypeRef
}

// DDL returns the CREATE statements for every generated table of schema,
// in a deterministic order.
func DDL(schema *ir.Schema) ([]string, error) {
	var stmts []string
	for _, name := range schema.EntityNames() {
		spec := schema.Entities[name]
		cols, err := columns(schema, spec.Properties, "", nil, map[string]bool{})
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", name, err)
		}
		table := querysql.EntityTable(name)
		defs := []string{
			"row_id INTEGER PRIMARY KEY",
			"id INTEGER NOT NULL",
			"sys_from TEXT",
			"sys_to TEXT",
		}
		defs = append(defs, columnDefs(cols)...)
		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", querysql.Quote(table), strings.Join(defs, ", ")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (id, sys_from)", querysql.Quote("ix_"+table+"_id"), querysql.Quote(table)),
		)

		for _, p := range spec.Properties {
			if p.Type.Kind != ir.KindCollection {
				continue
			}
			elemCols, err := elementColumns(schema, p)
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", name, err)
			}
			child := querysql.CollectionTable(name, p.Name)
			defs := []string{
				"row_id INTEGER PRIMARY KEY",
				fmt.Sprintf("parent_row INTEGER NOT NULL REFERENCES %s (row_id)", querysql.Quote(table)),
			}
			defs = append(defs, columnDefs(elemCols)...)
			stmts = append(stmts,
				fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", querysql.Quote(child), strings.Join(defs, ", ")),
				fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (parent_row)", querysql.Quote("ix_"+child+"_parent"), querysql.Quote(child)),
			)
		}
	}
	return stmts, nil
}

func columnDefs(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = querysql.Quote(c.name) + " " + c.sql
	}
	return out
}

// columns lists the stored columns of props. Collections are skipped; they
// live in child tables.
func columns(schema *ir.Schema, props []ir.PropertySpec, prefix string, path []string, visiting map[string]bool) ([]column, error) {
	var out []column
	seen := map[string]string{}
	for _, p := range props {
		here := append(append([]string{}, path...), p.Name)
		switch p.Type.Kind {
		case ir.KindCollection:
			if len(path) > 0 {
				return nil, fmt.Errorf("%s: collections inside embedded values are not stored", strings.Join(here, "."))
			}
			continue
		case ir.KindEmbedded:
			emb, ok := schema.Embedded[p.Type.Embedded]
			if !ok {
				return nil, fmt.Errorf("%s: unknown embedded type %q", p.Name, p.Type.Embedded)
			}
			if visiting[emb.Name] {
				return nil, fmt.Errorf("%s: embedded type %s contains itself", p.Name, emb.Name)
			}
			visiting[emb.Name] = true
			sub, err := columns(schema, emb.Properties, querysql.EmbeddedPrefix(prefix, p.Name), here, visiting)
			delete(visiting, emb.Name)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		typ, err := sqlType(p.Type.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		name := prefix + querysql.Ident(p.Name)
		if other, ok := seen[name]; ok {
			return nil, fmt.Errorf("properties %s and %s map to the same column %q", other, p.Name, name)
		}
		seen[name] = p.Name
		out = append(out, column{name: name, sql: typ, path: here, t: p.Type})
	}
	return out, nil
}

// elementColumns lists the columns of a collection's child table.
func elementColumns(schema *ir.Schema, p ir.PropertySpec) ([]column, error) {
	if p.Type.Elem == nil {
		return nil, fmt.Errorf("%s: collection without element type", p.Name)
	}
	elem := *p.Type.Elem
	switch elem.Kind {
	case ir.KindEmbedded:
		emb, ok := schema.Embedded[elem.Embedded]
		if !ok {
			return nil, fmt.Errorf("%s: unknown embedded type %q", p.Name, elem.Embedded)
		}
		for _, sub := range emb.Properties {
			if sub.Type.Kind == ir.KindCollection {
				return nil, fmt.Errorf("%s.%s: collections inside embedded values are not stored", p.Name, sub.Name)
			}
		}
		return columns(schema, emb.Properties, "", nil, map[string]bool{emb.Name: true})
	case ir.KindCollection:
		return nil, fmt.Errorf("%s: nested collections are not stored", p.Name)
	}
	typ, err := sqlType(elem.Kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	return []column{{name: querysql.ValueColumn, sql: typ, t: elem}}, nil
}

func sqlType(k ir.Kind) (string, error) {
	switch k {
	case ir.KindString, ir.KindEnum, ir.KindDateTime:
		return "TEXT", nil
	case ir.KindInt, ir.KindDecimal, ir.KindBool, ir.KindLite:
		return "INTEGER", nil
	}
	return "", fmt.Errorf("kind %s has no column type", k)
}

// flatten returns the stored values of obj for cols. A missing or null
// embedded value stores nulls in all of its columns.
func flatten(obj ir.IRObject, cols []column) ([]any, error) {
	out := make([]any, len(cols))
	for i, c := range cols {
		v := lookup(obj, c.path)
		enc, err := querysql.Encode(v, c.t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(c.path, "."), err)
		}
		out[i] = enc
	}
	return out, nil
}

func lookup(obj ir.IRObject, path []string) ir.IRValue {
	var v ir.IRValue = obj
	for _, step := range path {
		o, ok := v.(ir.IRObject)
		if !ok {
			return ir.IRNull{}
		}
		v = o[step]
	}
	if v == nil {
		return ir.IRNull{}
	}
	return v
}

// unflatten rebuilds an object from stored values. An embedded value whose
// columns are all null reads back as null when its type is nullable.
func unflatten(schema *ir.Schema, props []ir.PropertySpec, cols []column, raw []any) (ir.IRObject, error) {
	obj := ir.IRObject{}
	for i, c := range cols {
		v, err := querysql.Decode(raw[i], c.t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(c.path, "."), err)
		}
		set(obj, c.path, v)
	}
	for _, p := range props {
		if p.Type.Kind == ir.KindEmbedded {
			obj[p.Name] = collapse(schema, p.Type, obj[p.Name])
		}
	}
	return obj, nil
}

func set(obj ir.IRObject, path []string, v ir.IRValue) {
	for _, step := range path[:len(path)-1] {
		next, ok := obj[step].(ir.IRObject)
		if !ok {
			next = ir.IRObject{}
			obj[step] = next
		}
		obj = next
	}
	obj[path[len(path)-1]] = v
}

func collapse(schema *ir.Schema, t ir.TypeRef, v ir.IRValue) ir.IRValue {
	o, ok := v.(ir.IRObject)
	if !ok {
		return ir.IRNull{}
	}
	allNull := true
	if emb, ok := schema.Embedded[t.Embedded]; ok {
		for _, p := range emb.Properties {
			if p.Type.Kind == ir.KindEmbedded {
				o[p.Name] = collapse(schema, p.Type, o[p.Name])
			}
			if !ir.IsNull(o[p.Name]) {
				allNull = false
			}
		}
	}
	if allNull && t.Nullable {
		return ir.IRNull{}
	}
	return o
}
