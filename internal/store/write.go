package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/dynq/internal/dataset"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/querysql"
)

// Seed replaces the contents of every generated table with the versions of
// d, in one transaction. Entity rows are written in (id, version start)
// order, so row_id order agrees with the dataset's version order.
func (s *Store) Seed(ctx context.Context, d *dataset.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	defer tx.Rollback()

	if err := s.truncate(ctx, tx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	total := 0
	for _, name := range s.schema.EntityNames() {
		n, err := s.seedEntity(ctx, tx, name, d.Versions(name))
		if err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	slog.Debug("store seeded", "versions", total)
	return nil
}

// truncate deletes child rows before the versions they reference.
func (s *Store) truncate(ctx context.Context, tx *sql.Tx) error {
	var tables []string
	for _, name := range s.schema.EntityNames() {
		for _, p := range s.schema.Entities[name].Properties {
			if p.Type.Kind == ir.KindCollection {
				tables = append(tables, querysql.CollectionTable(name, p.Name))
			}
		}
	}
	for _, name := range s.schema.EntityNames() {
		tables = append(tables, querysql.EntityTable(name))
	}
	tables = append(tables, querysql.EntityIndexTable)
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+querysql.Quote(t)); err != nil {
			return fmt.Errorf("truncate %s: %w", t, err)
		}
	}
	return nil
}

func insertSQL(table string, names []string) string {
	quoted := make([]string, len(names))
	marks := make([]string, len(names))
	for i, n := range names {
		quoted[i] = querysql.Quote(n)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", querysql.Quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

func columnNames(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

type collectionWriter struct {
	prop ir.PropertySpec
	cols []column
	stmt *sql.Stmt
}

func (s *Store) seedEntity(ctx context.Context, tx *sql.Tx, name string, versions []ir.IREntity) (int, error) {
	spec := s.schema.Entities[name]
	cols, err := columns(s.schema, spec.Properties, "", nil, map[string]bool{})
	if err != nil {
		return 0, err
	}
	names := append([]string{"id", "sys_from", "sys_to"}, columnNames(cols)...)
	stmt, err := tx.PrepareContext(ctx, insertSQL(querysql.EntityTable(name), names))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	index, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO "+querysql.Quote(querysql.EntityIndexTable)+" (id, type) VALUES (?, ?)")
	if err != nil {
		return 0, err
	}
	defer index.Close()

	var colls []collectionWriter
	for _, p := range spec.Properties {
		if p.Type.Kind != ir.KindCollection {
			continue
		}
		elemCols, err := elementColumns(s.schema, p)
		if err != nil {
			return 0, err
		}
		child, err := tx.PrepareContext(ctx, insertSQL(querysql.CollectionTable(name, p.Name), append([]string{"parent_row"}, columnNames(elemCols)...)))
		if err != nil {
			return 0, err
		}
		defer child.Close()
		colls = append(colls, collectionWriter{prop: p, cols: elemCols, stmt: child})
	}

	for _, v := range versions {
		values, err := flatten(v.Fields, cols)
		if err != nil {
			return 0, fmt.Errorf("%s;%d: %w", name, v.ID, err)
		}
		args := append([]any{v.ID, bound(v.SysFrom), bound(v.SysTo)}, values...)
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("%s;%d: %w", name, v.ID, err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		if _, err := index.ExecContext(ctx, v.ID, name); err != nil {
			return 0, fmt.Errorf("%s;%d: %w", name, v.ID, err)
		}
		for _, c := range colls {
			if err := c.write(ctx, rowID, v.Fields[c.prop.Name]); err != nil {
				return 0, fmt.Errorf("%s;%d.%s: %w", name, v.ID, c.prop.Name, err)
			}
		}
	}
	return len(versions), nil
}

func (c collectionWriter) write(ctx context.Context, parent int64, v ir.IRValue) error {
	items, _ := v.(ir.IRArray)
	for i, item := range items {
		var values []any
		if c.prop.Type.Elem.Kind == ir.KindEmbedded {
			obj, _ := item.(ir.IRObject)
			flat, err := flatten(obj, c.cols)
			if err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
			values = flat
		} else {
			enc, err := querysql.Encode(item, *c.prop.Type.Elem)
			if err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
			values = []any{enc}
		}
		if _, err := c.stmt.ExecContext(ctx, append([]any{parent}, values...)...); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

func bound(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(ir.TimeLayout)
}
