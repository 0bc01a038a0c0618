package dquery

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/token"
)

// NoIndex is the index a compressed column stores for null.
const NoIndex = -1

// ResultColumn holds the values of one requested column. A compressed
// column stores each distinct value once in Unique and one index per row
// in Indexes; otherwise Values holds one value per row.
type ResultColumn struct {
	Token       token.Token
	DisplayName string
	Values      []ir.IRValue
	Unique      []ir.IRValue
	Indexes     []int
}

// Compressed reports whether the column uses the unique-value form.
func (c *ResultColumn) Compressed() bool { return c.Indexes != nil }

// Value returns the value of row i.
func (c *ResultColumn) Value(i int) ir.IRValue {
	if !c.Compressed() {
		return c.Values[i]
	}
	if c.Indexes[i] == NoIndex {
		return ir.IRNull{}
	}
	return c.Unique[c.Indexes[i]]
}

// compress builds the unique-value form of values. Distinct values keep
// their first-seen order.
func compress(values []ir.IRValue) (unique []ir.IRValue, indexes []int) {
	seen := map[string]int{}
	unique = []ir.IRValue{}
	indexes = make([]int, len(values))
	for i, v := range values {
		if ir.IsNull(v) {
			indexes[i] = NoIndex
			continue
		}
		k := ir.CanonicalKey(v)
		idx, ok := seen[k]
		if !ok {
			idx = len(unique)
			seen[k] = idx
			unique = append(unique, v)
		}
		indexes[i] = idx
	}
	return unique, indexes
}

// ResultTable is the answer to a QueryRequest. It is built once and not
// modified afterwards.
type ResultTable struct {
	Columns []*ResultColumn
	// Entities holds the row entities; nil for grouped results.
	Entities      []ir.IRValue
	TotalElements *int
	Pagination    Pagination
	rows          int
}

// Len returns the number of rows.
func (t *ResultTable) Len() int { return t.rows }

// Row returns the column values of row i.
func (t *ResultTable) Row(i int) []ir.IRValue {
	out := make([]ir.IRValue, len(t.Columns))
	for j, c := range t.Columns {
		out[j] = c.Value(i)
	}
	return out
}

// Column returns the column of the token with fullKey.
func (t *ResultTable) Column(fullKey string) (*ResultColumn, bool) {
	for _, c := range t.Columns {
		if c.Token.FullKey() == fullKey {
			return c, true
		}
	}
	return nil, false
}

// ToResultTable evaluates the request's columns over e. Lite columns are
// compressed, and so is every key column of a multi-key grouping.
func ToResultTable(e *DEnumerableCount, req *QueryRequest) (*ResultTable, error) {
	multiKey := req.IsMultiKeyGrouping()
	t := &ResultTable{TotalElements: e.Total, Pagination: req.Pagination, rows: e.Len()}
	for _, c := range req.Columns {
		values, err := e.Values(c.Token)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Token.FullKey(), err)
		}
		col := &ResultColumn{Token: c.Token, DisplayName: c.Name()}
		if c.Token.Type().IsLite() || (multiKey && !token.IsAggregate(c.Token)) {
			col.Unique, col.Indexes = compress(values)
		} else {
			col.Values = values
		}
		t.Columns = append(t.Columns, col)
	}
	if !req.GroupResults {
		if ent, ok := e.ctx.EntityToken(); ok {
			values, err := e.Values(ent)
			if err != nil {
				return nil, err
			}
			t.Entities = values
		}
	}
	return t, nil
}

type paginationJSON struct {
	Mode            PaginationMode `json:"mode"`
	ElementsPerPage *int           `json:"elementsPerPage,omitempty"`
	CurrentPage     *int           `json:"currentPage,omitempty"`
}

type rowJSON struct {
	Entity  json.RawMessage   `json:"entity,omitempty"`
	Columns []json.RawMessage `json:"columns"`
}

type tableJSON struct {
	Columns       []string                     `json:"columns"`
	UniqueValues  map[string][]json.RawMessage `json:"uniqueValues,omitempty"`
	Pagination    *paginationJSON              `json:"pagination,omitempty"`
	TotalElements *int                         `json:"totalElements"`
	Rows          []rowJSON                    `json:"rows"`
}

// MarshalJSON writes the wire form: compressed columns appear once under
// uniqueValues and as indexes (null for null) in the rows.
func (t *ResultTable) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		Columns:       make([]string, len(t.Columns)),
		TotalElements: t.TotalElements,
		Rows:          make([]rowJSON, t.rows),
	}
	switch p := t.Pagination.(type) {
	case All:
		out.Pagination = &paginationJSON{Mode: ModeAll}
	case Firsts:
		out.Pagination = &paginationJSON{Mode: ModeFirsts, ElementsPerPage: intPtr(p.N)}
	case Paginate:
		out.Pagination = &paginationJSON{Mode: ModePaginate, ElementsPerPage: intPtr(p.PageSize), CurrentPage: intPtr(p.Page)}
	}

	for j, c := range t.Columns {
		out.Columns[j] = c.Token.FullKey()
		if !c.Compressed() {
			continue
		}
		if out.UniqueValues == nil {
			out.UniqueValues = map[string][]json.RawMessage{}
		}
		unique := make([]json.RawMessage, len(c.Unique))
		for k, v := range c.Unique {
			raw, err := ir.MarshalIRValue(v)
			if err != nil {
				return nil, fmt.Errorf("unique value of %s: %w", c.Token.FullKey(), err)
			}
			unique[k] = raw
		}
		out.UniqueValues[c.Token.FullKey()] = unique
	}

	for i := range out.Rows {
		row := rowJSON{Columns: make([]json.RawMessage, len(t.Columns))}
		if t.Entities != nil {
			raw, err := ir.MarshalIRValue(t.Entities[i])
			if err != nil {
				return nil, err
			}
			row.Entity = raw
		}
		for j, c := range t.Columns {
			var raw []byte
			var err error
			switch {
			case c.Compressed() && c.Indexes[i] == NoIndex:
				raw = []byte("null")
			case c.Compressed():
				raw = []byte(fmt.Sprint(c.Indexes[i]))
			default:
				raw, err = ir.MarshalIRValue(c.Values[i])
			}
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, c.Token.FullKey(), err)
			}
			row.Columns[j] = raw
		}
		out.Rows[i] = row
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
