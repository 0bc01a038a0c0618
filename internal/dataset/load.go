package dataset

import (
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dynq/internal/ir"
)

// Reserved fixture keys; every other key is a property name.
const (
	keyID      = "id"
	keySysFrom = "sys_from"
	keySysTo   = "sys_to"
)

// LoadFile reads a YAML fixture file.
func LoadFile(schema *ir.Schema, path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	d, err := Load(schema, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Load reads YAML fixtures: a mapping from entity type to a list of
// versions.
//
//	Customer:
//	  - id: 1
//	    Name: Ada
//	Order:
//	  - id: 100
//	    sys_from: 2024-01-01
//	    Customer: 1            # or "Customer;1"
//	    Total: 150.25
//	    Lines: [{Product: Widget, Quantity: 2}]
//
// References may be bare ids even when polymorphic; the type is looked up
// among the loaded entities.
func Load(schema *ir.Schema, r io.Reader) (*Dataset, error) {
	var raw map[string][]map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	ids := map[int64]string{}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for i, item := range raw[name] {
			id, err := ir.CoerceScalar(ir.Scalar(ir.KindInt), item[keyID])
			if err != nil || ir.IsNull(id) {
				return nil, fmt.Errorf("%s[%d]: id: missing or not an integer", name, i)
			}
			ids[int64(id.(ir.IRInt))] = name
		}
	}

	d := New(schema)
	for _, name := range names {
		spec, ok := schema.Entities[name]
		if !ok {
			return nil, fmt.Errorf("unknown entity type %q", name)
		}
		for i, item := range raw[name] {
			e, err := decodeEntity(schema, spec, item, ids)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
			}
			if err := d.Add(e); err != nil {
				return nil, err
			}
		}
	}
	return d, nil
}

func decodeEntity(schema *ir.Schema, spec *ir.EntitySpec, item map[string]any, ids map[int64]string) (ir.IREntity, error) {
	id, _ := ir.CoerceScalar(ir.Scalar(ir.KindInt), item[keyID])
	e := ir.IREntity{Type: spec.Name, ID: int64(id.(ir.IRInt)), Fields: ir.IRObject{}}

	var err error
	if e.SysFrom, err = bound(item[keySysFrom]); err != nil {
		return e, fmt.Errorf("%s: %w", keySysFrom, err)
	}
	if e.SysTo, err = bound(item[keySysTo]); err != nil {
		return e, fmt.Errorf("%s: %w", keySysTo, err)
	}

	for key, rawValue := range item {
		if key == keyID || key == keySysFrom || key == keySysTo {
			continue
		}
		p, ok := spec.Property(key)
		if !ok {
			return e, fmt.Errorf("unknown property %q", key)
		}
		v, err := schema.Coerce(p.Type, qualifyIDs(schema, p.Type, rawValue, ids))
		if err != nil {
			return e, fmt.Errorf("%s: %w", key, err)
		}
		e.Fields[key] = v
	}
	return e, nil
}

func bound(raw any) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := ir.CoerceScalar(ir.Scalar(ir.KindDateTime), raw)
	if err != nil {
		return nil, err
	}
	t := v.(ir.IRTime).Time
	return &t, nil
}

// qualifyIDs rewrites bare ids of polymorphic references to "Type;id".
func qualifyIDs(schema *ir.Schema, t ir.TypeRef, raw any, ids map[int64]string) any {
	switch t.Kind {
	case ir.KindLite:
		if _, single := t.Implementations.Only(); single {
			return raw
		}
		id, err := ir.CoerceScalar(ir.Scalar(ir.KindInt), raw)
		if err != nil || ir.IsNull(id) {
			return raw
		}
		if typ, ok := ids[int64(id.(ir.IRInt))]; ok {
			return typ + ";" + fmt.Sprint(int64(id.(ir.IRInt)))
		}
	case ir.KindEmbedded:
		m, ok := raw.(map[string]any)
		emb := schema.Embedded[t.Embedded]
		if !ok || emb == nil {
			return raw
		}
		out := make(map[string]any, len(m))
		for k, v := range m {
			if p, ok := emb.Property(k); ok {
				out[k] = qualifyIDs(schema, p.Type, v, ids)
			} else {
				out[k] = v
			}
		}
		return out
	case ir.KindCollection:
		items, ok := raw.([]any)
		if !ok || t.Elem == nil {
			return raw
		}
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = qualifyIDs(schema, *t.Elem, v, ids)
		}
		return out
	}
	return raw
}
