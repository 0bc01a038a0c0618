package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dynq/internal/ir"
)

// Top-level sections of a schema definition.
const (
	sectionEntity   = "entity"
	sectionEmbedded = "embedded"
	sectionQuery    = "query"
)

// CompileSchema parses a CUE value holding entity, embedded and query
// definitions into an ir.Schema.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Customer: { toStr: "Name", properties: { Name: {type: "string"} } }`)
//	schema, err := CompileSchema(v)
//
// CompileSchema checks structure only; run Validate on the result before
// using it.
func CompileSchema(v cue.Value) (*ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := ir.NewSchema()

	err := eachField(v, sectionEntity, func(name string, ev cue.Value) error {
		spec, err := CompileEntity(ev)
		if err != nil {
			return err
		}
		spec.Name = name
		schema.Entities[name] = spec
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, sectionEmbedded, func(name string, ev cue.Value) error {
		props, err := parseProperties(ev, name)
		if err != nil {
			return err
		}
		schema.Embedded[name] = &ir.EmbeddedSpec{Name: name, Properties: props}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, sectionQuery, func(name string, qv cue.Value) error {
		spec, err := CompileQuery(qv)
		if err != nil {
			return err
		}
		spec.Name = name
		schema.Queries[name] = spec
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(schema.Entities) == 0 {
		return nil, &CompileError{Field: sectionEntity, Message: "at least one entity is required", Pos: v.Pos()}
	}
	return schema, nil
}

func eachField(v cue.Value, section string, fn func(string, cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(section))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// CompileEntity parses one entity definition. The name is taken from the
// value's path when it has one.
func CompileEntity(v cue.Value) (*ir.EntitySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	spec := &ir.EntitySpec{Name: lastLabel(v)}

	toStr := v.LookupPath(cue.ParsePath("toStr"))
	if !toStr.Exists() {
		return nil, &CompileError{Field: "toStr", Message: fmt.Sprintf("entity %s: toStr is required", spec.Name), Pos: v.Pos()}
	}
	s, err := toStr.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.ToStr = s

	if spec.Temporal, err = optionalBool(v, "temporal"); err != nil {
		return nil, err
	}
	if spec.Properties, err = parseProperties(v, spec.Name); err != nil {
		return nil, err
	}

	for i := range spec.Properties {
		p := &spec.Properties[i]
		if p.Type.Kind == ir.KindCollection && p.Type.Elem != nil {
			p.Type.Elem.Owner = &ir.OwnerRef{Entity: spec.Name, Property: p.Name}
		}
	}
	return spec, nil
}

// CompileQuery parses one query definition. Columns are either property
// names or {name, property, displayName} structs.
func CompileQuery(v cue.Value) (*ir.QuerySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	spec := &ir.QuerySpec{Name: lastLabel(v)}

	ev := v.LookupPath(cue.ParsePath("entity"))
	if !ev.Exists() {
		return nil, &CompileError{Field: "query.entity", Message: fmt.Sprintf("query %s: entity is required", spec.Name), Pos: v.Pos()}
	}
	entity, err := ev.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Entity = entity

	cv := v.LookupPath(cue.ParsePath("columns"))
	if !cv.Exists() {
		return spec, nil
	}
	iter, err := cv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		col, err := parseColumn(iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Columns = append(spec.Columns, col)
	}
	return spec, nil
}

func parseColumn(v cue.Value) (ir.QueryColumnSpec, error) {
	if s, err := v.String(); err == nil {
		return ir.QueryColumnSpec{Name: s, Property: s}, nil
	}
	var col ir.QueryColumnSpec
	var err error
	if col.Property, err = optionalString(v, "property"); err != nil {
		return col, err
	}
	if col.Name, err = optionalString(v, "name"); err != nil {
		return col, err
	}
	if col.DisplayName, err = optionalString(v, "displayName"); err != nil {
		return col, err
	}
	if col.Property == "" {
		return col, &CompileError{Field: "query.columns", Message: "column requires a property", Pos: v.Pos()}
	}
	if col.Name == "" {
		col.Name = col.Property
	}
	return col, nil
}

// parseProperties reads the properties struct in declaration order.
func parseProperties(v cue.Value, owner string) ([]ir.PropertySpec, error) {
	pv := v.LookupPath(cue.ParsePath("properties"))
	if !pv.Exists() {
		return nil, nil
	}
	iter, err := pv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var props []ir.PropertySpec
	for iter.Next() {
		name := iter.Label()
		t, err := parseType(iter.Value(), owner+"."+name)
		if err != nil {
			return nil, err
		}
		display, err := optionalString(iter.Value(), "displayName")
		if err != nil {
			return nil, err
		}
		props = append(props, ir.PropertySpec{Name: name, Type: t, DisplayName: display})
	}
	return props, nil
}

// parseType reads a type declaration: either a struct with a type field
// or a scalar shorthand string such as "decimal?".
func parseType(v cue.Value, field string) (ir.TypeRef, error) {
	if s, err := v.String(); err == nil {
		nullable := strings.HasSuffix(s, "?")
		kind := ir.Kind(strings.TrimSuffix(s, "?"))
		if !isScalarKind(kind) {
			return ir.TypeRef{}, &CompileError{Field: "type", Message: fmt.Sprintf("%s: shorthand %q must name a scalar type", field, s), Pos: v.Pos()}
		}
		return ir.TypeRef{Kind: kind, Nullable: nullable}, nil
	}

	kindName, err := optionalString(v, "type")
	if err != nil {
		return ir.TypeRef{}, err
	}
	if kindName == "" {
		return ir.TypeRef{}, &CompileError{Field: "type", Message: fmt.Sprintf("%s: type is required", field), Pos: v.Pos()}
	}
	t := ir.TypeRef{Kind: ir.Kind(kindName)}
	if t.Nullable, err = optionalBool(v, "nullable"); err != nil {
		return t, err
	}

	switch t.Kind {
	case ir.KindString, ir.KindInt, ir.KindDecimal, ir.KindBool, ir.KindDateTime:
	case ir.KindEnum:
		if t.Values, err = stringList(v, "values"); err != nil {
			return t, err
		}
	case ir.KindLite:
		if t.Implementations, err = parseImplementations(v); err != nil {
			return t, err
		}
	case ir.KindEmbedded:
		if t.Embedded, err = optionalString(v, "embedded"); err != nil {
			return t, err
		}
	case ir.KindCollection:
		ev := v.LookupPath(cue.ParsePath("element"))
		if !ev.Exists() {
			return t, &CompileError{Field: "element", Message: fmt.Sprintf("%s: collection requires an element type", field), Pos: v.Pos()}
		}
		elem, err := parseType(ev, field+"[]")
		if err != nil {
			return t, err
		}
		t.Elem = &elem
		t.Nullable = false
	default:
		return t, &CompileError{Field: "type", Message: fmt.Sprintf("%s: unknown type %q", field, kindName), Pos: v.Pos()}
	}
	return t, nil
}

func parseImplementations(v cue.Value) (*ir.Implementations, error) {
	byAll, err := optionalBool(v, "implementedByAll")
	if err != nil {
		return nil, err
	}
	if byAll {
		return &ir.Implementations{ByAll: true}, nil
	}
	if entity, err := optionalString(v, "entity"); err != nil {
		return nil, err
	} else if entity != "" {
		return ir.ImplementedBy(entity), nil
	}
	types, err := stringList(v, "implementedBy")
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, nil
	}
	return ir.ImplementedBy(types...), nil
}

func isScalarKind(k ir.Kind) bool {
	switch k {
	case ir.KindString, ir.KindInt, ir.KindDecimal, ir.KindBool, ir.KindDateTime:
		return true
	}
	return false
}

func lastLabel(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return sels[len(sels)-1].String()
}

func optionalString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, path string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value, path string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return nil, nil
	}
	iter, err := f.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError is a structural problem in a schema definition, with the
// CUE source position when one is known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// first error with a position wins
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
