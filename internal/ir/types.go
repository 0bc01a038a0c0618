package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the declared kind of a property, column or token type.
type Kind string

const (
	KindString     Kind = "string"
	KindInt        Kind = "int"
	KindDecimal    Kind = "decimal"
	KindBool       Kind = "bool"
	KindDateTime   Kind = "datetime"
	KindEnum       Kind = "enum"
	KindLite       Kind = "lite"
	KindEmbedded   Kind = "embedded"
	KindCollection Kind = "collection"
)

// Implementations lists the concrete entity types a reference may point to.
// ByAll means "any entity", which is never enumerated.
type Implementations struct {
	ByAll bool     `json:"by_all,omitempty"`
	Types []string `json:"types,omitempty"`
}

// ImplementedBy builds Implementations for a fixed list of types.
func ImplementedBy(types ...string) *Implementations {
	return &Implementations{Types: types}
}

// Only returns the single implementation, if there is exactly one.
func (i *Implementations) Only() (string, bool) {
	if i == nil || i.ByAll || len(i.Types) != 1 {
		return "", false
	}
	return i.Types[0], true
}

// Contains reports whether typ is a declared implementation.
func (i *Implementations) Contains(typ string) bool {
	if i == nil {
		return false
	}
	return i.ByAll || slices.Contains(i.Types, typ)
}

// OwnerRef names the collection a collection element belongs to.
type OwnerRef struct {
	Entity   string `json:"entity"`
	Property string `json:"property"`
}

// TypeRef is a declared type: kind plus the details that kind needs.
type TypeRef struct {
	Kind            Kind             `json:"kind"`
	Nullable        bool             `json:"nullable,omitempty"`
	Implementations *Implementations `json:"implementations,omitempty"` // lite
	Embedded        string           `json:"embedded,omitempty"`        // embedded
	Elem            *TypeRef         `json:"elem,omitempty"`            // collection
	Values          []string         `json:"values,omitempty"`          // enum
	Owner           *OwnerRef        `json:"owner,omitempty"`           // collection element
}

// Lite returns a reference type to a single entity.
func Lite(entity string) TypeRef {
	return TypeRef{Kind: KindLite, Implementations: ImplementedBy(entity)}
}

// Scalar returns a non-nullable scalar type.
func Scalar(k Kind) TypeRef {
	return TypeRef{Kind: k}
}

// Nullify returns a nullable copy. Collections are never nullable.
func (t TypeRef) Nullify() TypeRef {
	if t.Kind != KindCollection {
		t.Nullable = true
	}
	return t
}

// UnNullify returns a non-nullable copy.
func (t TypeRef) UnNullify() TypeRef {
	t.Nullable = false
	return t
}

// IsLite reports whether the type is an entity reference.
func (t TypeRef) IsLite() bool {
	return t.Kind == KindLite
}

// IsNumeric reports int or decimal.
func (t TypeRef) IsNumeric() bool {
	return t.Kind == KindInt || t.Kind == KindDecimal
}

// SameShape compares types ignoring implementation order.
func (t TypeRef) SameShape(o TypeRef) bool {
	if t.Kind != o.Kind || t.Nullable != o.Nullable || t.Embedded != o.Embedded {
		return false
	}
	if (t.Elem == nil) != (o.Elem == nil) {
		return false
	}
	if t.Elem != nil && !t.Elem.SameShape(*o.Elem) {
		return false
	}
	if t.Kind == KindLite {
		return implKey(t.Implementations) == implKey(o.Implementations)
	}
	return true
}

func implKey(i *Implementations) string {
	if i == nil {
		return ""
	}
	if i.ByAll {
		return "*"
	}
	types := slices.Clone(i.Types)
	slices.Sort(types)
	return strings.Join(types, ",")
}

// String renders the type the way descriptions show it: "decimal?",
// "lite<Customer>", "list<embedded OrderLine>".
func (t TypeRef) String() string {
	var s string
	switch t.Kind {
	case KindLite:
		switch {
		case t.Implementations == nil:
			s = "lite<?>"
		case t.Implementations.ByAll:
			s = "lite<*>"
		default:
			s = "lite<" + strings.Join(t.Implementations.Types, "|") + ">"
		}
	case KindEmbedded:
		s = "embedded " + t.Embedded
	case KindCollection:
		if t.Elem != nil {
			s = "list<" + t.Elem.String() + ">"
		} else {
			s = "list<?>"
		}
	default:
		s = string(t.Kind)
	}
	if t.Nullable {
		s += "?"
	}
	return s
}

// PropertySpec is one declared property of an entity or embedded type.
type PropertySpec struct {
	Name        string  `json:"name"`
	Type        TypeRef `json:"type"`
	DisplayName string  `json:"display_name,omitempty"`
}

// EntitySpec is a compiled entity definition.
// Every entity has an implicit int64 Id, unique across all entity types.
type EntitySpec struct {
	Name       string         `json:"name"`
	ToStr      string         `json:"to_str,omitempty"` // property rendered by ToString
	Temporal   bool           `json:"temporal,omitempty"`
	Properties []PropertySpec `json:"properties"`
}

// Property finds a property by name.
func (e *EntitySpec) Property(name string) (*PropertySpec, bool) {
	return findProperty(e.Properties, name)
}

// EmbeddedSpec is a compiled embedded (value) type.
type EmbeddedSpec struct {
	Name       string         `json:"name"`
	Properties []PropertySpec `json:"properties"`
}

// Property finds a property by name.
func (e *EmbeddedSpec) Property(name string) (*PropertySpec, bool) {
	return findProperty(e.Properties, name)
}

func findProperty(props []PropertySpec, name string) (*PropertySpec, bool) {
	for i := range props {
		if props[i].Name == name {
			return &props[i], true
		}
	}
	return nil, false
}

// QueryColumnSpec maps one query column to an entity property.
// Property "Id" selects the implicit identifier.
type QueryColumnSpec struct {
	Name        string `json:"name"`
	Property    string `json:"property"`
	DisplayName string `json:"display_name,omitempty"`
}

// QuerySpec is a named query over one entity.
type QuerySpec struct {
	Name    string            `json:"name"`
	Entity  string            `json:"entity"`
	Columns []QueryColumnSpec `json:"columns"`
}

// Schema is the full compiled metadata: entities, embedded types and queries.
type Schema struct {
	Entities map[string]*EntitySpec   `json:"entities"`
	Embedded map[string]*EmbeddedSpec `json:"embedded"`
	Queries  map[string]*QuerySpec    `json:"queries"`
}

// NewSchema returns an empty schema ready for population.
func NewSchema() *Schema {
	return &Schema{
		Entities: make(map[string]*EntitySpec),
		Embedded: make(map[string]*EmbeddedSpec),
		Queries:  make(map[string]*QuerySpec),
	}
}

// EntityNames returns entity names sorted for deterministic iteration.
func (s *Schema) EntityNames() []string {
	names := make([]string, 0, len(s.Entities))
	for n := range s.Entities {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// QueryNames returns query names sorted for deterministic iteration.
func (s *Schema) QueryNames() []string {
	names := make([]string, 0, len(s.Queries))
	for n := range s.Queries {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Properties returns the declared properties of an entity or embedded type.
func (s *Schema) Properties(t TypeRef) []PropertySpec {
	switch t.Kind {
	case KindEmbedded:
		if e, ok := s.Embedded[t.Embedded]; ok {
			return e.Properties
		}
	case KindLite:
		if only, ok := t.Implementations.Only(); ok {
			if e, ok := s.Entities[only]; ok {
				return e.Properties
			}
		}
	}
	return nil
}

// ColumnDescription is one column of a query description.
type ColumnDescription struct {
	Name        string  `json:"name"`
	Type        TypeRef `json:"type"`
	DisplayName string  `json:"display_name"`
	IsEntity    bool    `json:"is_entity,omitempty"`
	Property    string  `json:"property,omitempty"`
}

// EntityColumnName is the key of the column holding the row's entity.
const EntityColumnName = "Entity"

// QueryDescription is what the token layer sees of a query: its name and
// ordered columns, exactly one of which is the entity column.
type QueryDescription struct {
	QueryName string              `json:"query_name"`
	Entity    string              `json:"entity"`
	Columns   []ColumnDescription `json:"columns"`
}

// Column finds a column by name.
func (d *QueryDescription) Column(name string) (*ColumnDescription, bool) {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i], true
		}
	}
	return nil, false
}

// Describe builds the query description for a named query.
// The entity column always comes first.
func (s *Schema) Describe(queryName string) (QueryDescription, error) {
	q, ok := s.Queries[queryName]
	if !ok {
		return QueryDescription{}, fmt.Errorf("query %q not found", queryName)
	}
	entity, ok := s.Entities[q.Entity]
	if !ok {
		return QueryDescription{}, fmt.Errorf("query %q: entity %q not found", queryName, q.Entity)
	}

	desc := QueryDescription{
		QueryName: q.Name,
		Entity:    q.Entity,
		Columns: []ColumnDescription{{
			Name:        EntityColumnName,
			Type:        Lite(q.Entity),
			DisplayName: EntityColumnName,
			IsEntity:    true,
		}},
	}
	for _, c := range q.Columns {
		col := ColumnDescription{Name: c.Name, Property: c.Property, DisplayName: c.DisplayName}
		var propertyDisplay string
		if c.Property == "Id" {
			col.Type = Scalar(KindInt)
		} else {
			p, ok := entity.Property(c.Property)
			if !ok {
				return QueryDescription{}, fmt.Errorf("query %q column %q: property %s.%s not found", queryName, c.Name, q.Entity, c.Property)
			}
			col.Type = p.Type
			propertyDisplay = p.DisplayName
		}
		// Column display name, then the property's, then the column name.
		if col.DisplayName == "" {
			col.DisplayName = propertyDisplay
		}
		if col.DisplayName == "" {
			col.DisplayName = c.Name
		}
		desc.Columns = append(desc.Columns, col)
	}
	return desc, nil
}
