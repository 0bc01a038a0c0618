package dataset

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
)

// Dataset holds every version of every entity of a schema.
//
// Versions of one entity type are kept sorted by (id, version start); a
// missing start sorts first. Non-temporal entities have exactly one
// version per id, with no bounds.
type Dataset struct {
	schema   *ir.Schema
	versions map[string][]ir.IREntity
	types    map[int64]string
}

// New returns an empty dataset for schema.
func New(schema *ir.Schema) *Dataset {
	return &Dataset{
		schema:   schema,
		versions: make(map[string][]ir.IREntity),
		types:    make(map[int64]string),
	}
}

// Schema returns the schema the dataset was built for.
func (d *Dataset) Schema() *ir.Schema {
	return d.schema
}

// Add stores one entity version. Missing properties become null (empty
// for collections); ids must be positive and unique across entity types.
func (d *Dataset) Add(e ir.IREntity) error {
	spec, ok := d.schema.Entities[e.Type]
	if !ok {
		return fmt.Errorf("unknown entity type %q", e.Type)
	}
	if e.ID <= 0 {
		return fmt.Errorf("%s: id must be positive, got %d", e.Type, e.ID)
	}
	if other, ok := d.types[e.ID]; ok && other != e.Type {
		return fmt.Errorf("%s;%d: id already used by %s", e.Type, e.ID, other)
	}
	if !spec.Temporal && (e.SysFrom != nil || e.SysTo != nil) {
		return fmt.Errorf("%s;%d: %s is not temporal", e.Type, e.ID, e.Type)
	}
	if e.SysFrom != nil && e.SysTo != nil && !e.SysFrom.Before(*e.SysTo) {
		return fmt.Errorf("%s;%d: version ends before it starts", e.Type, e.ID)
	}

	fields := ir.IRObject{}
	for key := range e.Fields {
		if _, ok := spec.Property(key); !ok {
			return fmt.Errorf("%s;%d: unknown property %q", e.Type, e.ID, key)
		}
	}
	for _, p := range spec.Properties {
		v, ok := e.Fields[p.Name]
		if !ok || v == nil {
			v = ir.IRNull{}
		}
		if p.Type.Kind == ir.KindCollection && ir.IsNull(v) {
			v = ir.IRArray{}
		}
		if ir.IsNull(v) && !p.Type.Nullable {
			return fmt.Errorf("%s;%d: property %s is required", e.Type, e.ID, p.Name)
		}
		fields[p.Name] = v
	}
	e.Fields = fields

	list := d.versions[e.Type]
	for _, existing := range list {
		if existing.ID != e.ID {
			continue
		}
		if !spec.Temporal {
			return fmt.Errorf("%s;%d: duplicate entity", e.Type, e.ID)
		}
		if existing.SysTo == nil && e.SysTo == nil {
			return fmt.Errorf("%s;%d: more than one current version", e.Type, e.ID)
		}
		if overlaps(existing, e) {
			return fmt.Errorf("%s;%d: overlapping versions", e.Type, e.ID)
		}
	}
	list = append(list, e)
	slices.SortStableFunc(list, compareVersions)
	d.versions[e.Type] = list
	d.types[e.ID] = e.Type
	return nil
}

func compareVersions(a, b ir.IREntity) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return compareStart(a.SysFrom, b.SysFrom)
}

func compareStart(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func overlaps(a, b ir.IREntity) bool {
	before := func(end, start *time.Time) bool {
		return end != nil && start != nil && !end.After(*start)
	}
	return !before(a.SysTo, b.SysFrom) && !before(b.SysTo, a.SysFrom)
}

// Versions returns every stored version of entity.
func (d *Dataset) Versions(entity string) []ir.IREntity {
	return d.versions[entity]
}

// EntityTypes returns the entity types that have at least one version,
// sorted.
func (d *Dataset) EntityTypes() []string {
	out := make([]string, 0, len(d.versions))
	for t := range d.versions {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// TypeOf returns the entity type owning id.
func (d *Dataset) TypeOf(id int64) (string, bool) {
	t, ok := d.types[id]
	return t, ok
}

// Scan returns the versions of entity that are root rows under scope.
func (d *Dataset) Scan(entity string, scope *ir.SystemTime) ([]ir.IREntity, error) {
	spec, ok := d.schema.Entities[entity]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	var out []ir.IREntity
	for _, v := range d.versions[entity] {
		if !spec.Temporal || scope.AcceptsRoot(v.SysFrom, v.SysTo) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Resolve returns the version a navigation lands on: for temporal entities
// the current version, or the earliest one the scope accepts.
func (d *Dataset) Resolve(lite ir.IRLite, scope *ir.SystemTime) (ir.IREntity, bool) {
	typ := lite.Type
	if typ == "" {
		typ = d.types[lite.ID]
	}
	spec, ok := d.schema.Entities[typ]
	if !ok {
		return ir.IREntity{}, false
	}
	list := d.versions[typ]
	i, found := slices.BinarySearchFunc(list, lite.ID, func(e ir.IREntity, id int64) int { return cmp.Compare(e.ID, id) })
	if !found {
		return ir.IREntity{}, false
	}
	for ; i < len(list) && list[i].ID == lite.ID; i++ {
		if !spec.Temporal || scope.AcceptsNavigation(list[i].SysFrom, list[i].SysTo) {
			return list[i], true
		}
	}
	return ir.IREntity{}, false
}

// Latest returns the current version of the entity, or its most recent
// one when it has been closed. Display text is always read from it.
func (d *Dataset) Latest(lite ir.IRLite) (ir.IREntity, bool) {
	typ := lite.Type
	if typ == "" {
		typ = d.types[lite.ID]
	}
	var best ir.IREntity
	found := false
	for _, v := range d.versions[typ] {
		if v.ID != lite.ID {
			continue
		}
		if v.SysTo == nil {
			return v, true
		}
		if !found || compareStart(best.SysFrom, v.SysFrom) < 0 {
			best, found = v, true
		}
	}
	return best, found
}

// ToStr returns the display text of lite.
func (d *Dataset) ToStr(lite ir.IRLite) string {
	e, ok := d.Latest(lite)
	if !ok {
		return ""
	}
	spec := d.schema.Entities[e.Type]
	if spec == nil || spec.ToStr == "" {
		return ""
	}
	v := e.Fields[spec.ToStr]
	if v == nil || ir.IsNull(v) {
		return ""
	}
	return ir.Display(v)
}

// Resolver returns a navigation resolver for scope.
func (d *Dataset) Resolver(scope *ir.SystemTime) expr.Resolver {
	return resolver{d: d, scope: scope}
}

type resolver struct {
	d     *Dataset
	scope *ir.SystemTime
}

func (r resolver) Resolve(lite ir.IRLite) (ir.IREntity, bool, error) {
	e, ok := r.d.Resolve(lite, r.scope)
	return e, ok, nil
}
