package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/dynq/internal/dataset"
	"github.com/roach88/dynq/internal/ir"
)

var (
	strT  = ir.Scalar(ir.KindString)
	decT  = ir.Scalar(ir.KindDecimal)
	intT  = ir.Scalar(ir.KindInt)
	lineT = ir.TypeRef{Kind: ir.KindEmbedded, Embedded: "Line", Owner: &ir.OwnerRef{Entity: "Order", Property: "Lines"}}
	tagT  = ir.TypeRef{Kind: ir.KindString, Owner: &ir.OwnerRef{Entity: "Order", Property: "Tags"}}
	ownT  = ir.TypeRef{Kind: ir.KindLite, Nullable: true, Implementations: ir.ImplementedBy("Customer", "Employee")}
)

func testSchema() *ir.Schema {
	s := ir.NewSchema()
	s.Entities["Order"] = &ir.EntitySpec{Name: "Order", ToStr: "Number", Temporal: true, Properties: []ir.PropertySpec{
		{Name: "Number", Type: strT},
		{Name: "Total", Type: decT.Nullify()},
		{Name: "Owner", Type: ownT},
		{Name: "Address", Type: ir.TypeRef{Kind: ir.KindEmbedded, Embedded: "Address", Nullable: true}},
		{Name: "Lines", Type: ir.TypeRef{Kind: ir.KindCollection, Elem: &lineT}},
		{Name: "Tags", Type: ir.TypeRef{Kind: ir.KindCollection, Elem: &tagT}},
	}}
	s.Entities["Customer"] = &ir.EntitySpec{Name: "Customer", ToStr: "Name", Properties: []ir.PropertySpec{
		{Name: "Name", Type: strT},
	}}
	s.Entities["Employee"] = &ir.EntitySpec{Name: "Employee", ToStr: "Name", Properties: []ir.PropertySpec{
		{Name: "Name", Type: strT},
	}}
	s.Embedded["Line"] = &ir.EmbeddedSpec{Name: "Line", Properties: []ir.PropertySpec{
		{Name: "Product", Type: strT},
		{Name: "Quantity", Type: intT},
	}}
	s.Embedded["Address"] = &ir.EmbeddedSpec{Name: "Address", Properties: []ir.PropertySpec{
		{Name: "Street", Type: strT.Nullify()},
		{Name: "City", Type: strT.Nullify()},
	}}
	return s
}

func day(d int) *time.Time {
	t := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// testDataset holds two customers-ish owners and order 10 with two versions.
func testDataset(t *testing.T, schema *ir.Schema) *dataset.Dataset {
	t.Helper()
	d := dataset.New(schema)
	add := func(e ir.IREntity) {
		t.Helper()
		if err := d.Add(e); err != nil {
			t.Fatalf("Add(%s;%d) failed: %v", e.Type, e.ID, err)
		}
	}
	add(ir.IREntity{Type: "Customer", ID: 1, Fields: ir.IRObject{"Name": ir.IRString("Ada")}})
	add(ir.IREntity{Type: "Employee", ID: 2, Fields: ir.IRObject{"Name": ir.IRString("Grace")}})
	add(ir.IREntity{Type: "Order", ID: 10, SysFrom: day(1), SysTo: day(5), Fields: ir.IRObject{
		"Number": ir.IRString("SO-10"),
		"Total":  ir.MustDecimal("10.5"),
		"Owner":  ir.IRLite{Type: "Customer", ID: 1},
	}})
	add(ir.IREntity{Type: "Order", ID: 10, SysFrom: day(5), Fields: ir.IRObject{
		"Number":  ir.IRString("SO-10"),
		"Total":   ir.MustDecimal("12.25"),
		"Owner":   ir.IRLite{Type: "Employee", ID: 2},
		"Address": ir.IRObject{"Street": ir.IRString("1 Main St"), "City": ir.IRString("Springfield")},
		"Lines": ir.IRArray{
			ir.IRObject{"Product": ir.IRString("Widget"), "Quantity": ir.IRInt(2)},
			ir.IRObject{"Product": ir.IRString("Gadget"), "Quantity": ir.IRInt(1)},
		},
		"Tags": ir.IRArray{ir.IRString("rush")},
	}})
	return d
}

// createTestStore opens a file-backed store for the test schema.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, testSchema())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seededStore opens a store and seeds it with testDataset.
func seededStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	if err := s.Seed(context.Background(), testDataset(t, s.Schema())); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return s
}
