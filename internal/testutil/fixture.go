package testutil

import (
	"bytes"
	_ "embed"
	"testing"

	"github.com/roach88/dynq/internal/compiler"
	"github.com/roach88/dynq/internal/dataset"
	"github.com/roach88/dynq/internal/ir"
)

// OrdersSchemaSource is the CUE source of the shared Orders fixture.
//
//go:embed testdata/orders.cue
var OrdersSchemaSource string

// OrdersDataSource is the YAML data of the shared Orders fixture:
// customers Ada (1), Bob (2) and Cid (3), employees Eve (10) and
// Frank (11), and orders 101..125.
//
// Order 100+i has Number O-00i, Total 8i-4 and OrderDate 2024-01-01
// plus 7i days. Its customer is null when i%7 == 0, otherwise Ada, Bob
// or Cid for i%3 == 1, 2, 0. Order 101 also has an earlier version
// [2023-12-01, 2024-01-08) with Total 1.
//
//go:embed testdata/orders.yaml
var OrdersDataSource []byte

// LoadOrders compiles the fixture schema and loads its data.
func LoadOrders() (*ir.Schema, *dataset.Dataset, error) {
	schema, err := compiler.CompileString(OrdersSchemaSource, "orders.cue")
	if err != nil {
		return nil, nil, err
	}
	d, err := dataset.Load(schema, bytes.NewReader(OrdersDataSource))
	if err != nil {
		return nil, nil, err
	}
	return schema, d, nil
}

// Orders returns the fixture schema and dataset, failing t on error.
func Orders(t testing.TB) (*ir.Schema, *dataset.Dataset) {
	t.Helper()
	schema, d, err := LoadOrders()
	if err != nil {
		t.Fatalf("load orders fixture: %v", err)
	}
	return schema, d
}
