package provider

import (
	"context"
	"fmt"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryir"
)

// Provider executes query plans. Only List and Count suspend; everything
// else is CPU-only.
type Provider interface {
	// Name identifies the backend in logs and errors ("sqlite", "memory").
	Name() string

	// Schema is the metadata the provider's data was built for.
	Schema() *ir.Schema

	// List runs a plan that ends in a projection and returns its tuples.
	// Lites in the result carry their type and display text.
	List(ctx context.Context, p queryir.Plan) ([]ir.IRArray, error)

	// Count returns the number of rows p yields.
	Count(ctx context.Context, p queryir.Plan) (int, error)

	// Resolver loads the entities lites point to, following the
	// navigation rule of scope.
	Resolver(ctx context.Context, scope *ir.SystemTime) expr.Resolver
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

func requireTuples(p queryir.Plan) error {
	shape, err := queryir.ShapeOf(p)
	if err != nil {
		return err
	}
	if !shape.Tuple {
		return fmt.Errorf("list: plan rows are entities; add a Select")
	}
	return nil
}
