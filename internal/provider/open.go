package provider

import (
	"context"
	"fmt"

	"github.com/roach88/dynq/internal/dataset"
)

// Open builds the provider named by backend over d. For sqlite, database is
// the file path (":memory:" for a private in-memory database) and is
// seeded with d.
func Open(ctx context.Context, backend, database string, d *dataset.Dataset) (Provider, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(d), nil
	case BackendSQLite, "":
		if database == "" {
			database = ":memory:"
		}
		return OpenSQLite(ctx, database, d.Schema(), d)
	}
	return nil, fmt.Errorf("unknown backend %q (want %s or %s)", backend, BackendSQLite, BackendMemory)
}
