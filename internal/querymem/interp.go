package querymem

import (
	"fmt"
	"strings"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryir"
)

// Source supplies root rows and navigation for the interpreter.
type Source interface {
	// Scan returns the versions of entity accepted by scope as root rows,
	// ordered by (id, version start).
	Scan(entity string, scope *ir.SystemTime) ([]ir.IREntity, error)

	// Resolver navigates lites under scope.
	Resolver(scope *ir.SystemTime) expr.Resolver
}

// Run executes a plan over src. Rows of a plan that never projects are
// ir.IREntity values; every other plan yields ir.IRArray tuples.
func Run(p queryir.Plan, src Source) ([]ir.IRValue, error) {
	if res := queryir.Validate(p); !res.Valid {
		return nil, fmt.Errorf("invalid plan: %s", strings.Join(res.Errors, "; "))
	}
	s, err := queryir.SourceOf(p)
	if err != nil {
		return nil, err
	}
	env := &expr.Env{Resolver: src.Resolver(s.Scope)}
	rel, err := run(p, src, env)
	if err != nil {
		return nil, err
	}
	return rel.rows, nil
}

// Count returns the number of rows p yields.
func Count(p queryir.Plan, src Source) (int, error) {
	rows, err := Run(p, src)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func run(p queryir.Plan, src Source, env *expr.Env) (*relation, error) {
	switch n := p.(type) {
	case queryir.Source:
		entities, err := src.Scan(n.Entity, n.Scope)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", n.Entity, err)
		}
		rows := make([]ir.IRValue, len(entities))
		for i, e := range entities {
			rows[i] = e
		}
		return newRelation(rows), nil

	case queryir.Where:
		in, err := run(n.Input, src, env)
		if err != nil {
			return nil, err
		}
		return in.filter(n.Pred, env)

	case queryir.OrderBy:
		in, err := run(n.Input, src, env)
		if err != nil {
			return nil, err
		}
		return in.orderBy(n.Keys, env)

	case queryir.ThenBy:
		in, err := run(n.Input, src, env)
		if err != nil {
			return nil, err
		}
		return in.thenBy(n.Keys, env)

	case queryir.Select:
		in, err := run(n.Input, src, env)
		if err != nil {
			return nil, err
		}
		return in.project(n.Columns, env)

	case queryir.SelectMany:
		in, err := run(n.Input, src, env)
		if err != nil {
			return nil, err
		}
		return in.flatten(n.Keep, n.Collection, env)

	case queryir.GroupBy:
		in, err := run(n.Input, src, env)
		if err != nil {
			return nil, err
		}
		return in.group(n.Grouping, env)

	case queryir.Skip:
		in, err := run(n.Input, src, env)
		if err != nil {
			return nil, err
		}
		return in.skip(n.N), nil

	case queryir.Take:
		in, err := run(n.Input, src, env)
		if err != nil {
			return nil, err
		}
		return in.take(n.N), nil
	}
	return nil, fmt.Errorf("unsupported plan node %T", p)
}
