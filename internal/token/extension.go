package token

import (
	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
)

// Extension contributes a synthetic subtoken. With Applies set it is
// offered below every token Applies accepts; otherwise below every
// reference to Entity. The token filters, sorts and projects like a
// declared property; Build composes its expression from the parent's
// expression, which is nullable whenever the parent is.
type Extension struct {
	Entity      string
	Applies     func(parent Token) bool
	Key         string
	DisplayName string
	Type        ir.TypeRef
	Build       func(target expr.Expr) (expr.Expr, error)
}

func (e Extension) appliesTo(parent Token) bool {
	if e.Applies != nil {
		return e.Applies(parent)
	}
	t := parent.Type()
	if e.Entity == "" || t.Kind != ir.KindLite || t.Implementations == nil {
		return false
	}
	only, ok := t.Implementations.Only()
	return ok && only == e.Entity
}

// OfKind returns an Applies predicate accepting parents of kind k.
func OfKind(k ir.Kind) func(Token) bool {
	return func(parent Token) bool { return parent.Type().Kind == k }
}

// extensionsFor returns the extensions that apply below parent.
func extensionsFor(exts []Extension, parent Token) []Extension {
	var out []Extension
	for _, e := range exts {
		if e.appliesTo(parent) {
			out = append(out, e)
		}
	}
	return out
}
