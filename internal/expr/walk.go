package expr

// Walk calls fn for e and every sub-expression, parents first. fn returning
// false skips the children of that node. Quantifier predicates are visited
// too; their Param nodes refer to the quantifier's binding.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range children(e) {
		Walk(c, fn)
	}
}

func children(e Expr) []Expr {
	switch n := e.(type) {
	case Member:
		return []Expr{n.Target}
	case ID:
		return []Expr{n.Target}
	case AsType:
		return []Expr{n.Target}
	case DatePart:
		return []Expr{n.Target}
	case Round:
		return []Expr{n.Target}
	case Count:
		return []Expr{n.Collection}
	case Quantifier:
		return []Expr{n.Collection, n.Pred}
	case Compare:
		return []Expr{n.Left, n.Right}
	case In:
		return []Expr{n.Target}
	case IsNull:
		return []Expr{n.Target}
	case Not:
		return []Expr{n.Inner}
	case And:
		return n.Terms
	case Or:
		return n.Terms
	case Convert:
		return []Expr{n.Target}
	}
	return nil
}

// UsesRow reports whether e reads the source row.
func UsesRow(e Expr) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if _, ok := n.(Row); ok {
			found = true
		}
		return !found
	})
	return found
}

// MaxSlot returns the highest tuple slot e reads, or -1.
func MaxSlot(e Expr) int {
	m := -1
	Walk(e, func(n Expr) bool {
		if s, ok := n.(Slot); ok && s.Index > m {
			m = s.Index
		}
		return true
	})
	return m
}
