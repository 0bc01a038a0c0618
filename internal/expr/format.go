package expr

import (
	"strconv"
	"strings"

	"github.com/roach88/dynq/internal/ir"
)

// Format renders e as compact text for debug logs and plan explanations.
// Example: Member(Slot(0), Total) > 100
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case Row:
		b.WriteString("row")
	case Slot:
		b.WriteString("$" + strconv.Itoa(n.Index))
	case Param:
		b.WriteString("@" + n.Name)
	case Const:
		if s, ok := n.Value.(ir.IRString); ok {
			b.WriteString(strconv.Quote(string(s)))
		} else if ir.IsNull(n.Value) {
			b.WriteString("null")
		} else {
			b.WriteString(ir.Display(n.Value))
		}
	case Member:
		format(b, n.Target)
		b.WriteString("." + n.Property)
	case ID:
		format(b, n.Target)
		b.WriteString(".Id")
	case AsType:
		b.WriteString("(")
		format(b, n.Target)
		b.WriteString(" as " + n.Entity + ")")
	case DatePart:
		format(b, n.Target)
		b.WriteString("." + string(n.Part))
	case Round:
		b.WriteString(string(n.Mode) + "(")
		format(b, n.Target)
		b.WriteString(")")
	case Count:
		b.WriteString("count(")
		format(b, n.Collection)
		b.WriteString(")")
	case Quantifier:
		if n.All {
			b.WriteString("all(")
		} else {
			b.WriteString("any(")
		}
		format(b, n.Collection)
		b.WriteString(", @" + n.Param.Name + " => ")
		format(b, n.Pred)
		b.WriteString(")")
	case Compare:
		format(b, n.Left)
		b.WriteString(" " + string(n.Op) + " ")
		format(b, n.Right)
	case In:
		format(b, n.Target)
		b.WriteString(" in (")
		for i, v := range n.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, Const{Value: v})
		}
		b.WriteString(")")
	case IsNull:
		format(b, n.Target)
		b.WriteString(" is null")
	case Not:
		b.WriteString("not(")
		format(b, n.Inner)
		b.WriteString(")")
	case And:
		formatTerms(b, n.Terms, " and ")
	case Or:
		formatTerms(b, n.Terms, " or ")
	case Convert:
		b.WriteString(n.T.String() + "(")
		format(b, n.Target)
		b.WriteString(")")
	default:
		b.WriteString("?")
	}
}

func formatTerms(b *strings.Builder, terms []Expr, sep string) {
	b.WriteString("(")
	for i, t := range terms {
		if i > 0 {
			b.WriteString(sep)
		}
		format(b, t)
	}
	b.WriteString(")")
}
