package expr

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/dynq/internal/ir"
)

// Resolver loads the entity a lite points to, applying the query's temporal
// navigation rule. ok is false when no compatible version exists.
type Resolver interface {
	Resolve(lite ir.IRLite) (entity ir.IREntity, ok bool, err error)
}

// Env is the evaluation environment of one row.
type Env struct {
	Row      ir.IRValue
	Params   map[string]ir.IRValue
	Resolver Resolver
}

// WithRow returns a copy of env evaluating over row.
func (env *Env) WithRow(row ir.IRValue) *Env {
	return &Env{Row: row, Params: env.Params, Resolver: env.Resolver}
}

// WithParam returns a copy of env with name bound to v.
func (env *Env) WithParam(name string, v ir.IRValue) *Env {
	params := make(map[string]ir.IRValue, len(env.Params)+1)
	for k, pv := range env.Params {
		params[k] = pv
	}
	params[name] = v
	return &Env{Row: env.Row, Params: params, Resolver: env.Resolver}
}

// Project turns a value into its tuple form: full entities become lites.
func Project(v ir.IRValue) ir.IRValue {
	if e, ok := v.(ir.IREntity); ok {
		return e.ToLite()
	}
	if v == nil {
		return ir.IRNull{}
	}
	return v
}

// Truthy reports whether a predicate result is exactly true.
func Truthy(v ir.IRValue) bool {
	b, ok := v.(ir.IRBool)
	return ok && bool(b)
}

// Eval evaluates e over env.
func Eval(e Expr, env *Env) (ir.IRValue, error) {
	switch n := e.(type) {
	case Row:
		if env.Row == nil {
			return nil, fmt.Errorf("eval: no current row")
		}
		return env.Row, nil

	case Slot:
		tuple, ok := env.Row.(ir.IRArray)
		if !ok {
			return nil, fmt.Errorf("eval: slot %d on non-tuple row %T", n.Index, env.Row)
		}
		if n.Index < 0 || n.Index >= len(tuple) {
			return nil, fmt.Errorf("eval: slot %d out of range (tuple has %d)", n.Index, len(tuple))
		}
		return nullIfNil(tuple[n.Index]), nil

	case Param:
		v, ok := env.Params[n.Name]
		if !ok {
			return nil, fmt.Errorf("eval: unbound parameter %q", n.Name)
		}
		return nullIfNil(v), nil

	case Const:
		return nullIfNil(n.Value), nil

	case Member:
		return evalMember(n, env)

	case ID:
		v, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		switch t := v.(type) {
		case ir.IRLite:
			return ir.IRInt(t.ID), nil
		case ir.IREntity:
			return ir.IRInt(t.ID), nil
		case ir.IRNull:
			return t, nil
		}
		return nil, fmt.Errorf("eval: Id of %T", v)

	case AsType:
		v, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		switch t := v.(type) {
		case ir.IRLite:
			if t.Type == n.Entity {
				return t, nil
			}
			return ir.IRNull{}, nil
		case ir.IREntity:
			if t.Type == n.Entity {
				return t.ToLite(), nil
			}
			return ir.IRNull{}, nil
		case ir.IRNull:
			return t, nil
		}
		return nil, fmt.Errorf("eval: AsType of %T", v)

	case DatePart:
		v, err := Eval(n.Target, env)
		if err != nil || ir.IsNull(v) {
			return v, err
		}
		t, ok := v.(ir.IRTime)
		if !ok {
			return nil, fmt.Errorf("eval: %s of %T", n.Part, v)
		}
		return datePart(t.Time, n.Part)

	case Round:
		v, err := Eval(n.Target, env)
		if err != nil || ir.IsNull(v) {
			return v, err
		}
		switch t := v.(type) {
		case ir.IRDecimal:
			if n.Mode == RoundCeil {
				return ir.NewIRDecimal(t.Ceil()), nil
			}
			return ir.NewIRDecimal(t.Floor()), nil
		case ir.IRInt:
			return t, nil
		}
		return nil, fmt.Errorf("eval: %s of %T", n.Mode, v)

	case Count:
		v, err := Eval(n.Collection, env)
		if err != nil {
			return nil, err
		}
		arr, _ := v.(ir.IRArray)
		return ir.IRInt(len(arr)), nil

	case Quantifier:
		return evalQuantifier(n, env)

	case Compare:
		l, err := Eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := Eval(n.Right, env)
		if err != nil {
			return nil, err
		}
		return compare(n.Op, l, r)

	case In:
		if len(n.Values) == 0 {
			return ir.IRBool(false), nil
		}
		v, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		if ir.IsNull(v) {
			return ir.IRNull{}, nil
		}
		sawNull := false
		for _, c := range n.Values {
			if ir.IsNull(c) {
				sawNull = true
				continue
			}
			if ir.Compare(v, c) == 0 {
				return ir.IRBool(true), nil
			}
		}
		if sawNull {
			return ir.IRNull{}, nil
		}
		return ir.IRBool(false), nil

	case IsNull:
		v, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		return ir.IRBool(ir.IsNull(v)), nil

	case Not:
		v, err := Eval(n.Inner, env)
		if err != nil || ir.IsNull(v) {
			return v, err
		}
		b, ok := v.(ir.IRBool)
		if !ok {
			return nil, fmt.Errorf("eval: NOT of %T", v)
		}
		return !b, nil

	case And:
		return evalLogic(n.Terms, env, false)

	case Or:
		return evalLogic(n.Terms, env, true)

	case Convert:
		v, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		return convert(v, n.T)
	}
	return nil, fmt.Errorf("eval: unsupported expression %T", e)
}

func nullIfNil(v ir.IRValue) ir.IRValue {
	if v == nil {
		return ir.IRNull{}
	}
	return v
}

func evalMember(n Member, env *Env) (ir.IRValue, error) {
	target, err := Eval(n.Target, env)
	if err != nil {
		return nil, err
	}
	var fields ir.IRObject
	switch t := target.(type) {
	case ir.IRNull:
		return t, nil
	case ir.IREntity:
		fields = t.Fields
	case ir.IRObject:
		fields = t
	case ir.IRLite:
		if env.Resolver == nil {
			return nil, fmt.Errorf("eval: cannot navigate %s.%s without a resolver", t.Key(), n.Property)
		}
		entity, ok, err := env.Resolver.Resolve(t)
		if err != nil {
			return nil, fmt.Errorf("eval: resolve %s: %w", t.Key(), err)
		}
		if !ok {
			return ir.IRNull{}, nil
		}
		fields = entity.Fields
	default:
		return nil, fmt.Errorf("eval: member %s of %T", n.Property, target)
	}
	return nullIfNil(fields[n.Property]), nil
}

func evalQuantifier(n Quantifier, env *Env) (ir.IRValue, error) {
	v, err := Eval(n.Collection, env)
	if err != nil {
		return nil, err
	}
	arr, _ := v.(ir.IRArray)
	for _, elem := range arr {
		r, err := Eval(n.Pred, env.WithParam(n.Param.Name, elem))
		if err != nil {
			return nil, err
		}
		if Truthy(r) == n.All {
			continue
		}
		// Any found a match, or All found a miss.
		return ir.IRBool(!n.All), nil
	}
	return ir.IRBool(n.All), nil
}

func evalLogic(terms []Expr, env *Env, or bool) (ir.IRValue, error) {
	sawNull := false
	for _, t := range terms {
		v, err := Eval(t, env)
		if err != nil {
			return nil, err
		}
		if ir.IsNull(v) {
			sawNull = true
			continue
		}
		b, ok := v.(ir.IRBool)
		if !ok {
			return nil, fmt.Errorf("eval: boolean operand is %T", v)
		}
		if bool(b) == or {
			return b, nil
		}
	}
	if sawNull {
		return ir.IRNull{}, nil
	}
	return ir.IRBool(!or), nil
}

func compare(op CompareOp, l, r ir.IRValue) (ir.IRValue, error) {
	if ir.IsNull(l) || ir.IsNull(r) {
		return ir.IRNull{}, nil
	}
	switch op {
	case OpContains, OpStartsWith, OpEndsWith:
		ls, lok := l.(ir.IRString)
		rs, rok := r.(ir.IRString)
		if !lok || !rok {
			return nil, fmt.Errorf("eval: %s needs strings, got %T and %T", op, l, r)
		}
		switch op {
		case OpContains:
			return ir.IRBool(strings.Contains(string(ls), string(rs))), nil
		case OpStartsWith:
			return ir.IRBool(strings.HasPrefix(string(ls), string(rs))), nil
		default:
			return ir.IRBool(strings.HasSuffix(string(ls), string(rs))), nil
		}
	}
	c := ir.Compare(l, r)
	switch op {
	case OpEq:
		return ir.IRBool(c == 0), nil
	case OpNe:
		return ir.IRBool(c != 0), nil
	case OpGt:
		return ir.IRBool(c > 0), nil
	case OpGe:
		return ir.IRBool(c >= 0), nil
	case OpLt:
		return ir.IRBool(c < 0), nil
	case OpLe:
		return ir.IRBool(c <= 0), nil
	}
	return nil, fmt.Errorf("eval: unknown comparison %q", op)
}

func datePart(t time.Time, part DatePartKind) (ir.IRValue, error) {
	t = t.UTC()
	switch part {
	case PartYear:
		return ir.IRInt(t.Year()), nil
	case PartMonth:
		return ir.IRInt(t.Month()), nil
	case PartDay:
		return ir.IRInt(t.Day()), nil
	case PartDayOfYear:
		return ir.IRInt(t.YearDay()), nil
	case PartDayOfWeek:
		return ir.IRInt(t.Weekday()), nil
	case PartHour:
		return ir.IRInt(t.Hour()), nil
	case PartMinute:
		return ir.IRInt(t.Minute()), nil
	case PartSecond:
		return ir.IRInt(t.Second()), nil
	case PartMillisecond:
		return ir.IRInt(t.Nanosecond() / int(time.Millisecond)), nil
	case PartMonthStart:
		return ir.NewIRTime(time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)), nil
	case PartDate:
		return ir.NewIRTime(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)), nil
	}
	return nil, fmt.Errorf("eval: unknown date part %q", part)
}

func convert(v ir.IRValue, to ir.TypeRef) (ir.IRValue, error) {
	if ir.IsNull(v) {
		if to.Nullable {
			return ir.IRNull{}, nil
		}
		return Zero(to.Kind)
	}
	if to.Kind == ir.KindDecimal {
		if n, ok := v.(ir.IRInt); ok {
			return ir.NewIRDecimal(decimal.NewFromInt(int64(n))), nil
		}
	}
	return v, nil
}

// Zero is the value a non-nullable aggregate of kind k takes over nothing.
func Zero(k ir.Kind) (ir.IRValue, error) {
	switch k {
	case ir.KindInt:
		return ir.IRInt(0), nil
	case ir.KindDecimal:
		return ir.NewIRDecimal(decimal.Zero), nil
	case ir.KindBool:
		return ir.IRBool(false), nil
	case ir.KindString:
		return ir.IRString(""), nil
	}
	return nil, fmt.Errorf("no zero value for %s", k)
}
