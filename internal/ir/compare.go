package ir

import (
	"cmp"
	"strings"
)

// Compare orders two values of the same kind. Nulls sort first.
//
// Lites and entities order by id and then by type name. Entity ids are unique
// across types, so this agrees with the SQL backend which only sees ids.
// Values of different kinds compare by kind rank; that never happens in a
// well-typed query but keeps the ordering total.
func Compare(a, b IRValue) int {
	an, bn := IsNull(a), IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}

	switch av := a.(type) {
	case IRString:
		if bv, ok := b.(IRString); ok {
			return strings.Compare(string(av), string(bv))
		}
	case IRInt:
		switch bv := b.(type) {
		case IRInt:
			return cmp.Compare(av, bv)
		case IRDecimal:
			return NewIRDecimal(decimalFromInt(int64(av))).Cmp(bv.Decimal)
		}
	case IRDecimal:
		switch bv := b.(type) {
		case IRDecimal:
			return av.Cmp(bv.Decimal)
		case IRInt:
			return av.Cmp(decimalFromInt(int64(bv)))
		}
	case IRBool:
		if bv, ok := b.(IRBool); ok {
			return cmp.Compare(boolRank(bool(av)), boolRank(bool(bv)))
		}
	case IRTime:
		if bv, ok := b.(IRTime); ok {
			return av.Compare(bv.Time)
		}
	case IRLite, IREntity:
		at, aid := identity(a)
		bt, bid, ok := identityOK(b)
		if ok {
			if c := cmp.Compare(aid, bid); c != 0 {
				return c
			}
			return strings.Compare(at, bt)
		}
	case IRArray:
		if bv, ok := b.(IRArray); ok {
			for i := 0; i < len(av) && i < len(bv); i++ {
				if c := Compare(av[i], bv[i]); c != 0 {
					return c
				}
			}
			return cmp.Compare(len(av), len(bv))
		}
	case IRObject:
		if bv, ok := b.(IRObject); ok {
			return strings.Compare(CanonicalKey(av), CanonicalKey(bv))
		}
	}
	return cmp.Compare(kindRank(a), kindRank(b))
}

// Equal reports value equality. Null equals null here; SQL-style null
// semantics are applied by the evaluators, not by this helper.
func Equal(a, b IRValue) bool {
	return Compare(a, b) == 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func identity(v IRValue) (string, int64) {
	t, id, _ := identityOK(v)
	return t, id
}

func identityOK(v IRValue) (string, int64, bool) {
	switch val := v.(type) {
	case IRLite:
		return val.Type, val.ID, true
	case IREntity:
		return val.Type, val.ID, true
	}
	return "", 0, false
}

func kindRank(v IRValue) int {
	switch v.(type) {
	case IRNull:
		return 0
	case IRBool:
		return 1
	case IRInt, IRDecimal:
		return 2
	case IRString:
		return 3
	case IRTime:
		return 4
	case IRLite, IREntity:
		return 5
	case IRArray:
		return 6
	case IRObject:
		return 7
	}
	return 8
}
