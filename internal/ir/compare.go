package ir

import (
	"golang.org/x/text/cases"
)

// storage class rank, mirroring SQLite: NULL < INTEGER < TEXT.
func rank(v Value) int {
	switch v.(type) {
	case nil, Null:
		return 0
	case Int, Bool:
		return 1
	case String:
		return 2
	case Item:
		return 3
	case Tuple:
		return 4
	default:
		return 5
	}
}

func asInt(v Value) int64 {
	switch val := v.(type) {
	case Int:
		return int64(val)
	case Bool:
		if val {
			return 1
		}
	}
	return 0
}

// Compare orders two values the way the SQL store orders stored column
// values. Values of different storage classes order by class. Items compare
// by identity only.
func Compare(a, b Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case Int, Bool:
		x, y := asInt(a), asInt(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case String:
		return compareStrings(string(av), string(b.(String)))
	case Item:
		return ObjectKey(av).ObjectBranchID().Compare(ObjectKey(b.(Item)).ObjectBranchID())
	case Tuple:
		bv := b.(Tuple)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(av) < len(bv):
			return -1
		case len(av) > len(bv):
			return 1
		}
	}
	return 0
}

// Equal is null-safe equality: Null equals Null and never equals a value.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Fold returns the case folded image of a text value. Other values are
// returned unchanged.
func Fold(v Value) Value {
	if s, ok := v.(String); ok {
		return String(FoldString(string(s)))
	}
	return v
}

// FoldString applies full Unicode case folding.
func FoldString(s string) string {
	return cases.Fold().String(s)
}
