package compiler

import (
	"strings"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/schema"
)

// ValueType is the static type of an expression.
//
// Item types name the most specific schema type known for the item. Tuple
// types carry one component type per element. KindNull is the type of the
// null literal, compatible with everything.
type ValueType struct {
	Kind  ir.Kind
	Item  *schema.Type
	Elems []ValueType
}

// ItemOf is the static type of items of t.
func ItemOf(t *schema.Type) ValueType {
	return ValueType{Kind: ir.KindItem, Item: t}
}

// Primitive is the static type of a scalar kind.
func Primitive(k ir.Kind) ValueType {
	return ValueType{Kind: k}
}

// TupleOf is the static type of tuples with the given components.
func TupleOf(elems ...ValueType) ValueType {
	return ValueType{Kind: ir.KindTuple, Elems: elems}
}

var boolType = Primitive(ir.KindBool)

// IsPrimitive reports whether values of the type are strings, integers or
// booleans.
func (t ValueType) IsPrimitive() bool {
	switch t.Kind {
	case ir.KindString, ir.KindInt, ir.KindBool:
		return true
	}
	return false
}

func (t ValueType) String() string {
	switch t.Kind {
	case ir.KindItem:
		if t.Item == nil {
			return "item"
		}
		return "item(" + t.Item.Name + ")"
	case ir.KindTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return "tuple(" + strings.Join(parts, ", ") + ")"
	default:
		return t.Kind.String()
	}
}

// unify returns the type of a value that may be of type a or b.
func unify(a, b ValueType) (ValueType, bool) {
	switch {
	case a.Kind == ir.KindNull:
		return b, true
	case b.Kind == ir.KindNull:
		return a, true
	case a.Kind != b.Kind:
		return ValueType{}, false
	}
	switch a.Kind {
	case ir.KindItem:
		return ItemOf(schema.CommonSupertype(a.Item, b.Item)), true
	case ir.KindTuple:
		if len(a.Elems) != len(b.Elems) {
			return ValueType{}, false
		}
		elems := make([]ValueType, len(a.Elems))
		for i := range a.Elems {
			e, ok := unify(a.Elems[i], b.Elems[i])
			if !ok {
				return ValueType{}, false
			}
			elems[i] = e
		}
		return TupleOf(elems...), true
	}
	return a, true
}

// equatable reports whether values of a and b can be tested for
// equality.
func equatable(a, b ValueType) bool {
	if a.Kind == ir.KindNull || b.Kind == ir.KindNull {
		return a.Kind != ir.KindTuple && b.Kind != ir.KindTuple
	}
	if a.Kind != b.Kind || a.Kind == ir.KindTuple {
		return false
	}
	if a.Kind == ir.KindItem {
		return overlaps(a.Item, b.Item)
	}
	return true
}

// overlaps reports whether a and b can have common instances.
func overlaps(a, b *schema.Type) bool {
	if a == nil || b == nil {
		return true
	}
	if a.IsSubtypeOf(b) || b.IsSubtypeOf(a) {
		return true
	}
	for _, c := range a.ConcreteSubtypes() {
		if c.IsSubtypeOf(b) {
			return true
		}
	}
	return false
}

// TypeSet is the set of concrete types an item valued expression may
// evaluate to. Tuple valued expressions carry one set per component.
type TypeSet struct {
	Types []*schema.Type
	Elems []TypeSet
}

// Names returns the concrete type names.
func (s TypeSet) Names() []string {
	names := make([]string, len(s.Types))
	for i, t := range s.Types {
		names[i] = t.Name
	}
	return names
}

// Len returns the number of concrete types.
func (s TypeSet) Len() int { return len(s.Types) }
