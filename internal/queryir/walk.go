package queryir

import (
	"fmt"
	"slices"
)

// Children returns the direct subexpressions of e in evaluation order.
// Nil range bounds are omitted.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *ScanExpr, *LiteralExpr, *ParamExpr, *ContextExpr:
		return nil
	case *FilterExpr:
		return []Expr{n.Source, n.Predicate}
	case *MapExpr:
		return []Expr{n.Source, n.Mapping}
	case *UnionExpr:
		return []Expr{n.Left, n.Right}
	case *CrossExpr:
		return []Expr{n.Left, n.Right}
	case *NavigateExpr:
		return []Expr{n.From}
	case *AttributeExpr:
		return []Expr{n.Context}
	case *ReferenceExpr:
		return []Expr{n.Context}
	case *FlexExpr:
		return []Expr{n.Context}
	case *EvalExpr:
		return []Expr{n.Context, n.Inner}
	case *BinaryExpr:
		return []Expr{n.Left, n.Right}
	case *AndExpr:
		return slices.Clone(n.Operands)
	case *OrExpr:
		return slices.Clone(n.Operands)
	case *NotExpr:
		return []Expr{n.Operand}
	case *IsNullExpr:
		return []Expr{n.Operand}
	case *InSetExpr:
		return []Expr{n.Elem, n.Set}
	case *InValuesExpr:
		return []Expr{n.Elem}
	case *RangeExpr:
		children := []Expr{n.Operand}
		if n.Lo != nil {
			children = append(children, n.Lo)
		}
		if n.Hi != nil {
			children = append(children, n.Hi)
		}
		return children
	case *UnaryExpr:
		return []Expr{n.Operand}
	case *TupleExpr:
		return slices.Clone(n.Elements)
	case *ElementExpr:
		return []Expr{n.Tuple}
	case *TypeTestExpr:
		return []Expr{n.Operand}
	default:
		panic(fmt.Sprintf("queryir: unknown expression %T", e))
	}
}

// Walk calls fn for e and its subexpressions, depth first. Children are
// skipped when fn returns false.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// Clone returns a deep copy of e. Every node of the copy is a fresh
// pointer, so a cloned tree never shares nodes with its original.
func Clone(e Expr) Expr {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case SetExpr:
		return CloneSet(n)
	case *LiteralExpr:
		return &LiteralExpr{Value: n.Value}
	case *ParamExpr:
		return &ParamExpr{Name: n.Name}
	case *ContextExpr:
		return &ContextExpr{}
	case *AttributeExpr:
		return &AttributeExpr{Context: Clone(n.Context), Type: n.Type, Name: n.Name}
	case *ReferenceExpr:
		return &ReferenceExpr{Context: Clone(n.Context), Type: n.Type, Name: n.Name, Part: n.Part}
	case *FlexExpr:
		return &FlexExpr{Context: Clone(n.Context), ValueKind: n.ValueKind, Name: n.Name}
	case *EvalExpr:
		return &EvalExpr{Context: Clone(n.Context), Inner: Clone(n.Inner)}
	case *BinaryExpr:
		return &BinaryExpr{Op: n.Op, Left: Clone(n.Left), Right: Clone(n.Right)}
	case *AndExpr:
		return &AndExpr{Operands: cloneAll(n.Operands)}
	case *OrExpr:
		return &OrExpr{Operands: cloneAll(n.Operands)}
	case *NotExpr:
		return &NotExpr{Operand: Clone(n.Operand)}
	case *IsNullExpr:
		return &IsNullExpr{Operand: Clone(n.Operand)}
	case *InSetExpr:
		return &InSetExpr{Elem: Clone(n.Elem), Set: CloneSet(n.Set)}
	case *InValuesExpr:
		return &InValuesExpr{Elem: Clone(n.Elem), Values: slices.Clone(n.Values)}
	case *RangeExpr:
		return &RangeExpr{Operand: Clone(n.Operand), Lo: Clone(n.Lo), Hi: Clone(n.Hi)}
	case *UnaryExpr:
		return &UnaryExpr{Op: n.Op, Operand: Clone(n.Operand)}
	case *TupleExpr:
		return &TupleExpr{Elements: cloneAll(n.Elements)}
	case *ElementExpr:
		return &ElementExpr{Tuple: Clone(n.Tuple), Index: n.Index}
	case *TypeTestExpr:
		return &TypeTestExpr{Operand: Clone(n.Operand), Type: n.Type, Exact: n.Exact}
	default:
		panic(fmt.Sprintf("queryir: unknown expression %T", e))
	}
}

// CloneSet is Clone for set expressions.
func CloneSet(s SetExpr) SetExpr {
	if s == nil {
		return nil
	}
	switch n := s.(type) {
	case *ScanExpr:
		return &ScanExpr{Type: n.Type, Polymorphic: n.Polymorphic}
	case *FilterExpr:
		return &FilterExpr{Source: CloneSet(n.Source), Predicate: Clone(n.Predicate)}
	case *MapExpr:
		return &MapExpr{Source: CloneSet(n.Source), Mapping: Clone(n.Mapping)}
	case *UnionExpr:
		return &UnionExpr{Left: CloneSet(n.Left), Right: CloneSet(n.Right)}
	case *CrossExpr:
		return &CrossExpr{Left: CloneSet(n.Left), Right: CloneSet(n.Right)}
	case *NavigateExpr:
		return &NavigateExpr{Forward: n.Forward, From: CloneSet(n.From), Via: n.Via, Target: n.Target}
	default:
		panic(fmt.Sprintf("queryir: unknown set expression %T", s))
	}
}

func cloneAll(exprs []Expr) []Expr {
	if exprs == nil {
		return nil
	}
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		out[i] = Clone(e)
	}
	return out
}

// Params returns the names of the parameters e refers to, in first
// occurrence order.
func Params(e Expr) []string {
	var names []string
	seen := make(map[string]bool)
	Walk(e, func(n Expr) bool {
		if p, ok := n.(*ParamExpr); ok && !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
		return true
	})
	return names
}
