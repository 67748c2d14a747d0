package history

import (
	"github.com/roach88/kbquery/internal/compiler"
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/ranges"
)

// cond returns the revisions of dom at which predicate x holds with the
// context ctx. Predicates are two valued: NULL operands make comparisons
// false, never unknown.
func (e *evaluator) cond(x queryir.Expr, ctx timeline, dom ranges.Set) (ranges.Set, error) {
	if dom.IsEmpty() {
		return nil, nil
	}
	switch n := x.(type) {
	case *queryir.BinaryExpr:
		l, err := e.value(n.Left, ctx, dom)
		if err != nil {
			return nil, err
		}
		r, err := e.value(n.Right, ctx, dom)
		if err != nil {
			return nil, err
		}
		return compare(n.Op, l, r, e.info.TypeOf(n.Left), e.info.TypeOf(n.Right), dom), nil

	case *queryir.AndExpr:
		holds := dom
		for _, op := range n.Operands {
			c, err := e.cond(op, ctx, holds)
			if err != nil {
				return nil, err
			}
			holds = c
		}
		return holds, nil

	case *queryir.OrExpr:
		var holds ranges.Set
		for _, op := range n.Operands {
			c, err := e.cond(op, ctx, ranges.Substract(dom, holds))
			if err != nil {
				return nil, err
			}
			holds = ranges.Union(holds, c)
		}
		return holds, nil

	case *queryir.NotExpr:
		c, err := e.cond(n.Operand, ctx, dom)
		if err != nil {
			return nil, err
		}
		return ranges.Substract(dom, c), nil

	case *queryir.IsNullExpr:
		v, err := e.value(n.Operand, ctx, dom)
		if err != nil {
			return nil, err
		}
		return isNull(v, e.info.TypeOf(n.Operand), dom), nil

	case *queryir.InSetExpr:
		sp := e.info.Subplans[n]
		if sp == nil || len(sp.Branches) == 0 || e.info.TypeOf(n.Elem).Kind == ir.KindNull {
			return nil, nil
		}
		v, err := e.value(n.Elem, ctx, dom)
		if err != nil {
			return nil, err
		}
		sub, err := e.subset(sp)
		if err != nil {
			return nil, err
		}
		var holds ranges.Set
		for _, p := range v {
			if hasNull(p.v) {
				continue
			}
			holds = ranges.Union(holds, ranges.Intersect(p.at, sub[identity(p.v)]))
		}
		return holds, nil

	case *queryir.InValuesExpr:
		v, err := e.value(n.Elem, ctx, dom)
		if err != nil {
			return nil, err
		}
		lt := e.info.TypeOf(n.Elem)
		var holds ranges.Set
		for _, val := range n.Values {
			lit := e.literal(val)
			c := compare(queryir.OpEq, v, constant(dom, lit), lt, literalType(lit), dom)
			holds = ranges.Union(holds, c)
		}
		return holds, nil

	case *queryir.RangeExpr:
		v, err := e.value(n.Operand, ctx, dom)
		if err != nil {
			return nil, err
		}
		vt := e.info.TypeOf(n.Operand)
		holds := dom
		for _, bound := range []struct {
			x  queryir.Expr
			op queryir.BinaryOp
		}{{n.Lo, queryir.OpGe}, {n.Hi, queryir.OpLe}} {
			if bound.x == nil {
				continue
			}
			b, err := e.value(bound.x, ctx, dom)
			if err != nil {
				return nil, err
			}
			holds = ranges.Intersect(holds, compare(bound.op, v, b, vt, e.info.TypeOf(bound.x), dom))
		}
		return holds, nil

	case *queryir.TypeTestExpr:
		if e.info.TypeOf(n.Operand).Kind != ir.KindItem {
			return nil, nil
		}
		v, err := e.value(n.Operand, ctx, dom)
		if err != nil {
			return nil, err
		}
		t := e.info.TypeTests[n]
		names := make(map[string]bool)
		if n.Exact {
			if t.Concrete() {
				names[t.Name] = true
			}
		} else {
			for _, c := range t.ConcreteSubtypes() {
				names[c.Name] = true
			}
		}
		return v.where(func(v ir.Value) bool {
			item, ok := v.(ir.Item)
			return ok && names[item.Type]
		}), nil

	default:
		if e.info.TypeOf(x).Kind == ir.KindNull {
			return nil, nil
		}
		v, err := e.value(x, ctx, dom)
		if err != nil {
			return nil, err
		}
		return v.where(func(v ir.Value) bool {
			return !ir.IsNull(v) && ir.Equal(v, ir.Int(1))
		}), nil
	}
}

// compare returns the revisions at which l op r holds. lt and rt are the
// static operand types: a NULL literal turns equality into a null test.
func compare(op queryir.BinaryOp, l, r timeline, lt, rt compiler.ValueType, dom ranges.Set) ranges.Set {
	lNull, rNull := lt.Kind == ir.KindNull, rt.Kind == ir.KindNull
	switch {
	case op.IsOrdering() && (lNull || rNull):
		return nil
	case lNull && rNull:
		return dom
	case lNull:
		return isNull(r, rt, dom)
	case rNull:
		return isNull(l, lt, dom)
	}

	return pairWhere(l, r, func(x, y ir.Value) bool {
		switch op {
		case queryir.OpEq:
			return ir.Equal(x, y)
		case queryir.OpEqCi:
			return ir.Equal(ir.Fold(x), ir.Fold(y))
		}
		x, y = first(x), first(y)
		if ir.IsNull(x) || ir.IsNull(y) {
			return false
		}
		c := ir.Compare(x, y)
		switch op {
		case queryir.OpGt:
			return c > 0
		case queryir.OpGe:
			return c >= 0
		case queryir.OpLt:
			return c < 0
		case queryir.OpLe:
			return c <= 0
		}
		return false
	})
}

// first is the leading stored column of a value, what ordering compares.
func first(v ir.Value) ir.Value {
	switch val := v.(type) {
	case ir.Item:
		return ir.Int(val.Branch)
	case ir.Tuple:
		if len(val) == 0 {
			return ir.Null{}
		}
		return first(val[0])
	default:
		return v
	}
}

func isNull(v timeline, t compiler.ValueType, dom ranges.Set) ranges.Set {
	switch t.Kind {
	case ir.KindTuple:
		return nil
	case ir.KindNull:
		return dom
	default:
		return v.where(ir.IsNull)
	}
}

func literalType(v ir.Value) compiler.ValueType {
	switch val := v.(type) {
	case nil, ir.Null:
		return compiler.Primitive(ir.KindNull)
	case ir.Item:
		return compiler.ValueType{Kind: ir.KindItem}
	case ir.Tuple:
		elems := make([]compiler.ValueType, len(val))
		for i, el := range val {
			elems[i] = literalType(el)
		}
		return compiler.TupleOf(elems...)
	default:
		return compiler.Primitive(v.Kind())
	}
}
