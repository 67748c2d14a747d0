package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/schema"
)

// computeConcrete records, for every item and tuple valued node of the
// expanded plan, the concrete types its values may have.
func computeConcrete(ts *schema.TypeSystem, info *Info, plan *SetPlan) error {
	c := &concreteComputer{ts: ts, info: info}
	c.plan(plan)
	return c.err
}

type concreteComputer struct {
	ts   *schema.TypeSystem
	info *Info
	err  error
}

func (c *concreteComputer) plan(p *SetPlan) {
	for _, br := range p.Branches {
		elem := c.set(br.Set)
		for _, o := range br.Order {
			c.expr(o, &elem)
		}
	}
}

func (c *concreteComputer) record(e queryir.Expr, ts TypeSet) TypeSet {
	if ts.Len() > 0 || len(ts.Elems) > 0 {
		c.info.Concrete[e] = ts
	}
	return ts
}

func (c *concreteComputer) set(s queryir.SetExpr) TypeSet {
	switch n := s.(type) {
	case *queryir.ScanExpr:
		return c.record(n, TypeSet{Types: []*schema.Type{c.info.Scans[n]}})
	case *queryir.FilterExpr:
		elem := c.set(n.Source)
		c.expr(n.Predicate, &elem)
		return c.record(n, elem)
	case *queryir.MapExpr:
		src := c.set(n.Source)
		return c.record(n, c.expr(n.Mapping, &src))
	case *queryir.CrossExpr:
		return c.record(n, TypeSet{Elems: []TypeSet{c.set(n.Left), c.set(n.Right)}})
	case *queryir.UnionExpr:
		// Only present as the printable form of an expanded membership set.
		l := c.set(n.Left)
		r := c.set(n.Right)
		return c.record(n, mergeTypeSets(l, r))
	default:
		panic(fmt.Sprintf("compiler: %T in an expanded query", s))
	}
}

func (c *concreteComputer) expr(e queryir.Expr, ctx *TypeSet) TypeSet {
	switch n := e.(type) {
	case *queryir.ContextExpr:
		return c.record(n, *ctx)

	case *queryir.LiteralExpr:
		return c.record(n, c.literal(n.Value))

	case *queryir.ParamExpr:
		t := c.info.Types[n]
		if t.Kind != ir.KindItem {
			return TypeSet{}
		}
		return c.record(n, TypeSet{Types: t.Item.ConcreteSubtypes()})

	case *queryir.ReferenceExpr:
		c.expr(n.Context, ctx)
		if n.Part != queryir.PartItem {
			return TypeSet{}
		}
		a := c.info.Attrs[n]
		targets := a.Target.ConcreteSubtypes()
		if a.BranchGlobal && a.History == schema.HistoryMixed && len(targets) > 1 && c.err == nil {
			c.err = &UnsupportedError{
				Code:    ErrCrossBranchMixed,
				Message: fmt.Sprintf("%s is a branch global mixed reference to %d concrete types", a, len(targets)),
				Expr:    queryir.Print(n),
			}
		}
		return c.record(n, TypeSet{Types: targets})

	case *queryir.EvalExpr:
		inner := c.expr(n.Context, ctx)
		return c.record(n, c.expr(n.Inner, &inner))

	case *queryir.TupleExpr:
		elems := make([]TypeSet, len(n.Elements))
		for i, el := range n.Elements {
			elems[i] = c.expr(el, ctx)
		}
		return c.record(n, TypeSet{Elems: elems})

	case *queryir.ElementExpr:
		t := c.expr(n.Tuple, ctx)
		if n.Index < len(t.Elems) {
			return c.record(n, t.Elems[n.Index])
		}
		return TypeSet{}

	case *queryir.InSetExpr:
		c.expr(n.Elem, ctx)
		if sp, ok := c.info.Subplans[n]; ok {
			c.plan(sp)
		}
		return TypeSet{}

	default:
		for _, child := range queryir.Children(e) {
			c.expr(child, ctx)
		}
		return TypeSet{}
	}
}

func (c *concreteComputer) literal(v ir.Value) TypeSet {
	switch val := v.(type) {
	case ir.Item:
		if t, ok := c.ts.Type(val.Type); ok {
			return TypeSet{Types: []*schema.Type{t}}
		}
	case ir.Tuple:
		elems := make([]TypeSet, len(val))
		for i, el := range val {
			elems[i] = c.literal(el)
		}
		return TypeSet{Elems: elems}
	}
	return TypeSet{}
}

// mergeTypeSets is the union of two concrete type sets, sorted by name.
func mergeTypeSets(a, b TypeSet) TypeSet {
	seen := make(map[*schema.Type]bool)
	var out TypeSet
	for _, t := range append(append([]*schema.Type{}, a.Types...), b.Types...) {
		if !seen[t] {
			seen[t] = true
			out.Types = append(out.Types, t)
		}
	}
	slices.SortFunc(out.Types, func(x, y *schema.Type) int { return strings.Compare(x.Name, y.Name) })
	if len(a.Elems) == len(b.Elems) {
		for i := range a.Elems {
			out.Elems = append(out.Elems, mergeTypeSets(a.Elems[i], b.Elems[i]))
		}
	}
	return out
}
