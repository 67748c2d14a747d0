package compiler

import (
	"fmt"

	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/schema"
)

// expander rewrites a type checked query into a union of branches over
// exact scans:
//
//   - navigate is desugared into filter and map over the association
//   - anyOf(T) becomes one allOf per concrete subtype of T
//   - filter, map and crossProduct distribute over unions
//   - attribute and reference accesses name their declaring type
//
// The expanded branches share no nodes with each other or with the input.
type expander struct {
	ts       *schema.TypeSystem
	resolved *Info // types of the input query
	subplans map[*queryir.InSetExpr]*SetPlan
}

func newExpander(ts *schema.TypeSystem, resolved *Info) *expander {
	return &expander{
		ts:       ts,
		resolved: resolved,
		subplans: make(map[*queryir.InSetExpr]*SetPlan),
	}
}

// plan expands s and gives every branch its own copy of the order keys.
func (x *expander) plan(s queryir.SetExpr, order []queryir.Expr) *SetPlan {
	p := &SetPlan{Elem: x.resolved.Types[s]}
	for _, set := range prune(x.expand(s)) {
		br := &Branch{Set: set}
		for _, o := range order {
			br.Order = append(br.Order, x.scalar(o))
		}
		p.Branches = append(p.Branches, br)
	}
	return p
}

// expand returns the branches of s. Each call builds fresh nodes.
func (x *expander) expand(s queryir.SetExpr) []queryir.SetExpr {
	switch n := s.(type) {
	case *queryir.ScanExpr:
		t := x.resolved.Scans[n]
		if !n.Polymorphic {
			return []queryir.SetExpr{queryir.AllOf(t.Name)}
		}
		var branches []queryir.SetExpr
		for _, c := range t.ConcreteSubtypes() {
			branches = append(branches, queryir.AllOf(c.Name))
		}
		return branches

	case *queryir.FilterExpr:
		var branches []queryir.SetExpr
		for _, src := range x.expand(n.Source) {
			branches = append(branches, queryir.Filter(src, x.scalar(n.Predicate)))
		}
		return branches

	case *queryir.MapExpr:
		var branches []queryir.SetExpr
		for _, src := range x.expand(n.Source) {
			branches = append(branches, queryir.Map(src, x.scalar(n.Mapping)))
		}
		return branches

	case *queryir.UnionExpr:
		return append(x.expand(n.Left), x.expand(n.Right)...)

	case *queryir.CrossExpr:
		var branches []queryir.SetExpr
		for _, l := range x.expand(n.Left) {
			for _, r := range x.expand(n.Right) {
				branches = append(branches, queryir.CrossProduct(l, r))
			}
		}
		return branches

	case *queryir.NavigateExpr:
		return x.expand(x.desugar(n))

	default:
		panic(fmt.Sprintf("compiler: unknown set expression %T", s))
	}
}

// desugar rewrites navigate as a filter over the association:
//
//	map(filter(anyOf(Via), and(inSet(near, From), instanceOf(far, Target))), far)
//
// near is the source end for forward navigation, dest otherwise.
func (x *expander) desugar(n *queryir.NavigateExpr) queryir.SetExpr {
	via := x.ts.MustType(n.Via)
	nearName, farName := schema.SourceAttribute, schema.DestAttribute
	if !n.Forward {
		nearName, farName = farName, nearName
	}
	// Schema validation and binding both reject associations without a
	// source and a dest reference, so both ends exist here.
	end := func(name string) queryir.Expr {
		a, ok := via.Attribute(name)
		if !ok {
			panic(fmt.Sprintf("compiler: association %s has no %s end", via.Name, name))
		}
		return queryir.Reference(queryir.Context(), a.Owner.Name, name)
	}
	links := queryir.AnyOf(via.Name)
	x.resolved.Scans[links.(*queryir.ScanExpr)] = via
	return queryir.Map(
		queryir.Filter(links, queryir.And(
			queryir.InSet(end(nearName), n.From),
			queryir.InstanceOf(end(farName), n.Target),
		)),
		end(farName),
	)
}

// scalar copies a scalar expression, qualifying attribute accesses and
// expanding the set of every membership test.
func (x *expander) scalar(e queryir.Expr) queryir.Expr {
	switch n := e.(type) {
	case *queryir.AttributeExpr:
		return &queryir.AttributeExpr{Context: x.scalar(n.Context), Type: x.owner(n, n.Type), Name: n.Name}
	case *queryir.ReferenceExpr:
		return &queryir.ReferenceExpr{Context: x.scalar(n.Context), Type: x.owner(n, n.Type), Name: n.Name, Part: n.Part}
	case *queryir.FlexExpr:
		return &queryir.FlexExpr{Context: x.scalar(n.Context), ValueKind: n.ValueKind, Name: n.Name}
	case *queryir.EvalExpr:
		return &queryir.EvalExpr{Context: x.scalar(n.Context), Inner: x.scalar(n.Inner)}
	case *queryir.BinaryExpr:
		return &queryir.BinaryExpr{Op: n.Op, Left: x.scalar(n.Left), Right: x.scalar(n.Right)}
	case *queryir.AndExpr:
		return &queryir.AndExpr{Operands: x.scalars(n.Operands)}
	case *queryir.OrExpr:
		return &queryir.OrExpr{Operands: x.scalars(n.Operands)}
	case *queryir.NotExpr:
		return &queryir.NotExpr{Operand: x.scalar(n.Operand)}
	case *queryir.IsNullExpr:
		return &queryir.IsNullExpr{Operand: x.scalar(n.Operand)}
	case *queryir.InSetExpr:
		sub := x.plan(n.Set, nil)
		var set queryir.SetExpr
		if len(sub.Branches) > 0 {
			rest := make([]queryir.SetExpr, 0, len(sub.Branches)-1)
			for _, br := range sub.Branches[1:] {
				rest = append(rest, br.Set)
			}
			set = queryir.Union(sub.Branches[0].Set, rest...)
		}
		in := &queryir.InSetExpr{Elem: x.scalar(n.Elem), Set: set}
		x.subplans[in] = sub
		return in
	case *queryir.InValuesExpr:
		return &queryir.InValuesExpr{Elem: x.scalar(n.Elem), Values: n.Values}
	case *queryir.RangeExpr:
		r := &queryir.RangeExpr{Operand: x.scalar(n.Operand)}
		if n.Lo != nil {
			r.Lo = x.scalar(n.Lo)
		}
		if n.Hi != nil {
			r.Hi = x.scalar(n.Hi)
		}
		return r
	case *queryir.UnaryExpr:
		return &queryir.UnaryExpr{Op: n.Op, Operand: x.scalar(n.Operand)}
	case *queryir.TupleExpr:
		return &queryir.TupleExpr{Elements: x.scalars(n.Elements)}
	case *queryir.ElementExpr:
		return &queryir.ElementExpr{Tuple: x.scalar(n.Tuple), Index: n.Index}
	case *queryir.TypeTestExpr:
		return &queryir.TypeTestExpr{Operand: x.scalar(n.Operand), Type: n.Type, Exact: n.Exact}
	default:
		// Literals, parameters and context.
		return queryir.Clone(e)
	}
}

func (x *expander) scalars(exprs []queryir.Expr) []queryir.Expr {
	out := make([]queryir.Expr, len(exprs))
	for i, e := range exprs {
		out[i] = x.scalar(e)
	}
	return out
}

// owner names the type declaring the attribute e resolved to.
func (x *expander) owner(e queryir.Expr, typeName string) string {
	if a, ok := x.resolved.Attrs[e]; ok {
		return a.Owner.Name
	}
	return typeName
}

// prune drops branches that cannot contribute elements: repeats of a bare
// scan, and selections over a type that another branch already scans
// bare. Order is preserved.
func prune(branches []queryir.SetExpr) []queryir.SetExpr {
	bare := make(map[string]bool)
	for _, b := range branches {
		if s, ok := b.(*queryir.ScanExpr); ok {
			bare[s.Type] = true
		}
	}
	var kept []queryir.SetExpr
	seen := make(map[string]bool)
	for _, b := range branches {
		if s, ok := b.(*queryir.ScanExpr); ok {
			if seen[s.Type] {
				continue
			}
			seen[s.Type] = true
			kept = append(kept, b)
			continue
		}
		if t, ok := selectionType(b); ok && bare[t] {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// selectionType returns the scanned type of a branch made of a scan and
// filters only.
func selectionType(s queryir.SetExpr) (string, bool) {
	for {
		switch n := s.(type) {
		case *queryir.FilterExpr:
			s = n.Source
		case *queryir.ScanExpr:
			return n.Type, true
		default:
			return "", false
		}
	}
}
