package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/kbquery/internal/compiler"
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/ranges"
	"github.com/roach88/kbquery/internal/schema"
	"github.com/roach88/kbquery/internal/store"
)

// Source provides the stored versions the evaluator reads. *store.Store
// implements it.
type Source interface {
	Versions(ctx context.Context, t *schema.Type) ([]store.Version, error)
	FlexVersions(ctx context.Context) ([]store.FlexVersion, error)
}

// Args are the execution time arguments of a history evaluation.
type Args struct {
	// Branch is the branch read by single branch programs. Item literals
	// and parameters without a branch default to it.
	Branch ir.BranchID
	Params map[string]ir.Value
}

// Result maps every item that was ever in the searched set to the
// revisions during which it was. Iteration order is unspecified, see Keys.
type Result map[ir.ObjectKey]ranges.Set

// Keys returns the items of r ordered by branch, type, id and binding.
func (r Result) Keys() []ir.ObjectKey {
	keys := make([]ir.ObjectKey, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// At returns the items that were in the set at revision rev, ordered like
// Keys.
func (r Result) At(rev int64) []ir.ObjectKey {
	keys := []ir.ObjectKey{}
	for k, s := range r {
		if s.Contains(rev) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b ir.ObjectKey) int {
	if c := a.ObjectBranchID().Compare(b.ObjectBranchID()); c != 0 {
		return c
	}
	switch {
	case a.Revision < b.Revision:
		return -1
	case a.Revision > b.Revision:
		return 1
	default:
		return 0
	}
}

// Evaluate computes the history of the items of p.
//
// p must search items; programs compiled with compiler.CompileHistory
// always do. Stored versions are loaded from src on first use, one type at
// a time.
func Evaluate(ctx context.Context, src Source, p *compiler.Program, args Args) (Result, error) {
	if p.Search.Elem.Kind != ir.KindItem {
		return nil, fmt.Errorf("history of %s: results must be items", p.Search.Elem)
	}
	if args.Branch == 0 {
		args.Branch = ir.TrunkBranch
	}

	e := &evaluator{
		ctx:     ctx,
		src:     src,
		p:       p,
		info:    p.Info,
		args:    args,
		objects: make(map[*schema.Type]map[ir.ObjectBranchID][]store.Version),
		subsets: make(map[*compiler.SetPlan]map[string]ranges.Set),
	}

	all, err := e.plan(p.Search)
	if err != nil {
		return nil, fmt.Errorf("evaluate history %s: %w", p.ID, err)
	}

	result := make(Result, all.len())
	for _, m := range all.byKey {
		item, ok := m.v.(ir.Item)
		if !ok {
			return nil, fmt.Errorf("evaluate history %s: element %s is not an item", p.ID, ir.Format(m.v))
		}
		result[item.Key()] = m.at
	}

	slog.Debug("evaluated history",
		"query_id", p.ID,
		"branch", args.Branch,
		"items", len(result))

	return result, nil
}

type flexKey struct {
	obj  ir.ObjectBranchID
	name string
}

type evaluator struct {
	ctx  context.Context
	src  Source
	p    *compiler.Program
	info *compiler.Info
	args Args

	objects map[*schema.Type]map[ir.ObjectBranchID][]store.Version
	flex    map[flexKey][]store.FlexVersion
	subsets map[*compiler.SetPlan]map[string]ranges.Set
}

// versions returns the stored versions of t, loading them on first use.
func (e *evaluator) versions(t *schema.Type) (map[ir.ObjectBranchID][]store.Version, error) {
	if objs, ok := e.objects[t]; ok {
		return objs, nil
	}
	vs, err := e.src.Versions(e.ctx, t)
	if err != nil {
		return nil, err
	}
	objs := make(map[ir.ObjectBranchID][]store.Version)
	for _, v := range vs {
		objs[v.Object] = append(objs[v.Object], v)
	}
	e.objects[t] = objs
	return objs, nil
}

func (e *evaluator) flexVersions(obj ir.ObjectBranchID, name string) ([]store.FlexVersion, error) {
	if e.flex == nil {
		fvs, err := e.src.FlexVersions(e.ctx)
		if err != nil {
			return nil, err
		}
		e.flex = make(map[flexKey][]store.FlexVersion)
		for _, fv := range fvs {
			k := flexKey{fv.Object, fv.Attr}
			e.flex[k] = append(e.flex[k], fv)
		}
	}
	return e.flex[flexKey{obj, name}], nil
}

func (e *evaluator) plan(sp *compiler.SetPlan) (*members, error) {
	all := newMembers()
	for _, br := range sp.Branches {
		m, err := e.set(br.Set, ranges.All())
		if err != nil {
			return nil, err
		}
		all.merge(m)
	}
	return all, nil
}

// subset returns the membership revisions of the elements of a membership
// test, by identity. Membership sets do not depend on the context, each is
// evaluated once.
func (e *evaluator) subset(sp *compiler.SetPlan) (map[string]ranges.Set, error) {
	if s, ok := e.subsets[sp]; ok {
		return s, nil
	}
	m, err := e.plan(sp)
	if err != nil {
		return nil, err
	}
	s := m.byIdentity()
	e.subsets[sp] = s
	return s, nil
}

// set evaluates a set expression within dom.
func (e *evaluator) set(s queryir.SetExpr, dom ranges.Set) (*members, error) {
	switch n := s.(type) {
	case *queryir.ScanExpr:
		t := e.info.Scans[n]
		objs, err := e.versions(t)
		if err != nil {
			return nil, err
		}
		out := newMembers()
		for obj, vs := range objs {
			if e.p.Branch == queryir.BranchSingle && obj.Branch != e.args.Branch {
				continue
			}
			var alive ranges.Set
			for _, v := range vs {
				alive = ranges.Union(alive, ranges.Of(v.RevMin, v.RevMax))
			}
			out.add(ir.NewItem(obj), ranges.Intersect(alive, dom))
		}
		return out, nil

	case *queryir.FilterExpr:
		src, err := e.set(n.Source, dom)
		if err != nil {
			return nil, err
		}
		out := newMembers()
		for _, m := range src.byKey {
			holds, err := e.cond(n.Predicate, constant(m.at, m.v), m.at)
			if err != nil {
				return nil, err
			}
			out.add(m.v, holds)
		}
		return out, nil

	case *queryir.MapExpr:
		src, err := e.set(n.Source, dom)
		if err != nil {
			return nil, err
		}
		out := newMembers()
		for _, m := range src.byKey {
			tl, err := e.value(n.Mapping, constant(m.at, m.v), m.at)
			if err != nil {
				return nil, err
			}
			for _, p := range tl {
				if !ir.IsNull(p.v) {
					out.add(p.v, p.at)
				}
			}
		}
		return out, nil

	case *queryir.CrossExpr:
		left, err := e.set(n.Left, dom)
		if err != nil {
			return nil, err
		}
		right, err := e.set(n.Right, dom)
		if err != nil {
			return nil, err
		}
		out := newMembers()
		for _, l := range left.byKey {
			for _, r := range right.byKey {
				out.add(ir.Tuple{l.v, r.v}, ranges.Intersect(l.at, r.at))
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%s is not an expanded set", queryir.Print(s))
	}
}

// value evaluates x with the context ctx during dom. The result is total
// over dom.
func (e *evaluator) value(x queryir.Expr, ctx timeline, dom ranges.Set) (timeline, error) {
	tl, err := e.eval(x, ctx, dom)
	if err != nil {
		return nil, err
	}
	return tl.fill(dom), nil
}

func (e *evaluator) eval(x queryir.Expr, ctx timeline, dom ranges.Set) (timeline, error) {
	switch n := x.(type) {
	case *queryir.ContextExpr:
		return ctx, nil

	case *queryir.LiteralExpr:
		return constant(dom, e.literal(n.Value)), nil

	case *queryir.ParamExpr:
		v, err := e.param(n.Name)
		if err != nil {
			return nil, err
		}
		return constant(dom, v), nil

	case *queryir.AttributeExpr:
		p, err := e.value(n.Context, ctx, dom)
		if err != nil {
			return nil, err
		}
		a := e.info.Attrs[n]
		return p.apply(func(v ir.Value, at ranges.Set) (timeline, error) {
			return e.attribute(v, a, at)
		})

	case *queryir.ReferenceExpr:
		p, err := e.value(n.Context, ctx, dom)
		if err != nil {
			return nil, err
		}
		a := e.info.Attrs[n]
		return p.apply(func(v ir.Value, at ranges.Set) (timeline, error) {
			stored, err := e.attribute(v, a, at)
			if err != nil {
				return nil, err
			}
			parent, _ := v.(ir.Item)
			return stored.apply(func(s ir.Value, at ranges.Set) (timeline, error) {
				return constant(at, referencePart(a, n.Part, parent, s)), nil
			})
		})

	case *queryir.FlexExpr:
		p, err := e.value(n.Context, ctx, dom)
		if err != nil {
			return nil, err
		}
		return p.apply(func(v ir.Value, at ranges.Set) (timeline, error) {
			return e.flexValue(v, n, at)
		})

	case *queryir.EvalExpr:
		inner, err := e.value(n.Context, ctx, dom)
		if err != nil {
			return nil, err
		}
		return e.eval(n.Inner, inner, dom)

	case *queryir.UnaryExpr:
		if e.info.TypeOf(n.Operand).Kind != ir.KindItem {
			return constant(dom, ir.Null{}), nil
		}
		p, err := e.value(n.Operand, ctx, dom)
		if err != nil {
			return nil, err
		}
		return p.apply(func(v ir.Value, at ranges.Set) (timeline, error) {
			return constant(at, unary(n.Op, v)), nil
		})

	case *queryir.TupleExpr:
		acc := constant(dom, ir.Tuple{})
		for _, el := range n.Elements {
			tl, err := e.value(el, ctx, dom)
			if err != nil {
				return nil, err
			}
			acc = pair(acc, tl, func(t, v ir.Value) ir.Value {
				return append(slices.Clone(t.(ir.Tuple)), v)
			})
		}
		return acc, nil

	case *queryir.ElementExpr:
		t, err := e.value(n.Tuple, ctx, dom)
		if err != nil {
			return nil, err
		}
		return t.apply(func(v ir.Value, at ranges.Set) (timeline, error) {
			if tuple, ok := v.(ir.Tuple); ok && n.Index < len(tuple) {
				return constant(at, tuple[n.Index]), nil
			}
			return constant(at, ir.Null{}), nil
		})

	case *queryir.BinaryExpr, *queryir.AndExpr, *queryir.OrExpr, *queryir.NotExpr, *queryir.IsNullExpr,
		*queryir.InSetExpr, *queryir.InValuesExpr, *queryir.RangeExpr, *queryir.TypeTestExpr:
		holds, err := e.cond(x, ctx, dom)
		if err != nil {
			return nil, err
		}
		return append(constant(holds, ir.Bool(true)), constant(ranges.Substract(dom, holds), ir.Bool(false))...), nil

	case queryir.SetExpr:
		return nil, fmt.Errorf("set %s used as a value", queryir.Print(n))

	default:
		return nil, fmt.Errorf("cannot evaluate %T", x)
	}
}

// literal binds item constants without a branch to the queried branch.
func (e *evaluator) literal(v ir.Value) ir.Value {
	switch val := v.(type) {
	case nil:
		return ir.Null{}
	case ir.Item:
		if val.Branch == 0 {
			val.Branch = e.args.Branch
		}
		if val.Revision == 0 {
			val.Revision = ir.CurrentRevision
		}
		return val
	case ir.Tuple:
		out := make(ir.Tuple, len(val))
		for i, el := range val {
			out[i] = e.literal(el)
		}
		return out
	default:
		return v
	}
}

func (e *evaluator) param(name string) (ir.Value, error) {
	decl, ok := e.p.Param(name)
	if !ok {
		return nil, fmt.Errorf("parameter $%s is not declared", name)
	}
	v, ok := e.args.Params[name]
	if !ok {
		return nil, fmt.Errorf("parameter $%s is not bound", name)
	}
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}
	if v.Kind() != decl.Kind {
		return nil, fmt.Errorf("parameter $%s requires %s, got %s", name, decl.Kind, v.Kind())
	}
	return e.literal(v), nil
}

// attribute returns the stored value of a for the item v during at.
// Items that do not exist at the revision they read, and items whose
// type does not declare a, have NULL attributes.
func (e *evaluator) attribute(v ir.Value, a *schema.Attribute, at ranges.Set) (timeline, error) {
	item, ok := v.(ir.Item)
	if !ok {
		return nil, nil
	}
	t, ok := e.p.System.Type(item.Type)
	if !ok || !t.Concrete() || !t.IsSubtypeOf(a.Owner) {
		return nil, nil
	}
	objs, err := e.versions(t)
	if err != nil {
		return nil, err
	}
	vs := objs[item.Key().ObjectBranchID()]
	spans := make([]span, len(vs))
	for i, ver := range vs {
		spans[i] = span{min: ver.RevMin, max: ver.RevMax, v: ver.Values[a.Name]}
	}
	return read(item.Revision, at, spans), nil
}

func (e *evaluator) flexValue(v ir.Value, n *queryir.FlexExpr, at ranges.Set) (timeline, error) {
	item, ok := v.(ir.Item)
	if !ok {
		return nil, nil
	}
	fvs, err := e.flexVersions(item.Key().ObjectBranchID(), n.Name)
	if err != nil {
		return nil, err
	}
	spans := make([]span, 0, len(fvs))
	for _, fv := range fvs {
		if fv.Value.Kind() == n.ValueKind {
			spans = append(spans, span{min: fv.RevMin, max: fv.RevMax, v: fv.Value})
		}
	}
	return read(item.Revision, at, spans), nil
}

// span is a value stored from min through max.
type span struct {
	min, max int64
	v        ir.Value
}

// read returns the stored value seen by an item bound at binding during
// at. A live binding reads the state of each revision, a fixed binding
// reads the state at the bound revision throughout.
func read(binding int64, at ranges.Set, spans []span) timeline {
	var out timeline
	for _, s := range spans {
		if binding == ir.CurrentRevision {
			out = append(out, constant(ranges.Intersect(at, ranges.Of(s.min, s.max)), s.v)...)
			continue
		}
		if s.min <= binding && binding <= s.max {
			return constant(at, s.v)
		}
	}
	return out
}

// referencePart derives what a reference expression yields from the
// stored value s of reference a of parent.
func referencePart(a *schema.Attribute, part queryir.RefPart, parent ir.Item, s ir.Value) ir.Value {
	target, ok := s.(ir.Item)
	if !ok {
		return ir.Null{}
	}
	switch part {
	case queryir.PartItem:
		switch a.History {
		case schema.HistoryCurrent:
			target.Revision = parent.Revision
		case schema.HistoryMixed:
			if target.Revision == ir.CurrentRevision {
				target.Revision = parent.Revision
			}
		}
		return target
	case queryir.PartBranch:
		return ir.Int(target.Branch)
	case queryir.PartID:
		return ir.String(target.ID)
	case queryir.PartType:
		return ir.String(target.Type)
	case queryir.PartRevision:
		if a.HasRevisionColumn() {
			return ir.Int(target.Revision)
		}
		return ir.Int(ir.CurrentRevision)
	default:
		return ir.Null{}
	}
}

func unary(op queryir.UnaryOp, v ir.Value) ir.Value {
	item, ok := v.(ir.Item)
	if !ok {
		return ir.Null{}
	}
	switch op {
	case queryir.OpBranch:
		return ir.Int(item.Branch)
	case queryir.OpTypeName:
		return ir.String(item.Type)
	case queryir.OpIdentifier:
		return ir.String(item.ID)
	case queryir.OpRevision:
		return ir.Int(item.Revision)
	default:
		return ir.Null{}
	}
}
