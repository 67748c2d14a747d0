package compiler

import (
	"fmt"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/schema"
)

// kindInvalid marks the type of a node that failed to type check. Checks
// involving it are skipped so one mistake is reported once.
const kindInvalid ir.Kind = -1

var invalid = ValueType{Kind: kindInvalid}

func (t ValueType) valid() bool {
	if t.Kind == kindInvalid {
		return false
	}
	for _, e := range t.Elems {
		if !e.valid() {
			return false
		}
	}
	return true
}

// binder assigns static types to query nodes and resolves type and
// attribute names. Errors are recorded in diag and binding continues.
type binder struct {
	ts     *schema.TypeSystem
	info   *Info
	diag   *Diagnostics
	params map[string]ValueType
}

func newBinder(ts *schema.TypeSystem, info *Info, diag *Diagnostics) *binder {
	return &binder{ts: ts, info: info, diag: diag, params: make(map[string]ValueType)}
}

func (b *binder) errorf(code string, e queryir.Expr, format string, args ...any) {
	te := &TypeError{Code: code, Message: fmt.Sprintf(format, args...)}
	if e != nil {
		te.Expr = queryir.Print(e)
	}
	b.diag.Add(te)
}

func (b *binder) lookupType(e queryir.Expr, name string) (*schema.Type, bool) {
	t, ok := b.ts.Type(name)
	if !ok {
		b.errorf(ErrUnknownType, e, "unknown type %q", name)
	}
	return t, ok
}

// declare records the parameter declarations.
func (b *binder) declare(decls []queryir.ParamDecl) {
	for _, d := range decls {
		if d.Name == "" {
			b.errorf(ErrInvalidParam, nil, "parameter without a name")
			continue
		}
		if _, dup := b.params[d.Name]; dup {
			b.errorf(ErrInvalidParam, nil, "parameter %q declared twice", d.Name)
			continue
		}
		switch d.Kind {
		case ir.KindString, ir.KindInt, ir.KindBool:
			b.params[d.Name] = Primitive(d.Kind)
		case ir.KindItem:
			t := b.ts.Root()
			if d.Type != "" {
				var ok bool
				if t, ok = b.ts.Type(d.Type); !ok {
					b.errorf(ErrUnknownType, nil, "parameter %q: unknown type %q", d.Name, d.Type)
					b.params[d.Name] = invalid
					continue
				}
			}
			b.params[d.Name] = ItemOf(t)
		default:
			b.errorf(ErrInvalidParam, nil, "parameter %q: kind %s cannot be bound", d.Name, d.Kind)
			b.params[d.Name] = invalid
		}
	}
}

// plan types the branches of an expanded set and records the unified
// element type.
func (b *binder) plan(p *SetPlan, withOrder bool) {
	var elem ValueType
	for i, br := range p.Branches {
		t := b.set(br.Set)
		if withOrder {
			for _, o := range br.Order {
				b.orderKey(o, t)
			}
		}
		if i == 0 {
			elem = t
			continue
		}
		u, ok := unify(elem, t)
		if !ok {
			b.errorf(ErrUnionMismatch, br.Set, "branch of type %s in a union of %s", t, elem)
			continue
		}
		elem = u
	}
	if len(p.Branches) > 0 {
		p.Elem = elem
	}
}

// orderKey checks that e, evaluated on elements of type elem, is a
// primitive value.
func (b *binder) orderKey(e queryir.Expr, elem ValueType) {
	t := b.expr(e, &elem)
	if t.valid() && !t.IsPrimitive() && t.Kind != ir.KindNull {
		b.errorf(ErrInvalidOrderKey, e, "order key must be a string, int or bool, got %s", t)
	}
}

// set types a set expression and returns its element type.
func (b *binder) set(s queryir.SetExpr) ValueType {
	if s == nil {
		b.errorf(ErrMissingOperand, nil, "missing set expression")
		return invalid
	}
	elem := b.bindSet(s)
	b.info.Types[s] = elem
	return elem
}

func (b *binder) bindSet(s queryir.SetExpr) ValueType {
	switch n := s.(type) {
	case *queryir.ScanExpr:
		t, ok := b.lookupType(n, n.Type)
		if !ok {
			return invalid
		}
		if !n.Polymorphic && !t.Concrete() {
			b.errorf(ErrAbstractScan, n, "%s has no instances of its own, use anyOf", t.Name)
			return invalid
		}
		b.info.Scans[n] = t
		return ItemOf(t)

	case *queryir.FilterExpr:
		elem := b.set(n.Source)
		p := b.expr(n.Predicate, &elem)
		b.predicate(n.Predicate, p)
		return elem

	case *queryir.MapExpr:
		src := b.set(n.Source)
		if n.Mapping != nil {
			if _, isSet := n.Mapping.(queryir.SetExpr); isSet {
				b.errorf(ErrSetInScalar, n.Mapping, "map requires a scalar mapping")
				return invalid
			}
		}
		return b.expr(n.Mapping, &src)

	case *queryir.UnionExpr:
		l := b.set(n.Left)
		r := b.set(n.Right)
		if !l.valid() || !r.valid() {
			return invalid
		}
		u, ok := unify(l, r)
		if !ok {
			b.errorf(ErrUnionMismatch, n, "union of %s and %s", l, r)
			return invalid
		}
		return u

	case *queryir.CrossExpr:
		return TupleOf(b.set(n.Left), b.set(n.Right))

	case *queryir.NavigateExpr:
		return b.navigate(n)

	default:
		panic(fmt.Sprintf("compiler: unknown set expression %T", s))
	}
}

func (b *binder) navigate(n *queryir.NavigateExpr) ValueType {
	from := b.set(n.From)
	via, okVia := b.lookupType(n, n.Via)
	target, okTarget := b.lookupType(n, n.Target)
	if !okVia || !okTarget {
		return invalid
	}
	if !via.IsAssociation() {
		b.errorf(ErrNotAssociation, n, "%s is not an association", via.Name)
		return invalid
	}
	near, okNear := via.Attribute(schema.SourceAttribute)
	far, okFar := via.Attribute(schema.DestAttribute)
	if !okNear || !okFar {
		b.errorf(ErrNotAssociation, n, "%s does not declare both ends", via.Name)
		return invalid
	}
	if !n.Forward {
		near, far = far, near
	}
	if from.valid() {
		switch {
		case from.Kind != ir.KindItem:
			b.errorf(ErrNotItem, n.From, "navigate requires a set of items, got %s", from)
		case !overlaps(from.Item, near.Target):
			b.errorf(ErrIncompatibleType, n, "%s items are never the %s of %s", from.Item.Name, near.Name, via.Name)
		}
	}
	if !overlaps(target, far.Target) {
		b.errorf(ErrIncompatibleType, n, "%s items are never the %s of %s", target.Name, far.Name, via.Name)
	}
	return ItemOf(target)
}

// predicate checks that a node of type t can be used as a condition.
func (b *binder) predicate(e queryir.Expr, t ValueType) {
	if t.valid() && t.Kind != ir.KindBool {
		b.errorf(ErrNotPredicate, e, "predicate must be boolean, got %s", t)
	}
}

// expr types a scalar expression evaluated with ctx as context. ctx is nil
// outside filter and map.
func (b *binder) expr(e queryir.Expr, ctx *ValueType) ValueType {
	if e == nil {
		b.errorf(ErrMissingOperand, nil, "missing operand")
		return invalid
	}
	t := b.bindExpr(e, ctx)
	b.info.Types[e] = t
	return t
}

func (b *binder) bindExpr(e queryir.Expr, ctx *ValueType) ValueType {
	switch n := e.(type) {
	case queryir.SetExpr:
		b.errorf(ErrSetInScalar, n, "set expression used as a value")
		return invalid

	case *queryir.LiteralExpr:
		return b.literal(n, n.Value)

	case *queryir.ParamExpr:
		t, ok := b.params[n.Name]
		if !ok {
			b.errorf(ErrUnknownParam, n, "parameter %q is not declared", n.Name)
			return invalid
		}
		return t

	case *queryir.ContextExpr:
		if ctx == nil {
			b.errorf(ErrNoContext, n, "context() outside filter or map")
			return invalid
		}
		return *ctx

	case *queryir.AttributeExpr:
		c := b.expr(n.Context, ctx)
		a := b.resolveAttribute(n, c, n.Type, n.Name)
		if a == nil {
			return invalid
		}
		if a.IsReference() {
			b.errorf(ErrReferenceAttribute, n, "%s is a reference, use reference()", a)
			return invalid
		}
		b.info.Attrs[n] = a
		return Primitive(a.Kind.ValueKind())

	case *queryir.ReferenceExpr:
		c := b.expr(n.Context, ctx)
		a := b.resolveAttribute(n, c, n.Type, n.Name)
		if a == nil {
			return invalid
		}
		if !a.IsReference() {
			b.errorf(ErrNotReference, n, "%s is not a reference, use attribute()", a)
			return invalid
		}
		b.info.Attrs[n] = a
		switch n.Part {
		case queryir.PartItem:
			return ItemOf(a.Target)
		case queryir.PartID, queryir.PartType:
			return Primitive(ir.KindString)
		case queryir.PartBranch, queryir.PartRevision:
			return Primitive(ir.KindInt)
		default:
			b.errorf(ErrNotReference, n, "unknown reference part %s", n.Part)
			return invalid
		}

	case *queryir.FlexExpr:
		c := b.expr(n.Context, ctx)
		switch n.ValueKind {
		case ir.KindString, ir.KindInt, ir.KindBool:
		default:
			b.errorf(ErrInvalidFlexKind, n, "flex attributes hold strings, ints or bools, not %s", n.ValueKind)
			return invalid
		}
		if c.valid() && c.Kind != ir.KindItem {
			b.errorf(ErrNotItem, n, "flex() requires an item, got %s", c)
			return invalid
		}
		return Primitive(n.ValueKind)

	case *queryir.EvalExpr:
		c := b.expr(n.Context, ctx)
		if !c.valid() {
			return invalid
		}
		return b.expr(n.Inner, &c)

	case *queryir.BinaryExpr:
		return b.binary(n, ctx)

	case *queryir.AndExpr:
		for _, o := range n.Operands {
			b.predicate(o, b.expr(o, ctx))
		}
		return boolType

	case *queryir.OrExpr:
		for _, o := range n.Operands {
			b.predicate(o, b.expr(o, ctx))
		}
		return boolType

	case *queryir.NotExpr:
		b.predicate(n.Operand, b.expr(n.Operand, ctx))
		return boolType

	case *queryir.IsNullExpr:
		b.expr(n.Operand, ctx)
		return boolType

	case *queryir.InSetExpr:
		elem := b.expr(n.Elem, ctx)
		var set ValueType
		if sp, ok := b.info.Subplans[n]; ok {
			b.plan(sp, false)
			set = sp.Elem
		} else {
			set = b.set(n.Set)
		}
		if elem.valid() && set.valid() {
			if _, ok := unify(elem, set); !ok {
				b.errorf(ErrIncompatibleOperand, n, "%s is never a member of a set of %s", elem, set)
			}
		}
		return boolType

	case *queryir.InValuesExpr:
		elem := b.expr(n.Elem, ctx)
		for _, v := range n.Values {
			vt := b.literal(n, v)
			if elem.valid() && vt.valid() && !equatable(elem, vt) {
				b.errorf(ErrIncompatibleOperand, n, "%s compared with %s", elem, vt)
			}
		}
		return boolType

	case *queryir.RangeExpr:
		op := b.expr(n.Operand, ctx)
		if op.valid() && !op.IsPrimitive() && op.Kind != ir.KindNull {
			b.errorf(ErrIncompatibleOperand, n, "attributeRange requires a primitive operand, got %s", op)
			return boolType
		}
		for _, bound := range []queryir.Expr{n.Lo, n.Hi} {
			if bound == nil {
				continue
			}
			bt := b.expr(bound, ctx)
			if op.valid() && bt.valid() && !orderable(op, bt) {
				b.errorf(ErrIncompatibleOperand, n, "range bound %s for %s operand", bt, op)
			}
		}
		return boolType

	case *queryir.UnaryExpr:
		op := b.expr(n.Operand, ctx)
		if op.valid() && op.Kind != ir.KindItem {
			b.errorf(ErrNotItem, n, "%s() requires an item, got %s", n.Op, op)
			return invalid
		}
		switch n.Op {
		case queryir.OpBranch, queryir.OpRevision:
			return Primitive(ir.KindInt)
		default:
			return Primitive(ir.KindString)
		}

	case *queryir.TupleExpr:
		elems := make([]ValueType, len(n.Elements))
		for i, el := range n.Elements {
			elems[i] = b.expr(el, ctx)
		}
		return TupleOf(elems...)

	case *queryir.ElementExpr:
		t := b.expr(n.Tuple, ctx)
		if !t.valid() {
			return invalid
		}
		if t.Kind != ir.KindTuple {
			b.errorf(ErrNotTuple, n, "element() requires a tuple, got %s", t)
			return invalid
		}
		if n.Index < 0 || n.Index >= len(t.Elems) {
			b.errorf(ErrIndexOutOfRange, n, "index %d of a %d element tuple", n.Index, len(t.Elems))
			return invalid
		}
		return t.Elems[n.Index]

	case *queryir.TypeTestExpr:
		op := b.expr(n.Operand, ctx)
		t, ok := b.lookupType(n, n.Type)
		if !ok {
			return boolType
		}
		if op.valid() && op.Kind != ir.KindItem {
			b.errorf(ErrNotItem, n, "type test requires an item, got %s", op)
			return boolType
		}
		b.info.TypeTests[n] = t
		return boolType

	default:
		panic(fmt.Sprintf("compiler: unknown expression %T", e))
	}
}

func (b *binder) binary(n *queryir.BinaryExpr, ctx *ValueType) ValueType {
	l := b.expr(n.Left, ctx)
	r := b.expr(n.Right, ctx)
	if !l.valid() || !r.valid() {
		return boolType
	}
	switch {
	case n.Op == queryir.OpEq:
		if !equatable(l, r) {
			b.errorf(ErrIncompatibleOperand, n, "%s compared with %s", l, r)
		}
	case n.Op == queryir.OpEqCi:
		if !isStringOrNull(l) || !isStringOrNull(r) {
			b.errorf(ErrIncompatibleOperand, n, "eqCi compares strings, got %s and %s", l, r)
		}
	case n.Op.IsOrdering():
		if !orderable(l, r) {
			b.errorf(ErrIncompatibleOperand, n, "%s ordered against %s", l, r)
		}
	}
	return boolType
}

func isStringOrNull(t ValueType) bool {
	return t.Kind == ir.KindString || t.Kind == ir.KindNull
}

// orderable reports whether a and b can be compared by order: primitives
// of the same kind, or null.
func orderable(a, b ValueType) bool {
	if a.Kind == ir.KindNull {
		return b.IsPrimitive() || b.Kind == ir.KindNull
	}
	if b.Kind == ir.KindNull {
		return a.IsPrimitive()
	}
	return a.IsPrimitive() && a.Kind == b.Kind
}

func (b *binder) literal(e queryir.Expr, v ir.Value) ValueType {
	switch val := v.(type) {
	case nil, ir.Null:
		return Primitive(ir.KindNull)
	case ir.Item:
		t, ok := b.lookupType(e, val.Type)
		if !ok {
			return invalid
		}
		if !t.Concrete() {
			b.errorf(ErrAbstractScan, e, "item literal of %s, a type without instances of its own", t.Name)
			return invalid
		}
		return ItemOf(t)
	case ir.Tuple:
		elems := make([]ValueType, len(val))
		for i, c := range val {
			elems[i] = b.literal(e, c)
		}
		return TupleOf(elems...)
	default:
		return Primitive(v.Kind())
	}
}

// resolveAttribute looks up attribute name on items of type c. A non empty
// typeName names the declaring type explicitly, which may be a subtype of
// c: the access then reads NULL for items that are not typeName instances.
func (b *binder) resolveAttribute(e queryir.Expr, c ValueType, typeName, name string) *schema.Attribute {
	if !c.valid() {
		return nil
	}
	if c.Kind != ir.KindItem {
		b.errorf(ErrNotItem, e, "attribute access requires an item, got %s", c)
		return nil
	}
	decl := c.Item
	if typeName != "" {
		t, ok := b.lookupType(e, typeName)
		if !ok {
			return nil
		}
		if !overlaps(c.Item, t) {
			b.errorf(ErrIncompatibleType, e, "%s items are never %s instances", c.Item.Name, t.Name)
			return nil
		}
		decl = t
	}
	a, ok := decl.Attribute(name)
	if !ok {
		b.errorf(ErrUnknownAttribute, e, "%s has no attribute %q", decl.Name, name)
		return nil
	}
	return a
}
