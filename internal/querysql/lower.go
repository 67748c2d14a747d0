package querysql

import (
	"fmt"

	"github.com/roach88/kbquery/internal/compiler"
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/schema"
	"github.com/roach88/kbquery/internal/store"
)

// Values map to columns as follows:
//
//	item     BRANCH, TYPE, IDENTIFIER, REVISION   (bound revision, Current for live)
//	scalar   one column
//	tuple    the columns of its components
//
// A NULL item has a NULL identifier column.

var (
	revisionParam = Param{Slot: Slot{Kind: SlotRevision}}
	branchParam   = Param{Slot: Slot{Kind: SlotBranch}}
	currentValue  = Value{V: ir.CurrentRevision}
	boolType      = compiler.Primitive(ir.KindBool)
)

var orderingOps = map[queryir.BinaryOp]string{
	queryir.OpGt: ">",
	queryir.OpGe: ">=",
	queryir.OpLt: "<",
	queryir.OpLe: "<=",
}

// flexRow keys the KB_FLEX join of a flex symbol.
const flexRow = "\x00flex"

type lowerer struct {
	p       *compiler.Program
	info    *compiler.Info
	arena   *compiler.Arena
	aliases int
}

func lower(p *compiler.Program) (*Query, error) {
	l := &lowerer{p: p, info: p.Info, arena: p.Arena}
	q := &Query{}
	w := width(p.Search.Elem)

	var orderTerms []OrderTerm
	for i, br := range p.Search.Branches {
		b := l.newSelect()
		b.sel.Distinct = len(p.Search.Branches) == 1

		v, err := b.set(br.Set)
		if err != nil {
			return nil, err
		}
		if len(v.cols) != w {
			return nil, fmt.Errorf("%s yields %d columns, want %d", queryir.Print(br.Set), len(v.cols), w)
		}
		for j, c := range v.cols {
			b.sel.Columns = append(b.sel.Columns, Output{Expr: c, Alias: fmt.Sprintf("c%d", j)})
		}

		n := 0
		for k, o := range br.Order {
			ov, err := b.value(o, v)
			if err != nil {
				return nil, fmt.Errorf("order key %d: %w", k+1, err)
			}
			for _, c := range ov.cols {
				alias := fmt.Sprintf("o%d", n)
				b.sel.Columns = append(b.sel.Columns, Output{Expr: c, Alias: alias})
				if i == 0 {
					orderTerms = append(orderTerms, OrderTerm{Alias: alias, Descending: p.Descending[k]})
				}
				n++
			}
		}
		if i > 0 && len(b.sel.Columns) != len(q.Selects[0].Columns) {
			return nil, fmt.Errorf("%s yields %d result columns, want %d", queryir.Print(br.Set), len(b.sel.Columns), len(q.Selects[0].Columns))
		}
		q.Selects = append(q.Selects, b.sel)
	}

	q.OrderBy = orderTerms
	for j := range w {
		q.OrderBy = append(q.OrderBy, OrderTerm{Alias: fmt.Sprintf("c%d", j)})
	}

	switch p.Range {
	case queryir.RangeFirst:
		q.Limit = Lit("1")
	case queryir.RangeHead:
		q.Limit = Param{Slot: Slot{Kind: SlotStop}}
	case queryir.RangeWindow:
		q.Limit = Param{Slot: Slot{Kind: SlotCount}}
		q.Offset = Param{Slot: Slot{Kind: SlotStart}}
	}
	return q, nil
}

// subquery lowers the set of a membership test. Its rows are the
// comparison keys of the elements.
func (l *lowerer) subquery(sp *compiler.SetPlan) (*Query, error) {
	q := &Query{}
	for _, br := range sp.Branches {
		b := l.newSelect()
		v, err := b.set(br.Set)
		if err != nil {
			return nil, err
		}
		for _, c := range keys(v) {
			b.sel.Columns = append(b.sel.Columns, Output{Expr: c})
		}
		q.Selects = append(q.Selects, b.sel)
	}
	return q, nil
}

func (l *lowerer) alias(prefix string) string {
	a := fmt.Sprintf("%s%d", prefix, l.aliases)
	l.aliases++
	return a
}

// rowKey identifies the table instance holding the row of an item symbol
// for one concrete type.
type rowKey struct {
	sym  compiler.SymbolID
	name string
}

// selectBuilder lowers one branch into one SELECT.
type selectBuilder struct {
	l     *lowerer
	sel   *Select
	rows  map[rowKey]string
	items map[compiler.SymbolID][]Expr
}

func (l *lowerer) newSelect() *selectBuilder {
	return &selectBuilder{
		l:     l,
		sel:   &Select{},
		rows:  make(map[rowKey]string),
		items: make(map[compiler.SymbolID][]Expr),
	}
}

// value is a lowered expression: its columns, static type and symbol.
type value struct {
	cols []Expr
	typ  compiler.ValueType
	sym  compiler.SymbolID
}

func (b *selectBuilder) where(conds ...Expr) {
	b.sel.Where = append(b.sel.Where, conds...)
}

func (b *selectBuilder) set(s queryir.SetExpr) (value, error) {
	info := b.l.info
	switch n := s.(type) {
	case *queryir.ScanExpr:
		t := info.Scans[n]
		sym := info.SymbolOf(n)
		alias := b.l.alias("t")
		b.sel.From = append(b.sel.From, Table{Name: t.Name, Alias: alias})
		b.rows[rowKey{sym, t.Name}] = alias
		b.where(
			Binary{Op: "<=", Left: Column{alias, schema.ColRevMin}, Right: revisionParam},
			Binary{Op: ">=", Left: Column{alias, schema.ColRevMax}, Right: revisionParam},
		)
		if b.l.p.Branch == queryir.BranchSingle {
			b.where(Binary{Op: "=", Left: Column{alias, schema.ColBranch}, Right: branchParam})
		}
		item := []Expr{Column{alias, schema.ColBranch}, Value{t.Name}, Column{alias, schema.ColIdentifier}, currentValue}
		b.items[sym] = item
		return value{cols: item, typ: compiler.ItemOf(t), sym: sym}, nil

	case *queryir.FilterExpr:
		src, err := b.set(n.Source)
		if err != nil {
			return value{}, err
		}
		c, err := b.cond(n.Predicate, src)
		if err != nil {
			return value{}, err
		}
		b.where(c)
		return src, nil

	case *queryir.MapExpr:
		src, err := b.set(n.Source)
		if err != nil {
			return value{}, err
		}
		v, err := b.value(n.Mapping, src)
		if err != nil {
			return value{}, err
		}
		if v.typ.Kind != ir.KindTuple {
			b.where(Not{Operand: b.isNull(v)})
		}
		return v, nil

	case *queryir.CrossExpr:
		left, err := b.set(n.Left)
		if err != nil {
			return value{}, err
		}
		right, err := b.set(n.Right)
		if err != nil {
			return value{}, err
		}
		cols := append(append([]Expr{}, left.cols...), right.cols...)
		return value{cols: cols, typ: info.TypeOf(n), sym: info.SymbolOf(n)}, nil

	default:
		return value{}, fmt.Errorf("%s is not an expanded set", queryir.Print(s))
	}
}

func (b *selectBuilder) value(e queryir.Expr, ctx value) (value, error) {
	info := b.l.info
	switch n := e.(type) {
	case *queryir.ContextExpr:
		return ctx, nil

	case *queryir.LiteralExpr:
		return value{cols: literal(n.Value), typ: info.TypeOf(n), sym: info.SymbolOf(n)}, nil

	case *queryir.ParamExpr:
		t := info.TypeOf(n)
		if t.Kind == ir.KindItem {
			cols := make([]Expr, 0, 4)
			for _, part := range []queryir.RefPart{queryir.PartBranch, queryir.PartType, queryir.PartID, queryir.PartRevision} {
				cols = append(cols, Param{Slot: Slot{Kind: SlotParam, Param: n.Name, Part: part}})
			}
			return value{cols: cols, typ: t, sym: info.SymbolOf(n)}, nil
		}
		return value{cols: []Expr{Param{Slot: Slot{Kind: SlotParam, Param: n.Name}}}, typ: t, sym: compiler.NoSymbol}, nil

	case *queryir.AttributeExpr:
		p, err := b.value(n.Context, ctx)
		if err != nil {
			return value{}, err
		}
		a := info.Attrs[n]
		col, err := b.column(p, a, a.Column())
		if err != nil {
			return value{}, err
		}
		return value{cols: []Expr{col}, typ: info.TypeOf(n), sym: info.SymbolOf(n)}, nil

	case *queryir.ReferenceExpr:
		return b.referencePart(n, ctx)

	case *queryir.FlexExpr:
		p, err := b.value(n.Context, ctx)
		if err != nil {
			return value{}, err
		}
		alias, err := b.flex(p, info.SymbolOf(n), n)
		if err != nil {
			return value{}, err
		}
		return value{cols: []Expr{Column{alias, "VAL"}}, typ: info.TypeOf(n), sym: info.SymbolOf(n)}, nil

	case *queryir.EvalExpr:
		inner, err := b.value(n.Context, ctx)
		if err != nil {
			return value{}, err
		}
		return b.value(n.Inner, inner)

	case *queryir.UnaryExpr:
		p, err := b.value(n.Operand, ctx)
		if err != nil {
			return value{}, err
		}
		if p.typ.Kind != ir.KindItem {
			return value{cols: []Expr{Lit("NULL")}, typ: info.TypeOf(n), sym: compiler.NoSymbol}, nil
		}
		var i int
		switch n.Op {
		case queryir.OpBranch:
			i = 0
		case queryir.OpTypeName:
			i = 1
		case queryir.OpIdentifier:
			i = 2
		case queryir.OpRevision:
			i = 3
		default:
			return value{}, fmt.Errorf("unknown unary operator %s", n.Op)
		}
		return value{cols: []Expr{p.cols[i]}, typ: info.TypeOf(n), sym: compiler.NoSymbol}, nil

	case *queryir.TupleExpr:
		var cols []Expr
		for _, el := range n.Elements {
			v, err := b.value(el, ctx)
			if err != nil {
				return value{}, err
			}
			cols = append(cols, v.cols...)
		}
		return value{cols: cols, typ: info.TypeOf(n), sym: info.SymbolOf(n)}, nil

	case *queryir.ElementExpr:
		t, err := b.value(n.Tuple, ctx)
		if err != nil {
			return value{}, err
		}
		if t.typ.Kind != ir.KindTuple || n.Index >= len(t.typ.Elems) {
			return value{}, fmt.Errorf("%s does not select a tuple component", queryir.Print(n))
		}
		off := 0
		for _, el := range t.typ.Elems[:n.Index] {
			off += width(el)
		}
		w := width(t.typ.Elems[n.Index])
		return value{cols: t.cols[off : off+w], typ: t.typ.Elems[n.Index], sym: info.SymbolOf(n)}, nil

	case *queryir.BinaryExpr, *queryir.AndExpr, *queryir.OrExpr, *queryir.NotExpr, *queryir.IsNullExpr,
		*queryir.InSetExpr, *queryir.InValuesExpr, *queryir.RangeExpr, *queryir.TypeTestExpr:
		c, err := b.cond(e, ctx)
		if err != nil {
			return value{}, err
		}
		return value{cols: []Expr{c}, typ: boolType, sym: compiler.NoSymbol}, nil

	case queryir.SetExpr:
		return value{}, fmt.Errorf("set %s used as a value", queryir.Print(n))

	default:
		return value{}, fmt.Errorf("cannot lower %T", e)
	}
}

func (b *selectBuilder) referencePart(n *queryir.ReferenceExpr, ctx value) (value, error) {
	info := b.l.info
	p, err := b.value(n.Context, ctx)
	if err != nil {
		return value{}, err
	}
	a := info.Attrs[n]
	sym := info.SymbolOf(n)
	typ := info.TypeOf(n)

	switch n.Part {
	case queryir.PartItem, queryir.PartBranch:
		item, err := b.reference(p, a, sym)
		if err != nil {
			return value{}, err
		}
		if n.Part == queryir.PartBranch {
			return value{cols: item[:1], typ: typ, sym: compiler.NoSymbol}, nil
		}
		return value{cols: item, typ: typ, sym: sym}, nil
	case queryir.PartID:
		col, err := b.column(p, a, a.Column())
		return value{cols: []Expr{col}, typ: typ, sym: compiler.NoSymbol}, err
	case queryir.PartType:
		col, err := b.column(p, a, a.TypeColumn())
		return value{cols: []Expr{col}, typ: typ, sym: compiler.NoSymbol}, err
	case queryir.PartRevision:
		if a.HasRevisionColumn() {
			col, err := b.column(p, a, a.RevisionColumn())
			return value{cols: []Expr{col}, typ: typ, sym: compiler.NoSymbol}, err
		}
		id, err := b.column(p, a, a.Column())
		return value{cols: []Expr{nullUnless(id, currentValue)}, typ: typ, sym: compiler.NoSymbol}, err
	default:
		return value{}, fmt.Errorf("unknown reference part %s", n.Part)
	}
}

// reference returns the item columns of the target of reference a of p.
func (b *selectBuilder) reference(p value, a *schema.Attribute, sym compiler.SymbolID) ([]Expr, error) {
	if sym == compiler.NoSymbol {
		return nil, fmt.Errorf("reference %s of a computed item", a)
	}
	if cols, ok := b.items[sym]; ok {
		return cols, nil
	}

	id, err := b.column(p, a, a.Column())
	if err != nil {
		return nil, err
	}
	typ, err := b.column(p, a, a.TypeColumn())
	if err != nil {
		return nil, err
	}

	branch := nullUnless(id, p.cols[0])
	if a.BranchGlobal {
		if branch, err = b.column(p, a, a.BranchColumn()); err != nil {
			return nil, err
		}
	}

	var rev Expr
	switch a.History {
	case schema.HistoryCurrent:
		rev = nullUnless(id, p.cols[3])
	case schema.HistoryHistoric:
		if rev, err = b.column(p, a, a.RevisionColumn()); err != nil {
			return nil, err
		}
	case schema.HistoryMixed:
		stored, err := b.column(p, a, a.RevisionColumn())
		if err != nil {
			return nil, err
		}
		rev = Case{
			Whens: []When{{Cond: Binary{Op: "=", Left: stored, Right: currentValue}, Result: p.cols[3]}},
			Else:  stored,
		}
	default:
		return nil, fmt.Errorf("reference %s: unknown history type %s", a, a.History)
	}

	cols := []Expr{branch, typ, id, rev}
	b.items[sym] = cols
	return cols, nil
}

// column reads storage column col of attribute a of item p. When p may
// have several concrete types declaring a, the column is selected by the
// type of p.
func (b *selectBuilder) column(p value, a *schema.Attribute, col string) (Expr, error) {
	if p.sym == compiler.NoSymbol {
		return nil, fmt.Errorf("attribute %s of a computed item", a)
	}
	sym := b.l.arena.Get(p.sym)

	var arms []When
	for _, t := range sym.Concrete {
		if !t.IsSubtypeOf(a.Owner) {
			continue
		}
		alias, err := b.row(p, t)
		if err != nil {
			return nil, err
		}
		arms = append(arms, When{
			Cond:   Binary{Op: "=", Left: p.cols[1], Right: Value{t.Name}},
			Result: Column{alias, col},
		})
	}
	switch len(arms) {
	case 0:
		return Lit("NULL"), nil
	case 1:
		return arms[0].Result, nil
	default:
		return Case{Whens: arms}, nil
	}
}

// row returns the alias of the table instance holding the state of item p
// as a t, joining it on first use.
func (b *selectBuilder) row(p value, t *schema.Type) (string, error) {
	key := rowKey{p.sym, t.Name}
	if alias, ok := b.rows[key]; ok {
		return alias, nil
	}
	if b.l.arena.Get(p.sym).Kind == compiler.TableSymbol {
		return "", fmt.Errorf("scan of %s has no %s rows", b.l.arena.Get(p.sym).Type.Name, t.Name)
	}

	alias := b.l.alias("j")
	eff := effective(p.cols[3])
	b.sel.Joins = append(b.sel.Joins, Join{
		Table: Table{Name: t.Name, Alias: alias},
		On: And{
			Binary{Op: "=", Left: Column{alias, schema.ColBranch}, Right: p.cols[0]},
			Binary{Op: "=", Left: Column{alias, schema.ColIdentifier}, Right: p.cols[2]},
			Binary{Op: "=", Left: p.cols[1], Right: Value{t.Name}},
			Binary{Op: "<=", Left: Column{alias, schema.ColRevMin}, Right: eff},
			Binary{Op: ">=", Left: Column{alias, schema.ColRevMax}, Right: eff},
		},
	})
	b.rows[key] = alias
	return alias, nil
}

// flex returns the alias of the KB_FLEX instance of flex symbol sym.
func (b *selectBuilder) flex(p value, sym compiler.SymbolID, n *queryir.FlexExpr) (string, error) {
	if sym == compiler.NoSymbol || p.typ.Kind != ir.KindItem {
		return "", fmt.Errorf("flex attribute %q of a computed item", n.Name)
	}
	key := rowKey{sym, flexRow}
	if alias, ok := b.rows[key]; ok {
		return alias, nil
	}

	alias := b.l.alias("f")
	eff := effective(p.cols[3])
	b.sel.Joins = append(b.sel.Joins, Join{
		Table: Table{Name: store.FlexTable, Alias: alias},
		On: And{
			Binary{Op: "=", Left: Column{alias, schema.ColBranch}, Right: p.cols[0]},
			Binary{Op: "=", Left: Column{alias, "TYPE"}, Right: p.cols[1]},
			Binary{Op: "=", Left: Column{alias, schema.ColIdentifier}, Right: p.cols[2]},
			Binary{Op: "=", Left: Column{alias, "ATTR"}, Right: Value{n.Name}},
			Binary{Op: "=", Left: Column{alias, "KIND"}, Right: Value{n.ValueKind.String()}},
			Binary{Op: "<=", Left: Column{alias, schema.ColRevMin}, Right: eff},
			Binary{Op: ">=", Left: Column{alias, schema.ColRevMax}, Right: eff},
		},
	})
	b.rows[key] = alias
	return alias, nil
}

// cond lowers a predicate to a condition that is never NULL.
func (b *selectBuilder) cond(e queryir.Expr, ctx value) (Expr, error) {
	info := b.l.info
	switch n := e.(type) {
	case *queryir.BinaryExpr:
		l, err := b.value(n.Left, ctx)
		if err != nil {
			return nil, err
		}
		r, err := b.value(n.Right, ctx)
		if err != nil {
			return nil, err
		}
		return b.compare(n.Op, l, r), nil

	case *queryir.AndExpr:
		and := And{}
		for _, op := range n.Operands {
			c, err := b.cond(op, ctx)
			if err != nil {
				return nil, err
			}
			and = append(and, c)
		}
		return and, nil

	case *queryir.OrExpr:
		or := Or{}
		for _, op := range n.Operands {
			c, err := b.cond(op, ctx)
			if err != nil {
				return nil, err
			}
			or = append(or, c)
		}
		return or, nil

	case *queryir.NotExpr:
		c, err := b.cond(n.Operand, ctx)
		if err != nil {
			return nil, err
		}
		return Not{Operand: c}, nil

	case *queryir.IsNullExpr:
		v, err := b.value(n.Operand, ctx)
		if err != nil {
			return nil, err
		}
		return b.isNull(v), nil

	case *queryir.InSetExpr:
		v, err := b.value(n.Elem, ctx)
		if err != nil {
			return nil, err
		}
		sp := info.Subplans[n]
		if sp == nil || len(sp.Branches) == 0 || v.typ.Kind == ir.KindNull {
			return Lit("0"), nil
		}
		sub, err := b.l.subquery(sp)
		if err != nil {
			return nil, err
		}
		left := keys(v)
		var elem Expr = Row(left)
		if len(left) == 1 {
			elem = left[0]
		}
		return ifNull(In{Left: elem, Query: sub}), nil

	case *queryir.InValuesExpr:
		v, err := b.value(n.Elem, ctx)
		if err != nil {
			return nil, err
		}
		or := Or{}
		for _, val := range n.Values {
			lit := value{cols: literal(val), typ: literalType(val), sym: compiler.NoSymbol}
			or = append(or, b.compare(queryir.OpEq, v, lit))
		}
		return or, nil

	case *queryir.RangeExpr:
		v, err := b.value(n.Operand, ctx)
		if err != nil {
			return nil, err
		}
		and := And{}
		for _, bound := range []struct {
			e  queryir.Expr
			op queryir.BinaryOp
		}{{n.Lo, queryir.OpGe}, {n.Hi, queryir.OpLe}} {
			if bound.e == nil {
				continue
			}
			bv, err := b.value(bound.e, ctx)
			if err != nil {
				return nil, err
			}
			and = append(and, b.compare(bound.op, v, bv))
		}
		return and, nil

	case *queryir.TypeTestExpr:
		v, err := b.value(n.Operand, ctx)
		if err != nil {
			return nil, err
		}
		if v.typ.Kind != ir.KindItem {
			return Lit("0"), nil
		}
		t := info.TypeTests[n]
		var names []Expr
		if n.Exact {
			if t.Concrete() {
				names = append(names, Value{t.Name})
			}
		} else {
			for _, c := range t.ConcreteSubtypes() {
				names = append(names, Value{c.Name})
			}
		}
		if len(names) == 0 {
			return Lit("0"), nil
		}
		return ifNull(In{Left: v.cols[1], List: names}), nil

	default:
		v, err := b.value(e, ctx)
		if err != nil {
			return nil, err
		}
		if v.typ.Kind == ir.KindNull {
			return Lit("0"), nil
		}
		return Binary{Op: "IS", Left: v.cols[0], Right: Lit("1")}, nil
	}
}

// compare lowers a two valued comparison. Equality is null safe, ordering
// is false when either side is NULL, items compare by identity.
func (b *selectBuilder) compare(op queryir.BinaryOp, l, r value) Expr {
	lNull, rNull := l.typ.Kind == ir.KindNull, r.typ.Kind == ir.KindNull
	switch {
	case op.IsOrdering() && (lNull || rNull):
		return Lit("0")
	case lNull && rNull:
		return Lit("1")
	case lNull:
		return b.isNull(r)
	case rNull:
		return b.isNull(l)
	}

	switch op {
	case queryir.OpEq:
		lk, rk := keys(l), keys(r)
		if len(lk) == 1 {
			return Binary{Op: "IS", Left: lk[0], Right: rk[0]}
		}
		and := make(And, len(lk))
		for i := range lk {
			and[i] = Binary{Op: "IS", Left: lk[i], Right: rk[i]}
		}
		return and
	case queryir.OpEqCi:
		return Binary{
			Op:    "IS",
			Left:  Func{Name: store.FoldFunction, Args: []Expr{l.cols[0]}},
			Right: Func{Name: store.FoldFunction, Args: []Expr{r.cols[0]}},
		}
	default:
		return ifNull(Binary{Op: orderingOps[op], Left: l.cols[0], Right: r.cols[0]})
	}
}

func (b *selectBuilder) isNull(v value) Expr {
	switch v.typ.Kind {
	case ir.KindItem:
		return IsNull{Operand: v.cols[2]}
	case ir.KindTuple:
		return Lit("0")
	case ir.KindNull:
		return Lit("1")
	default:
		return IsNull{Operand: v.cols[0]}
	}
}

// keys returns the columns identifying v: item revisions are dropped.
func keys(v value) []Expr {
	out, _ := keyCols(v.typ, v.cols)
	return out
}

func keyCols(t compiler.ValueType, cols []Expr) ([]Expr, []Expr) {
	switch t.Kind {
	case ir.KindItem:
		return cols[:3], cols[4:]
	case ir.KindTuple:
		var out []Expr
		for _, e := range t.Elems {
			var k []Expr
			k, cols = keyCols(e, cols)
			out = append(out, k...)
		}
		return out, cols
	default:
		return cols[:1], cols[1:]
	}
}

// effective is the revision an item bound at rev reads state at: the
// queried revision for live bindings.
func effective(rev Expr) Expr {
	if v, ok := rev.(Value); ok && v.V == any(ir.CurrentRevision) {
		return revisionParam
	}
	return Case{
		Whens: []When{{Cond: Binary{Op: "=", Left: rev, Right: currentValue}, Result: revisionParam}},
		Else:  rev,
	}
}

func nullUnless(id, e Expr) Expr {
	return Case{Whens: []When{{Cond: IsNull{Operand: id}, Result: Lit("NULL")}}, Else: e}
}

func ifNull(e Expr) Expr {
	return Func{Name: "IFNULL", Args: []Expr{e, Lit("0")}}
}

// literal returns the columns of a constant.
func literal(v ir.Value) []Expr {
	switch val := v.(type) {
	case nil, ir.Null:
		return []Expr{Lit("NULL")}
	case ir.Item:
		branch := Expr(Value{int64(val.Branch)})
		if val.Branch == 0 {
			branch = branchParam
		}
		rev := val.Revision
		if rev == 0 {
			rev = ir.CurrentRevision
		}
		return []Expr{branch, Value{val.Type}, Value{val.ID}, Value{rev}}
	case ir.Tuple:
		var cols []Expr
		for _, el := range val {
			cols = append(cols, literal(el)...)
		}
		return cols
	default:
		dv, _ := ir.DriverValue(v)
		return []Expr{Value{dv}}
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
