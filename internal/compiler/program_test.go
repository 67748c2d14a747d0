package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/testutil"
)

func mustCompile(t *testing.T, q *queryir.RevisionQuery) *Program {
	t.Helper()
	p, err := Compile(testutil.FixtureSystem(t), q)
	require.NoError(t, err)
	return p
}

func TestCompile_Expansion(t *testing.T) {
	ctx := queryir.Context
	tests := []struct {
		name string
		set  queryir.SetExpr
		want string
	}{
		{
			name: "exact scan",
			set:  queryir.AllOf("B"),
			want: "allOf(B)",
		},
		{
			name: "polymorphic scan",
			set:  queryir.AnyOf("A"),
			want: "allOf(B)\nallOf(C)",
		},
		{
			name: "union type",
			set:  queryir.AnyOf("BorC"),
			want: "allOf(B)\nallOf(C)",
		},
		{
			name: "filter distributes and qualifies",
			set:  queryir.Filter(queryir.AnyOf("A"), queryir.Eq(nameOf(ctx()), queryir.Str("x"))),
			want: `filter(allOf(B), eq(attribute(context(), A.name), "x"))` + "\n" +
				`filter(allOf(C), eq(attribute(context(), A.name), "x"))`,
		},
		{
			name: "map qualifies inherited attribute",
			set:  queryir.Map(queryir.AnyOf("D"), queryir.Attribute(ctx(), "", "D1")),
			want: "map(allOf(D), attribute(context(), D.D1))\nmap(allOf(DSub), attribute(context(), D.D1))",
		},
		{
			name: "cross product distributes both sides",
			set:  queryir.CrossProduct(queryir.AnyOf("A"), queryir.AllOf("D")),
			want: "crossProduct(allOf(B), allOf(D))\ncrossProduct(allOf(C), allOf(D))",
		},
		{
			name: "navigation",
			set:  queryir.NavigateForwards(queryir.AllOf("C"), "AB", "B"),
			want: "map(filter(allOf(AB), and(inSet(reference(context(), AB.source), allOf(C)), " +
				"instanceOf(reference(context(), AB.dest), B))), reference(context(), AB.dest))",
		},
		{
			name: "membership set expands",
			set:  queryir.Filter(queryir.AllOf("B"), queryir.InSet(queryir.Reference(ctx(), "", "ref"), queryir.AnyOf("A"))),
			want: "filter(allOf(B), inSet(reference(context(), B.ref), union(allOf(B), allOf(C))))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustCompile(t, search(tt.set))
			assert.Equal(t, tt.want, p.Search.String())
		})
	}
}

func TestCompile_Pruning(t *testing.T) {
	pred := queryir.Eq(queryir.Attribute(queryir.Context(), "", "b"), queryir.Str("x"))

	t.Run("subtype scan is covered by supertype scan", func(t *testing.T) {
		p := mustCompile(t, search(queryir.Union(queryir.AnyOf("A"), queryir.AllOf("B"))))
		assert.Equal(t, "allOf(B)\nallOf(C)", p.Search.String())
	})

	t.Run("selection is covered by bare scan", func(t *testing.T) {
		p := mustCompile(t, search(queryir.Union(queryir.AllOf("B"), queryir.Filter(queryir.AllOf("B"), pred))))
		assert.Equal(t, "allOf(B)", p.Search.String())
	})

	t.Run("selection over another type is kept", func(t *testing.T) {
		p := mustCompile(t, search(queryir.Union(queryir.AllOf("C"), queryir.Filter(queryir.AllOf("B"), pred))))
		require.Len(t, p.Search.Branches, 2)
	})
}

func TestCompile_ElementType(t *testing.T) {
	p := mustCompile(t, search(queryir.Union(queryir.AllOf("B"), queryir.AllOf("C"))))
	assert.Equal(t, "item(A)", p.Search.Elem.String())

	p = mustCompile(t, search(queryir.Map(queryir.AllOf("B"), nameOf(queryir.Context()))))
	assert.Equal(t, ir.KindString, p.Search.Elem.Kind)

	p = mustCompile(t, search(queryir.CrossProduct(queryir.AllOf("B"), queryir.AllOf("D"))))
	assert.Equal(t, "tuple(item(B), item(D))", p.Search.Elem.String())
}

func TestCompile_DoesNotModifyInput(t *testing.T) {
	q := search(queryir.Filter(queryir.AnyOf("A"), queryir.Eq(nameOf(queryir.Context()), queryir.Str("x"))))
	before := queryir.PrintQuery(q)

	mustCompile(t, q)

	assert.Equal(t, before, queryir.PrintQuery(q))
}

func TestCompile_Deterministic(t *testing.T) {
	build := func() *queryir.RevisionQuery {
		return &queryir.RevisionQuery{
			Range:  queryir.RangeHead,
			Search: queryir.NavigateForwards(queryir.AnyOf("A"), "AB", "B"),
			Order:  []queryir.OrderKey{queryir.Order(nameOf(queryir.Context()))},
		}
	}
	a := mustCompile(t, build())
	b := mustCompile(t, build())

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.Search.String(), b.Search.String())
	assert.Equal(t, a.Arena.Len(), b.Arena.Len())

	other := build()
	other.Range = queryir.RangeFirst
	c := mustCompile(t, other)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestCompile_OrderKeysPerBranch(t *testing.T) {
	p := mustCompile(t, &queryir.RevisionQuery{
		Search: queryir.AnyOf("A"),
		Order: []queryir.OrderKey{
			queryir.OrderDesc(queryir.Attribute(queryir.Context(), "", "n")),
			queryir.Order(nameOf(queryir.Context())),
		},
	})

	require.Len(t, p.Search.Branches, 2)
	assert.Equal(t, []bool{true, false}, p.Descending)
	b0, b1 := p.Search.Branches[0], p.Search.Branches[1]
	require.Len(t, b0.Order, 2)
	require.Len(t, b1.Order, 2)
	assert.NotSame(t, b0.Order[0], b1.Order[0])
	assert.Equal(t, "attribute(context(), A.n)", queryir.Print(b0.Order[0]))
}

func TestCompile_Unsupported(t *testing.T) {
	ts := testutil.FixtureSystem(t)

	t.Run("branch global mixed reference to several types", func(t *testing.T) {
		_, err := Compile(ts, search(queryir.Map(queryir.AllOf("E"), queryir.Reference(queryir.Context(), "", "globMix"))))
		require.Error(t, err)
		assert.True(t, IsUnsupported(err))
		assert.Contains(t, err.Error(), ErrCrossBranchMixed)
	})

	t.Run("branch global mixed reference to one type", func(t *testing.T) {
		_, err := Compile(ts, search(queryir.Map(queryir.AllOf("E"), queryir.Reference(queryir.Context(), "", "globDS"))))
		assert.NoError(t, err)
	})

	t.Run("history of strings", func(t *testing.T) {
		_, err := CompileHistory(ts, &queryir.HistoryQuery{
			Search: queryir.Map(queryir.AllOf("E"), nameOf(queryir.Context())),
		})
		require.Error(t, err)
		assert.True(t, IsUnsupported(err))
		assert.Contains(t, err.Error(), ErrHistoryOfValues)
	})

	t.Run("history of items", func(t *testing.T) {
		p, err := CompileHistory(ts, &queryir.HistoryQuery{Search: queryir.AnyOf("D")})
		require.NoError(t, err)
		assert.Equal(t, ModeHistory, p.Mode)
		assert.Equal(t, queryir.RevisionGiven, p.Revision)
	})
}

func TestCompile_ConcreteTypes(t *testing.T) {
	p := mustCompile(t, search(queryir.Map(queryir.AllOf("E"), queryir.Reference(queryir.Context(), "", "curRef"))))

	br := p.Search.Branches[0]
	m, ok := br.Set.(*queryir.MapExpr)
	require.True(t, ok)
	assert.Equal(t, []string{"D", "DSub"}, p.Info.Concrete[m.Mapping].Names())
	assert.Equal(t, []string{"E"}, p.Info.Concrete[m.Source].Names())
}

func TestCompile_SymbolReuse(t *testing.T) {
	ctx := queryir.Context
	ref := func() queryir.Expr { return queryir.Reference(ctx(), "", "curRef") }
	p := mustCompile(t, search(queryir.Filter(
		queryir.Filter(queryir.AllOf("E"), queryir.Eq(queryir.Attribute(ref(), "", "D1"), queryir.Str("x"))),
		queryir.Not(queryir.IsNull(ref())),
	)))

	var refs []queryir.Expr
	for _, br := range p.Search.Branches {
		queryir.Walk(br.Set, func(e queryir.Expr) bool {
			if r, ok := e.(*queryir.ReferenceExpr); ok {
				refs = append(refs, r)
			}
			return true
		})
	}
	require.Len(t, refs, 2)
	id0 := p.Info.SymbolOf(refs[0])
	id1 := p.Info.SymbolOf(refs[1])
	require.NotEqual(t, NoSymbol, id0)
	assert.Equal(t, id0, id1)

	sym := p.Arena.Get(id0)
	assert.Equal(t, ReferenceSymbol, sym.Kind)
	assert.Equal(t, "E.curRef", sym.Attribute.String())
	assert.Equal(t, TableSymbol, p.Arena.Get(sym.Parent).Kind)
}

func TestCompile_SymbolsPerScan(t *testing.T) {
	p := mustCompile(t, search(queryir.Filter(queryir.AllOf("B"),
		queryir.InSet(queryir.Context(), queryir.Filter(queryir.AllOf("B"), queryir.Eq(nameOf(queryir.Context()), queryir.Str("x")))))))

	tables := 0
	for _, s := range p.Arena.All() {
		if s.Kind == TableSymbol {
			tables++
		}
	}
	assert.Equal(t, 2, tables, "outer and membership scans are distinct rows")
}

func TestCompile_CrossProductSymbols(t *testing.T) {
	p := mustCompile(t, search(queryir.Map(
		queryir.CrossProduct(queryir.AllOf("B"), queryir.AllOf("C")),
		queryir.Tuple(nameOf(queryir.Element(queryir.Context(), 0)), nameOf(queryir.Element(queryir.Context(), 1))),
	)))

	m := p.Search.Branches[0].Set.(*queryir.MapExpr)
	cross := p.Arena.Get(p.Info.SymbolOf(m.Source))
	require.Equal(t, TupleSymbol, cross.Kind)
	require.Len(t, cross.Children, 2)
	assert.Equal(t, "B", p.Arena.Get(cross.Children[0]).Type.Name)
	assert.Equal(t, "C", p.Arena.Get(cross.Children[1]).Type.Name)

	tuple := m.Mapping.(*queryir.TupleExpr)
	first := p.Arena.Get(p.Info.SymbolOf(tuple.Elements[0]))
	assert.Equal(t, AttributeSymbol, first.Kind)
	assert.Equal(t, cross.Children[0], first.Parent)
}
