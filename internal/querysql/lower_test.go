package querysql

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kbquery/internal/compiler"
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/testutil"
)

func compileSQL(t *testing.T, q *queryir.RevisionQuery) *Statement {
	t.Helper()
	p, err := compiler.Compile(testutil.FixtureSystem(t), q)
	require.NoError(t, err)
	st, err := Compile(p)
	require.NoError(t, err)
	return st
}

func assertGoldenSQL(t *testing.T, name string, st *Statement) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(st.SQL))
}

func TestCompile_Golden(t *testing.T) {
	ctx := queryir.Context
	tests := []struct {
		name  string
		query *queryir.RevisionQuery
	}{
		{
			name:  "scan",
			query: &queryir.RevisionQuery{Search: queryir.AllOf("B")},
		},
		{
			name: "polymorphic_filter",
			query: &queryir.RevisionQuery{
				Branch: queryir.BranchAll,
				Range:  queryir.RangeFirst,
				Search: queryir.Filter(queryir.AnyOf("A"), queryir.Eq(queryir.Attribute(ctx(), "", "name"), queryir.Str("x"))),
				Order:  []queryir.OrderKey{queryir.OrderDesc(queryir.Attribute(ctx(), "", "n"))},
			},
		},
		{
			name: "historic_reference",
			query: &queryir.RevisionQuery{
				Range:  queryir.RangeHead,
				Search: queryir.Map(queryir.AllOf("E"), queryir.Attribute(queryir.Reference(ctx(), "", "histRef"), "", "D1")),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertGoldenSQL(t, tt.name, compileSQL(t, tt.query))
		})
	}
}

func TestCompile_ScanSlots(t *testing.T) {
	st := compileSQL(t, &queryir.RevisionQuery{Search: queryir.AllOf("B")})

	assert.Equal(t, []string{"B", "9223372036854775807", "revision", "revision", "branch"}, slotNames(st.Slots))
	assert.Equal(t, 4, st.Width)
	assert.Equal(t, 4, st.Columns)
}

func TestCompile_AllBranchesHasNoBranchSlot(t *testing.T) {
	st := compileSQL(t, &queryir.RevisionQuery{Branch: queryir.BranchAll, Search: queryir.AllOf("B")})

	for _, s := range st.Slots {
		assert.NotEqual(t, SlotBranch, s.Kind)
	}
}

func TestCompile_SymbolsShareJoins(t *testing.T) {
	ctx := queryir.Context
	ref := func() queryir.Expr { return queryir.Reference(ctx(), "", "curRef") }
	st := compileSQL(t, &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("E"), queryir.And(
		queryir.Eq(queryir.Attribute(ref(), "", "D1"), queryir.Str("a")),
		queryir.Not(queryir.IsNull(queryir.Attribute(ref(), "", "D1"))),
	))})

	assert.Equal(t, 1, strings.Count(st.SQL, `LEFT JOIN "D" `), "one join per symbol and concrete type")
	assert.Equal(t, 1, strings.Count(st.SQL, `LEFT JOIN "DSub" `))
}

func TestCompile_FlexJoin(t *testing.T) {
	st := compileSQL(t, &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("D"),
		queryir.IsNull(queryir.Flex(queryir.Context(), ir.KindString, "note")))})

	assert.Contains(t, st.SQL, `LEFT JOIN "KB_FLEX" f1 ON`)
	assert.Contains(t, slotNames(st.Slots), "note")
}

func TestCompile_Membership(t *testing.T) {
	st := compileSQL(t, &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("B"),
		queryir.InSet(queryir.Reference(queryir.Context(), "", "ref"), queryir.AnyOf("A")))})

	assert.Contains(t, st.SQL, "IFNULL(((")
	assert.Contains(t, st.SQL, " IN (SELECT ")
	assert.Contains(t, st.SQL, " UNION SELECT ")
}

func TestCompile_EmptyProgram(t *testing.T) {
	ts := testutil.FixtureSystem(t)
	p, err := compiler.Compile(ts, &queryir.RevisionQuery{Search: queryir.AllOf("B")})
	require.NoError(t, err)
	p.Search = &compiler.SetPlan{Elem: p.Search.Elem}

	st, err := Compile(p)
	require.NoError(t, err)
	assert.True(t, st.Empty())
}
