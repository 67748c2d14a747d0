package querysql

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kbquery/internal/compiler"
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/store"
	"github.com/roach88/kbquery/internal/testutil"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "kb.db"), testutil.FixtureSystem(t), store.Options{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		IDGenerator: testutil.NewSequentialIDs(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// change applies fn in one commit on trunk and returns the revision.
func change(t *testing.T, s *store.Store, fn func(tx *store.Tx)) int64 {
	t.Helper()
	tx := s.Begin(ir.TrunkBranch)
	fn(tx)
	rev, err := tx.Commit(context.Background())
	require.NoError(t, err)
	return rev
}

func create(t *testing.T, tx *store.Tx, typeName string, values map[string]ir.Value) ir.ObjectBranchID {
	t.Helper()
	obj, err := tx.Create(typeName, values)
	require.NoError(t, err)
	return obj
}

func search(t *testing.T, s *store.Store, q *queryir.RevisionQuery, args Args) []ir.Value {
	t.Helper()
	p, err := compiler.Compile(s.System(), q)
	require.NoError(t, err)
	st, err := Compile(p)
	require.NoError(t, err)
	if args.Branch == 0 {
		args.Branch = ir.TrunkBranch
	}

	var values []ir.Value
	err = s.Read(context.Background(), func(conn *sql.Conn) error {
		var err error
		values, err = st.Query(context.Background(), conn, args)
		return err
	})
	require.NoError(t, err)
	return values
}

func item(obj ir.ObjectBranchID) ir.Value {
	return ir.NewItem(obj)
}

func TestQuery_HistoricReferenceIsFrozen(t *testing.T) {
	s := openStore(t)
	var d, e ir.ObjectBranchID
	r1 := change(t, s, func(tx *store.Tx) {
		d = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("match")})
		e = create(t, tx, "E", map[string]ir.Value{"curRef": item(d), "histRef": item(d)})
	})
	r2 := change(t, s, func(tx *store.Tx) {
		require.NoError(t, tx.Set(d, "D1", ir.String("noMatch")))
	})

	ctx := queryir.Context
	matching := func(ref string) *queryir.RevisionQuery {
		return &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("E"),
			queryir.Eq(queryir.Attribute(queryir.Reference(ctx(), "", ref), "", "D1"), queryir.Str("match")))}
	}

	assert.Equal(t, []ir.Value{item(e)}, search(t, s, matching("histRef"), Args{Revision: r1}))
	assert.Equal(t, []ir.Value{item(e)}, search(t, s, matching("histRef"), Args{Revision: r2}))
	assert.Equal(t, []ir.Value{item(e)}, search(t, s, matching("curRef"), Args{Revision: r1}))
	assert.Empty(t, search(t, s, matching("curRef"), Args{Revision: r2}))
}

func TestQuery_ReferenceTargetsKeepTheirBinding(t *testing.T) {
	s := openStore(t)
	var d ir.ObjectBranchID
	r1 := change(t, s, func(tx *store.Tx) {
		d = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("a")})
		create(t, tx, "E", map[string]ir.Value{"curRef": item(d), "histRef": item(d)})
	})

	ctx := queryir.Context
	targets := func(ref string) []ir.Value {
		return search(t, s, &queryir.RevisionQuery{
			Search: queryir.Map(queryir.AllOf("E"), queryir.Reference(ctx(), "", ref)),
		}, Args{Revision: r1})
	}

	assert.Equal(t, []ir.Value{item(d)}, targets("curRef"))
	assert.Equal(t, []ir.Value{ir.Item(d.At(r1))}, targets("histRef"))
}

func TestQuery_AnyOfSearchesEveryConcreteSubtype(t *testing.T) {
	s := openStore(t)
	var b, c ir.ObjectBranchID
	rev := change(t, s, func(tx *store.Tx) {
		b = create(t, tx, "B", map[string]ir.Value{"name": ir.String("x")})
		c = create(t, tx, "C", map[string]ir.Value{"name": ir.String("x")})
		create(t, tx, "C", map[string]ir.Value{"name": ir.String("y")})
	})

	named := queryir.Eq(queryir.Attribute(queryir.Context(), "", "name"), queryir.Str("x"))
	got := search(t, s, &queryir.RevisionQuery{Search: queryir.Filter(queryir.AnyOf("A"), named)}, Args{Revision: rev})
	assert.Equal(t, []ir.Value{item(b), item(c)}, got)

	named = queryir.Eq(queryir.Attribute(queryir.Context(), "", "name"), queryir.Str("x"))
	union := queryir.Filter(queryir.Union(queryir.AllOf("B"), queryir.AllOf("C")), named)
	assert.Equal(t, got, search(t, s, &queryir.RevisionQuery{Search: union}, Args{Revision: rev}))
}

func TestQuery_Ranges(t *testing.T) {
	s := openStore(t)
	rev := change(t, s, func(tx *store.Tx) {
		for _, v := range []string{"c", "a", "e", "b", "d"} {
			create(t, tx, "D", map[string]ir.Value{"D1": ir.String(v)})
		}
	})

	values := func(r queryir.RangeParam, args Args) []ir.Value {
		args.Revision = rev
		return search(t, s, &queryir.RevisionQuery{
			Range:  r,
			Search: queryir.Map(queryir.AllOf("D"), queryir.Attribute(queryir.Context(), "", "D1")),
		}, args)
	}
	strs := func(ss ...string) []ir.Value {
		out := make([]ir.Value, len(ss))
		for i, s := range ss {
			out[i] = ir.String(s)
		}
		return out
	}

	assert.Equal(t, strs("a", "b", "c", "d", "e"), values(queryir.RangeComplete, Args{}))
	assert.Equal(t, strs("a"), values(queryir.RangeFirst, Args{}))
	assert.Equal(t, strs("a", "b"), values(queryir.RangeHead, Args{Stop: 2}))
	assert.Equal(t, strs("b", "c"), values(queryir.RangeWindow, Args{Start: 1, Stop: 3}))
	assert.Empty(t, values(queryir.RangeWindow, Args{Start: 3, Stop: 1}))
}

func TestQuery_OrderDescending(t *testing.T) {
	s := openStore(t)
	var low, high ir.ObjectBranchID
	rev := change(t, s, func(tx *store.Tx) {
		low = create(t, tx, "B", map[string]ir.Value{"n": ir.Int(1)})
		high = create(t, tx, "C", map[string]ir.Value{"n": ir.Int(2)})
	})

	got := search(t, s, &queryir.RevisionQuery{
		Search: queryir.AnyOf("A"),
		Order:  []queryir.OrderKey{queryir.OrderDesc(queryir.Attribute(queryir.Context(), "", "n"))},
	}, Args{Revision: rev})
	assert.Equal(t, []ir.Value{item(high), item(low)}, got)
}

func TestQuery_FlexNullSemantics(t *testing.T) {
	s := openStore(t)
	var d1, d2 ir.ObjectBranchID
	r1 := change(t, s, func(tx *store.Tx) {
		d1 = create(t, tx, "D", nil)
		d2 = create(t, tx, "D", nil)
		require.NoError(t, tx.SetFlex(d1, "note", ir.String("x")))
	})
	r2 := change(t, s, func(tx *store.Tx) {
		require.NoError(t, tx.SetFlex(d1, "note", ir.Null{}))
	})

	ctx := queryir.Context
	unset := &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("D"),
		queryir.IsNull(queryir.Flex(ctx(), ir.KindString, "note")))}
	assert.Equal(t, []ir.Value{item(d2)}, search(t, s, unset, Args{Revision: r1}))
	assert.Equal(t, []ir.Value{item(d1), item(d2)}, search(t, s, unset, Args{Revision: r2}), "cleared equals never set")

	bothNull := &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("D"),
		queryir.Eq(queryir.Flex(ctx(), ir.KindString, "note"), queryir.Flex(ctx(), ir.KindString, "other")))}
	assert.Equal(t, []ir.Value{item(d2)}, search(t, s, bothNull, Args{Revision: r1}))

	noValue := &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("D"),
		queryir.Eq(queryir.Flex(ctx(), ir.KindString, "note"), queryir.Str("x")))}
	assert.Equal(t, []ir.Value{item(d1)}, search(t, s, noValue, Args{Revision: r1}))
	assert.Empty(t, search(t, s, noValue, Args{Revision: r2}))
}

func TestQuery_CaseInsensitiveEquality(t *testing.T) {
	s := openStore(t)
	var d ir.ObjectBranchID
	rev := change(t, s, func(tx *store.Tx) {
		d = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("ÄBC")})
		create(t, tx, "D", map[string]ir.Value{"D1": ir.String("abd")})
	})

	got := search(t, s, &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("D"),
		queryir.EqCi(queryir.Attribute(queryir.Context(), "", "D1"), queryir.Str("äbc")))}, Args{Revision: rev})
	assert.Equal(t, []ir.Value{item(d)}, got)
}

func TestQuery_CaseInsensitiveEqualityNeverMatchesNull(t *testing.T) {
	s := openStore(t)
	var empty, unset ir.ObjectBranchID
	rev := change(t, s, func(tx *store.Tx) {
		empty = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("")})
		unset = create(t, tx, "D", nil)
		require.NoError(t, tx.SetFlex(empty, "note", ir.String("")))
	})

	ctx := queryir.Context
	attr := &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("D"),
		queryir.EqCi(queryir.Attribute(ctx(), "", "D1"), queryir.Str("")))}
	assert.Equal(t, []ir.Value{item(empty)}, search(t, s, attr, Args{Revision: rev}))

	flex := &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("D"),
		queryir.EqCi(queryir.Flex(ctx(), ir.KindString, "note"), queryir.Str("")))}
	assert.Equal(t, []ir.Value{item(empty)}, search(t, s, flex, Args{Revision: rev}))

	bothNull := &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("D"),
		queryir.EqCi(queryir.Flex(ctx(), ir.KindString, "note"), queryir.Flex(ctx(), ir.KindString, "other")))}
	assert.Equal(t, []ir.Value{item(unset)}, search(t, s, bothNull, Args{Revision: rev}))
}

func TestQuery_Membership(t *testing.T) {
	s := openStore(t)
	var b1 ir.ObjectBranchID
	rev := change(t, s, func(tx *store.Tx) {
		keep := create(t, tx, "C", map[string]ir.Value{"c": ir.String("keep")})
		drop := create(t, tx, "C", map[string]ir.Value{"c": ir.String("drop")})
		b1 = create(t, tx, "B", map[string]ir.Value{"ref": item(keep)})
		create(t, tx, "B", map[string]ir.Value{"ref": item(drop)})
		create(t, tx, "B", nil)
	})

	kept := queryir.Filter(queryir.AllOf("C"), queryir.Eq(queryir.Attribute(queryir.Context(), "", "c"), queryir.Str("keep")))
	got := search(t, s, &queryir.RevisionQuery{Search: queryir.Filter(queryir.AllOf("B"),
		queryir.InSet(queryir.Reference(queryir.Context(), "", "ref"), kept))}, Args{Revision: rev})
	assert.Equal(t, []ir.Value{item(b1)}, got)
}

func TestQuery_Params(t *testing.T) {
	s := openStore(t)
	var d ir.ObjectBranchID
	rev := change(t, s, func(tx *store.Tx) {
		d = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("a")})
		create(t, tx, "D", map[string]ir.Value{"D1": ir.String("b")})
	})

	q := &queryir.RevisionQuery{
		Params: []queryir.ParamDecl{{Name: "v", Kind: ir.KindString}},
		Search: queryir.Filter(queryir.AllOf("D"), queryir.Eq(queryir.Attribute(queryir.Context(), "", "D1"), queryir.Param("v"))),
	}
	got := search(t, s, q, Args{Revision: rev, Params: map[string]ir.Value{"v": ir.String("a")}})
	assert.Equal(t, []ir.Value{item(d)}, got)
}

func TestQuery_CrossProductYieldsTuples(t *testing.T) {
	s := openStore(t)
	var c, d ir.ObjectBranchID
	rev := change(t, s, func(tx *store.Tx) {
		c = create(t, tx, "C", nil)
		d = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("a")})
	})

	got := search(t, s, &queryir.RevisionQuery{Search: queryir.CrossProduct(queryir.AllOf("C"), queryir.AllOf("D"))}, Args{Revision: rev})
	assert.Equal(t, []ir.Value{ir.Tuple{item(c), item(d)}}, got)
}

func TestQuery_DeletedObjectsDisappear(t *testing.T) {
	s := openStore(t)
	var d ir.ObjectBranchID
	r1 := change(t, s, func(tx *store.Tx) {
		d = create(t, tx, "D", nil)
	})
	r2 := change(t, s, func(tx *store.Tx) {
		require.NoError(t, tx.Delete(d))
	})

	q := &queryir.RevisionQuery{Search: queryir.AllOf("D")}
	assert.Equal(t, []ir.Value{item(d)}, search(t, s, q, Args{Revision: r1}))
	assert.Empty(t, search(t, s, q, Args{Revision: r2}))
}
