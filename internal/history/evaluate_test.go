package history

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
	"github.com/roach88/kbquery/internal/querysql"
	"github.com/roach88/kbquery/internal/ranges"
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

func change(t *testing.T, s *store.Store, branch ir.BranchID, fn func(tx *store.Tx)) int64 {
	t.Helper()
	tx := s.Begin(branch)
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

func history(t *testing.T, s *store.Store, text string, args Args) Result {
	t.Helper()
	q, err := queryir.ParseHistory(text)
	require.NoError(t, err)
	p, err := compiler.CompileHistory(s.System(), q)
	require.NoError(t, err)
	r, err := Evaluate(context.Background(), s, p, args)
	require.NoError(t, err)
	return r
}

func live(obj ir.ObjectBranchID) ir.ObjectKey {
	return obj.At(ir.CurrentRevision)
}

func TestEvaluate_HistoricReferenceIsFrozen(t *testing.T) {
	s := openStore(t)
	var d, e ir.ObjectBranchID
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		d = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("match")})
		e = create(t, tx, "E", map[string]ir.Value{"curRef": ir.NewItem(d), "histRef": ir.NewItem(d)})
	})
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		require.NoError(t, tx.Set(d, "D1", ir.String("noMatch")))
	})

	hist := history(t, s, `history(filter(allOf(E), eq(attribute(reference(context(), histRef), D1), "match")))`, Args{})
	assert.Equal(t, Result{live(e): ranges.EndSection(1)}, hist)

	cur := history(t, s, `history(filter(allOf(E), eq(attribute(reference(context(), curRef), D1), "match")))`, Args{})
	assert.Equal(t, Result{live(e): ranges.Single(1)}, cur)
}

func TestEvaluate_DeletedThenRevived(t *testing.T) {
	s := openStore(t)
	var d ir.ObjectBranchID
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		d = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("a")})
	})
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		require.NoError(t, tx.Delete(d))
	})
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		_, err := tx.CreateWithID("D", d.ID, map[string]ir.Value{"D1": ir.String("a")})
		require.NoError(t, err)
	})

	r := history(t, s, `history(filter(allOf(D), eq(attribute(context(), D1), "a")))`, Args{})
	assert.Equal(t, Result{live(d): ranges.New(ranges.Range{Start: 1, Stop: 1}, ranges.Range{Start: 3, Stop: ranges.Current})}, r)

	r = history(t, s, `history(filter(allOf(D), not(eq(attribute(context(), D1), "b"))))`, Args{})
	assert.Equal(t, ranges.Single(2), ranges.Invert(r[live(d)]), "negation stays within the life of the object")
}

func TestEvaluate_Branches(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	var d ir.ObjectBranchID
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		d = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("a")})
	})
	b, err := s.CreateBranch(ctx, ir.TrunkBranch, ir.CurrentRevision)
	require.NoError(t, err)
	change(t, s, b.ID, func(tx *store.Tx) {
		require.NoError(t, tx.Set(ir.ObjectBranchID{Branch: b.ID, Type: "D", ID: d.ID}, "D1", ir.String("b")))
	})

	onBranch := history(t, s, `history(filter(allOf(D), eq(attribute(context(), D1), "a")))`, Args{Branch: b.ID})
	assert.Equal(t, Result{
		live(ir.ObjectBranchID{Branch: b.ID, Type: "D", ID: d.ID}): ranges.Single(2),
	}, onBranch)

	everywhere := history(t, s, `history(allOf(D), branch = all)`, Args{})
	assert.Equal(t, []ir.ObjectKey{live(d), live(ir.ObjectBranchID{Branch: b.ID, Type: "D", ID: d.ID})}, everywhere.Keys())
	assert.Equal(t, ranges.EndSection(2), everywhere[live(ir.ObjectBranchID{Branch: b.ID, Type: "D", ID: d.ID})])
}

func TestEvaluate_FlexAttributes(t *testing.T) {
	s := openStore(t)
	var d ir.ObjectBranchID
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		d = create(t, tx, "D", nil)
	})
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		require.NoError(t, tx.SetFlex(d, "note", ir.String("x")))
	})
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		require.NoError(t, tx.SetFlex(d, "note", ir.Null{}))
	})

	r := history(t, s, `history(filter(allOf(D), isNull(flex(context(), string, note))))`, Args{})
	assert.Equal(t, "[1, 1] [3, current]", r[live(d)].String())

	r = history(t, s, `history(filter(allOf(D), eq(flex(context(), int, note), 1)))`, Args{})
	assert.Empty(t, r, "flex values of another kind are absent")
}

func TestEvaluate_ItemParams(t *testing.T) {
	s := openStore(t)
	var d ir.ObjectBranchID
	var e ir.ObjectBranchID
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		d = create(t, tx, "D", nil)
		e = create(t, tx, "E", map[string]ir.Value{"curRef": ir.NewItem(d)})
		create(t, tx, "E", nil)
	})

	r := history(t, s, `history(filter(allOf(E), eq(reference(context(), curRef), $target)), params = [target item(D)])`,
		Args{Params: map[string]ir.Value{"target": ir.Item{Type: "D", ID: d.ID}}})
	assert.Equal(t, Result{live(e): ranges.EndSection(1)}, r)
}

func TestEvaluate_RequiresItems(t *testing.T) {
	s := openStore(t)
	p, err := compiler.Compile(s.System(), &queryir.RevisionQuery{
		Search: queryir.Map(queryir.AllOf("D"), queryir.Attribute(queryir.Context(), "", "D1")),
	})
	require.NoError(t, err)

	_, err = Evaluate(context.Background(), s, p, Args{})
	assert.Error(t, err)
}

// consistencyStore builds a history touching every kind of change: new
// versions, deletes and revivals, flex values, references of every history
// type, and a branch forked halfway. One E has an empty name, another none.
func consistencyStore(t *testing.T) (*store.Store, int64) {
	s := openStore(t)
	ctx := context.Background()

	var d1, d2, b1, c1 ir.ObjectBranchID
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		d1 = create(t, tx, "D", map[string]ir.Value{"D1": ir.String("match")})
		d2 = create(t, tx, "DSub", map[string]ir.Value{"D1": ir.String("x"), "extra": ir.String("e")})
		c1 = create(t, tx, "C", map[string]ir.Value{"name": ir.String("y"), "n": ir.Int(2), "c": ir.String("keep")})
		b1 = create(t, tx, "B", map[string]ir.Value{"name": ir.String("x"), "n": ir.Int(1), "ref": ir.NewItem(c1)})
		create(t, tx, "E", map[string]ir.Value{
			"name":    ir.String("e"),
			"curRef":  ir.NewItem(d1),
			"histRef": ir.NewItem(d1),
			"mixRef":  ir.NewItem(d1),
			"globRef": ir.NewItem(d2),
		})
		create(t, tx, "E", map[string]ir.Value{"name": ir.String("")})
		require.NoError(t, tx.SetFlex(d1, "note", ir.String("n1")))
	})
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		require.NoError(t, tx.Set(d1, "D1", ir.String("noMatch")))
		require.NoError(t, tx.Set(c1, "c", ir.String("drop")))
		create(t, tx, "E", map[string]ir.Value{"histRef": ir.NewItem(d2), "mixRef": ir.Item(d1.At(1))})
	})
	change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		require.NoError(t, tx.Delete(d2))
		require.NoError(t, tx.Set(b1, "n", ir.Int(3)))
		require.NoError(t, tx.SetFlex(d1, "note", ir.Null{}))
	})
	branch, err := s.CreateBranch(ctx, ir.TrunkBranch, ir.CurrentRevision)
	require.NoError(t, err)
	change(t, s, branch.ID, func(tx *store.Tx) {
		require.NoError(t, tx.Set(ir.ObjectBranchID{Branch: branch.ID, Type: "D", ID: d1.ID}, "D1", ir.String("match")))
	})
	head := change(t, s, ir.TrunkBranch, func(tx *store.Tx) {
		_, err := tx.CreateWithID("DSub", d2.ID, map[string]ir.Value{"D1": ir.String("match")})
		require.NoError(t, err)
		require.NoError(t, tx.Set(c1, "c", ir.String("keep")))
	})
	return s, head
}

func TestEvaluate_AgreesWithPointInTime(t *testing.T) {
	s, head := consistencyStore(t)
	ctx := context.Background()

	queries := []string{
		`history(filter(allOf(E), eq(attribute(reference(context(), histRef), D1), "match")))`,
		`history(filter(allOf(E), eq(attribute(reference(context(), curRef), D1), "match")), branch = all)`,
		`history(filter(allOf(E), eq(attribute(reference(context(), mixRef), D1), "match")))`,
		`history(map(allOf(E), reference(context(), histRef)))`,
		`history(map(allOf(E), reference(context(), mixRef)), branch = all)`,
		`history(filter(anyOf(D), isNull(flex(context(), string, note))), branch = all)`,
		`history(filter(allOf(B), or(gt(attribute(context(), n), 2), inSet(reference(context(), ref), filter(allOf(C), eq(attribute(context(), c), "keep"))))))`,
		`history(filter(anyOf(D), not(eq(attribute(context(), D1), "x"))), branch = all)`,
		`history(map(allOf(E), reference(context(), globRef)), branch = all)`,
		`history(filter(allOf(E), eqCi(attribute(reference(context(), globRef), D1), "MATCH")))`,
		`history(filter(allOf(E), eqCi(attribute(context(), name), "")), branch = all)`,
		`history(filter(anyOf(D), eqCi(flex(context(), string, note), "")), branch = all)`,
		`history(filter(anyOf(D), eqCi(flex(context(), string, note), "N1")))`,
		`history(filter(anyOf(D), hasType(context(), DSub)))`,
		`history(filter(allOf(E), attributeRange(attribute(reference(context(), histRef), D1), "a", "n")))`,
		`history(filter(anyOf(A), and(ge(attribute(context(), n), 2), not(isNull(attribute(context(), name))))))`,
		`history(union(allOf(D), filter(anyOf(D), eq(attribute(context(), D1), "match"))), branch = all)`,
	}

	for _, text := range queries {
		t.Run(text, func(t *testing.T) {
			q, err := queryir.ParseHistory(text)
			require.NoError(t, err)
			hp, err := compiler.CompileHistory(s.System(), q)
			require.NoError(t, err)
			sp, err := compiler.Compile(s.System(), q.AtRevision())
			require.NoError(t, err)
			st, err := querysql.Compile(sp)
			require.NoError(t, err)

			for _, branch := range []ir.BranchID{ir.TrunkBranch, 2} {
				result, err := Evaluate(ctx, s, hp, Args{Branch: branch})
				require.NoError(t, err)

				for rev := int64(1); rev <= head+1; rev++ {
					var values []ir.Value
					err := s.Read(ctx, func(conn *sql.Conn) error {
						var err error
						values, err = st.Query(ctx, conn, querysql.Args{Branch: branch, Revision: rev})
						return err
					})
					require.NoError(t, err)

					want := make([]ir.ObjectKey, len(values))
					for i, v := range values {
						want[i] = v.(ir.Item).Key()
					}
					assert.Equal(t, want, result.At(rev), "branch %d revision %d", branch, rev)
				}
			}
		})
	}
}

func TestResult_KeysAreOrdered(t *testing.T) {
	a := ir.ObjectKey{Branch: 1, Type: "D", ID: "b", Revision: ir.CurrentRevision}
	b := ir.ObjectKey{Branch: 1, Type: "D", ID: "a", Revision: 3}
	c := ir.ObjectKey{Branch: 1, Type: "D", ID: "a", Revision: 2}
	r := Result{a: ranges.All(), b: ranges.Single(4), c: ranges.Of(1, 2)}

	assert.Equal(t, []ir.ObjectKey{c, b, a}, r.Keys())
	assert.Equal(t, []ir.ObjectKey{c, a}, r.At(2))
	assert.Equal(t, []ir.ObjectKey{}, r.At(0))
}
