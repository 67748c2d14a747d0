package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kb.db"), testutil.FixtureSystem(t), Options{
		Logger:      discardLogger(),
		IDGenerator: testutil.NewSequentialIDs(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func commit(t *testing.T, tx *Tx) int64 {
	t.Helper()
	rev, err := tx.Commit(context.Background())
	require.NoError(t, err)
	return rev
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.db")
	ts := testutil.FixtureSystem(t)

	s, err := Open(path, ts, Options{Logger: discardLogger()})
	require.NoError(t, err)
	tx := s.Begin(ir.TrunkBranch)
	_, err = tx.CreateWithID("D", "d", map[string]ir.Value{"D1": ir.String("x")})
	require.NoError(t, err)
	commit(t, tx)
	require.NoError(t, s.Close())

	s, err = Open(path, ts, Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer s.Close()

	head, err := s.Head(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), head)

	var version int
	require.NoError(t, s.DB().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestStore_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	head, err := s.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), head)

	branches, err := s.Branches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.Branch{{ID: ir.TrunkBranch}}, branches)

	versions, err := s.Versions(ctx, s.System().MustType("D"))
	require.NoError(t, err)
	assert.NotNil(t, versions)
	assert.Empty(t, versions)

	flex, err := s.FlexVersions(ctx)
	require.NoError(t, err)
	assert.NotNil(t, flex)
	assert.Empty(t, flex)
}

func TestFoldFunction(t *testing.T) {
	s := newTestStore(t)

	var folded string
	require.NoError(t, s.DB().QueryRow("SELECT "+FoldFunction+"(?)", "ÄBc").Scan(&folded))
	assert.Equal(t, "äbc", folded)

	var null any
	require.NoError(t, s.DB().QueryRow("SELECT " + FoldFunction + "(NULL)").Scan(&null))
	assert.Nil(t, null)
}

func TestStore_Read_ReleasesConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for range 10 {
		err := s.Read(ctx, func(conn *sql.Conn) error {
			var n int
			return conn.QueryRowContext(ctx, "SELECT 1").Scan(&n)
		})
		require.NoError(t, err)
	}
	boom := errors.New("boom")
	err := s.Read(ctx, func(*sql.Conn) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 0, s.DB().Stats().InUse)
}
