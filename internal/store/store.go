package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - KB_FLEX carries the value kind
const currentSchemaVersion = 1

// DriverName is the database/sql driver the store registers: go-sqlite3
// with the SQL functions queries rely on.
const DriverName = "sqlite3_kb"

// FlexTable stores dynamic attributes.
const FlexTable = "KB_FLEX"

// FoldFunction is the SQL function applying Unicode case folding, used by
// case insensitive comparison.
const FoldFunction = "kb_fold"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(FoldFunction, foldSQL, true)
		},
	})
}

// foldSQL folds text values and passes everything else through. The driver
// hands NULL arguments over as a nil []byte; returning nil yields NULL.
func foldSQL(v any) any {
	switch s := v.(type) {
	case string:
		return ir.FoldString(s)
	case []byte:
		if s == nil {
			return nil
		}
		return ir.FoldString(string(s))
	default:
		return v
	}
}

// IDGenerator assigns identifiers to created objects.
type IDGenerator interface {
	NewID(typeName string) string
}

// uuidIDs generates time ordered UUIDv7 identifiers.
type uuidIDs struct{}

func (uuidIDs) NewID(string) string {
	return uuid.Must(uuid.NewV7()).String()
}

// Options configures a Store. The zero value is usable.
type Options struct {
	// Logger receives store logs. Defaults to slog.Default().
	Logger *slog.Logger
	// IDGenerator assigns identifiers in Tx.Create. Defaults to UUIDv7.
	IDGenerator IDGenerator
	// MaxReadConns bounds the pooled connections. Defaults to 4.
	MaxReadConns int
}

// Store is a revisioned object store for one type system.
// Uses SQLite with WAL mode for concurrent read access.
//
// Thread-safety: all methods are safe for concurrent use. Commits are
// serialized.
type Store struct {
	db     *sql.DB
	ts     *schema.TypeSystem
	logger *slog.Logger
	ids    IDGenerator

	writeMu sync.Mutex
}

// Open creates or opens a SQLite database at the given path and makes sure
// every concrete type of ts has its table.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Pragmas are passed in the DSN so every pooled connection carries them.
// This function is idempotent - safe to call multiple times.
func Open(path string, ts *schema.TypeSystem, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = uuidIDs{}
	}
	if opts.MaxReadConns <= 0 {
		opts.MaxReadConns = 4
	}

	db, err := sql.Open(DriverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxReadConns)
	db.SetMaxIdleConns(opts.MaxReadConns)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := ensureTypeTables(db, ts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create type tables: %w", err)
	}

	opts.Logger.Debug("opened store", "path", path, "types", len(ts.ConcreteTypes()))

	return &Store{db: db, ts: ts, logger: opts.Logger, ids: opts.IDGenerator}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// System returns the type system the store was opened for.
func (s *Store) System() *schema.TypeSystem {
	return s.ts
}

// Read borrows one pooled connection for the duration of fn. The
// connection is returned to the pool when fn returns, also on error.
func (s *Store) Read(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Error("release connection", "error", err)
		}
	}()
	return fn(conn)
}

// applySchema creates the bookkeeping tables if they don't exist and
// records the schema version. This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// ensureTypeTables creates missing type tables and adds columns for
// attributes declared since the table was created.
func ensureTypeTables(db *sql.DB, ts *schema.TypeSystem) error {
	for _, t := range ts.ConcreteTypes() {
		if _, err := db.Exec(createTableSQL(t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		if _, err := db.Exec(fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s(BRANCH, IDENTIFIER, REV_MIN)",
			quoteIdent("idx_"+t.Name+"_object"), quoteIdent(t.Name))); err != nil {
			return fmt.Errorf("create index %s: %w", t.Name, err)
		}

		existing, err := tableColumns(db, t.Name)
		if err != nil {
			return err
		}
		for _, col := range attributeColumns(t) {
			if existing[strings.ToLower(col)] {
				continue
			}
			if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(t.Name), quoteIdent(col))); err != nil {
				return fmt.Errorf("add column %s.%s: %w", t.Name, col, err)
			}
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			typ        string
			notNull    int
			dflt       any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		cols[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return cols, nil
}

// createTableSQL is the DDL of the table of concrete type t. Attribute
// columns are declared without a type and so have no affinity.
func createTableSQL(t *schema.Type) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(t.Name))
	b.WriteString("    BRANCH INTEGER NOT NULL,\n")
	b.WriteString("    IDENTIFIER TEXT NOT NULL,\n")
	b.WriteString("    REV_MIN INTEGER NOT NULL,\n")
	b.WriteString("    REV_MAX INTEGER NOT NULL,\n")
	b.WriteString("    REV_CREATE INTEGER NOT NULL")
	for _, col := range attributeColumns(t) {
		fmt.Fprintf(&b, ",\n    %s", quoteIdent(col))
	}
	b.WriteString("\n)")
	return b.String()
}

// attributeColumns lists the attribute columns of t's table in attribute
// declaration order.
func attributeColumns(t *schema.Type) []string {
	var cols []string
	for _, a := range t.Attributes() {
		cols = append(cols, a.Columns()...)
	}
	return cols
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
