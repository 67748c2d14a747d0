package kb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/kbquery/internal/compiler"
	"github.com/roach88/kbquery/internal/history"
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/querysql"
	"github.com/roach88/kbquery/internal/schema"
	"github.com/roach88/kbquery/internal/store"
)

// KB runs queries against a revisioned object store.
//
// Thread-safety model:
//   - Compile(), CompileHistory(): safe from any goroutine
//   - CompiledQuery and CompiledHistory: immutable, execute concurrently
//     with different arguments
//   - each execution borrows one pooled read connection and releases it on
//     every exit path
type KB struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a KB.
type Option func(*KB)

// WithLogger sets the logger used for query execution. Default:
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(k *KB) {
		k.logger = l
	}
}

// WithMetrics records compilations and executions in m.
func WithMetrics(m *Metrics) Option {
	return func(k *KB) {
		k.metrics = m
	}
}

// New creates a KB over s.
func New(s *store.Store, opts ...Option) *KB {
	k := &KB{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Store returns the underlying store.
func (k *KB) Store() *store.Store {
	return k.store
}

// System returns the type system queries are compiled against.
func (k *KB) System() *schema.TypeSystem {
	return k.store.System()
}

// Args are the execution time arguments of a query.
type Args struct {
	// Branch is the branch single branch queries read. Default: trunk.
	Branch ir.BranchID

	// Revision is the revision read by queries compiled with
	// revision = given. Ignored otherwise.
	Revision int64

	// Start and Stop bound the returned rows for range = head and
	// range = range.
	Start, Stop int64

	Params map[string]ir.Value
}

// CompiledQuery is a compiled point-in-time query.
type CompiledQuery struct {
	kb      *KB
	program *compiler.Program
	stmt    *querysql.Statement
}

// Compile compiles q for repeated execution.
func (k *KB) Compile(q *queryir.RevisionQuery) (*CompiledQuery, error) {
	p, err := compiler.Compile(k.System(), q)
	if err != nil {
		qe := compileError(compiler.ModeSearch, err)
		k.metrics.recordCompile(compiler.ModeSearch, qe)
		return nil, qe
	}
	stmt, err := querysql.Compile(p)
	if err != nil {
		qe := &QueryError{Code: ErrCodeUnsupported, QueryID: p.ID, Mode: p.Mode, Err: err}
		k.metrics.recordCompile(p.Mode, qe)
		return nil, qe
	}
	k.metrics.recordCompile(p.Mode, nil)
	return &CompiledQuery{kb: k, program: p, stmt: stmt}, nil
}

// Program returns the compiled program.
func (q *CompiledQuery) Program() *compiler.Program {
	return q.program
}

// SQL returns the generated statement, empty when the query denotes the
// empty set.
func (q *CompiledQuery) SQL() string {
	return q.stmt.SQL
}

// Search executes the query.
//
// Returns an empty slice (not nil) if nothing matches. Results follow the
// query order, then the natural order of the elements.
func (q *CompiledQuery) Search(ctx context.Context, args Args) ([]ir.Value, error) {
	start := time.Now()
	values, err := q.search(ctx, args)
	q.kb.metrics.recordExecution(q.program.Mode, start, len(values), err)
	if err != nil {
		return nil, err
	}

	q.kb.logger.Debug("executed query",
		"query_id", q.program.ID,
		"branch", args.Branch,
		"revision", args.Revision,
		"results", len(values),
		"duration", time.Since(start))

	return values, nil
}

func (q *CompiledQuery) search(ctx context.Context, args Args) ([]ir.Value, error) {
	if err := checkParams(q.program, args.Params); err != nil {
		return nil, q.fail(ErrCodeInvalidArgs, err)
	}
	if args.Branch == 0 {
		args.Branch = ir.TrunkBranch
	}

	rev := args.Revision
	switch q.program.Revision {
	case queryir.RevisionGiven:
		if rev < 1 {
			return nil, q.fail(ErrCodeInvalidArgs, fmt.Errorf("revision %d: revisions start at 1", rev))
		}
	default:
		head, err := q.kb.store.Head(ctx)
		if err != nil {
			return nil, q.fail(ErrCodeExecution, err)
		}
		rev = head
	}

	sqlArgs := querysql.Args{
		Branch:   args.Branch,
		Revision: rev,
		Start:    args.Start,
		Stop:     args.Stop,
		Params:   args.Params,
	}
	var values []ir.Value
	err := q.kb.store.Read(ctx, func(conn *sql.Conn) error {
		var err error
		values, err = q.stmt.Query(ctx, conn, sqlArgs)
		return err
	})
	if err != nil {
		return nil, q.fail(ErrCodeExecution, err)
	}
	return values, nil
}

func (q *CompiledQuery) fail(code QueryErrorCode, err error) *QueryError {
	return &QueryError{Code: code, QueryID: q.program.ID, Mode: q.program.Mode, Err: err}
}

// Search compiles q and executes it once.
func (k *KB) Search(ctx context.Context, q *queryir.RevisionQuery, args Args) ([]ir.Value, error) {
	cq, err := k.Compile(q)
	if err != nil {
		return nil, err
	}
	return cq.Search(ctx, args)
}

// CompiledHistory is a compiled history query.
type CompiledHistory struct {
	kb      *KB
	program *compiler.Program
}

// CompileHistory compiles q for repeated execution.
func (k *KB) CompileHistory(q *queryir.HistoryQuery) (*CompiledHistory, error) {
	p, err := compiler.CompileHistory(k.System(), q)
	if err != nil {
		qe := compileError(compiler.ModeHistory, err)
		k.metrics.recordCompile(compiler.ModeHistory, qe)
		return nil, qe
	}
	k.metrics.recordCompile(p.Mode, nil)
	return &CompiledHistory{kb: k, program: p}, nil
}

// Program returns the compiled program.
func (h *CompiledHistory) Program() *compiler.Program {
	return h.program
}

// Search computes the revisions during which each item was in the set.
// Args.Revision, Start and Stop are ignored.
func (h *CompiledHistory) Search(ctx context.Context, args Args) (history.Result, error) {
	start := time.Now()
	result, err := h.search(ctx, args)
	h.kb.metrics.recordExecution(h.program.Mode, start, len(result), err)
	if err != nil {
		return nil, err
	}

	h.kb.logger.Debug("executed history query",
		"query_id", h.program.ID,
		"branch", args.Branch,
		"items", len(result),
		"duration", time.Since(start))

	return result, nil
}

func (h *CompiledHistory) search(ctx context.Context, args Args) (history.Result, error) {
	if err := checkParams(h.program, args.Params); err != nil {
		return nil, &QueryError{Code: ErrCodeInvalidArgs, QueryID: h.program.ID, Mode: h.program.Mode, Err: err}
	}
	result, err := history.Evaluate(ctx, h.kb.store, h.program, history.Args{Branch: args.Branch, Params: args.Params})
	if err != nil {
		return nil, &QueryError{Code: ErrCodeExecution, QueryID: h.program.ID, Mode: h.program.Mode, Err: err}
	}
	return result, nil
}

// SearchHistory compiles q and evaluates it once.
func (k *KB) SearchHistory(ctx context.Context, q *queryir.HistoryQuery, args Args) (history.Result, error) {
	ch, err := k.CompileHistory(q)
	if err != nil {
		return nil, err
	}
	return ch.Search(ctx, args)
}

// checkParams verifies every declared parameter is bound to a value of its
// kind. NULL binds any parameter.
func checkParams(p *compiler.Program, params map[string]ir.Value) error {
	for _, decl := range p.Params {
		v, ok := params[decl.Name]
		if !ok {
			return fmt.Errorf("parameter $%s is not bound", decl.Name)
		}
		if !ir.IsNull(v) && v.Kind() != decl.Kind {
			return fmt.Errorf("parameter $%s requires %s, got %s", decl.Name, decl.Kind, v.Kind())
		}
	}
	for name := range params {
		if _, ok := p.Param(name); !ok {
			return fmt.Errorf("parameter $%s is not declared", name)
		}
	}
	return nil
}
