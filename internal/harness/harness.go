package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/kb"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/schema"
	"github.com/roach88/kbquery/internal/store"
	"github.com/roach88/kbquery/internal/testutil"
)

// Harness runs the queries of one scenario against its applied commits.
type Harness struct {
	kb     *kb.KB
	head   int64
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh database in a temporary directory.
// Objects are created with the identifiers the scenario gives, so results
// are reproducible.
//
// Execution flow:
// 1. Load the type system and create a fresh database
// 2. Apply the commits in order
// 3. Run every query and compare it with its expectation
// 4. Check history queries marked consistent at every revision
func Run(scenario *Scenario) (*Result, error) {
	ts, err := schema.LoadFile(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	dir, err := os.MkdirTemp("", "kbquery-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	defer os.RemoveAll(dir)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	st, err := store.Open(filepath.Join(dir, "kb.db"), ts, store.Options{
		Logger:      logger,
		IDGenerator: testutil.NewSequentialIDs(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	revs, err := Apply(ctx, st, scenario.Commits)
	if err != nil {
		return nil, fmt.Errorf("failed to apply commits: %w", err)
	}

	h := &Harness{kb: kb.New(st, kb.WithLogger(logger)), logger: logger}
	if len(revs) > 0 {
		h.head = revs[len(revs)-1]
	}

	result := NewResult()
	for _, q := range scenario.Queries {
		outcome := h.runQuery(ctx, q)
		for _, msg := range checkExpect(q, outcome) {
			result.AddError(fmt.Sprintf("%s: %s", q.Name, msg))
		}
		if q.Consistent && outcome.Error == "" {
			mismatches, err := h.checkConsistency(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", q.Name, err)
			}
			for _, msg := range mismatches {
				result.AddError(fmt.Sprintf("%s: %s", q.Name, msg))
			}
		}
		result.Queries = append(result.Queries, outcome)

		h.logger.Info("query completed",
			"query", q.Name,
			"error", outcome.Error)
	}

	return result, nil
}

func (h *Harness) runQuery(ctx context.Context, q QueryCase) QueryOutcome {
	outcome := QueryOutcome{Name: q.Name, Query: q.Query}
	params, err := convertValues(q.Params)
	if err != nil {
		outcome.Error = string(kb.ErrCodeInvalidArgs)
		return outcome
	}
	args := kb.Args{Branch: q.Branch, Revision: q.Revision, Start: q.Start, Stop: q.Stop, Params: params}

	if q.IsHistory() {
		hq, err := queryir.ParseHistory(q.Query)
		if err != nil {
			outcome.Error = ErrorCode(err)
			return outcome
		}
		res, err := h.kb.SearchHistory(ctx, hq, args)
		if err != nil {
			outcome.Error = ErrorCode(err)
			return outcome
		}
		outcome.History = make(map[string]string, len(res))
		for _, k := range res.Keys() {
			outcome.History[k.String()] = res[k].String()
		}
		return outcome
	}

	rq, err := queryir.ParseQuery(q.Query)
	if err != nil {
		outcome.Error = ErrorCode(err)
		return outcome
	}
	cq, err := h.kb.Compile(rq)
	if err != nil {
		outcome.Error = ErrorCode(err)
		return outcome
	}
	outcome.SQL = cq.SQL()
	values, err := cq.Search(ctx, args)
	if err != nil {
		outcome.Error = ErrorCode(err)
		return outcome
	}
	outcome.Results = make([]string, len(values))
	for i, v := range values {
		outcome.Results[i] = FormatResult(v)
	}
	return outcome
}

// FormatResult renders a search result: items as Type:id@branch, other
// values in query syntax.
func FormatResult(v ir.Value) string {
	if item, ok := v.(ir.Item); ok {
		return item.Key().String()
	}
	return ir.Format(v)
}

// ErrorCode maps a query error to the code scenarios expect.
func ErrorCode(err error) string {
	switch {
	case kb.IsCompileError(err):
		return string(kb.ErrCodeCompile)
	case kb.IsUnsupported(err):
		return string(kb.ErrCodeUnsupported)
	case kb.IsInvalidArgs(err):
		return string(kb.ErrCodeInvalidArgs)
	case kb.IsExecutionError(err):
		return string(kb.ErrCodeExecution)
	default:
		return ErrCodeParse
	}
}

// ErrCodeParse is reported for queries whose text does not parse.
const ErrCodeParse = "PARSE_ERROR"
