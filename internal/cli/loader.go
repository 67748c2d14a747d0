package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/roach88/kbquery/internal/harness"
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/kb"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/schema"
	"github.com/roach88/kbquery/internal/store"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNoSchema     = "E002" // --schema not given
	ErrCodeNoDB         = "E003" // --db not given
	ErrCodeLoadFailed   = "E004" // type system does not compile
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeStoreFailed  = "E006" // database cannot be opened or read
	ErrCodeWriteFailed  = "E007" // changes could not be committed
	ErrCodeInvalidInput = "E008" // malformed parameters or change file
)

// requireSchema checks that --schema names an existing file.
func requireSchema(opts *RootOptions) (string, string, error) {
	if opts.Schema == "" {
		return ErrCodeNoSchema, "--schema is required", errors.New("no schema")
	}
	if _, err := os.Stat(opts.Schema); err != nil {
		return ErrCodeNotFound, fmt.Sprintf("schema file not found: %s", opts.Schema), err
	}
	return "", "", nil
}

// loadSchema compiles the type system named by --schema.
func loadSchema(f *OutputFormatter, opts *RootOptions) (*schema.TypeSystem, error) {
	if code, msg, err := requireSchema(opts); err != nil {
		return nil, f.Fail(ExitCommandError, code, msg, nil)
	}
	ts, err := schema.LoadFile(opts.Schema)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}
	f.VerboseLog("Loaded %d type(s) from %s", len(ts.Types()), opts.Schema)
	return ts, nil
}

// openStore opens the database named by --db for the type system named by
// --schema. The caller closes the store.
func openStore(f *OutputFormatter, opts *RootOptions) (*store.Store, error) {
	ts, err := loadSchema(f, opts)
	if err != nil {
		return nil, err
	}
	if opts.DB == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeNoDB, "--db is required", nil)
	}
	st, err := store.Open(opts.DB, ts, store.Options{Logger: slog.Default()})
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStoreFailed, err.Error(), nil)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
}

// parseParams decodes a YAML (or JSON) mapping of parameter values. Items
// are written as mappings with type and id, and optionally branch and
// revision.
func parseParams(src string) (map[string]ir.Value, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	params := make(map[string]ir.Value, len(raw))
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		v, err := ir.FromJSON(raw[name])
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

// parsedQuery is either a point-in-time or a history query.
type parsedQuery struct {
	search  *queryir.RevisionQuery
	history *queryir.HistoryQuery
}

func parseQuery(text string) (parsedQuery, error) {
	if strings.HasPrefix(strings.TrimSpace(text), "history") {
		q, err := queryir.ParseHistory(text)
		return parsedQuery{history: q}, err
	}
	q, err := queryir.ParseQuery(text)
	return parsedQuery{search: q}, err
}

// queryFailure reports a query error with the code of its taxonomy.
func queryFailure(f *OutputFormatter, err error) error {
	var qe *kb.QueryError
	if errors.As(err, &qe) {
		return f.Fail(ExitCommandError, string(qe.Code), qe.Err.Error(), queryDetails(qe.Err))
	}
	var pe *queryir.ParseError
	if errors.As(err, &pe) {
		return f.Fail(ExitCommandError, harness.ErrCodeParse, pe.Error(), nil)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}

// queryDetails lists every type error when compilation recorded several.
func queryDetails(err error) any {
	var merr *multierror.Error
	if !errors.As(err, &merr) || merr.Len() < 2 {
		return nil
	}
	msgs := make([]string, merr.Len())
	for i, e := range merr.Errors {
		msgs[i] = e.Error()
	}
	return msgs
}
