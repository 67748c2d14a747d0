package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kbquery/internal/compiler"
	"github.com/roach88/kbquery/internal/kb"
	"github.com/roach88/kbquery/internal/querysql"
	"github.com/roach88/kbquery/internal/schema"
)

// CompilationResult describes a compiled query.
type CompilationResult struct {
	ID    string `json:"id"`
	Mode  string `json:"mode"`
	Query string `json:"query"` // printed normal form
	// SQL is the statement of point-in-time queries, and of the
	// equivalent point-in-time query for history queries. Empty when the
	// query denotes the empty set.
	SQL    string   `json:"sql"`
	Params []string `json:"params,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <query>",
		Short: "Compile a query and print its SQL",
		Long: `Type check a query against the type system and print the generated SQL.

Queries are written in query syntax, for example:
  kbq compile --schema types.cue 'search(filter(allOf(D), eq(attribute(context(), D1), "a")))'
  kbq compile --schema types.cue 'history(anyOf(D), branch = all)'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runCompile(opts *RootOptions, text string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ts, err := loadSchema(formatter, opts)
	if err != nil {
		return err
	}
	pq, err := parseQuery(text)
	if err != nil {
		return queryFailure(formatter, err)
	}

	result, err := compileQuery(ts, pq)
	if err != nil {
		return queryFailure(formatter, err)
	}
	formatter.VerboseLog("Compiled %s query %s", result.Mode, result.ID)

	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %s query %s\n\n", result.Mode, result.ID)
	fmt.Fprintf(formatter.Writer, "Query:\n  %s\n\n", result.Query)
	if result.SQL == "" {
		fmt.Fprintln(formatter.Writer, "SQL: none (empty result)")
		return nil
	}
	fmt.Fprintf(formatter.Writer, "SQL:\n%s\n", result.SQL)
	if len(result.Params) > 0 {
		fmt.Fprintf(formatter.Writer, "\nParameters: %v\n", result.Params)
	}
	return nil
}

// compileQuery compiles without a store. Errors are reported with the
// taxonomy of kb.QueryError.
func compileQuery(ts *schema.TypeSystem, pq parsedQuery) (*CompilationResult, error) {
	var (
		p   *compiler.Program
		err error
	)
	if pq.history != nil {
		p, err = compiler.CompileHistory(ts, pq.history)
	} else {
		p, err = compiler.Compile(ts, pq.search)
	}
	if err != nil {
		return nil, asQueryError(modeOf(pq), "", err)
	}

	result := &CompilationResult{ID: p.ID, Mode: string(p.Mode), Query: p.Text}
	for _, decl := range p.Params {
		result.Params = append(result.Params, decl.Name)
	}

	sqlProgram := p
	if pq.history != nil {
		if sqlProgram, err = compiler.Compile(ts, pq.history.AtRevision()); err != nil {
			return nil, asQueryError(p.Mode, p.ID, err)
		}
	}
	stmt, err := querysql.Compile(sqlProgram)
	if err != nil {
		return nil, &kb.QueryError{Code: kb.ErrCodeUnsupported, QueryID: p.ID, Mode: p.Mode, Err: err}
	}
	result.SQL = stmt.SQL
	return result, nil
}

func modeOf(pq parsedQuery) compiler.Mode {
	if pq.history != nil {
		return compiler.ModeHistory
	}
	return compiler.ModeSearch
}

func asQueryError(mode compiler.Mode, id string, err error) *kb.QueryError {
	code := kb.ErrCodeCompile
	if compiler.IsUnsupported(err) {
		code = kb.ErrCodeUnsupported
	}
	return &kb.QueryError{Code: code, QueryID: id, Mode: mode, Err: err}
}
