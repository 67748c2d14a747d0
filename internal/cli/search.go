package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kbquery/internal/harness"
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/kb"
)

// QueryOptions holds the execution flags of search and history.
type QueryOptions struct {
	*RootOptions
	Branch   int64
	Revision int64
	Start    int64
	Stop     int64
	Params   string // YAML mapping
}

func (o *QueryOptions) addFlags(cmd *cobra.Command, revisions bool) {
	cmd.Flags().Int64Var(&o.Branch, "branch", int64(ir.TrunkBranch), "branch to read")
	cmd.Flags().StringVar(&o.Params, "params", "{}", "parameter values as a YAML mapping")
	if revisions {
		cmd.Flags().Int64Var(&o.Revision, "revision", 0, "revision read by queries with revision = given")
		cmd.Flags().Int64Var(&o.Start, "start", 0, "first row for range = head and range = range")
		cmd.Flags().Int64Var(&o.Stop, "stop", 0, "row bound for range = head and range = range")
	}
}

func (o *QueryOptions) args() (kb.Args, error) {
	params, err := parseParams(o.Params)
	if err != nil {
		return kb.Args{}, err
	}
	return kb.Args{
		Branch:   ir.BranchID(o.Branch),
		Revision: o.Revision,
		Start:    o.Start,
		Stop:     o.Stop,
		Params:   params,
	}, nil
}

// SearchResult holds the formatted results of a point-in-time query.
type SearchResult struct {
	ID      string   `json:"id"`
	Results []string `json:"results"`
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a point-in-time query",
		Long: `Run a point-in-time query against a database.

Items print as Type:id@branch, other values in query syntax.

Examples:
  kbq search --schema types.cue --db kb.db 'search(allOf(D))'
  kbq search --schema types.cue --db kb.db --revision 3 'search(anyOf(D), revision = given)'
  kbq search --schema types.cue --db kb.db --params '{v: a}' \
    'search(filter(allOf(D), eq(attribute(context(), D1), $v)), params = [v string])'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, args[0], cmd)
		},
	}
	opts.addFlags(cmd, true)

	return cmd
}

func runSearch(opts *QueryOptions, text string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	pq, err := parseQuery(text)
	if err != nil {
		return queryFailure(formatter, err)
	}
	if pq.search == nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "history queries run with the history command", nil)
	}
	args, err := opts.args()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}

	st, err := openStore(formatter, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	k := kb.New(st)
	cq, err := k.Compile(pq.search)
	if err != nil {
		return queryFailure(formatter, err)
	}
	formatter.VerboseLog("SQL:\n%s", cq.SQL())

	values, err := cq.Search(cmd.Context(), args)
	if err != nil {
		return queryFailure(formatter, err)
	}

	result := SearchResult{ID: cq.Program().ID, Results: make([]string, len(values))}
	for i, v := range values {
		result.Results[i] = harness.FormatResult(v)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	for _, r := range result.Results {
		fmt.Fprintln(formatter.Writer, r)
	}
	fmt.Fprintf(formatter.Writer, "\n%d result(s)\n", len(result.Results))
	return nil
}
