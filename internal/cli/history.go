package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kbquery/internal/kb"
)

// HistoryEntry is the life range of one item.
type HistoryEntry struct {
	Item   string `json:"item"`
	Ranges string `json:"ranges"`
}

// HistoryResult holds the formatted result of a history query.
type HistoryResult struct {
	ID    string         `json:"id"`
	Items []HistoryEntry `json:"items"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <query>",
		Short: "Run a history query",
		Long: `Report for every item the revisions at which it satisfied the query.

Revision ranges print as "[1, 2] [4, current]".

Examples:
  kbq history --schema types.cue --db kb.db 'history(allOf(D))'
  kbq history --schema types.cue --db kb.db --branch 2 'history(anyOf(D), branch = all)'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}
	opts.addFlags(cmd, false)

	return cmd
}

func runHistory(opts *QueryOptions, text string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	pq, err := parseQuery(text)
	if err != nil {
		return queryFailure(formatter, err)
	}
	if pq.history == nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "point-in-time queries run with the search command", nil)
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

	ch, err := kb.New(st).CompileHistory(pq.history)
	if err != nil {
		return queryFailure(formatter, err)
	}
	res, err := ch.Search(cmd.Context(), args)
	if err != nil {
		return queryFailure(formatter, err)
	}

	result := HistoryResult{ID: ch.Program().ID, Items: make([]HistoryEntry, 0, len(res))}
	for _, k := range res.Keys() {
		result.Items = append(result.Items, HistoryEntry{Item: k.String(), Ranges: res[k].String()})
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	for _, e := range result.Items {
		fmt.Fprintf(formatter.Writer, "%s %s\n", e.Item, e.Ranges)
	}
	fmt.Fprintf(formatter.Writer, "\n%d item(s)\n", len(result.Items))
	return nil
}
