package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kbquery/internal/harness"
)

// ApplyResult lists the revisions created by a change file.
type ApplyResult struct {
	Revisions []int64 `json:"revisions"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <changes.yaml>",
		Short: "Commit changes from a YAML file",
		Long: `Commit a list of changes to a database, one revision per entry.

The file uses the commit format of test scenarios:

  - create:
      - {type: D, id: d1, values: {D1: a}}
  - update:
      - {type: D, id: d1, values: {D1: b}}
  - fork: {base: 1}
  - branch: 2
    delete:
      - {type: D, id: d1}

The database is created if it does not exist.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runApply(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	data, err := os.ReadFile(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("change file not found: %s", path), nil)
	}
	commits, err := harness.ParseCommits(data)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}

	st, err := openStore(formatter, opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	revs, err := harness.Apply(cmd.Context(), st, commits)
	if err != nil {
		// Earlier commits stay applied.
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}
	formatter.VerboseLog("Applied %s", path)

	if formatter.JSON() {
		return formatter.Success(ApplyResult{Revisions: revs})
	}
	if len(revs) == 0 {
		fmt.Fprintln(formatter.Writer, "No changes.")
		return nil
	}
	fmt.Fprintf(formatter.Writer, "✓ Applied %d commit(s), head revision %d\n", len(revs), revs[len(revs)-1])
	return nil
}
