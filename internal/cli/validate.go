package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kbquery/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	ID     string                   `json:"id,omitempty"`
	Types  []string                 `json:"types,omitempty"`
	Errors []schema.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema.cue>",
		Short: "Validate a type system",
		Long: `Validate a CUE type system without opening a database.

Reports every definition error: unknown parents and targets, inheritance
and union cycles, reserved or duplicate names, and unsupported kinds.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(path); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("schema file not found: %s", path), nil)
	}

	ts, err := schema.LoadFile(path)
	if err != nil {
		var verrs schema.ValidationErrors
		if errors.As(err, &verrs) {
			return outputValidationErrors(formatter, verrs)
		}
		var cerr *schema.CompileError
		if errors.As(err, &cerr) {
			return outputValidationErrors(formatter, []schema.ValidationError{{
				Field:   cerr.Field,
				Message: cerr.Message,
				Code:    ErrCodeLoadFailed,
				Line:    lineOf(cerr),
			}})
		}
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}

	result := ValidationResult{Valid: true, ID: ts.ID()}
	for _, t := range ts.Types() {
		result.Types = append(result.Types, t.Name)
	}
	formatter.VerboseLog("Type system %s", ts.ID())

	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Type system valid: %d type(s)\n", len(result.Types))
	return nil
}

func lineOf(e *schema.CompileError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []schema.ValidationError) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
