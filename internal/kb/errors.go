package kb

import (
	"errors"
	"fmt"

	"github.com/roach88/kbquery/internal/compiler"
)

// QueryError represents a failure to compile or execute a query.
//
// Query errors include:
//   - Compile errors: the query is ill typed (compiler.TypeError)
//   - Unsupported queries: the compiler cannot evaluate the query reliably
//   - Invalid arguments: execution arguments do not fit the compiled query
//   - Execution errors: the store failed while running the query
//
// The underlying error stays reachable through errors.As and errors.Is.
type QueryError struct {
	// Code identifies the error category.
	Code QueryErrorCode

	// QueryID is the fingerprint of the compiled query, empty when
	// compilation failed before one was computed.
	QueryID string

	// Mode is search or history.
	Mode compiler.Mode

	Err error
}

// QueryErrorCode categorizes query errors.
type QueryErrorCode string

const (
	// ErrCodeCompile indicates the query failed type binding.
	ErrCodeCompile QueryErrorCode = "COMPILE_ERROR"

	// ErrCodeUnsupported indicates a query the compiler rejects as
	// unreliable.
	ErrCodeUnsupported QueryErrorCode = "UNSUPPORTED"

	// ErrCodeInvalidArgs indicates execution arguments that do not fit the
	// query.
	ErrCodeInvalidArgs QueryErrorCode = "INVALID_ARGS"

	// ErrCodeExecution indicates a storage failure while running the query.
	ErrCodeExecution QueryErrorCode = "EXECUTION_ERROR"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.QueryID != "" {
		return fmt.Sprintf("%s: %s query %s: %v", e.Code, e.Mode, e.QueryID, e.Err)
	}
	return fmt.Sprintf("%s: %s query: %v", e.Code, e.Mode, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsCompileError returns true if the error is a compile error.
// Uses errors.As to handle wrapped errors.
func IsCompileError(err error) bool {
	return hasCode(err, ErrCodeCompile)
}

// IsUnsupported returns true if the query was rejected as unsupported.
func IsUnsupported(err error) bool {
	return hasCode(err, ErrCodeUnsupported)
}

// IsInvalidArgs returns true if the execution arguments were rejected.
func IsInvalidArgs(err error) bool {
	return hasCode(err, ErrCodeInvalidArgs)
}

// IsExecutionError returns true if the store failed running the query.
func IsExecutionError(err error) bool {
	return hasCode(err, ErrCodeExecution)
}

func hasCode(err error, code QueryErrorCode) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// compileError classifies an error returned by the compiler.
func compileError(mode compiler.Mode, err error) *QueryError {
	code := ErrCodeCompile
	if compiler.IsUnsupported(err) {
		code = ErrCodeUnsupported
	}
	return &QueryError{Code: code, Mode: mode, Err: err}
}
