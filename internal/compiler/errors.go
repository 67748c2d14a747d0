package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Type error codes (E300-E319)
const (
	ErrMissingOperand      = "E300" // nil expression where an operand is required
	ErrUnknownType         = "E301" // type name not in the type system
	ErrAbstractScan        = "E302" // allOf over a type without storage
	ErrNotPredicate        = "E303" // boolean required
	ErrSetInScalar         = "E304" // set expression where a scalar is required
	ErrUnionMismatch       = "E305" // union of incompatible element types
	ErrNotAssociation      = "E306" // navigate via a non-association type
	ErrNotItem             = "E307" // item required
	ErrIncompatibleType    = "E308" // item type cannot be an instance of the required type
	ErrUnknownParam        = "E309" // parameter not declared
	ErrNoContext           = "E310" // context() outside filter or map
	ErrUnknownAttribute    = "E311" // attribute not declared by the context type
	ErrReferenceAttribute  = "E312" // attribute() on a reference attribute
	ErrNotReference        = "E313" // reference() on a primitive attribute
	ErrInvalidFlexKind     = "E314" // flex attribute of a non-primitive kind
	ErrIncompatibleOperand = "E315" // operand kinds cannot be compared
	ErrNotTuple            = "E316" // element() on a non-tuple
	ErrIndexOutOfRange     = "E317" // element() index outside the tuple
	ErrInvalidOrderKey     = "E318" // order key is not a primitive value
	ErrInvalidParam        = "E319" // duplicate or ill-typed parameter declaration
)

// Unsupported query codes
const (
	ErrCrossBranchMixed = "U001" // polymorphic navigation of a branch global mixed reference
	ErrHistoryOfValues  = "U002" // history of a set that does not consist of items
)

// TypeError is a compile-time error in a query. Type errors are collected
// in Diagnostics so several can be reported together.
type TypeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Expr    string `json:"expr,omitempty"` // printed form of the offending node
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Expr)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// UnsupportedError reports a query the compiler knows it cannot evaluate
// reliably. It is returned immediately rather than collected.
type UnsupportedError struct {
	Code    string
	Message string
	Expr    string
}

// Error implements the error interface.
func (e *UnsupportedError) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("[%s] unsupported: %s: %s", e.Code, e.Message, e.Expr)
	}
	return fmt.Sprintf("[%s] unsupported: %s", e.Code, e.Message)
}

// IsTypeError reports whether err carries a TypeError.
func IsTypeError(err error) bool {
	var te *TypeError
	return errors.As(err, &te)
}

// IsUnsupported reports whether err carries an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}

// Diagnostics accumulates type errors through the compiler passes. The
// zero value is empty and ready to use.
type Diagnostics struct {
	result *multierror.Error
}

// Add records a type error.
func (d *Diagnostics) Add(err *TypeError) {
	d.result = multierror.Append(d.result, err)
}

// Len returns the number of recorded errors.
func (d *Diagnostics) Len() int {
	if d.result == nil {
		return 0
	}
	return d.result.Len()
}

// Errors returns the recorded errors in recording order.
func (d *Diagnostics) Errors() []*TypeError {
	if d.result == nil {
		return nil
	}
	errs := make([]*TypeError, 0, len(d.result.Errors))
	for _, err := range d.result.Errors {
		var te *TypeError
		if errors.As(err, &te) {
			errs = append(errs, te)
		}
	}
	return errs
}

// CheckErrors turns recorded errors into a failure. It returns nil when
// nothing was recorded. Otherwise the returned *multierror.Error lists every
// error, and errors.As on it yields the first recorded TypeError.
func (d *Diagnostics) CheckErrors() error {
	if d.Len() == 0 {
		return nil
	}
	d.result.ErrorFormat = formatTypeErrors
	return d.result
}

func formatTypeErrors(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d type errors:\n  %s", len(errs), strings.Join(msgs, "\n  "))
}
