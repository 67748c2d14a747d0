// Package queryir provides the declarative query language of kbquery: an
// expression tree of set expressions and scalar expressions.
//
// ARCHITECTURE:
//
// The query IR sits between callers and the two evaluation backends:
//
//	[factories / text parser] → [query IR] → [compiler] → [SQL backend]
//	                                                     → [history evaluator]
//
// Callers build trees only through the factory functions of this package
// (AllOf, Filter, Attribute, Eq, ...) or by parsing the textual form
// produced by Print. Trees are immutable once built; the compiler rewrites
// them into new trees and never annotates nodes in place.
//
// SEALED INTERFACES:
//
// Expr is a sealed interface using the marker method pattern. SetExpr is the
// subset of expressions denoting a set of values. Only types in this package
// implement them, which enables exhaustive type switches in the compiler
// and both backends:
//
//	switch e := expr.(type) {
//	case *AllOf:
//	    // scan of one type
//	case *Filter:
//	    // restriction of a source set
//	default:
//	    // impossible
//	}
//
// CONTEXT:
//
// Scalar expressions are evaluated relative to a context value: the element
// of the enclosing Filter or MapTo source. Context() denotes that value;
// Eval(ctx, inner) re-roots inner at the value of ctx.
//
// VALUES:
//
// Literal values are ir.Value (no floats). Items are object references
// bound to a revision; equality between items ignores the revision.
//
// NULL SEMANTICS:
//
// Every predicate is two-valued. Eq is null-safe: NULL equals NULL and never
// equals a value. Ordering comparisons are false when either side is NULL.
// Sets never contain NULL, so InSet(NULL, s) is false.
package queryir
