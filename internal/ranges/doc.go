// Package ranges implements the interval algebra used to describe when a fact
// holds in the revision history of the knowledge base.
//
// A Range is a closed interval of commit numbers. A Set is an ordered list of
// ranges that never touch or overlap; every operation in this package returns
// sets in that normal form, so two sets describing the same revisions are
// always equal element by element.
//
// The sentinel Current marks an open end: a range [r, Current] is valid from
// revision r on and has not been bounded by a later change.
//
// Complements are taken within the domain [First, Current]:
//
//	Invert({[3, 5]}) == {[1, 2], [6, Current]}
//	Invert(Invert(s)) == s
package ranges
