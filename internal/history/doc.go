// Package history answers history queries: for every item that was ever
// a member of the searched set, the exact set of revisions during which it
// was.
//
// The evaluator works on life-ranges instead of snapshots. Every value of
// the query is a timeline, a list of pieces (revisions, value) describing
// what the value is at each revision. A scan yields, per object, the
// revisions its rows were alive. Attributes of a live binding follow the
// stored versions of the object; attributes of an item bound to a fixed
// revision are constant. Predicates reduce timelines to the revisions at
// which they hold, and the connectives combine those with the interval
// algebra of package ranges:
//
//	and  Intersect
//	or   Union
//	not  Substract from the revisions under evaluation
//
// Historic references bind their target to the revision stored with the
// reference, so navigating one never moves with the queried revision.
// Current references keep the binding of the referencing item.
//
// The result agrees with the SQL lowering: an item is in the point-in-time
// result at revision r iff its range set contains r.
package history
