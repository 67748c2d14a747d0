// Package store provides the SQLite-backed revisioned object store the
// queries run against.
//
// Every concrete type has a table named after it. A row is one version of
// an object on one branch, valid from REV_MIN through REV_MAX inclusive:
//
//	BRANCH | IDENTIFIER | REV_MIN | REV_MAX | REV_CREATE | <attribute columns>
//
// Live rows have REV_MAX = ir.CurrentRevision. A commit at revision r
// closes the rows it changes at r-1 and inserts their successors with
// REV_MIN = r, so the state at any earlier revision never changes.
//
// Reference attributes occupy several columns: a__id and a__type, plus
// a__branch for branch global references and a__rev for historic and
// mixed ones. Dynamic attributes live in KB_FLEX with the same revision
// bounds. Columns carry no type affinity, booleans are stored as 0 and 1.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Writes are serialized by the Store. Reads borrow one pooled connection
// per call, see Store.Read.
package store
