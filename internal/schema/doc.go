// Package schema provides the type system queries are compiled against.
//
// A TypeSystem is an immutable set of named types:
//   - classes, optionally abstract, with single or multiple inheritance
//   - associations, link types with a "source" and a "dest" reference
//   - unions, which name a fixed set of member types and own no storage
//
// Every class without a declared parent extends the implicit abstract root
// type Item. Attributes are primitive (string, int, bool) or references.
// A reference carries a HistoryType that decides which revision of the
// target it designates, and may be branch global, in which case the target
// branch is stored with the reference.
//
// Type systems are defined in CUE (see CompileCUE) or built from
// Definitions (see New). Both paths run Validate and reject any definition
// set with errors.
package schema
