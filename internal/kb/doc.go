// Package kb is the query surface of the knowledge base.
//
// A KB compiles queries once and executes them many times:
//
//	q, err := k.Compile(query)        // type binding, expansion, SQL lowering
//	items, err := q.Search(ctx, args) // one pooled read connection per call
//
// History queries are compiled with CompileHistory and return, for every
// item ever in the set, the revisions during which it was.
//
// Failures are *QueryError values classified by code; use IsCompileError,
// IsUnsupported, IsInvalidArgs and IsExecutionError to inspect them.
package kb
