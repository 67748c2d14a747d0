// Package harness runs query scenarios against a fresh object store.
//
// A scenario names a type system, applies a list of commits, and runs
// point-in-time and history queries against the result, comparing each
// with its expectation.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: ../fixture.cue
//	commits:
//	  - create:
//	      - {type: D, id: d1, values: {D1: a}}
//	  - update:
//	      - {type: D, id: d1, values: {D1: b}}
//	  - fork: {base: 1}
//	  - branch: 2
//	    flex:
//	      - {type: D, id: d1, values: {note: n}}
//	    delete:
//	      - {type: D, id: d2}
//	queries:
//	  - name: current
//	    query: 'search(filter(allOf(D), eq(attribute(context(), D1), "b")))'
//	    expect:
//	      results: ["D:d1@1"]
//	  - name: lifetime
//	    query: 'history(allOf(D))'
//	    consistent: true
//	    expect:
//	      history: {"D:d1@1": "[1, current]"}
//
// Every commit creates one revision. A fork creates a branch from base at
// revision (default: the latest state) and carries no changes. Attribute
// values that are mappings with type and id are items.
//
// # Expectations
//
// A query expects at most one of:
//
//   - results: the formatted search results in order (see FormatResult)
//   - history: revision ranges per item, compared as sets
//   - empty: no results at all
//   - error: an error code such as COMPILE_ERROR or UNSUPPORTED
//
// History queries marked consistent are also checked against the
// equivalent point-in-time query at every revision from 1 through the
// head revision plus one.
//
// # Deterministic Testing
//
// Objects keep the identifiers the scenario gives them and revisions are
// numbered from 1, so snapshots are identical across runs and can be
// compared with golden files (see RunWithGolden).
package harness
