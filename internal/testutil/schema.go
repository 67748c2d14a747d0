package testutil

import (
	"testing"

	"github.com/roach88/kbquery/internal/schema"
)

// FixtureCUE declares the type system shared by the query tests.
//
//	A (abstract)   name, n, flag
//	  B            ref -> A, b
//	  C            c
//	D              D1
//	  DSub         extra
//	E              name and one reference to D per history type,
//	               plus branch global ones
//	AB             association A -> B with weight
//	BorC           union of B and C
const FixtureCUE = `
types: {
	A: {
		abstract: true
		attributes: {
			name: "string"
			n:    "int"
			flag: "bool"
		}
	}
	B: {
		extends: "A"
		attributes: {
			ref: { kind: "reference", target: "A" }
			b:   "string"
		}
	}
	C: {
		extends: "A"
		attributes: c: "string"
	}
	D: attributes: D1: "string"
	DSub: {
		extends: "D"
		attributes: extra: "string"
	}
	E: attributes: {
		name:    "string"
		curRef:  { kind: "reference", target: "D" }
		histRef: { kind: "reference", target: "D", history: "historic" }
		mixRef:  { kind: "reference", target: "D", history: "mixed" }
		globRef: { kind: "reference", target: "D", branchGlobal: true }
		globMix: { kind: "reference", target: "D", history: "mixed", branchGlobal: true }
		globDS:  { kind: "reference", target: "DSub", history: "mixed", branchGlobal: true }
	}
	AB: {
		association: true
		attributes: {
			source: { kind: "reference", target: "A" }
			dest:   { kind: "reference", target: "B" }
			weight: "int"
		}
	}
	BorC: union: ["B", "C"]
}
`

// FixtureSystem compiles FixtureCUE.
func FixtureSystem(t testing.TB) *schema.TypeSystem {
	t.Helper()
	ts, err := schema.CompileCUE(FixtureCUE, "fixture.cue")
	if err != nil {
		t.Fatalf("compile fixture type system: %v", err)
	}
	return ts
}
