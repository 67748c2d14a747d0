package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCUE = `
types: {
	A: {
		abstract: true
		attributes: {
			name: "string"
			size: { kind: "int" }
		}
	}
	B: {
		extends: "A"
		attributes: {
			ref: { kind: "reference", target: "A", history: "historic", branchGlobal: true }
		}
	}
	C: { extends: ["A"] }
	AB: {
		association: true
		attributes: {
			source: { kind: "reference", target: "A" }
			dest: { kind: "reference", target: "B" }
		}
	}
	BorC: { union: ["B", "C"] }
}
`

func TestParseCUE(t *testing.T) {
	defs, err := ParseCUE(sampleCUE, "sample.cue")
	require.NoError(t, err)
	require.Len(t, defs, 5)

	assert.Equal(t, "A", defs[0].Name)
	assert.True(t, defs[0].Abstract)
	assert.Equal(t, []AttributeDef{
		{Name: "name", Kind: "string", Line: defs[0].Attributes[0].Line},
		{Name: "size", Kind: "int", Line: defs[0].Attributes[1].Line},
	}, defs[0].Attributes)

	assert.Equal(t, []string{"A"}, defs[1].Extends)
	ref := defs[1].Attributes[0]
	assert.Equal(t, "reference", ref.Kind)
	assert.Equal(t, "A", ref.Target)
	assert.Equal(t, "historic", ref.History)
	assert.True(t, ref.BranchGlobal)

	assert.Equal(t, []string{"A"}, defs[2].Extends)
	assert.True(t, defs[3].Association)
	assert.Equal(t, []string{"B", "C"}, defs[4].Union)
	assert.Greater(t, defs[1].Line, 0)
}

func TestCompileCUE(t *testing.T) {
	ts, err := CompileCUE(sampleCUE, "sample.cue")
	require.NoError(t, err)

	b := ts.MustType("B")
	ref, ok := b.Attribute("ref")
	require.True(t, ok)
	assert.Equal(t, HistoryHistoric, ref.History)
	assert.Equal(t, ts.MustType("A"), ref.Target)
	assert.NotEmpty(t, ts.ID())
}

func TestCompileCUESyntaxError(t *testing.T) {
	_, err := CompileCUE("types: {", "broken.cue")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestCompileCUEMissingTypes(t *testing.T) {
	_, err := CompileCUE(`other: 1`, "x.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "types is required")
}

func TestCompileCUEBadAttribute(t *testing.T) {
	_, err := CompileCUE(`types: { A: { attributes: { x: { target: "A" } } } }`, "x.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind")
}

func TestCompileCUEValidationErrors(t *testing.T) {
	_, err := CompileCUE(`types: { A: { extends: "Missing", attributes: { x: "float" } } }`, "x.cue")
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	codes := make([]string, len(verrs))
	for i, e := range verrs {
		codes[i] = e.Code
	}
	assert.ElementsMatch(t, []string{ErrUnknownParent, ErrFloatKindForbidden}, codes)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.cue")
	require.NoError(t, os.WriteFile(path, []byte(sampleCUE), 0o644))

	ts, err := LoadFile(path)
	require.NoError(t, err)
	_, ok := ts.Type("AB")
	assert.True(t, ok)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
