package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kbquery/internal/ir"
)

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/branch_history.yaml")
	require.NoError(t, err)

	assert.Equal(t, "branch_history", sc.Name)
	assert.Equal(t, "testdata/fixture.cue", sc.Schema)
	require.Len(t, sc.Commits, 6)
	assert.Equal(t, &Fork{Base: 1}, sc.Commits[3].Fork)
	assert.Equal(t, ir.BranchID(2), sc.Commits[4].Branch)
	assert.True(t, sc.Queries[0].IsHistory())
	assert.True(t, sc.Queries[0].Consistent)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	base := "name: n\ndescription: d\nschema: s.cue\n"
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", base + "querys: []\n", "field querys not found"},
		{"missing name", "description: d\nschema: s\nqueries: [{name: q, query: 'search(allOf(D))'}]\n", "name is required"},
		{"missing schema", "name: n\ndescription: d\nqueries: [{name: q, query: 'search(allOf(D))'}]\n", "schema is required"},
		{"no queries", base, "queries list is required"},
		{"duplicate query", base + "queries: [{name: q, query: 'search(allOf(D))'}, {name: q, query: 'search(allOf(D))'}]\n", "duplicate name"},
		{"empty commit", base + "commits: [{}]\nqueries: [{name: q, query: 'search(allOf(D))'}]\n", "commit has no changes"},
		{"fork with changes", base + "commits: [{fork: {base: 1}, delete: [{type: D, id: d}]}]\nqueries: [{name: q, query: 'search(allOf(D))'}]\n", "a fork cannot change objects"},
		{"two expectations", base + "queries: [{name: q, query: 'search(allOf(D))', expect: {empty: true, error: X}}]\n", "at most one"},
		{"history expectation on search", base + "queries: [{name: q, query: 'search(allOf(D))', expect: {history: {a: '[]'}}}]\n", "need a history query"},
		{"consistent search", base + "queries: [{name: q, query: 'search(allOf(D))', consistent: true}]\n", "consistent requires a history query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseCommits(t *testing.T) {
	commits, err := ParseCommits([]byte(`
- create:
    - type: E
      id: e1
      values:
        name: e
        histRef: {type: D, id: d1, revision: 3}
- fork: {base: 1, revision: 2}
`))
	require.NoError(t, err)
	require.Len(t, commits, 2)

	values, err := convertValues(commits[0].Create[0].Values)
	require.NoError(t, err)
	assert.Equal(t, map[string]ir.Value{
		"name":    ir.String("e"),
		"histRef": ir.Item{Branch: ir.TrunkBranch, Type: "D", ID: "d1", Revision: 3},
	}, values)
	assert.Equal(t, &Fork{Base: 1, Revision: 2}, commits[1].Fork)

	_, err = ParseCommits([]byte("- {}\n"))
	assert.Error(t, err)
}

func TestConvertValues_RejectsFloats(t *testing.T) {
	_, err := convertValues(map[string]any{"n": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `attribute "n"`)
}
