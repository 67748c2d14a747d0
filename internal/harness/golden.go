package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/kbquery/internal/ir"
)

// Snapshot captures what the queries of a scenario produced. Generated SQL
// is left out; its shape is pinned by the querysql golden files. Snapshots
// serialize to canonical JSON for deterministic comparison.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Queries      []QueryOutcome `json:"queries"`
}

// toCanonicalMap converts a Snapshot to the map form ir.MarshalCanonical
// accepts.
func (s *Snapshot) toCanonicalMap() map[string]any {
	queries := make([]any, len(s.Queries))
	for i, q := range s.Queries {
		m := map[string]any{
			"name":  q.Name,
			"query": q.Query,
		}
		if q.Results != nil {
			m["results"] = q.Results
		}
		if q.History != nil {
			hist := make(map[string]any, len(q.History))
			for k, v := range q.History {
				hist[k] = v
			}
			m["history"] = hist
		}
		if q.Error != "" {
			m["error"] = q.Error
		}
		queries[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"queries":       queries,
	}
}

// MarshalSnapshot renders the snapshot of a result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := Snapshot{ScenarioName: name, Queries: result.Queries}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also assert on Pass and Errors.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the snapshot of an existing result against a
// golden file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
