package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kbquery/internal/ir"
)

// Scenario defines a query test scenario: a type system, a history of
// commits, and queries with their expected results.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path to the CUE type system, relative to the scenario
	// file location.
	Schema string `yaml:"schema"`

	// Commits are applied in order, each as one revision.
	Commits []Commit `yaml:"commits"`

	// Queries run after all commits.
	Queries []QueryCase `yaml:"queries"`
}

// Commit is one revision of a scenario. A commit either forks a branch or
// changes objects on Branch.
type Commit struct {
	// Branch receives the changes. Default: trunk.
	Branch ir.BranchID `yaml:"branch,omitempty"`

	Create []ObjectChange `yaml:"create,omitempty"`
	Update []ObjectChange `yaml:"update,omitempty"`

	// Flex sets flex attributes; a null value clears one.
	Flex   []ObjectChange `yaml:"flex,omitempty"`
	Delete []ObjectChange `yaml:"delete,omitempty"`

	Fork *Fork `yaml:"fork,omitempty"`
}

// ObjectChange addresses one object of the commit's branch.
type ObjectChange struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`

	// Values are attribute values. A mapping with type and id (and
	// optionally branch and revision) is an item.
	Values map[string]any `yaml:"values,omitempty"`
}

// Fork creates a branch from Base at Revision. Revision 0 forks the latest
// state.
type Fork struct {
	Base     ir.BranchID `yaml:"base"`
	Revision int64       `yaml:"revision,omitempty"`
}

// QueryCase is a query with its arguments and expected outcome.
type QueryCase struct {
	Name string `yaml:"name"`

	// Query is textual query syntax, either search(...) or history(...).
	Query string `yaml:"query"`

	Branch   ir.BranchID    `yaml:"branch,omitempty"`
	Revision int64          `yaml:"revision,omitempty"`
	Start    int64          `yaml:"start,omitempty"`
	Stop     int64          `yaml:"stop,omitempty"`
	Params   map[string]any `yaml:"params,omitempty"`

	Expect Expect `yaml:"expect"`

	// Consistent checks a history query against the equivalent
	// point-in-time query at every revision.
	Consistent bool `yaml:"consistent,omitempty"`
}

// IsHistory reports whether the case is a history query.
func (q *QueryCase) IsHistory() bool {
	return strings.HasPrefix(strings.TrimSpace(q.Query), "history")
}

// Expect is the expected outcome of a query. At most one of Results,
// History and Error is checked; an empty Expect checks nothing.
type Expect struct {
	// Results are the formatted search results in order: items as
	// Type:id@branch, other values in query syntax.
	Results []string `yaml:"results,omitempty"`

	// History maps formatted items to revision ranges, "[1, 2] [4, current]".
	History map[string]string `yaml:"history,omitempty"`

	// Empty expects no result at all.
	Empty bool `yaml:"empty,omitempty"`

	// Error is the expected error code, e.g. COMPILE_ERROR.
	Error string `yaml:"error,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. The schema path is
// resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	sc, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(sc.Schema) && basePath != "" {
		sc.Schema = filepath.Join(basePath, sc.Schema)
	}
	if _, err := os.Stat(sc.Schema); err != nil {
		return nil, fmt.Errorf("invalid scenario: schema file not found: %s", sc.Schema)
	}
	return sc, nil
}

// ParseScenario decodes a scenario with strict field validation. The
// schema path is left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// ParseCommits decodes a change file: a YAML list of commits.
func ParseCommits(data []byte) ([]Commit, error) {
	var commits []Commit
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&commits); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i := range commits {
		if err := validateCommit(i, &commits[i]); err != nil {
			return nil, err
		}
	}
	return commits, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for i := range s.Commits {
		if err := validateCommit(i, &s.Commits[i]); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(s.Queries))
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if names[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		names[q.Name] = true
		if q.Query == "" {
			return fmt.Errorf("queries[%d]: query is required", i)
		}
		if err := validateExpect(i, &q); err != nil {
			return err
		}
	}
	return nil
}

func validateCommit(index int, c *Commit) error {
	changes := len(c.Create) + len(c.Update) + len(c.Flex) + len(c.Delete)
	if c.Fork != nil {
		if changes > 0 {
			return fmt.Errorf("commits[%d]: a fork cannot change objects", index)
		}
		return nil
	}
	if changes == 0 {
		return fmt.Errorf("commits[%d]: commit has no changes", index)
	}
	for _, group := range [][]ObjectChange{c.Create, c.Update, c.Flex, c.Delete} {
		for _, o := range group {
			if o.Type == "" || o.ID == "" {
				return fmt.Errorf("commits[%d]: type and id are required", index)
			}
		}
	}
	return nil
}

func validateExpect(index int, q *QueryCase) error {
	e := q.Expect
	set := 0
	for _, ok := range []bool{len(e.Results) > 0, len(e.History) > 0, e.Empty, e.Error != ""} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("queries[%d]: expect at most one of results, history, empty and error", index)
	}
	if len(e.History) > 0 && !q.IsHistory() {
		return fmt.Errorf("queries[%d]: history expectations need a history query", index)
	}
	if len(e.Results) > 0 && q.IsHistory() {
		return fmt.Errorf("queries[%d]: results expectations need a search query", index)
	}
	if q.Consistent && !q.IsHistory() {
		return fmt.Errorf("queries[%d]: consistent requires a history query", index)
	}
	return nil
}
