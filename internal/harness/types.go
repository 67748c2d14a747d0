package harness

// QueryOutcome is what one query of a scenario produced.
type QueryOutcome struct {
	Name  string `json:"name"`
	Query string `json:"query"`

	// SQL is the generated statement of search queries.
	SQL string `json:"sql,omitempty"`

	// Results are the formatted search results, see FormatResult.
	Results []string `json:"results,omitempty"`

	// History maps formatted items to their revision ranges.
	History map[string]string `json:"history,omitempty"`

	// Error is the error code when the query failed.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every query matched its expectation.
	Pass bool `json:"pass"`

	// Queries holds one outcome per scenario query, in order.
	Queries []QueryOutcome `json:"queries"`

	// Errors contains expectation mismatches.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Queries: []QueryOutcome{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
