package queryir

import (
	"fmt"

	"github.com/roach88/kbquery/internal/ir"
)

// BranchParam selects the branches a query reads.
type BranchParam int

const (
	// BranchSingle reads only the branch given at execution time.
	BranchSingle BranchParam = iota
	// BranchAll reads every branch.
	BranchAll
)

func (b BranchParam) String() string {
	if b == BranchAll {
		return "all"
	}
	return "single"
}

// ParseBranchParam maps "single" and "all". The empty string is single.
func ParseBranchParam(s string) (BranchParam, error) {
	switch s {
	case "", "single":
		return BranchSingle, nil
	case "all":
		return BranchAll, nil
	}
	return 0, fmt.Errorf("invalid branch param %q, must be \"single\" or \"all\"", s)
}

// RevisionParam selects the revision a point-in-time query reads.
type RevisionParam int

const (
	// RevisionCurrent reads the latest committed state.
	RevisionCurrent RevisionParam = iota
	// RevisionGiven reads the revision given at execution time.
	RevisionGiven
)

func (r RevisionParam) String() string {
	if r == RevisionGiven {
		return "given"
	}
	return "current"
}

// RangeParam governs which rows of the ordered result are returned. Row
// bounds are given at execution time.
type RangeParam int

const (
	// RangeComplete returns every row.
	RangeComplete RangeParam = iota
	// RangeFirst returns the first row only.
	RangeFirst
	// RangeHead returns rows [0, stop).
	RangeHead
	// RangeWindow returns rows [start, stop).
	RangeWindow
)

func (r RangeParam) String() string {
	switch r {
	case RangeFirst:
		return "first"
	case RangeHead:
		return "head"
	case RangeWindow:
		return "range"
	default:
		return "complete"
	}
}

// ParseRangeParam maps "complete", "first", "head" and "range".
func ParseRangeParam(s string) (RangeParam, error) {
	switch s {
	case "", "complete":
		return RangeComplete, nil
	case "first":
		return RangeFirst, nil
	case "head":
		return RangeHead, nil
	case "range", "window":
		return RangeWindow, nil
	}
	return 0, fmt.Errorf("invalid range param %q, must be \"complete\", \"first\", \"head\" or \"range\"", s)
}

// ParamDecl declares a named parameter. Item parameters name the type of
// the items they accept.
type ParamDecl struct {
	Name string
	Kind ir.Kind
	Type string // item parameters only
}

// OrderKey is one sort key of a query.
type OrderKey struct {
	Expr       Expr
	Descending bool
}

// RevisionQuery asks for the elements of Search at one revision.
//
// Results are ordered by Order, then by the elements themselves, so the
// order is total and Range bounds are deterministic.
type RevisionQuery struct {
	Branch   BranchParam
	Revision RevisionParam
	Range    RangeParam
	Params   []ParamDecl
	Search   SetExpr
	Order    []OrderKey
}

// HistoryQuery asks, for every item ever in Search, for the set of
// revisions during which it was.
type HistoryQuery struct {
	Branch BranchParam
	Params []ParamDecl
	Search SetExpr
}

// Param looks up a parameter declaration.
func (q *RevisionQuery) Param(name string) (ParamDecl, bool) {
	return findParam(q.Params, name)
}

// Param looks up a parameter declaration.
func (q *HistoryQuery) Param(name string) (ParamDecl, bool) {
	return findParam(q.Params, name)
}

// AtRevision is the point-in-time query equivalent to q at a given
// revision. Evaluating it at every revision reproduces the history result.
func (q *HistoryQuery) AtRevision() *RevisionQuery {
	return &RevisionQuery{
		Branch:   q.Branch,
		Revision: RevisionGiven,
		Range:    RangeComplete,
		Params:   q.Params,
		Search:   q.Search,
	}
}

func findParam(params []ParamDecl, name string) (ParamDecl, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamDecl{}, false
}
