package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/kbquery/internal/ranges"
)

// checkExpect compares an outcome with the expectation of its query and
// returns one message per mismatch.
func checkExpect(q QueryCase, got QueryOutcome) []string {
	e := q.Expect
	if e.Error != "" {
		if got.Error != e.Error {
			return []string{fmt.Sprintf("expected error %s, got %s", e.Error, describeOutcome(got))}
		}
		return nil
	}
	if got.Error != "" {
		return []string{fmt.Sprintf("unexpected error %s", got.Error)}
	}

	switch {
	case e.Empty:
		if len(got.Results) > 0 || len(got.History) > 0 {
			return []string{fmt.Sprintf("expected no results, got %s", describeOutcome(got))}
		}
	case len(e.Results) > 0:
		if !slices.Equal(e.Results, got.Results) {
			return []string{fmt.Sprintf("expected results [%s], got [%s]",
				strings.Join(e.Results, ", "), strings.Join(got.Results, ", "))}
		}
	case len(e.History) > 0:
		return checkHistory(e.History, got.History)
	}
	return nil
}

// checkHistory compares revision ranges as sets, so expectations may be
// written in any normal form ranges.Parse accepts.
func checkHistory(want, got map[string]string) []string {
	var msgs []string
	for _, item := range slices.Sorted(maps.Keys(want)) {
		w, err := ranges.Parse(want[item])
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: invalid expected ranges %q: %v", item, want[item], err))
			continue
		}
		g, ok := got[item]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("%s: expected %s, item missing", item, w))
			continue
		}
		gs, err := ranges.Parse(g)
		if err != nil || !gs.Equal(w) {
			msgs = append(msgs, fmt.Sprintf("%s: expected %s, got %s", item, w, g))
		}
	}
	for _, item := range slices.Sorted(maps.Keys(got)) {
		if _, ok := want[item]; !ok {
			msgs = append(msgs, fmt.Sprintf("%s: unexpected item with %s", item, got[item]))
		}
	}
	return msgs
}

func describeOutcome(o QueryOutcome) string {
	switch {
	case o.Error != "":
		return "error " + o.Error
	case o.History != nil:
		parts := make([]string, 0, len(o.History))
		for _, item := range slices.Sorted(maps.Keys(o.History)) {
			parts = append(parts, item+" "+o.History[item])
		}
		return "history {" + strings.Join(parts, ", ") + "}"
	default:
		return "results [" + strings.Join(o.Results, ", ") + "]"
	}
}
