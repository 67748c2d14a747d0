package ranges

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

const (
	// First is the smallest revision of the domain.
	First int64 = 1

	// Current is the open upper bound of the revision domain.
	Current int64 = math.MaxInt64
)

// Range is the closed interval [Start, Stop] of revisions.
type Range struct {
	Start int64
	Stop  int64
}

// Contains reports whether rev lies within the range.
func (r Range) Contains(rev int64) bool {
	return r.Start <= rev && rev <= r.Stop
}

// IsEmpty reports whether the range contains no revision.
func (r Range) IsEmpty() bool {
	return r.Start > r.Stop
}

func (r Range) String() string {
	return "[" + formatRev(r.Start) + ", " + formatRev(r.Stop) + "]"
}

// Set is a normalized list of ranges: sorted ascending by Start, no two
// ranges overlap or are adjacent. The nil Set is the empty set.
type Set []Range

// New builds a normalized set from arbitrary ranges. Empty ranges are
// dropped, overlapping and adjacent ranges are merged.
func New(rs ...Range) Set {
	return normalize(slices.Clone(rs))
}

// Of returns the set containing exactly the revisions [start, stop].
func Of(start, stop int64) Set {
	if start > stop {
		return nil
	}
	return Set{{Start: start, Stop: stop}}
}

// Single returns the set containing only rev.
func Single(rev int64) Set {
	return Of(rev, rev)
}

// EndSection returns the set of all revisions from start on.
func EndSection(start int64) Set {
	return Of(start, Current)
}

// All returns the complete domain [First, Current].
func All() Set {
	return Of(First, Current)
}

// IsEmpty reports whether the set contains no revision.
func (s Set) IsEmpty() bool {
	return len(s) == 0
}

// Contains reports whether rev is a member of the set.
func (s Set) Contains(rev int64) bool {
	_, found := slices.BinarySearchFunc(s, rev, func(r Range, rev int64) int {
		switch {
		case r.Stop < rev:
			return -1
		case r.Start > rev:
			return 1
		default:
			return 0
		}
	})
	return found
}

// Equal reports whether both sets contain the same revisions.
func (s Set) Equal(other Set) bool {
	return slices.Equal(s, other)
}

// Valid reports whether the set is in normal form.
func (s Set) Valid() bool {
	for i, r := range s {
		if r.IsEmpty() {
			return false
		}
		if i > 0 && !separated(s[i-1], r) {
			return false
		}
	}
	return true
}

func (s Set) String() string {
	if len(s) == 0 {
		return "[]"
	}
	parts := make([]string, len(s))
	for i, r := range s {
		parts[i] = r.String()
	}
	return strings.Join(parts, " ")
}

// Union returns all revisions contained in a or b.
func Union(a, b Set) Set {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	merged := make([]Range, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return normalize(merged)
}

// Intersect returns the revisions contained in both a and b.
func Intersect(a, b Set) Set {
	var result Set
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := max(a[i].Start, b[j].Start)
		hi := min(a[i].Stop, b[j].Stop)
		if lo <= hi {
			result = append(result, Range{Start: lo, Stop: hi})
		}
		if a[i].Stop < b[j].Stop {
			i++
		} else {
			j++
		}
	}
	return result
}

// Substract returns the revisions of a that are not contained in b.
func Substract(a, b Set) Set {
	if len(a) == 0 || len(b) == 0 {
		return a
	}
	return Intersect(a, Invert(b))
}

// Invert returns the complement of s within [First, Current].
func Invert(s Set) Set {
	var result Set
	next := First
	for _, r := range s {
		if r.Stop < next {
			continue
		}
		if r.Start > next {
			result = append(result, Range{Start: next, Stop: r.Start - 1})
		}
		if r.Stop == Current {
			return result
		}
		next = r.Stop + 1
	}
	return append(result, Range{Start: next, Stop: Current})
}

// Parse reads the textual form produced by Set.String, e.g.
// "[1, 3] [5, current]" or "[]".
func Parse(text string) (Set, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "[]" {
		return nil, nil
	}
	var rs []Range
	for text != "" {
		if text[0] != '[' {
			return nil, fmt.Errorf("parse range set: expected '[' at %q", text)
		}
		end := strings.IndexByte(text, ']')
		if end < 0 {
			return nil, fmt.Errorf("parse range set: missing ']' in %q", text)
		}
		bounds := strings.Split(text[1:end], ",")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("parse range set: expected two bounds in %q", text[:end+1])
		}
		start, err := parseRev(bounds[0])
		if err != nil {
			return nil, err
		}
		stop, err := parseRev(bounds[1])
		if err != nil {
			return nil, err
		}
		rs = append(rs, Range{Start: start, Stop: stop})
		text = strings.TrimSpace(text[end+1:])
	}
	return New(rs...), nil
}

func parseRev(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "current") {
		return Current, nil
	}
	rev, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse revision %q: %w", s, err)
	}
	return rev, nil
}

func formatRev(rev int64) string {
	if rev == Current {
		return "current"
	}
	return strconv.FormatInt(rev, 10)
}

// separated reports whether b starts strictly after a and leaves a gap.
func separated(a, b Range) bool {
	if a.Stop == Current {
		return false
	}
	return b.Start > a.Stop+1
}

func normalize(rs []Range) Set {
	rs = slices.DeleteFunc(rs, Range.IsEmpty)
	if len(rs) == 0 {
		return nil
	}
	slices.SortFunc(rs, func(a, b Range) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})
	result := Set{rs[0]}
	for _, r := range rs[1:] {
		last := &result[len(result)-1]
		if separated(*last, r) {
			result = append(result, r)
			continue
		}
		last.Stop = max(last.Stop, r.Stop)
	}
	return result
}
