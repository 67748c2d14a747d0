package history

import (
	"strings"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/ranges"
)

// piece is a value held during a set of revisions.
type piece struct {
	at ranges.Set
	v  ir.Value
}

// timeline is a value that changes over revisions. Pieces are disjoint.
// Revisions no piece covers hold NULL.
type timeline []piece

func constant(at ranges.Set, v ir.Value) timeline {
	if at.IsEmpty() {
		return nil
	}
	return timeline{{at: at, v: v}}
}

// covered returns the revisions some piece covers.
func (tl timeline) covered() ranges.Set {
	var out ranges.Set
	for _, p := range tl {
		out = ranges.Union(out, p.at)
	}
	return out
}

// fill makes tl total over dom: uncovered revisions get an explicit NULL
// piece, pieces are clipped to dom.
func (tl timeline) fill(dom ranges.Set) timeline {
	out := make(timeline, 0, len(tl)+1)
	for _, p := range tl {
		if at := ranges.Intersect(p.at, dom); !at.IsEmpty() {
			out = append(out, piece{at: at, v: p.v})
		}
	}
	if rest := ranges.Substract(dom, tl.covered()); !rest.IsEmpty() {
		out = append(out, piece{at: rest, v: ir.Null{}})
	}
	return out
}

// where returns the revisions at which pred holds for the value.
func (tl timeline) where(pred func(ir.Value) bool) ranges.Set {
	var out ranges.Set
	for _, p := range tl {
		if pred(p.v) {
			out = ranges.Union(out, p.at)
		}
	}
	return out
}

// apply maps every piece through fn, which returns the timeline of the
// result during the revisions of the piece.
func (tl timeline) apply(fn func(v ir.Value, at ranges.Set) (timeline, error)) (timeline, error) {
	var out timeline
	for _, p := range tl {
		r, err := fn(p.v, p.at)
		if err != nil {
			return nil, err
		}
		out = append(out, r...)
	}
	return out.compact(), nil
}

// pair combines two total timelines piece by piece.
func pair(a, b timeline, fn func(x, y ir.Value) ir.Value) timeline {
	var out timeline
	for _, x := range a {
		for _, y := range b {
			if at := ranges.Intersect(x.at, y.at); !at.IsEmpty() {
				out = append(out, piece{at: at, v: fn(x.v, y.v)})
			}
		}
	}
	return out.compact()
}

// pairWhere returns the revisions at which pred holds for the values of
// two total timelines.
func pairWhere(a, b timeline, pred func(x, y ir.Value) bool) ranges.Set {
	var out ranges.Set
	for _, x := range a {
		for _, y := range b {
			if !pred(x.v, y.v) {
				continue
			}
			out = ranges.Union(out, ranges.Intersect(x.at, y.at))
		}
	}
	return out
}

// compact merges pieces holding identical values.
func (tl timeline) compact() timeline {
	if len(tl) < 2 {
		return tl
	}
	index := make(map[string]int, len(tl))
	out := make(timeline, 0, len(tl))
	for _, p := range tl {
		k := exact(p.v)
		if i, ok := index[k]; ok {
			out[i].at = ranges.Union(out[i].at, p.at)
			continue
		}
		index[k] = len(out)
		out = append(out, p)
	}
	return out
}

// exact keys a value by everything it carries, item bindings included.
func exact(v ir.Value) string {
	return v.Kind().String() + ":" + ir.Format(v)
}

// identity keys a value the way set membership compares it: items by
// branch, type and id, booleans as the integers they are stored as.
func identity(v ir.Value) string {
	var b strings.Builder
	writeIdentity(&b, v)
	return b.String()
}

func writeIdentity(b *strings.Builder, v ir.Value) {
	switch val := v.(type) {
	case ir.Item:
		val.Revision = ir.CurrentRevision
		b.WriteString(ir.Format(val))
	case ir.Bool:
		if val {
			b.WriteString("1")
		} else {
			b.WriteString("0")
		}
	case ir.Tuple:
		b.WriteByte('(')
		for i, el := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeIdentity(b, el)
		}
		b.WriteByte(')')
	default:
		b.WriteString(ir.Format(v))
	}
}

// hasNull reports whether v is NULL or a tuple with a NULL component.
func hasNull(v ir.Value) bool {
	if t, ok := v.(ir.Tuple); ok {
		for _, el := range t {
			if hasNull(el) {
				return true
			}
		}
		return false
	}
	return ir.IsNull(v)
}

// members is a set of values, each with the revisions it is a member.
type members struct {
	byKey map[string]*member
}

type member struct {
	v  ir.Value
	at ranges.Set
}

func newMembers() *members {
	return &members{byKey: make(map[string]*member)}
}

func (m *members) add(v ir.Value, at ranges.Set) {
	if at.IsEmpty() {
		return
	}
	k := exact(v)
	if e, ok := m.byKey[k]; ok {
		e.at = ranges.Union(e.at, at)
		return
	}
	m.byKey[k] = &member{v: v, at: at}
}

func (m *members) merge(other *members) {
	for _, e := range other.byKey {
		m.add(e.v, e.at)
	}
}

func (m *members) len() int {
	return len(m.byKey)
}

// byIdentity indexes the membership revisions by identity.
func (m *members) byIdentity() map[string]ranges.Set {
	out := make(map[string]ranges.Set, len(m.byKey))
	for _, e := range m.byKey {
		k := identity(e.v)
		out[k] = ranges.Union(out[k], e.at)
	}
	return out
}
