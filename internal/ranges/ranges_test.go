package ranges

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNormalizes(t *testing.T) {
	tests := []struct {
		name     string
		input    []Range
		expected string
	}{
		{"empty", nil, "[]"},
		{"drops empty ranges", []Range{{5, 4}}, "[]"},
		{"single", []Range{{1, 3}}, "[1, 3]"},
		{"sorts", []Range{{7, 9}, {1, 3}}, "[1, 3] [7, 9]"},
		{"merges overlap", []Range{{1, 5}, {3, 9}}, "[1, 9]"},
		{"merges adjacent", []Range{{1, 3}, {4, 6}}, "[1, 6]"},
		{"keeps gap", []Range{{1, 3}, {5, 6}}, "[1, 3] [5, 6]"},
		{"contained", []Range{{1, 10}, {2, 3}}, "[1, 10]"},
		{"open end", []Range{{4, Current}, {1, 2}}, "[1, 2] [4, current]"},
		{"open end absorbs", []Range{{4, Current}, {6, Current}}, "[4, current]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.input...)
			assert.Equal(t, tt.expected, s.String())
			assert.True(t, s.Valid())
		})
	}
}

func TestNewDoesNotModifyInput(t *testing.T) {
	input := []Range{{7, 9}, {1, 3}}
	_ = New(input...)
	assert.Equal(t, []Range{{7, 9}, {1, 3}}, input)
}

func TestContains(t *testing.T) {
	s := New(Range{1, 3}, Range{7, 9}, Range{20, Current})

	for _, rev := range []int64{1, 2, 3, 7, 9, 20, 1000, Current} {
		assert.True(t, s.Contains(rev), "rev %d", rev)
	}
	for _, rev := range []int64{0, 4, 6, 10, 19} {
		assert.False(t, s.Contains(rev), "rev %d", rev)
	}
	assert.False(t, Set(nil).Contains(1))
}

func TestUnion(t *testing.T) {
	a := New(Range{1, 3}, Range{10, 12})
	b := New(Range{4, 5}, Range{11, 20})

	assert.Equal(t, "[1, 5] [10, 20]", Union(a, b).String())
	assert.Equal(t, a, Union(a, nil))
	assert.Equal(t, b, Union(nil, b))
}

func TestIntersect(t *testing.T) {
	a := New(Range{1, 5}, Range{10, 20})
	b := New(Range{3, 12}, Range{15, Current})

	assert.Equal(t, "[3, 5] [10, 12] [15, 20]", Intersect(a, b).String())
	assert.True(t, Intersect(a, nil).IsEmpty())
	assert.True(t, Intersect(Of(1, 2), Of(3, 4)).IsEmpty())
}

func TestSubstract(t *testing.T) {
	a := New(Range{1, 10})
	b := New(Range{3, 4}, Range{8, 20})

	assert.Equal(t, "[1, 2] [5, 7]", Substract(a, b).String())
	assert.Equal(t, a, Substract(a, nil))
	assert.True(t, Substract(nil, b).IsEmpty())
	assert.True(t, Substract(a, All()).IsEmpty())
}

func TestInvert(t *testing.T) {
	tests := []struct {
		name     string
		input    Set
		expected string
	}{
		{"empty", nil, "[1, current]"},
		{"all", All(), "[]"},
		{"prefix", Of(1, 4), "[5, current]"},
		{"suffix", EndSection(5), "[1, 4]"},
		{"middle", Of(3, 4), "[1, 2] [5, current]"},
		{"two gaps", New(Range{2, 3}, Range{6, Current}), "[1, 1] [4, 5]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Invert(tt.input).String())
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, text := range []string{"[]", "[1, 1]", "[1, 3] [5, current]", "[2, 9] [11, 12] [40, 41]"} {
		s, err := Parse(text)
		require.NoError(t, err, text)
		assert.Equal(t, text, s.String())
	}
}

func TestParseNormalizes(t *testing.T) {
	s, err := Parse("[5, 9] [1,4]")
	require.NoError(t, err)
	assert.Equal(t, "[1, 9]", s.String())
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{"1, 2", "[1, 2", "[1]", "[a, 2]", "[1, 2] x"} {
		_, err := Parse(text)
		assert.Error(t, err, text)
	}
}

// randomSet builds sets over a small revision window so that overlaps and
// adjacency are frequent.
func randomSet(rng *rand.Rand) Set {
	n := rng.Intn(5)
	rs := make([]Range, 0, n)
	for range n {
		start := int64(rng.Intn(30)) + First
		stop := start + int64(rng.Intn(6))
		if rng.Intn(8) == 0 {
			stop = Current
		}
		rs = append(rs, Range{Start: start, Stop: stop})
	}
	return New(rs...)
}

func TestAlgebraLaws(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		a, b, c := randomSet(rng), randomSet(rng), randomSet(rng)

		require.True(t, a.Valid(), "a=%s", a)
		assert.True(t, Union(a, b).Equal(Union(b, a)), "union commutes: a=%s b=%s", a, b)
		assert.True(t, Intersect(a, b).Equal(Intersect(b, a)), "intersect commutes: a=%s b=%s", a, b)
		assert.True(t, Union(Union(a, b), c).Equal(Union(a, Union(b, c))), "union associates")
		assert.True(t, Intersect(Intersect(a, b), c).Equal(Intersect(a, Intersect(b, c))), "intersect associates")
		assert.True(t, Intersect(a, Invert(a)).IsEmpty(), "a=%s", a)
		assert.True(t, Union(a, Invert(a)).Equal(All()), "a=%s", a)
		assert.True(t, Invert(Invert(a)).Equal(a), "a=%s", a)
		assert.True(t, Substract(a, b).Equal(Intersect(a, Invert(b))), "a=%s b=%s", a, b)

		for _, s := range []Set{Union(a, b), Intersect(a, b), Substract(a, b), Invert(a)} {
			assert.True(t, s.Valid(), "not normalized: %s", s)
		}

		for rev := First; rev < 40; rev++ {
			assert.Equal(t, a.Contains(rev) || b.Contains(rev), Union(a, b).Contains(rev))
			assert.Equal(t, a.Contains(rev) && b.Contains(rev), Intersect(a, b).Contains(rev))
			assert.Equal(t, a.Contains(rev) && !b.Contains(rev), Substract(a, b).Contains(rev))
		}
	}
}
