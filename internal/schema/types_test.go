package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSystem(t *testing.T) *TypeSystem {
	t.Helper()
	ts, err := CompileCUE(sampleCUE, "sample.cue")
	require.NoError(t, err)
	return ts
}

func typeNames(types []*Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	return names
}

func TestRootType(t *testing.T) {
	ts := sampleSystem(t)
	root := ts.Root()

	assert.Equal(t, RootTypeName, root.Name)
	assert.True(t, root.Abstract)
	assert.Equal(t, []*Type{root}, ts.MustType("A").Parents)
	assert.Equal(t, []*Type{root}, ts.MustType("AB").Parents)
}

func TestTypeKinds(t *testing.T) {
	ts := sampleSystem(t)

	assert.Equal(t, ClassType, ts.MustType("A").Kind)
	assert.Equal(t, AssociationType, ts.MustType("AB").Kind)
	assert.Equal(t, UnionType, ts.MustType("BorC").Kind)

	assert.False(t, ts.MustType("A").Concrete())
	assert.True(t, ts.MustType("B").Concrete())
	assert.False(t, ts.MustType("BorC").Concrete())
	assert.True(t, ts.MustType("AB").IsAssociation())
}

func TestAttributeLookupIncludesSupertypes(t *testing.T) {
	ts := sampleSystem(t)
	b := ts.MustType("B")

	name, ok := b.Attribute("name")
	require.True(t, ok)
	assert.Equal(t, ts.MustType("A"), name.Owner)
	assert.Equal(t, "A.name", name.String())

	_, ok = b.Attribute("unknown")
	assert.False(t, ok)

	assert.Equal(t, []string{"name", "size", "ref"}, attributeNames(b.Attributes()))
	assert.Len(t, b.OwnAttributes(), 1)
}

func attributeNames(attrs []*Attribute) []string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return names
}

func TestUnionAttributesAreCommonOnes(t *testing.T) {
	ts := sampleSystem(t)
	u := ts.MustType("BorC")

	name, ok := u.Attribute("name")
	require.True(t, ok)
	assert.Equal(t, "A", name.Owner.Name)

	_, ok = u.Attribute("ref")
	assert.False(t, ok, "only B declares ref")
}

func TestIsSubtypeOf(t *testing.T) {
	ts := sampleSystem(t)
	a, b, c := ts.MustType("A"), ts.MustType("B"), ts.MustType("C")
	u := ts.MustType("BorC")

	assert.True(t, b.IsSubtypeOf(a))
	assert.True(t, b.IsSubtypeOf(b))
	assert.False(t, a.IsSubtypeOf(b))
	assert.True(t, b.IsSubtypeOf(u))
	assert.True(t, u.IsSubtypeOf(a))
	assert.False(t, u.IsSubtypeOf(b))
	assert.True(t, c.IsSubtypeOf(ts.Root()))
	assert.False(t, ts.MustType("AB").IsSubtypeOf(a))
}

func TestConcreteSubtypes(t *testing.T) {
	ts := sampleSystem(t)

	assert.Equal(t, []string{"B", "C"}, typeNames(ts.MustType("A").ConcreteSubtypes()))
	assert.Equal(t, []string{"B"}, typeNames(ts.MustType("B").ConcreteSubtypes()))
	assert.Equal(t, []string{"B", "C"}, typeNames(ts.MustType("BorC").ConcreteSubtypes()))
	assert.Equal(t, []string{"AB", "B", "C"}, typeNames(ts.Root().ConcreteSubtypes()))
	assert.Equal(t, []string{"AB", "B", "C"}, typeNames(ts.ConcreteTypes()))
}

func TestIsCompatibleType(t *testing.T) {
	ts := sampleSystem(t)
	a, b := ts.MustType("A"), ts.MustType("B")
	u := ts.MustType("BorC")

	assert.True(t, IsCompatibleType(a, b))
	assert.False(t, IsCompatibleType(b, a))
	assert.True(t, IsCompatibleType(u, b), "union member")
	assert.False(t, IsCompatibleType(nil, b))
}

func TestIsCompatibleTypeAcrossSystems(t *testing.T) {
	older := sampleSystem(t)
	newer := sampleSystem(t)

	assert.True(t, IsCompatibleType(older.MustType("A"), newer.MustType("B")))
	assert.False(t, IsCompatibleType(older.MustType("B"), newer.MustType("C")))

	other := MustNew([]TypeDef{{Name: "Z"}})
	assert.False(t, IsCompatibleType(older.MustType("A"), other.MustType("Z")))
}

func TestCommonSupertype(t *testing.T) {
	ts := sampleSystem(t)
	a, b, c := ts.MustType("A"), ts.MustType("B"), ts.MustType("C")

	assert.Equal(t, a, CommonSupertype(b, c))
	assert.Equal(t, a, CommonSupertype(a, b))
	assert.Equal(t, b, CommonSupertype(b, b))
	assert.Equal(t, b, CommonSupertype(nil, b))
	assert.Equal(t, ts.Root(), CommonSupertype(b, ts.MustType("AB")))
}

func TestAttributeColumns(t *testing.T) {
	ts := sampleSystem(t)
	ref, _ := ts.MustType("B").Attribute("ref")
	name, _ := ts.MustType("B").Attribute("name")
	source, _ := ts.MustType("AB").Attribute("source")

	assert.Equal(t, []string{"ref__id", "ref__type", "ref__branch", "ref__rev"}, ref.Columns())
	assert.Equal(t, []string{"name"}, name.Columns())
	assert.Equal(t, []string{"source__id", "source__type"}, source.Columns())
	assert.True(t, ref.HasRevisionColumn())
	assert.False(t, source.HasRevisionColumn())
}

func TestTransfer(t *testing.T) {
	older := sampleSystem(t)
	newer := sampleSystem(t)

	moved, ok := newer.Transfer(older.MustType("B"))
	require.True(t, ok)
	assert.Same(t, newer.MustType("B"), moved)
	assert.Same(t, newer, moved.System())
}

func TestSchemaIDIndependentOfDeclarationOrder(t *testing.T) {
	one := MustNew([]TypeDef{{Name: "X"}, {Name: "Y"}})
	two := MustNew([]TypeDef{{Name: "Y"}, {Name: "X"}})
	three := MustNew([]TypeDef{{Name: "X"}, {Name: "Y", Abstract: true}})

	assert.Equal(t, one.ID(), two.ID())
	assert.NotEqual(t, one.ID(), three.ID())
}

func TestParseKindAndHistory(t *testing.T) {
	k, ok := ParseKind("reference")
	assert.True(t, ok)
	assert.Equal(t, KindReference, k)
	_, ok = ParseKind("float")
	assert.False(t, ok)

	h, ok := ParseHistoryType("")
	assert.True(t, ok)
	assert.Equal(t, HistoryCurrent, h)
	h, ok = ParseHistoryType("mixed")
	assert.True(t, ok)
	assert.Equal(t, "mixed", h.String())
}
