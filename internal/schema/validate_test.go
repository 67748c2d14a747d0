package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codesOf(errs []ValidationError) []string {
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	return codes
}

func TestValidateValid(t *testing.T) {
	defs, err := ParseCUE(sampleCUE, "sample.cue")
	require.NoError(t, err)
	assert.Empty(t, Validate(defs))
}

func TestValidateErrors(t *testing.T) {
	ref := func(target string) AttributeDef {
		return AttributeDef{Name: "r", Kind: "reference", Target: target}
	}

	tests := []struct {
		name string
		defs []TypeDef
		code string
	}{
		{"invalid type name", []TypeDef{{Name: "1abc"}}, ErrInvalidTypeName},
		{"double underscore", []TypeDef{{Name: "a__b"}}, ErrInvalidTypeName},
		{"duplicate type", []TypeDef{{Name: "A"}, {Name: "a"}}, ErrDuplicateType},
		{"reserved root", []TypeDef{{Name: "Item"}}, ErrReservedTypeName},
		{"reserved prefix", []TypeDef{{Name: "KB_Flex"}}, ErrReservedTypeName},
		{"unknown parent", []TypeDef{{Name: "A", Extends: []string{"Z"}}}, ErrUnknownParent},
		{"extends union", []TypeDef{{Name: "A"}, {Name: "U", Union: []string{"A"}}, {Name: "B", Extends: []string{"U"}}}, ErrInvalidParent},
		{"class extends association", []TypeDef{
			{Name: "L", Association: true, Attributes: []AttributeDef{ref("L"), {Name: "source", Kind: "reference", Target: "L"}, {Name: "dest", Kind: "reference", Target: "L"}}},
			{Name: "A", Extends: []string{"L"}},
		}, ErrInvalidParent},
		{"invalid attribute name", []TypeDef{{Name: "A", Attributes: []AttributeDef{{Name: "x-y", Kind: "int"}}}}, ErrInvalidAttributeName},
		{"reserved attribute", []TypeDef{{Name: "A", Attributes: []AttributeDef{{Name: "branch", Kind: "int"}}}}, ErrReservedAttribute},
		{"duplicate attribute", []TypeDef{{Name: "A", Attributes: []AttributeDef{{Name: "x", Kind: "int"}, {Name: "X", Kind: "int"}}}}, ErrDuplicateAttribute},
		{"redeclared inherited", []TypeDef{
			{Name: "A", Attributes: []AttributeDef{{Name: "x", Kind: "int"}}},
			{Name: "B", Extends: []string{"A"}, Attributes: []AttributeDef{{Name: "x", Kind: "string"}}},
		}, ErrDuplicateAttribute},
		{"invalid kind", []TypeDef{{Name: "A", Attributes: []AttributeDef{{Name: "x", Kind: "date"}}}}, ErrInvalidAttributeKind},
		{"float kind", []TypeDef{{Name: "A", Attributes: []AttributeDef{{Name: "x", Kind: "float64"}}}}, ErrFloatKindForbidden},
		{"missing target", []TypeDef{{Name: "A", Attributes: []AttributeDef{ref("")}}}, ErrMissingTarget},
		{"unknown target", []TypeDef{{Name: "A", Attributes: []AttributeDef{ref("Z")}}}, ErrUnknownTarget},
		{"invalid history", []TypeDef{{Name: "A", Attributes: []AttributeDef{{Name: "r", Kind: "reference", Target: "A", History: "sometimes"}}}}, ErrInvalidHistoryType},
		{"history on primitive", []TypeDef{{Name: "A", Attributes: []AttributeDef{{Name: "x", Kind: "int", History: "historic"}}}}, ErrReferenceOnly},
		{"association without endpoints", []TypeDef{{Name: "L", Association: true}}, ErrAssociationEndpoints},
		{"empty union", []TypeDef{{Name: "U", Union: []string{}}}, ErrEmptyUnion},
		{"unknown member", []TypeDef{{Name: "U", Union: []string{"Z"}}}, ErrUnknownUnionMember},
		{"union with attributes", []TypeDef{{Name: "A"}, {Name: "U", Union: []string{"A"}, Attributes: []AttributeDef{{Name: "x", Kind: "int"}}}}, ErrUnionDeclaration},
		{"union cycle", []TypeDef{{Name: "U", Union: []string{"V"}}, {Name: "V", Union: []string{"U"}}}, ErrUnionCycle},
		{"inheritance cycle", []TypeDef{{Name: "A", Extends: []string{"B"}}, {Name: "B", Extends: []string{"A"}}}, ErrInheritanceCycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.defs)
			assert.Contains(t, codesOf(errs), tt.code, "errors: %v", errs)
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	errs := Validate([]TypeDef{
		{Name: "A", Extends: []string{"Z"}, Attributes: []AttributeDef{{Name: "x", Kind: "date"}}},
		{Name: "U", Union: []string{}},
	})
	assert.ElementsMatch(t, []string{ErrUnknownParent, ErrInvalidAttributeKind, ErrEmptyUnion}, codesOf(errs))
}

func TestValidationErrorFormat(t *testing.T) {
	withLine := ValidationError{Field: "types.A", Message: "bad", Code: ErrInvalidTypeName, Line: 3}
	assert.Equal(t, "[E200] line 3: types.A: bad", withLine.Error())

	noLine := ValidationError{Field: "types.A", Message: "bad", Code: ErrInvalidTypeName}
	assert.Equal(t, "[E200] types.A: bad", noLine.Error())
}

func TestValidationErrorsMessage(t *testing.T) {
	_, err := New([]TypeDef{{Name: "Item"}, {Name: "1x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 validation errors")
}

func TestExtendsRootIsAllowed(t *testing.T) {
	ts, err := New([]TypeDef{{Name: "A", Extends: []string{RootTypeName}}})
	require.NoError(t, err)
	assert.Equal(t, []*Type{ts.Root()}, ts.MustType("A").Parents)
}

func TestInheritedEndpointsSatisfyAssociation(t *testing.T) {
	_, err := New([]TypeDef{
		{Name: "A"},
		{Name: "L", Association: true, Abstract: true, Attributes: []AttributeDef{
			{Name: "source", Kind: "reference", Target: "A"},
			{Name: "dest", Kind: "reference", Target: "A"},
		}},
		{Name: "M", Association: true, Extends: []string{"L"}},
	})
	assert.NoError(t, err)
}
