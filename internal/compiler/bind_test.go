package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/testutil"
)

func search(s queryir.SetExpr) *queryir.RevisionQuery {
	return &queryir.RevisionQuery{Search: s}
}

func nameOf(e queryir.Expr) queryir.Expr { return queryir.Attribute(e, "", "name") }

func TestValidate_Codes(t *testing.T) {
	ts := testutil.FixtureSystem(t)
	ctx := queryir.Context

	tests := []struct {
		name  string
		query *queryir.RevisionQuery
		code  string
	}{
		{"missing source", search(queryir.Filter(nil, queryir.Bool(true))), ErrMissingOperand},
		{"missing mapping", search(queryir.Map(queryir.AllOf("B"), nil)), ErrMissingOperand},
		{"unknown type", search(queryir.AnyOf("Nope")), ErrUnknownType},
		{"abstract allOf", search(queryir.AllOf("A")), ErrAbstractScan},
		{"union allOf", search(queryir.AllOf("BorC")), ErrAbstractScan},
		{"string predicate", search(queryir.Filter(queryir.AllOf("B"), nameOf(ctx()))), ErrNotPredicate},
		{"null predicate", search(queryir.Filter(queryir.AllOf("B"), queryir.Null())), ErrNotPredicate},
		{"set as mapping", search(queryir.Map(queryir.AllOf("B"), queryir.AllOf("C"))), ErrSetInScalar},
		{
			"union of items and strings",
			search(queryir.Union(queryir.AllOf("B"), queryir.Map(queryir.AllOf("B"), nameOf(ctx())))),
			ErrUnionMismatch,
		},
		{"navigate via class", search(queryir.NavigateForwards(queryir.AllOf("B"), "B", "B")), ErrNotAssociation},
		{
			"attribute of a string",
			search(queryir.Map(queryir.AllOf("B"), nameOf(nameOf(ctx())))),
			ErrNotItem,
		},
		{"navigate from unrelated type", search(queryir.NavigateForwards(queryir.AllOf("D"), "AB", "B")), ErrIncompatibleType},
		{"navigate to unrelated type", search(queryir.NavigateForwards(queryir.AllOf("B"), "AB", "D")), ErrIncompatibleType},
		{
			"attribute of unrelated type",
			search(queryir.Map(queryir.AllOf("B"), queryir.Attribute(ctx(), "D", "D1"))),
			ErrIncompatibleType,
		},
		{
			"undeclared param",
			search(queryir.Filter(queryir.AllOf("B"), queryir.Eq(nameOf(ctx()), queryir.Param("p")))),
			ErrUnknownParam,
		},
		{"unknown attribute", search(queryir.Map(queryir.AllOf("B"), queryir.Attribute(ctx(), "", "nope"))), ErrUnknownAttribute},
		{"attribute on reference", search(queryir.Map(queryir.AllOf("B"), queryir.Attribute(ctx(), "", "ref"))), ErrReferenceAttribute},
		{"reference on primitive", search(queryir.Map(queryir.AllOf("B"), queryir.Reference(ctx(), "", "name"))), ErrNotReference},
		{"item flex", search(queryir.Map(queryir.AllOf("B"), queryir.Flex(ctx(), ir.KindItem, "x"))), ErrInvalidFlexKind},
		{
			"string equals int",
			search(queryir.Filter(queryir.AllOf("B"), queryir.Eq(nameOf(ctx()), queryir.Int(1)))),
			ErrIncompatibleOperand,
		},
		{
			"unrelated items",
			search(queryir.Filter(queryir.AllOf("B"), queryir.Eq(ctx(), queryir.Literal(ir.Item{Type: "D", ID: "d-1"})))),
			ErrIncompatibleOperand,
		},
		{
			"case insensitive ints",
			search(queryir.Filter(queryir.AllOf("B"), queryir.EqCi(queryir.Attribute(ctx(), "", "n"), queryir.Int(1)))),
			ErrIncompatibleOperand,
		},
		{
			"ordered items",
			search(queryir.Filter(queryir.AllOf("B"), queryir.Gt(ctx(), ctx()))),
			ErrIncompatibleOperand,
		},
		{
			"tuple equality",
			search(queryir.Filter(queryir.CrossProduct(queryir.AllOf("B"), queryir.AllOf("C")), queryir.Eq(ctx(), ctx()))),
			ErrIncompatibleOperand,
		},
		{
			"membership of a string in items",
			search(queryir.Filter(queryir.AllOf("B"), queryir.InSet(nameOf(ctx()), queryir.AllOf("C")))),
			ErrIncompatibleOperand,
		},
		{"element of item", search(queryir.Map(queryir.AllOf("B"), queryir.Element(ctx(), 0))), ErrNotTuple},
		{
			"element out of range",
			search(queryir.Map(queryir.CrossProduct(queryir.AllOf("B"), queryir.AllOf("C")), queryir.Element(ctx(), 2))),
			ErrIndexOutOfRange,
		},
		{
			"item order key",
			&queryir.RevisionQuery{Search: queryir.AllOf("B"), Order: []queryir.OrderKey{queryir.Order(ctx())}},
			ErrInvalidOrderKey,
		},
		{
			"duplicate param",
			&queryir.RevisionQuery{
				Search: queryir.AllOf("B"),
				Params: []queryir.ParamDecl{{Name: "p", Kind: ir.KindString}, {Name: "p", Kind: ir.KindInt}},
			},
			ErrInvalidParam,
		},
		{
			"tuple param",
			&queryir.RevisionQuery{
				Search: queryir.AllOf("B"),
				Params: []queryir.ParamDecl{{Name: "p", Kind: ir.KindTuple}},
			},
			ErrInvalidParam,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(ts, tt.query)
			require.Len(t, errs, 1, "errors: %v", errs)
			assert.Equal(t, tt.code, errs[0].Code, errs[0].Error())
		})
	}
}

func TestValidate_ValidQueries(t *testing.T) {
	ts := testutil.FixtureSystem(t)
	ctx := queryir.Context

	tests := []struct {
		name  string
		query *queryir.RevisionQuery
	}{
		{"polymorphic scan", search(queryir.AnyOf("A"))},
		{"union type scan", search(queryir.AnyOf("BorC"))},
		{"inherited attribute", search(queryir.Filter(queryir.AllOf("B"), queryir.Eq(nameOf(ctx()), queryir.Str("x"))))},
		{
			"downcast attribute",
			search(queryir.Filter(queryir.AnyOf("A"), queryir.Eq(queryir.Attribute(ctx(), "B", "b"), queryir.Str("x")))),
		},
		{"null comparison", search(queryir.Filter(queryir.AllOf("B"), queryir.Eq(nameOf(ctx()), queryir.Null())))},
		{
			"reference chain",
			search(queryir.Map(queryir.AllOf("B"), nameOf(queryir.Reference(ctx(), "", "ref")))),
		},
		{
			"item param",
			&queryir.RevisionQuery{
				Search: queryir.Filter(queryir.AnyOf("A"), queryir.Eq(ctx(), queryir.Param("p"))),
				Params: []queryir.ParamDecl{{Name: "p", Kind: ir.KindItem, Type: "B"}},
			},
		},
		{"navigation", search(queryir.NavigateBackwards(queryir.AllOf("B"), "AB", "A"))},
		{
			"tuple mapping",
			search(queryir.Map(queryir.CrossProduct(queryir.AllOf("B"), queryir.AllOf("C")),
				queryir.Tuple(nameOf(queryir.Element(ctx(), 0)), nameOf(queryir.Element(ctx(), 1))))),
		},
		{
			"membership in a union",
			search(queryir.Filter(queryir.AllOf("B"), queryir.InSet(ctx(), queryir.Union(queryir.AllOf("B"), queryir.AllOf("C"))))),
		},
		{
			"ordered by attribute",
			&queryir.RevisionQuery{
				Search: queryir.AnyOf("A"),
				Order:  []queryir.OrderKey{queryir.OrderDesc(queryir.Attribute(ctx(), "", "n"))},
			},
		},
		{
			"open range",
			search(queryir.Filter(queryir.AllOf("C"), queryir.AttributeRange(queryir.Attribute(ctx(), "", "n"), queryir.Int(1), nil))),
		},
		{"literal set", search(queryir.Filter(queryir.AllOf("C"), queryir.InLiteralSet(nameOf(ctx()), ir.String("a"), ir.Null{})))},
		{"flex", search(queryir.Filter(queryir.AllOf("C"), queryir.Eq(queryir.Flex(ctx(), ir.KindInt, "x"), queryir.Int(2))))},
		{"bool attribute as predicate", search(queryir.Filter(queryir.AllOf("C"), queryir.Attribute(ctx(), "", "flag")))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Validate(ts, tt.query))
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	ts := testutil.FixtureSystem(t)
	q := search(queryir.Filter(queryir.AllOf("B"), queryir.And(
		queryir.Eq(queryir.Attribute(queryir.Context(), "", "nope"), queryir.Str("x")),
		queryir.Eq(queryir.Attribute(queryir.Context(), "", "name"), queryir.Param("missing")),
	)))

	errs := Validate(ts, q)
	require.Len(t, errs, 2)
	assert.Equal(t, ErrUnknownAttribute, errs[0].Code)
	assert.Equal(t, ErrUnknownParam, errs[1].Code)

	_, err := Compile(ts, q)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
	assert.Contains(t, err.Error(), "2 type errors")
}

func TestBinder_ContextOutsideSet(t *testing.T) {
	ts := testutil.FixtureSystem(t)
	var diag Diagnostics
	b := newBinder(ts, newInfo(), &diag)

	b.expr(queryir.Context(), nil)

	errs := diag.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, ErrNoContext, errs[0].Code)
}

func TestTypeError_Format(t *testing.T) {
	ts := testutil.FixtureSystem(t)
	errs := Validate(ts, search(queryir.AllOf("A")))
	require.Len(t, errs, 1)
	assert.Equal(t, "[E302] A has no instances of its own, use anyOf: allOf(A)", errs[0].Error())
}
