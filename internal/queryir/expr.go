package queryir

import (
	"fmt"

	"github.com/roach88/kbquery/internal/ir"
)

// Expr is any node of the query language.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// SetExpr is an expression denoting a set of values: items, scalars or
// tuples. Sets have set semantics, duplicates are removed.
type SetExpr interface {
	Expr
	setExprNode()
}

// ScanExpr denotes the objects of one type alive in the queried revision.
//
// Semantics:
//
//	AllOf("T")  // instances whose concrete type is exactly T
//	AnyOf("T")  // instances of T and all of its subtypes
//
// AllOf of an abstract type is a compile error: the type has no storage.
type ScanExpr struct {
	Type        string
	Polymorphic bool // AnyOf
}

// FilterExpr restricts Source to the elements for which Predicate holds.
// Predicate is evaluated with the element as context.
type FilterExpr struct {
	Source    SetExpr
	Predicate Expr
}

// MapExpr maps every element of Source through Mapping, evaluated with the
// element as context. Mapping must be scalar. NULL results are dropped.
type MapExpr struct {
	Source  SetExpr
	Mapping Expr
}

// UnionExpr is the set union of Left and Right.
type UnionExpr struct {
	Left  SetExpr
	Right SetExpr
}

// CrossExpr is the cross product of Left and Right. Elements are pairs,
// accessed with Element(Context(), 0) and Element(Context(), 1).
type CrossExpr struct {
	Left  SetExpr
	Right SetExpr
}

// NavigateExpr traverses an association type.
//
// Semantics (forward):
//
//	{ l.dest | l in AllOf(Via), l.source in From, l.dest instanceOf Target }
//
// Backward navigation swaps source and dest. The compiler desugars the
// node into Filter and Map over the association scan.
type NavigateExpr struct {
	Forward bool
	From    SetExpr
	Via     string
	Target  string
}

// LiteralExpr is a constant value.
type LiteralExpr struct {
	Value ir.Value
}

// ParamExpr refers to a declared query parameter, bound at execution time.
type ParamExpr struct {
	Name string
}

// ContextExpr is the element the enclosing Filter or MapExpr currently
// evaluates, i.e. the self reference.
type ContextExpr struct {
	_ byte // nodes are keyed by identity, zero-size values may share an address
}

// AttributeExpr reads a primitive attribute of the item Context evaluates
// to. Type names the type declaring the attribute; empty means the static
// type of Context. An item that does not exist at its bound revision has
// NULL attributes.
type AttributeExpr struct {
	Context Expr
	Type    string
	Name    string
}

// RefPart selects what a ReferenceExpr yields.
type RefPart int

const (
	PartItem     RefPart = iota // the referenced item
	PartID                      // identifier of the target
	PartBranch                  // branch of the target
	PartRevision                // stored target revision, ir.CurrentRevision for current references
	PartType                    // concrete type name of the target
)

func (p RefPart) String() string {
	switch p {
	case PartItem:
		return "item"
	case PartID:
		return "id"
	case PartBranch:
		return "branch"
	case PartRevision:
		return "revision"
	case PartType:
		return "type"
	default:
		return fmt.Sprintf("RefPart(%d)", int(p))
	}
}

// ParseRefPart maps the textual reference part. "name" is accepted as an
// alias of "id".
func ParseRefPart(s string) (RefPart, bool) {
	switch s {
	case "item", "":
		return PartItem, true
	case "id", "name":
		return PartID, true
	case "branch":
		return PartBranch, true
	case "revision":
		return PartRevision, true
	case "type":
		return PartType, true
	}
	return 0, false
}

// ReferenceExpr reads a reference attribute of the item Context evaluates
// to. With PartItem the result is the target item bound according to the
// attribute's history type:
//
//	current   target viewed at the revision the context item is viewed at
//	historic  target viewed at the revision stored with the reference
//	mixed     stored revision, or current when the stored marker is current
type ReferenceExpr struct {
	Context Expr
	Type    string
	Name    string
	Part    RefPart
}

// FlexExpr reads a dynamic attribute, stored outside the type tables.
// Attributes that were never set or were cleared are NULL.
type FlexExpr struct {
	Context   Expr
	ValueKind ir.Kind
	Name      string
}

// EvalExpr evaluates Inner with the value of Context as context.
type EvalExpr struct {
	Context Expr
	Inner   Expr
}

// BinaryOp is a comparison operator.
type BinaryOp int

const (
	OpEq   BinaryOp = iota // null-safe equality
	OpEqCi                 // case insensitive, null-safe equality
	OpGt
	OpGe
	OpLt
	OpLe
)

var binaryOpNames = [...]string{
	OpEq:   "eq",
	OpEqCi: "eqCi",
	OpGt:   "gt",
	OpGe:   "ge",
	OpLt:   "lt",
	OpLe:   "le",
}

func (op BinaryOp) String() string {
	if op >= 0 && int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// IsOrdering reports whether op compares by order rather than equality.
func (op BinaryOp) IsOrdering() bool {
	return op >= OpGt
}

// BinaryExpr compares Left and Right.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// AndExpr holds when all operands hold. No operands means true.
type AndExpr struct {
	Operands []Expr
}

// OrExpr holds when any operand holds. No operands means false.
type OrExpr struct {
	Operands []Expr
}

// NotExpr negates a predicate.
type NotExpr struct {
	Operand Expr
}

// IsNullExpr holds when Operand evaluates to NULL.
type IsNullExpr struct {
	Operand Expr
}

// InSetExpr holds when Elem is a member of Set. Set is evaluated at the
// queried revision, independent of the context.
type InSetExpr struct {
	Elem Expr
	Set  SetExpr
}

// InValuesExpr holds when Elem equals one of Values.
type InValuesExpr struct {
	Elem   Expr
	Values []ir.Value
}

// RangeExpr holds when Lo <= Operand <= Hi. A nil bound is unbounded.
type RangeExpr struct {
	Operand Expr
	Lo      Expr
	Hi      Expr
}

// UnaryOp extracts a property of an item.
type UnaryOp int

const (
	OpBranch     UnaryOp = iota // branch of the item
	OpRevision                  // bound revision, ir.CurrentRevision for live bindings
	OpIdentifier                // object identifier
	OpTypeName                  // concrete type name
)

var unaryOpNames = [...]string{
	OpBranch:     "branch",
	OpRevision:   "revision",
	OpIdentifier: "identifier",
	OpTypeName:   "typeName",
}

func (op UnaryOp) String() string {
	if op >= 0 && int(op) < len(unaryOpNames) {
		return unaryOpNames[op]
	}
	return fmt.Sprintf("UnaryOp(%d)", int(op))
}

// UnaryExpr applies Op to the item Operand evaluates to.
type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
}

// TupleExpr builds a tuple of its element values.
type TupleExpr struct {
	Elements []Expr
}

// ElementExpr reads component Index of a tuple.
type ElementExpr struct {
	Tuple Expr
	Index int
}

// TypeTestExpr holds when Operand is an item of Type. Exact requires the
// concrete type to equal Type (hasType), otherwise subtypes match too
// (instanceOf).
type TypeTestExpr struct {
	Operand Expr
	Type    string
	Exact   bool
}

func (*ScanExpr) exprNode() {}
func (*FilterExpr) exprNode() {}
func (*MapExpr) exprNode() {}
func (*UnionExpr) exprNode() {}
func (*CrossExpr) exprNode() {}
func (*NavigateExpr) exprNode() {}
func (*LiteralExpr) exprNode() {}
func (*ParamExpr) exprNode() {}
func (*ContextExpr) exprNode() {}
func (*AttributeExpr) exprNode() {}
func (*ReferenceExpr) exprNode() {}
func (*FlexExpr) exprNode() {}
func (*EvalExpr) exprNode() {}
func (*BinaryExpr) exprNode() {}
func (*AndExpr) exprNode() {}
func (*OrExpr) exprNode() {}
func (*NotExpr) exprNode() {}
func (*IsNullExpr) exprNode() {}
func (*InSetExpr) exprNode() {}
func (*InValuesExpr) exprNode() {}
func (*RangeExpr) exprNode() {}
func (*UnaryExpr) exprNode() {}
func (*TupleExpr) exprNode() {}
func (*ElementExpr) exprNode() {}
func (*TypeTestExpr) exprNode() {}
func (*ScanExpr) setExprNode() {}
func (*FilterExpr) setExprNode() {}
func (*MapExpr) setExprNode() {}
func (*UnionExpr) setExprNode() {}
func (*CrossExpr) setExprNode() {}
func (*NavigateExpr) setExprNode() {}
