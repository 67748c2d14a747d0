package queryir

import (
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/schema"
)

// AllOf scans the instances whose concrete type is exactly typeName.
func AllOf(typeName string) SetExpr {
	return &ScanExpr{Type: typeName}
}

// AnyOf scans the instances of typeName and all of its subtypes.
func AnyOf(typeName string) SetExpr {
	return &ScanExpr{Type: typeName, Polymorphic: true}
}

// Filter restricts source to the elements satisfying predicate.
func Filter(source SetExpr, predicate Expr) SetExpr {
	return &FilterExpr{Source: source, Predicate: predicate}
}

// Map maps every element of source through mapping.
func Map(source SetExpr, mapping Expr) SetExpr {
	return &MapExpr{Source: source, Mapping: mapping}
}

// Union combines sets. A single set is returned unchanged.
func Union(first SetExpr, rest ...SetExpr) SetExpr {
	result := first
	for _, s := range rest {
		result = &UnionExpr{Left: result, Right: s}
	}
	return result
}

// CrossProduct pairs every element of left with every element of right.
func CrossProduct(left, right SetExpr) SetExpr {
	return &CrossExpr{Left: left, Right: right}
}

// NavigateForwards follows links of association via from source to dest.
func NavigateForwards(from SetExpr, via, target string) SetExpr {
	return &NavigateExpr{Forward: true, From: from, Via: via, Target: target}
}

// NavigateBackwards follows links of association via from dest to source.
func NavigateBackwards(from SetExpr, via, target string) SetExpr {
	return &NavigateExpr{Forward: false, From: from, Via: via, Target: target}
}

// Literal wraps a constant value.
func Literal(v ir.Value) Expr {
	if v == nil {
		v = ir.Null{}
	}
	return &LiteralExpr{Value: v}
}

// Str is shorthand for a string literal.
func Str(s string) Expr { return Literal(ir.String(s)) }

// Int is shorthand for an integer literal.
func Int(n int64) Expr { return Literal(ir.Int(n)) }

// Bool is shorthand for a boolean literal.
func Bool(b bool) Expr { return Literal(ir.Bool(b)) }

// Null is the NULL literal.
func Null() Expr { return Literal(ir.Null{}) }

// Param refers to a declared parameter.
func Param(name string) Expr {
	return &ParamExpr{Name: name}
}

// Context is the element currently evaluated.
func Context() Expr {
	return &ContextExpr{}
}

// Attribute reads attribute name, declared by typeName, of context.
// typeName may be empty to use the static type of context.
func Attribute(context Expr, typeName, name string) Expr {
	return &AttributeExpr{Context: context, Type: typeName, Name: name}
}

// Reference reads the reference attribute name of context.
func Reference(context Expr, typeName, name string) Expr {
	return &ReferenceExpr{Context: context, Type: typeName, Name: name, Part: PartItem}
}

// ReferencePart reads one part of the reference attribute name of context.
func ReferencePart(context Expr, typeName, name string, part RefPart) Expr {
	return &ReferenceExpr{Context: context, Type: typeName, Name: name, Part: part}
}

// Source is the source end of the association element in context.
func Source() Expr {
	return Reference(Context(), "", schema.SourceAttribute)
}

// Destination is the dest end of the association element in context.
func Destination() Expr {
	return Reference(Context(), "", schema.DestAttribute)
}

// Flex reads the dynamic attribute name of context.
func Flex(context Expr, kind ir.Kind, name string) Expr {
	return &FlexExpr{Context: context, ValueKind: kind, Name: name}
}

// Eval evaluates inner with the value of context as context.
func Eval(context, inner Expr) Expr {
	return &EvalExpr{Context: context, Inner: inner}
}

// Binary compares left and right with op.
func Binary(op BinaryOp, left, right Expr) Expr {
	return &BinaryExpr{Op: op, Left: left, Right: right}
}

// Eq is null-safe equality.
func Eq(left, right Expr) Expr { return Binary(OpEq, left, right) }

// EqCi is case insensitive null-safe equality.
func EqCi(left, right Expr) Expr { return Binary(OpEqCi, left, right) }

// Gt holds when left > right.
func Gt(left, right Expr) Expr { return Binary(OpGt, left, right) }

// Ge holds when left >= right.
func Ge(left, right Expr) Expr { return Binary(OpGe, left, right) }

// Lt holds when left < right.
func Lt(left, right Expr) Expr { return Binary(OpLt, left, right) }

// Le holds when left <= right.
func Le(left, right Expr) Expr { return Binary(OpLe, left, right) }

// And holds when all operands hold.
func And(operands ...Expr) Expr {
	return &AndExpr{Operands: operands}
}

// Or holds when any operand holds.
func Or(operands ...Expr) Expr {
	return &OrExpr{Operands: operands}
}

// Not negates predicate.
func Not(predicate Expr) Expr {
	return &NotExpr{Operand: predicate}
}

// IsNull holds when operand is NULL.
func IsNull(operand Expr) Expr {
	return &IsNullExpr{Operand: operand}
}

// InSet holds when elem is a member of set.
func InSet(elem Expr, set SetExpr) Expr {
	return &InSetExpr{Elem: elem, Set: set}
}

// InLiteralSet holds when elem equals one of values.
func InLiteralSet(elem Expr, values ...ir.Value) Expr {
	return &InValuesExpr{Elem: elem, Values: values}
}

// AttributeRange holds when lo <= operand <= hi. Either bound may be nil.
func AttributeRange(operand, lo, hi Expr) Expr {
	return &RangeExpr{Operand: operand, Lo: lo, Hi: hi}
}

// Branch is the branch of an item.
func Branch(item Expr) Expr { return &UnaryExpr{Op: OpBranch, Operand: item} }

// Revision is the bound revision of an item.
func Revision(item Expr) Expr { return &UnaryExpr{Op: OpRevision, Operand: item} }

// Identifier is the identifier of an item.
func Identifier(item Expr) Expr { return &UnaryExpr{Op: OpIdentifier, Operand: item} }

// TypeName is the concrete type name of an item.
func TypeName(item Expr) Expr { return &UnaryExpr{Op: OpTypeName, Operand: item} }

// Tuple combines values.
func Tuple(elements ...Expr) Expr {
	return &TupleExpr{Elements: elements}
}

// Element reads component index of a tuple.
func Element(tuple Expr, index int) Expr {
	return &ElementExpr{Tuple: tuple, Index: index}
}

// HasType holds when operand is an item whose concrete type is typeName.
func HasType(operand Expr, typeName string) Expr {
	return &TypeTestExpr{Operand: operand, Type: typeName, Exact: true}
}

// InstanceOf holds when operand is an item of typeName or a subtype.
func InstanceOf(operand Expr, typeName string) Expr {
	return &TypeTestExpr{Operand: operand, Type: typeName}
}

// Order sorts ascending by expr.
func Order(expr Expr) OrderKey {
	return OrderKey{Expr: expr}
}

// OrderDesc sorts descending by expr.
func OrderDesc(expr Expr) OrderKey {
	return OrderKey{Expr: expr, Descending: true}
}
