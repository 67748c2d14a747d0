package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/kbquery/internal/ir"
)

// Print renders e in the textual query syntax read by Parse.
//
//	filter(anyOf(A), eq(attribute(context(), A.name), "x"))
//	map(allOf(E), reference(context(), histRef, id))
//	inSet(context(), navigate(allOf(D), AB, B))
//	attributeRange(attribute(context(), n), 1, _)
func Print(e Expr) string {
	var p printer
	p.expr(e)
	return p.String()
}

// PrintQuery renders a point-in-time query. Options equal to their default
// are omitted.
//
//	search(allOf(A), branch = all, range = head, params = [p string], order = [desc(attribute(context(), n))])
func PrintQuery(q *RevisionQuery) string {
	var p printer
	p.WriteString("search(")
	p.expr(q.Search)
	if q.Branch != BranchSingle {
		p.option("branch", q.Branch.String())
	}
	if q.Revision != RevisionCurrent {
		p.option("revision", q.Revision.String())
	}
	if q.Range != RangeComplete {
		p.option("range", q.Range.String())
	}
	p.params(q.Params)
	if len(q.Order) > 0 {
		p.WriteString(", order = [")
		for i, k := range q.Order {
			if i > 0 {
				p.WriteString(", ")
			}
			if k.Descending {
				p.WriteString("desc(")
			} else {
				p.WriteString("asc(")
			}
			p.expr(k.Expr)
			p.WriteByte(')')
		}
		p.WriteByte(']')
	}
	p.WriteByte(')')
	return p.String()
}

// PrintHistory renders a history query.
func PrintHistory(q *HistoryQuery) string {
	var p printer
	p.WriteString("history(")
	p.expr(q.Search)
	if q.Branch != BranchSingle {
		p.option("branch", q.Branch.String())
	}
	p.params(q.Params)
	p.WriteByte(')')
	return p.String()
}

type printer struct {
	strings.Builder
}

func (p *printer) option(name, value string) {
	fmt.Fprintf(p, ", %s = %s", name, value)
}

func (p *printer) params(params []ParamDecl) {
	if len(params) == 0 {
		return
	}
	p.WriteString(", params = [")
	for i, d := range params {
		if i > 0 {
			p.WriteString(", ")
		}
		p.WriteString(d.Name)
		p.WriteByte(' ')
		p.WriteString(d.Kind.String())
		if d.Kind == ir.KindItem && d.Type != "" {
			fmt.Fprintf(p, "(%s)", d.Type)
		}
	}
	p.WriteByte(']')
}

func (p *printer) call(name string, args ...Expr) {
	p.WriteString(name)
	p.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			p.WriteString(", ")
		}
		p.expr(a)
	}
	p.WriteByte(')')
}

// qualified writes Type.name, or name when typeName is empty.
func (p *printer) qualified(typeName, name string) {
	if typeName != "" {
		p.WriteString(typeName)
		p.WriteByte('.')
	}
	p.WriteString(name)
}

func (p *printer) expr(e Expr) {
	switch n := e.(type) {
	case nil:
		p.WriteByte('_')
	case *ScanExpr:
		if n.Polymorphic {
			fmt.Fprintf(p, "anyOf(%s)", n.Type)
		} else {
			fmt.Fprintf(p, "allOf(%s)", n.Type)
		}
	case *FilterExpr:
		p.call("filter", n.Source, n.Predicate)
	case *MapExpr:
		p.call("map", n.Source, n.Mapping)
	case *UnionExpr:
		p.call("union", n.Left, n.Right)
	case *CrossExpr:
		p.call("crossProduct", n.Left, n.Right)
	case *NavigateExpr:
		if n.Forward {
			p.WriteString("navigate(")
		} else {
			p.WriteString("navigateBack(")
		}
		p.expr(n.From)
		fmt.Fprintf(p, ", %s, %s)", n.Via, n.Target)
	case *LiteralExpr:
		p.WriteString(ir.Format(n.Value))
	case *ParamExpr:
		p.WriteByte('$')
		p.WriteString(n.Name)
	case *ContextExpr:
		p.WriteString("context()")
	case *AttributeExpr:
		p.WriteString("attribute(")
		p.expr(n.Context)
		p.WriteString(", ")
		p.qualified(n.Type, n.Name)
		p.WriteByte(')')
	case *ReferenceExpr:
		p.WriteString("reference(")
		p.expr(n.Context)
		p.WriteString(", ")
		p.qualified(n.Type, n.Name)
		if n.Part != PartItem {
			p.WriteString(", ")
			p.WriteString(n.Part.String())
		}
		p.WriteByte(')')
	case *FlexExpr:
		p.WriteString("flex(")
		p.expr(n.Context)
		fmt.Fprintf(p, ", %s, %s)", n.ValueKind, n.Name)
	case *EvalExpr:
		p.call("eval", n.Context, n.Inner)
	case *BinaryExpr:
		p.call(n.Op.String(), n.Left, n.Right)
	case *AndExpr:
		p.call("and", n.Operands...)
	case *OrExpr:
		p.call("or", n.Operands...)
	case *NotExpr:
		p.call("not", n.Operand)
	case *IsNullExpr:
		p.call("isNull", n.Operand)
	case *InSetExpr:
		p.call("inSet", n.Elem, n.Set)
	case *InValuesExpr:
		p.WriteString("in(")
		p.expr(n.Elem)
		p.WriteString(", [")
		for i, v := range n.Values {
			if i > 0 {
				p.WriteString(", ")
			}
			p.WriteString(ir.Format(v))
		}
		p.WriteString("])")
	case *RangeExpr:
		p.call("attributeRange", n.Operand, n.Lo, n.Hi)
	case *UnaryExpr:
		p.call(n.Op.String(), n.Operand)
	case *TupleExpr:
		p.call("tuple", n.Elements...)
	case *ElementExpr:
		p.WriteString("element(")
		p.expr(n.Tuple)
		fmt.Fprintf(p, ", %d)", n.Index)
	case *TypeTestExpr:
		if n.Exact {
			p.WriteString("hasType(")
		} else {
			p.WriteString("instanceOf(")
		}
		p.expr(n.Operand)
		fmt.Fprintf(p, ", %s)", n.Type)
	default:
		panic(fmt.Sprintf("queryir: unknown expression %T", e))
	}
}
