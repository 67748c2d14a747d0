package queryir

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/roach88/kbquery/internal/ir"
)

// ParseError reports a syntax error in query text.
type ParseError struct {
	Pos     scanner.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Parse reads an expression in the syntax written by Print.
func Parse(src string) (Expr, error) {
	var e Expr
	err := parse(src, func(p *parser) { e = p.expr() })
	return e, err
}

// ParseSet reads a set expression.
func ParseSet(src string) (SetExpr, error) {
	var s SetExpr
	err := parse(src, func(p *parser) { s = p.set() })
	return s, err
}

// ParseQuery reads a point-in-time query in the syntax written by
// PrintQuery.
func ParseQuery(src string) (*RevisionQuery, error) {
	var q *RevisionQuery
	err := parse(src, func(p *parser) { q = p.revisionQuery() })
	return q, err
}

// ParseHistory reads a history query in the syntax written by PrintHistory.
func ParseHistory(src string) (*HistoryQuery, error) {
	var q *HistoryQuery
	err := parse(src, func(p *parser) { q = p.historyQuery() })
	return q, err
}

type parser struct {
	s   scanner.Scanner
	tok rune
	lit string
	pos scanner.Position
}

func parse(src string, fn func(p *parser)) (err error) {
	p := &parser{}
	p.s.Init(strings.NewReader(src))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanStrings |
		scanner.ScanRawStrings | scanner.ScanComments | scanner.SkipComments
	p.s.Error = func(s *scanner.Scanner, msg string) {
		p.fail(s.Position, msg)
	}

	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*ParseError)
			if !ok {
				panic(r)
			}
			err = pe
		}
	}()

	p.next()
	fn(p)
	if p.tok != scanner.EOF {
		p.errorf("unexpected %s after end of query", p.describe())
	}
	return nil
}

func (p *parser) next() {
	p.tok = p.s.Scan()
	p.lit = p.s.TokenText()
	p.pos = p.s.Position
}

func (p *parser) fail(pos scanner.Position, msg string) {
	panic(&ParseError{Pos: pos, Message: msg})
}

func (p *parser) errorf(format string, args ...any) {
	p.fail(p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) describe() string {
	switch p.tok {
	case scanner.EOF:
		return "end of input"
	case scanner.Ident, scanner.Int, scanner.String, scanner.RawString:
		return strconv.Quote(p.lit)
	default:
		return fmt.Sprintf("%q", p.tok)
	}
}

func (p *parser) expect(tok rune) {
	if p.tok != tok {
		p.errorf("expected %q, found %s", tok, p.describe())
	}
	p.next()
}

func (p *parser) ident() string {
	if p.tok != scanner.Ident {
		p.errorf("expected identifier, found %s", p.describe())
	}
	name := p.lit
	p.next()
	return name
}

func (p *parser) integer() int64 {
	neg := false
	if p.tok == '-' {
		neg = true
		p.next()
	}
	if p.tok != scanner.Int {
		p.errorf("expected integer, found %s", p.describe())
	}
	n, err := strconv.ParseInt(p.lit, 0, 64)
	if err != nil {
		p.errorf("invalid integer %s", p.lit)
	}
	p.next()
	if neg {
		n = -n
	}
	return n
}

func (p *parser) str() string {
	if p.tok != scanner.String && p.tok != scanner.RawString {
		p.errorf("expected string, found %s", p.describe())
	}
	s, err := strconv.Unquote(p.lit)
	if err != nil {
		p.errorf("invalid string %s", p.lit)
	}
	p.next()
	return s
}

// qualified reads Type.name or name.
func (p *parser) qualified() (typeName, name string) {
	name = p.ident()
	if p.tok == '.' {
		p.next()
		return name, p.ident()
	}
	return "", name
}

func (p *parser) set() SetExpr {
	pos := p.pos
	e := p.expr()
	s, ok := e.(SetExpr)
	if !ok {
		p.fail(pos, "expected set expression")
	}
	return s
}

// args reads a parenthesized, comma separated expression list.
func (p *parser) args() []Expr {
	p.expect('(')
	var list []Expr
	for p.tok != ')' {
		if len(list) > 0 {
			p.expect(',')
		}
		list = append(list, p.expr())
	}
	p.next()
	return list
}

func (p *parser) fixedArgs(name string, n int) []Expr {
	pos := p.pos
	list := p.args()
	if len(list) != n {
		p.fail(pos, fmt.Sprintf("%s takes %d arguments, got %d", name, n, len(list)))
	}
	return list
}

func (p *parser) asSet(name string, e Expr) SetExpr {
	s, ok := e.(SetExpr)
	if !ok {
		p.errorf("%s requires a set expression", name)
	}
	return s
}

var binaryOps = map[string]BinaryOp{
	"eq":   OpEq,
	"eqCi": OpEqCi,
	"gt":   OpGt,
	"ge":   OpGe,
	"lt":   OpLt,
	"le":   OpLe,
}

var unaryOps = map[string]UnaryOp{
	"branch":     OpBranch,
	"revision":   OpRevision,
	"identifier": OpIdentifier,
	"typeName":   OpTypeName,
}

func (p *parser) expr() Expr {
	switch p.tok {
	case scanner.String, scanner.RawString, scanner.Int, '-', '(':
		return Literal(p.value())
	case '$':
		p.next()
		return Param(p.ident())
	case scanner.Ident:
	default:
		p.errorf("unexpected %s", p.describe())
	}

	name := p.lit
	if op, ok := binaryOps[name]; ok {
		p.next()
		a := p.fixedArgs(name, 2)
		return Binary(op, a[0], a[1])
	}
	if op, ok := unaryOps[name]; ok {
		p.next()
		a := p.fixedArgs(name, 1)
		return &UnaryExpr{Op: op, Operand: a[0]}
	}

	switch name {
	case "true", "false", "null", "item":
		return Literal(p.value())
	case "_":
		p.errorf("unbounded marker _ is only valid as an attributeRange bound")
	}

	pos := p.pos
	p.next()
	switch name {
	case "context":
		p.fixedArgs(name, 0)
		return Context()
	case "allOf", "anyOf":
		p.expect('(')
		t := p.ident()
		p.expect(')')
		if name == "anyOf" {
			return AnyOf(t)
		}
		return AllOf(t)
	case "filter":
		a := p.fixedArgs(name, 2)
		return Filter(p.asSet(name, a[0]), a[1])
	case "map":
		a := p.fixedArgs(name, 2)
		return Map(p.asSet(name, a[0]), a[1])
	case "union":
		a := p.fixedArgs(name, 2)
		return &UnionExpr{Left: p.asSet(name, a[0]), Right: p.asSet(name, a[1])}
	case "crossProduct":
		a := p.fixedArgs(name, 2)
		return CrossProduct(p.asSet(name, a[0]), p.asSet(name, a[1]))
	case "navigate", "navigateBack":
		p.expect('(')
		from := p.set()
		p.expect(',')
		via := p.ident()
		p.expect(',')
		target := p.ident()
		p.expect(')')
		if name == "navigate" {
			return NavigateForwards(from, via, target)
		}
		return NavigateBackwards(from, via, target)
	case "attribute":
		p.expect('(')
		ctx := p.expr()
		p.expect(',')
		t, attr := p.qualified()
		p.expect(')')
		return Attribute(ctx, t, attr)
	case "reference":
		p.expect('(')
		ctx := p.expr()
		p.expect(',')
		t, attr := p.qualified()
		part := PartItem
		if p.tok == ',' {
			p.next()
			partName := p.ident()
			var ok bool
			if part, ok = ParseRefPart(partName); !ok {
				p.errorf("unknown reference part %q", partName)
			}
		}
		p.expect(')')
		return ReferencePart(ctx, t, attr, part)
	case "flex":
		p.expect('(')
		ctx := p.expr()
		p.expect(',')
		kind := p.kind()
		p.expect(',')
		attr := p.ident()
		p.expect(')')
		return Flex(ctx, kind, attr)
	case "eval":
		a := p.fixedArgs(name, 2)
		return Eval(a[0], a[1])
	case "and":
		return And(p.args()...)
	case "or":
		return Or(p.args()...)
	case "not":
		return Not(p.fixedArgs(name, 1)[0])
	case "isNull":
		return IsNull(p.fixedArgs(name, 1)[0])
	case "inSet":
		a := p.fixedArgs(name, 2)
		return InSet(a[0], p.asSet(name, a[1]))
	case "in":
		p.expect('(')
		elem := p.expr()
		p.expect(',')
		p.expect('[')
		var values []ir.Value
		for p.tok != ']' {
			if len(values) > 0 {
				p.expect(',')
			}
			values = append(values, p.value())
		}
		p.next()
		p.expect(')')
		return InLiteralSet(elem, values...)
	case "attributeRange":
		p.expect('(')
		operand := p.expr()
		p.expect(',')
		lo := p.bound()
		p.expect(',')
		hi := p.bound()
		p.expect(')')
		return AttributeRange(operand, lo, hi)
	case "tuple":
		return Tuple(p.args()...)
	case "element":
		p.expect('(')
		t := p.expr()
		p.expect(',')
		idx := p.integer()
		p.expect(')')
		return Element(t, int(idx))
	case "hasType", "instanceOf":
		p.expect('(')
		operand := p.expr()
		p.expect(',')
		t := p.ident()
		p.expect(')')
		if name == "hasType" {
			return HasType(operand, t)
		}
		return InstanceOf(operand, t)
	}
	p.fail(pos, fmt.Sprintf("unknown function %q", name))
	return nil
}

// bound reads an attributeRange bound, _ for unbounded.
func (p *parser) bound() Expr {
	if p.tok == scanner.Ident && p.lit == "_" {
		p.next()
		return nil
	}
	return p.expr()
}

func (p *parser) kind() ir.Kind {
	name := p.ident()
	switch name {
	case "string":
		return ir.KindString
	case "int":
		return ir.KindInt
	case "bool":
		return ir.KindBool
	case "item":
		return ir.KindItem
	}
	p.errorf("unknown value kind %q", name)
	return ir.KindNull
}

// value reads a constant.
func (p *parser) value() ir.Value {
	switch p.tok {
	case scanner.String, scanner.RawString:
		return ir.String(p.str())
	case scanner.Int, '-':
		return ir.Int(p.integer())
	case '(':
		p.next()
		var t ir.Tuple
		for p.tok != ')' {
			if len(t) > 0 {
				p.expect(',')
			}
			t = append(t, p.value())
		}
		p.next()
		return t
	case scanner.Ident:
		switch p.lit {
		case "true":
			p.next()
			return ir.Bool(true)
		case "false":
			p.next()
			return ir.Bool(false)
		case "null":
			p.next()
			return ir.Null{}
		case "item":
			p.next()
			p.expect('(')
			typeName := p.str()
			p.expect(',')
			id := p.str()
			p.expect(',')
			branch := p.integer()
			rev := ir.CurrentRevision
			if p.tok == ',' {
				p.next()
				rev = p.integer()
			}
			p.expect(')')
			return ir.Item{Branch: ir.BranchID(branch), Type: typeName, ID: id, Revision: rev}
		}
	}
	p.errorf("expected constant, found %s", p.describe())
	return nil
}

func (p *parser) revisionQuery() *RevisionQuery {
	if p.tok != scanner.Ident || p.lit != "search" {
		p.errorf("expected search(...), found %s", p.describe())
	}
	p.next()
	p.expect('(')
	q := &RevisionQuery{Search: p.set()}
	for p.tok == ',' {
		p.next()
		pos := p.pos
		opt := p.ident()
		p.expect('=')
		switch opt {
		case "branch":
			q.Branch = p.branchParam()
		case "revision":
			switch v := p.ident(); v {
			case "current":
				q.Revision = RevisionCurrent
			case "given":
				q.Revision = RevisionGiven
			default:
				p.fail(pos, fmt.Sprintf("invalid revision param %q", v))
			}
		case "range":
			v := p.ident()
			r, err := ParseRangeParam(v)
			if err != nil {
				p.fail(pos, err.Error())
			}
			q.Range = r
		case "params":
			q.Params = p.paramDecls()
		case "order":
			q.Order = p.orderKeys()
		default:
			p.fail(pos, fmt.Sprintf("unknown search option %q", opt))
		}
	}
	p.expect(')')
	return q
}

func (p *parser) historyQuery() *HistoryQuery {
	if p.tok != scanner.Ident || p.lit != "history" {
		p.errorf("expected history(...), found %s", p.describe())
	}
	p.next()
	p.expect('(')
	q := &HistoryQuery{Search: p.set()}
	for p.tok == ',' {
		p.next()
		pos := p.pos
		opt := p.ident()
		p.expect('=')
		switch opt {
		case "branch":
			q.Branch = p.branchParam()
		case "params":
			q.Params = p.paramDecls()
		default:
			p.fail(pos, fmt.Sprintf("unknown history option %q", opt))
		}
	}
	p.expect(')')
	return q
}

func (p *parser) branchParam() BranchParam {
	pos := p.pos
	b, err := ParseBranchParam(p.ident())
	if err != nil {
		p.fail(pos, err.Error())
	}
	return b
}

func (p *parser) paramDecls() []ParamDecl {
	p.expect('[')
	var decls []ParamDecl
	for p.tok != ']' {
		if len(decls) > 0 {
			p.expect(',')
		}
		d := ParamDecl{Name: p.ident(), Kind: p.kind()}
		if d.Kind == ir.KindItem && p.tok == '(' {
			p.next()
			d.Type = p.ident()
			p.expect(')')
		}
		decls = append(decls, d)
	}
	p.next()
	return decls
}

func (p *parser) orderKeys() []OrderKey {
	p.expect('[')
	var keys []OrderKey
	for p.tok != ']' {
		if len(keys) > 0 {
			p.expect(',')
		}
		dir := p.ident()
		p.expect('(')
		e := p.expr()
		p.expect(')')
		switch dir {
		case "asc":
			keys = append(keys, Order(e))
		case "desc":
			keys = append(keys, OrderDesc(e))
		default:
			p.errorf("order key must be asc(...) or desc(...), found %q", dir)
		}
	}
	p.next()
	return keys
}
