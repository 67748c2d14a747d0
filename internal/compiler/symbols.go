package compiler

import (
	"fmt"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/schema"
)

// SymbolID indexes a Symbol in its Arena.
type SymbolID int

// NoSymbol is the absent symbol.
const NoSymbol SymbolID = -1

// SymbolKind classifies a symbol.
type SymbolKind int

const (
	// TableSymbol is a root scan: one row of a type table.
	TableSymbol SymbolKind = iota
	// ItemSymbol is an item bound outside storage: a parameter or literal.
	ItemSymbol
	// ReferenceSymbol is the target of a reference attribute of Parent.
	ReferenceSymbol
	// AttributeSymbol is a primitive attribute of Parent.
	AttributeSymbol
	// FlexSymbol is a dynamic attribute of Parent.
	FlexSymbol
	// TupleSymbol is a pair built by a cross product or a tuple
	// constructor. Its components are Children.
	TupleSymbol
)

func (k SymbolKind) String() string {
	switch k {
	case TableSymbol:
		return "table"
	case ItemSymbol:
		return "item"
	case ReferenceSymbol:
		return "reference"
	case AttributeSymbol:
		return "attribute"
	case FlexSymbol:
		return "flex"
	case TupleSymbol:
		return "tuple"
	default:
		return fmt.Sprintf("SymbolKind(%d)", int(k))
	}
}

// Symbol is a storage access of the compiled query. Symbols form a tree:
// attributes, flex attributes and reference targets hang off the item
// symbol they read from. The SQL lowering emits one join per item symbol
// and concrete type, so accesses sharing a symbol share the join.
type Symbol struct {
	ID       SymbolID
	Kind     SymbolKind
	Parent   SymbolID
	Children []SymbolID // tuple components

	// Type is the scanned type of a table symbol, or the static type of an
	// item or reference symbol.
	Type *schema.Type
	// Concrete lists the types an item valued symbol may have.
	Concrete []*schema.Type

	Attribute *schema.Attribute // reference and attribute symbols
	Flex      string            // flex symbols
	FlexKind  ir.Kind
	Param     string   // item symbols bound to a parameter
	Literal   ir.Value // item symbols bound to a literal
}

// IsItem reports whether the symbol denotes an item.
func (s *Symbol) IsItem() bool {
	return s.Kind == TableSymbol || s.Kind == ItemSymbol || s.Kind == ReferenceSymbol
}

// Arena owns the symbols of one program.
type Arena struct {
	symbols []*Symbol
}

// Len returns the number of symbols.
func (a *Arena) Len() int { return len(a.symbols) }

// Get returns the symbol with the given id.
func (a *Arena) Get(id SymbolID) *Symbol {
	return a.symbols[id]
}

// All returns the symbols in creation order.
func (a *Arena) All() []*Symbol {
	return a.symbols
}

func (a *Arena) add(s *Symbol) SymbolID {
	s.ID = SymbolID(len(a.symbols))
	a.symbols = append(a.symbols, s)
	return s.ID
}

type symbolKey struct {
	parent SymbolID
	kind   SymbolKind
	name   string
}

// symbolBuilder assigns symbols to the nodes of the expanded plan. Item
// valued accesses with the same parent and attribute share a symbol.
type symbolBuilder struct {
	arena *Arena
	info  *Info
	reuse map[symbolKey]SymbolID
}

func buildSymbols(info *Info, plan *SetPlan) *Arena {
	b := &symbolBuilder{
		arena: &Arena{},
		info:  info,
		reuse: make(map[symbolKey]SymbolID),
	}
	b.plan(plan)
	return b.arena
}

func (b *symbolBuilder) plan(p *SetPlan) {
	for _, br := range p.Branches {
		elem := b.set(br.Set)
		for _, o := range br.Order {
			b.expr(o, elem)
		}
	}
}

func (b *symbolBuilder) record(e queryir.Expr, id SymbolID) SymbolID {
	if id != NoSymbol {
		b.info.Symbols[e] = id
	}
	return id
}

func (b *symbolBuilder) shared(key symbolKey, create func() *Symbol) SymbolID {
	if id, ok := b.reuse[key]; ok {
		return id
	}
	id := b.arena.add(create())
	b.reuse[key] = id
	return id
}

// set returns the symbol of the elements of s.
func (b *symbolBuilder) set(s queryir.SetExpr) SymbolID {
	switch n := s.(type) {
	case *queryir.ScanExpr:
		t := b.info.Scans[n]
		id := b.arena.add(&Symbol{
			Kind:     TableSymbol,
			Parent:   NoSymbol,
			Type:     t,
			Concrete: []*schema.Type{t},
		})
		return b.record(n, id)
	case *queryir.FilterExpr:
		elem := b.set(n.Source)
		b.expr(n.Predicate, elem)
		return b.record(n, elem)
	case *queryir.MapExpr:
		src := b.set(n.Source)
		return b.record(n, b.expr(n.Mapping, src))
	case *queryir.CrossExpr:
		l := b.set(n.Left)
		r := b.set(n.Right)
		return b.record(n, b.tuple([]SymbolID{l, r}))
	case *queryir.UnionExpr:
		b.set(n.Left)
		b.set(n.Right)
		return NoSymbol
	default:
		panic(fmt.Sprintf("compiler: %T in an expanded query", s))
	}
}

func (b *symbolBuilder) tuple(children []SymbolID) SymbolID {
	return b.arena.add(&Symbol{Kind: TupleSymbol, Parent: NoSymbol, Children: children})
}

// expr returns the symbol e reads with ctx as context, or NoSymbol for
// computed values.
func (b *symbolBuilder) expr(e queryir.Expr, ctx SymbolID) SymbolID {
	switch n := e.(type) {
	case *queryir.ContextExpr:
		return b.record(n, ctx)

	case *queryir.ParamExpr:
		t := b.info.Types[n]
		if t.Kind != ir.KindItem {
			return NoSymbol
		}
		id := b.shared(symbolKey{NoSymbol, ItemSymbol, "$" + n.Name}, func() *Symbol {
			return &Symbol{
				Kind:     ItemSymbol,
				Parent:   NoSymbol,
				Type:     t.Item,
				Concrete: b.info.Concrete[n].Types,
				Param:    n.Name,
			}
		})
		return b.record(n, id)

	case *queryir.LiteralExpr:
		if n.Value.Kind() != ir.KindItem {
			return NoSymbol
		}
		t := b.info.Types[n]
		id := b.shared(symbolKey{NoSymbol, ItemSymbol, ir.Format(n.Value)}, func() *Symbol {
			return &Symbol{
				Kind:     ItemSymbol,
				Parent:   NoSymbol,
				Type:     t.Item,
				Concrete: b.info.Concrete[n].Types,
				Literal:  n.Value,
			}
		})
		return b.record(n, id)

	case *queryir.AttributeExpr:
		parent := b.expr(n.Context, ctx)
		if parent == NoSymbol {
			return NoSymbol
		}
		a := b.info.Attrs[n]
		id := b.shared(symbolKey{parent, AttributeSymbol, a.String()}, func() *Symbol {
			return &Symbol{Kind: AttributeSymbol, Parent: parent, Attribute: a}
		})
		return b.record(n, id)

	case *queryir.ReferenceExpr:
		parent := b.expr(n.Context, ctx)
		if parent == NoSymbol {
			return NoSymbol
		}
		a := b.info.Attrs[n]
		id := b.shared(symbolKey{parent, ReferenceSymbol, a.String()}, func() *Symbol {
			return &Symbol{
				Kind:      ReferenceSymbol,
				Parent:    parent,
				Type:      a.Target,
				Concrete:  a.Target.ConcreteSubtypes(),
				Attribute: a,
			}
		})
		return b.record(n, id)

	case *queryir.FlexExpr:
		parent := b.expr(n.Context, ctx)
		if parent == NoSymbol {
			return NoSymbol
		}
		id := b.shared(symbolKey{parent, FlexSymbol, n.Name}, func() *Symbol {
			return &Symbol{Kind: FlexSymbol, Parent: parent, Flex: n.Name, FlexKind: n.ValueKind}
		})
		return b.record(n, id)

	case *queryir.EvalExpr:
		inner := b.expr(n.Context, ctx)
		return b.record(n, b.expr(n.Inner, inner))

	case *queryir.TupleExpr:
		children := make([]SymbolID, len(n.Elements))
		for i, el := range n.Elements {
			children[i] = b.expr(el, ctx)
		}
		return b.record(n, b.tuple(children))

	case *queryir.ElementExpr:
		t := b.expr(n.Tuple, ctx)
		if t == NoSymbol {
			return NoSymbol
		}
		sym := b.arena.Get(t)
		if sym.Kind != TupleSymbol || n.Index >= len(sym.Children) {
			return NoSymbol
		}
		return b.record(n, sym.Children[n.Index])

	case *queryir.InSetExpr:
		b.expr(n.Elem, ctx)
		if sp, ok := b.info.Subplans[n]; ok {
			b.plan(sp)
		}
		return NoSymbol

	default:
		for _, child := range queryir.Children(e) {
			b.expr(child, ctx)
		}
		return NoSymbol
	}
}
