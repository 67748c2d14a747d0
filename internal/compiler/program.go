package compiler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
	"github.com/roach88/kbquery/internal/schema"
)

// Mode distinguishes point-in-time programs from history programs.
type Mode string

const (
	ModeSearch  Mode = "search"
	ModeHistory Mode = "history"
)

// Program is a compiled query, ready for lowering to SQL or for history
// evaluation. Programs are immutable and safe to share between goroutines.
type Program struct {
	ID       string
	Mode     Mode
	Text     string // printed source query
	System   *schema.TypeSystem
	Branch   queryir.BranchParam
	Revision queryir.RevisionParam
	Range    queryir.RangeParam
	Params   []queryir.ParamDecl

	// Search is the expanded query. Its branches are unions of exact
	// scans, with every attribute access qualified by its declaring type.
	Search *SetPlan

	// Descending has one flag per order key.
	Descending []bool

	Info  *Info
	Arena *Arena
}

// SetPlan is an expanded set expression: the union of its branches.
// A plan without branches denotes the empty set.
type SetPlan struct {
	Elem     ValueType
	Branches []*Branch
}

// Branch is one union member of a SetPlan. Order holds the branch's copy
// of the query order keys.
type Branch struct {
	Set   queryir.SetExpr
	Order []queryir.Expr
}

// Info is what the compiler passes learned about the nodes of the expanded
// query.
type Info struct {
	// Types is the static type of every node.
	Types map[queryir.Expr]ValueType
	// Attrs resolves attribute and reference accesses.
	Attrs map[queryir.Expr]*schema.Attribute
	// Scans resolves the scanned type.
	Scans map[*queryir.ScanExpr]*schema.Type
	// TypeTests resolves the tested type.
	TypeTests map[*queryir.TypeTestExpr]*schema.Type
	// Concrete is the set of concrete types item and tuple valued nodes
	// may evaluate to.
	Concrete map[queryir.Expr]TypeSet
	// Symbols maps nodes to the storage symbol they read.
	Symbols map[queryir.Expr]SymbolID
	// Subplans holds the expanded set of every membership test.
	Subplans map[*queryir.InSetExpr]*SetPlan
}

func newInfo() *Info {
	return &Info{
		Types:     make(map[queryir.Expr]ValueType),
		Attrs:     make(map[queryir.Expr]*schema.Attribute),
		Scans:     make(map[*queryir.ScanExpr]*schema.Type),
		TypeTests: make(map[*queryir.TypeTestExpr]*schema.Type),
		Concrete:  make(map[queryir.Expr]TypeSet),
		Symbols:   make(map[queryir.Expr]SymbolID),
		Subplans:  make(map[*queryir.InSetExpr]*SetPlan),
	}
}

// TypeOf returns the static type of e.
func (i *Info) TypeOf(e queryir.Expr) ValueType {
	return i.Types[e]
}

// SymbolOf returns the symbol e reads, or NoSymbol.
func (i *Info) SymbolOf(e queryir.Expr) SymbolID {
	if id, ok := i.Symbols[e]; ok {
		return id
	}
	return NoSymbol
}

// header is what revision and history queries have in common.
type header struct {
	mode     Mode
	branch   queryir.BranchParam
	revision queryir.RevisionParam
	rng      queryir.RangeParam
	params   []queryir.ParamDecl
	search   queryir.SetExpr
	order    []queryir.OrderKey
	text     string
}

// Compile type checks q against ts and compiles it.
//
// Type errors are collected: the returned error is a *multierror.Error
// listing every TypeError found. Queries that cannot be evaluated reliably
// fail with an UnsupportedError.
func Compile(ts *schema.TypeSystem, q *queryir.RevisionQuery) (*Program, error) {
	if q == nil || q.Search == nil {
		return nil, errors.New("compile: query has no search expression")
	}
	return compile(ts, header{
		mode:     ModeSearch,
		branch:   q.Branch,
		revision: q.Revision,
		rng:      q.Range,
		params:   q.Params,
		search:   q.Search,
		order:    q.Order,
		text:     queryir.PrintQuery(q),
	})
}

// CompileHistory type checks q against ts and compiles it for history
// evaluation. History results are keyed by item, so the search must
// consist of items.
func CompileHistory(ts *schema.TypeSystem, q *queryir.HistoryQuery) (*Program, error) {
	if q == nil || q.Search == nil {
		return nil, errors.New("compile history: query has no search expression")
	}
	return compile(ts, header{
		mode:     ModeHistory,
		branch:   q.Branch,
		revision: queryir.RevisionGiven,
		rng:      queryir.RangeComplete,
		params:   q.Params,
		search:   q.Search,
		text:     queryir.PrintHistory(q),
	})
}

// Validate type checks q and returns every type error, or nil.
func Validate(ts *schema.TypeSystem, q *queryir.RevisionQuery) []*TypeError {
	if q == nil || q.Search == nil {
		return []*TypeError{{Code: ErrMissingOperand, Message: "query has no search expression"}}
	}
	var diag Diagnostics
	b := newBinder(ts, newInfo(), &diag)
	b.declare(q.Params)
	root := b.set(q.Search)
	for _, key := range q.Order {
		b.orderKey(key.Expr, root)
	}
	return diag.Errors()
}

func compile(ts *schema.TypeSystem, h header) (*Program, error) {
	slog.Debug("compiling query", "mode", h.mode, "query", h.text)

	search := queryir.CloneSet(h.search)
	order := make([]queryir.Expr, len(h.order))
	descending := make([]bool, len(h.order))
	for i, key := range h.order {
		order[i] = queryir.Clone(key.Expr)
		descending[i] = key.Descending
	}

	// Pass 1: type check the query as written.
	var diag Diagnostics
	first := newInfo()
	b := newBinder(ts, first, &diag)
	b.declare(h.params)
	elem := b.set(search)
	for _, o := range order {
		b.orderKey(o, elem)
	}
	if err := diag.CheckErrors(); err != nil {
		return nil, err
	}
	if h.mode == ModeHistory && elem.Kind != ir.KindItem {
		return nil, &UnsupportedError{
			Code:    ErrHistoryOfValues,
			Message: fmt.Sprintf("history requires a set of items, got %s", elem),
			Expr:    queryir.Print(h.search),
		}
	}

	// Pass 2: expand into unions of exact scans.
	x := newExpander(ts, first)
	plan := x.plan(search, order)

	// Pass 3: type the expanded branches.
	info := newInfo()
	info.Subplans = x.subplans
	var internal Diagnostics
	b2 := newBinder(ts, info, &internal)
	b2.declare(h.params)
	b2.plan(plan, true)
	if err := internal.CheckErrors(); err != nil {
		return nil, fmt.Errorf("compile: expanded query does not type check: %w", err)
	}

	// Pass 4: concrete types.
	if err := computeConcrete(ts, info, plan); err != nil {
		return nil, err
	}

	// Pass 5: storage symbols.
	arena := buildSymbols(info, plan)

	id, err := ir.QueryID(string(h.mode), h.text, ts.ID())
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	slog.Debug("compiled query",
		"mode", h.mode,
		"query_id", id,
		"branches", len(plan.Branches),
		"symbols", arena.Len())

	return &Program{
		ID:         id,
		Mode:       h.mode,
		Text:       h.text,
		System:     ts,
		Branch:     h.branch,
		Revision:   h.revision,
		Range:      h.rng,
		Params:     h.params,
		Search:     plan,
		Descending: descending,
		Info:       info,
		Arena:      arena,
	}, nil
}

// Param looks up a parameter declaration.
func (p *Program) Param(name string) (queryir.ParamDecl, bool) {
	for _, d := range p.Params {
		if d.Name == name {
			return d, true
		}
	}
	return queryir.ParamDecl{}, false
}

// Empty reports whether the program denotes the empty set for every
// revision.
func (p *Program) Empty() bool {
	return len(p.Search.Branches) == 0
}

// String prints the expanded search, one branch per line.
func (p *SetPlan) String() string {
	if len(p.Branches) == 0 {
		return "(empty)"
	}
	var s string
	for i, b := range p.Branches {
		if i > 0 {
			s += "\n"
		}
		s += queryir.Print(b.Set)
	}
	return s
}
