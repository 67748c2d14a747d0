package querysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/kbquery/internal/compiler"
	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/queryir"
)

// SlotKind classifies what a placeholder binds.
type SlotKind int

const (
	// SlotValue binds a constant of the query.
	SlotValue SlotKind = iota
	// SlotRevision binds the queried revision.
	SlotRevision
	// SlotBranch binds the queried branch.
	SlotBranch
	// SlotParam binds a query parameter, or one part of an item parameter.
	SlotParam
	// SlotStart binds the first returned row.
	SlotStart
	// SlotStop binds the row after the last returned one.
	SlotStop
	// SlotCount binds Stop - Start.
	SlotCount
)

func (k SlotKind) String() string {
	switch k {
	case SlotValue:
		return "value"
	case SlotRevision:
		return "revision"
	case SlotBranch:
		return "branch"
	case SlotParam:
		return "param"
	case SlotStart:
		return "start"
	case SlotStop:
		return "stop"
	case SlotCount:
		return "count"
	default:
		return fmt.Sprintf("SlotKind(%d)", int(k))
	}
}

// Slot describes one positional placeholder.
type Slot struct {
	Kind  SlotKind
	Value any             // SlotValue
	Param string          // SlotParam
	Part  queryir.RefPart // SlotParam of an item parameter; PartItem for scalars
}

func (s Slot) String() string {
	switch s.Kind {
	case SlotValue:
		return fmt.Sprintf("%v", s.Value)
	case SlotParam:
		if s.Part != queryir.PartItem {
			return "$" + s.Param + "." + s.Part.String()
		}
		return "$" + s.Param
	default:
		return s.Kind.String()
	}
}

// Args are the execution time arguments of a statement.
type Args struct {
	Branch   ir.BranchID
	Revision int64
	Start    int64
	Stop     int64
	Params   map[string]ir.Value
}

// Statement is a program lowered to SQLite SQL. Statements are immutable
// and safe for concurrent use.
type Statement struct {
	SQL   string
	Slots []Slot
	// Elem is the type of the decoded results.
	Elem compiler.ValueType
	// Width is the number of result columns holding the element; the
	// remaining columns carry order keys.
	Width   int
	Columns int

	program *compiler.Program
}

// Compile lowers p. A program denoting the empty set yields a statement
// without SQL, see Empty.
func Compile(p *compiler.Program) (*Statement, error) {
	st := &Statement{
		Elem:    p.Search.Elem,
		Width:   width(p.Search.Elem),
		program: p,
	}
	if p.Empty() {
		return st, nil
	}

	q, err := lower(p)
	if err != nil {
		return nil, fmt.Errorf("lower query %s: %w", p.ID, err)
	}
	st.SQL, st.Slots = Render(q)
	st.Columns = len(q.Selects[0].Columns)

	slog.Debug("lowered query",
		"query_id", p.ID,
		"selects", len(q.Selects),
		"slots", len(st.Slots))

	return st, nil
}

// Empty reports whether the statement returns nothing without executing.
func (s *Statement) Empty() bool {
	return s.SQL == ""
}

// Bind resolves the slots against args, in placeholder order.
func (s *Statement) Bind(args Args) ([]any, error) {
	out := make([]any, len(s.Slots))
	for i, slot := range s.Slots {
		v, err := s.bindSlot(slot, args)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Statement) bindSlot(slot Slot, args Args) (any, error) {
	switch slot.Kind {
	case SlotValue:
		return slot.Value, nil
	case SlotRevision:
		return args.Revision, nil
	case SlotBranch:
		return int64(args.Branch), nil
	case SlotStart:
		return args.Start, nil
	case SlotStop:
		return args.Stop, nil
	case SlotCount:
		return max(args.Stop-args.Start, 0), nil
	case SlotParam:
		return s.bindParam(slot, args)
	default:
		return nil, fmt.Errorf("unknown slot kind %s", slot.Kind)
	}
}

func (s *Statement) bindParam(slot Slot, args Args) (any, error) {
	decl, ok := s.program.Param(slot.Param)
	if !ok {
		return nil, fmt.Errorf("parameter $%s is not declared", slot.Param)
	}
	v, ok := args.Params[slot.Param]
	if !ok {
		return nil, fmt.Errorf("parameter $%s is not bound", slot.Param)
	}
	if !ir.IsNull(v) && v.Kind() != decl.Kind {
		return nil, fmt.Errorf("parameter $%s requires %s, got %s", slot.Param, decl.Kind, v.Kind())
	}
	if decl.Kind != ir.KindItem {
		return ir.DriverValue(v)
	}

	item, ok := v.(ir.Item)
	if !ok {
		return nil, nil
	}
	switch slot.Part {
	case queryir.PartBranch:
		if item.Branch == 0 {
			return int64(args.Branch), nil
		}
		return int64(item.Branch), nil
	case queryir.PartType:
		return item.Type, nil
	case queryir.PartID:
		return item.ID, nil
	case queryir.PartRevision:
		if item.Revision == 0 {
			return ir.CurrentRevision, nil
		}
		return item.Revision, nil
	default:
		return nil, fmt.Errorf("parameter $%s: item parameters bind by part", slot.Param)
	}
}

// Queryer runs a query. *sql.DB, *sql.Conn and *sql.Tx implement it.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Query executes the statement and decodes every result row, in order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Statement) Query(ctx context.Context, q Queryer, args Args) ([]ir.Value, error) {
	if s.Empty() {
		return []ir.Value{}, nil
	}
	bound, err := s.Bind(args)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, s.SQL, bound...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	values := []ir.Value{}
	raw := make([]any, s.Columns)
	dest := make([]any, s.Columns)
	for i := range raw {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		v, err := s.Decode(raw)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return values, nil
}

// Decode rebuilds the element of one result row.
func (s *Statement) Decode(row []any) (ir.Value, error) {
	if len(row) < s.Width {
		return nil, fmt.Errorf("decode: row has %d columns, element needs %d", len(row), s.Width)
	}
	v, _, err := decode(s.Elem, row)
	return v, err
}

// decode consumes the columns of one value of type t and returns the rest.
func decode(t compiler.ValueType, cols []any) (ir.Value, []any, error) {
	switch t.Kind {
	case ir.KindItem:
		if cols[2] == nil {
			return ir.Null{}, cols[4:], nil
		}
		branch, ok1 := cols[0].(int64)
		typ, err1 := ir.FromColumn(ir.KindString, cols[1])
		id, err2 := ir.FromColumn(ir.KindString, cols[2])
		rev, ok2 := cols[3].(int64)
		if !ok1 || !ok2 || err1 != nil || err2 != nil {
			return nil, nil, fmt.Errorf("decode: malformed item columns %v", cols[:4])
		}
		return ir.Item{
			Branch:   ir.BranchID(branch),
			Type:     string(typ.(ir.String)),
			ID:       string(id.(ir.String)),
			Revision: rev,
		}, cols[4:], nil
	case ir.KindTuple:
		tuple := make(ir.Tuple, len(t.Elems))
		for i, e := range t.Elems {
			v, rest, err := decode(e, cols)
			if err != nil {
				return nil, nil, err
			}
			tuple[i] = v
			cols = rest
		}
		return tuple, cols, nil
	case ir.KindNull:
		return ir.Null{}, cols[1:], nil
	default:
		v, err := ir.FromColumn(t.Kind, cols[0])
		if err != nil {
			return nil, nil, fmt.Errorf("decode: %w", err)
		}
		return v, cols[1:], nil
	}
}

// width is the number of columns a value of type t occupies.
func width(t compiler.ValueType) int {
	switch t.Kind {
	case ir.KindItem:
		return 4
	case ir.KindTuple:
		n := 0
		for _, e := range t.Elems {
			n += width(e)
		}
		return n
	default:
		return 1
	}
}
