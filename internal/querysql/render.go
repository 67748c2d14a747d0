package querysql

import (
	"fmt"
	"strings"
)

// Render prints q in the SQLite dialect with positional ? placeholders.
// The returned slots describe, in placeholder order, what each one binds.
//
// Output is deterministic: the same Query always renders byte-identical
// SQL, which is what the golden tests rely on.
func Render(q *Query) (string, []Slot) {
	r := &renderer{}
	r.query(q, "\n")
	return r.b.String(), r.slots
}

type renderer struct {
	b     strings.Builder
	slots []Slot
}

func (r *renderer) write(s string) {
	r.b.WriteString(s)
}

func (r *renderer) placeholder(s Slot) {
	r.slots = append(r.slots, s)
	r.write("?")
}

// query prints the statement with clauses separated by sep: a newline at
// top level, a space in subqueries.
func (r *renderer) query(q *Query, sep string) {
	for i, s := range q.Selects {
		if i > 0 {
			r.write(sep + "UNION" + sep)
		}
		r.sel(s, sep)
	}
	if len(q.OrderBy) > 0 {
		r.write(sep + "ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				r.write(", ")
			}
			r.write(o.Alias + " COLLATE BINARY")
			if o.Descending {
				r.write(" DESC")
			} else {
				r.write(" ASC")
			}
		}
	}
	if q.Limit != nil {
		r.write(sep + "LIMIT ")
		r.expr(q.Limit)
		if q.Offset != nil {
			r.write(" OFFSET ")
			r.expr(q.Offset)
		}
	}
}

func (r *renderer) sel(s *Select, sep string) {
	r.write("SELECT ")
	if s.Distinct {
		r.write("DISTINCT ")
	}
	for i, c := range s.Columns {
		if i > 0 {
			r.write(", ")
		}
		r.expr(c.Expr)
		if c.Alias != "" {
			r.write(" AS " + c.Alias)
		}
	}

	r.write(sep + "FROM ")
	for i, t := range s.From {
		if i > 0 {
			r.write(" CROSS JOIN ")
		}
		r.table(t)
	}
	for _, j := range s.Joins {
		r.write(sep + "LEFT JOIN ")
		r.table(j.Table)
		r.write(" ON ")
		r.conjunction(j.On)
	}
	if len(s.Where) > 0 {
		r.write(sep + "WHERE ")
		r.conjunction(s.Where)
	}
}

func (r *renderer) table(t Table) {
	r.write(quoteIdent(t.Name) + " " + t.Alias)
}

// conjunction prints a top-level condition: an And without parentheses.
func (r *renderer) conjunction(e Expr) {
	and, ok := e.(And)
	if !ok || len(and) == 0 {
		r.expr(e)
		return
	}
	r.list(and, " AND ")
}

func (r *renderer) list(es []Expr, sep string) {
	for i, e := range es {
		if i > 0 {
			r.write(sep)
		}
		r.expr(e)
	}
}

func (r *renderer) expr(e Expr) {
	switch n := e.(type) {
	case Column:
		r.write(n.Table + "." + quoteIdent(n.Name))
	case Value:
		if n.V == nil {
			r.write("NULL")
			return
		}
		r.placeholder(Slot{Kind: SlotValue, Value: n.V})
	case Lit:
		r.write(string(n))
	case Param:
		r.placeholder(n.Slot)
	case Func:
		r.write(n.Name + "(")
		r.list(n.Args, ", ")
		r.write(")")
	case Case:
		r.write("CASE")
		for _, w := range n.Whens {
			r.write(" WHEN ")
			r.expr(w.Cond)
			r.write(" THEN ")
			r.expr(w.Result)
		}
		if n.Else != nil {
			r.write(" ELSE ")
			r.expr(n.Else)
		}
		r.write(" END")
	case Binary:
		r.write("(")
		r.expr(n.Left)
		r.write(" " + n.Op + " ")
		r.expr(n.Right)
		r.write(")")
	case And:
		if len(n) == 0 {
			r.write("1")
			return
		}
		r.write("(")
		r.list(n, " AND ")
		r.write(")")
	case Or:
		if len(n) == 0 {
			r.write("0")
			return
		}
		r.write("(")
		r.list(n, " OR ")
		r.write(")")
	case Not:
		r.write("(NOT ")
		r.expr(n.Operand)
		r.write(")")
	case IsNull:
		r.write("(")
		r.expr(n.Operand)
		r.write(" IS NULL)")
	case Row:
		r.write("(")
		r.list(n, ", ")
		r.write(")")
	case In:
		r.write("(")
		r.expr(n.Left)
		r.write(" IN (")
		if n.Query != nil {
			r.query(n.Query, " ")
		} else {
			r.list(n.List, ", ")
		}
		r.write("))")
	default:
		panic(fmt.Sprintf("querysql: unknown SQL node %T", e))
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
