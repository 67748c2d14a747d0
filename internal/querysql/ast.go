package querysql

// Expr is a node of the generic SQL AST.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	sqlExpr() // Marker method - seals interface to this package
}

// Column is a column of a table instance.
type Column struct {
	Table string // alias
	Name  string
}

// Value is a constant. It is bound as a parameter, never interpolated;
// a nil Value renders as NULL.
type Value struct {
	V any
}

// Lit is literal SQL text for structural constants such as 0, 1 and
// NULL.
type Lit string

// Param is a value supplied at execution time.
type Param struct {
	Slot Slot
}

// Func calls a SQL function.
type Func struct {
	Name string
	Args []Expr
}

// When is one arm of a Case.
type When struct {
	Cond   Expr
	Result Expr
}

// Case is a searched CASE expression. A nil Else is NULL.
type Case struct {
	Whens []When
	Else  Expr
}

// Binary applies a comparison operator: =, IS, <, <=, >, >=.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// And holds when every operand holds. No operands render as 1.
type And []Expr

// Or holds when any operand holds. No operands render as 0.
type Or []Expr

// Not negates its operand.
type Not struct {
	Operand Expr
}

// IsNull tests for NULL.
type IsNull struct {
	Operand Expr
}

// Row is a row value, (a, b, c).
type Row []Expr

// In tests membership of Left in the rows of a subquery, or in List when
// Query is nil.
type In struct {
	Left  Expr
	Query *Query
	List  []Expr
}

func (Column) sqlExpr() {}
func (Value) sqlExpr()  {}
func (Lit) sqlExpr()    {}
func (Param) sqlExpr()  {}
func (Func) sqlExpr()   {}
func (Case) sqlExpr()   {}
func (Binary) sqlExpr() {}
func (And) sqlExpr()    {}
func (Or) sqlExpr()     {}
func (Not) sqlExpr()    {}
func (IsNull) sqlExpr() {}
func (Row) sqlExpr()    {}
func (In) sqlExpr()     {}

// Output is a result column.
type Output struct {
	Expr  Expr
	Alias string // empty inside subqueries
}

// Table is a table instance in a FROM clause.
type Table struct {
	Name  string
	Alias string
}

// Join is a LEFT JOIN of a table instance.
type Join struct {
	Table Table
	On    Expr
}

// Select is one SELECT statement. From tables are cross joined, Joins are
// left outer joins evaluated after them.
type Select struct {
	Distinct bool
	Columns  []Output
	From     []Table
	Joins    []Join
	Where    And
}

// OrderTerm sorts by a result column.
type OrderTerm struct {
	Alias      string
	Descending bool
}

// Query is the UNION of its selects, optionally ordered and limited.
type Query struct {
	Selects []*Select
	OrderBy []OrderTerm
	Limit   Expr
	Offset  Expr
}
