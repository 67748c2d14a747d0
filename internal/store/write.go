package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/schema"
)

// Tx collects changes to one branch and applies them as a single commit.
// Changes are checked against the type system when they are added; the
// state of the store is only consulted at Commit.
//
// A Tx is not safe for concurrent use.
type Tx struct {
	s      *Store
	branch ir.BranchID
	ops    []op
	done   bool
}

type opKind int

const (
	opCreate opKind = iota
	opSet
	opSetFlex
	opDelete
)

type op struct {
	kind   opKind
	obj    ir.ObjectBranchID
	typ    *schema.Type
	attr   *schema.Attribute
	name   string // flex attribute
	values map[string]ir.Value
	value  ir.Value
}

// Begin starts a transaction on branch.
func (s *Store) Begin(branch ir.BranchID) *Tx {
	return &Tx{s: s, branch: branch}
}

// Branch returns the branch the transaction writes to.
func (tx *Tx) Branch() ir.BranchID { return tx.branch }

// Create adds an object of the concrete type typeName with a generated
// identifier. Attributes missing from values are NULL.
func (tx *Tx) Create(typeName string, values map[string]ir.Value) (ir.ObjectBranchID, error) {
	return tx.CreateWithID(typeName, tx.s.ids.NewID(typeName), values)
}

// CreateWithID is Create with a caller chosen identifier. Creating an
// object that was deleted earlier starts a new life of the same object.
func (tx *Tx) CreateWithID(typeName, id string, values map[string]ir.Value) (ir.ObjectBranchID, error) {
	t, err := tx.concreteType(typeName)
	if err != nil {
		return ir.ObjectBranchID{}, err
	}
	if id == "" {
		return ir.ObjectBranchID{}, errors.New("create: empty identifier")
	}
	for name, v := range values {
		a, ok := t.Attribute(name)
		if !ok {
			return ir.ObjectBranchID{}, fmt.Errorf("create %s: unknown attribute %q", typeName, name)
		}
		if _, err := encodeAttribute(a, v, tx.branch, 1); err != nil {
			return ir.ObjectBranchID{}, fmt.Errorf("create %s: %w", typeName, err)
		}
	}
	obj := ir.ObjectBranchID{Branch: tx.branch, Type: typeName, ID: id}
	tx.ops = append(tx.ops, op{kind: opCreate, obj: obj, typ: t, values: values})
	return obj, nil
}

// Set changes one attribute of an existing object.
func (tx *Tx) Set(obj ir.ObjectBranchID, name string, v ir.Value) error {
	t, err := tx.objectType(obj)
	if err != nil {
		return err
	}
	a, ok := t.Attribute(name)
	if !ok {
		return fmt.Errorf("set %s: unknown attribute %q", obj, name)
	}
	if _, err := encodeAttribute(a, v, tx.branch, 1); err != nil {
		return fmt.Errorf("set %s: %w", obj, err)
	}
	tx.ops = append(tx.ops, op{kind: opSet, obj: obj, typ: t, attr: a, value: v})
	return nil
}

// SetFlex sets a dynamic attribute. Setting NULL clears it.
func (tx *Tx) SetFlex(obj ir.ObjectBranchID, name string, v ir.Value) error {
	t, err := tx.objectType(obj)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("set flex %s: empty attribute name", obj)
	}
	if !ir.IsNull(v) {
		if _, err := flexKind(v); err != nil {
			return fmt.Errorf("set flex %s.%s: %w", obj, name, err)
		}
	}
	tx.ops = append(tx.ops, op{kind: opSetFlex, obj: obj, typ: t, name: name, value: v})
	return nil
}

// Delete ends the life of an object and of its dynamic attributes.
func (tx *Tx) Delete(obj ir.ObjectBranchID) error {
	t, err := tx.objectType(obj)
	if err != nil {
		return err
	}
	tx.ops = append(tx.ops, op{kind: opDelete, obj: obj, typ: t})
	return nil
}

func (tx *Tx) concreteType(name string) (*schema.Type, error) {
	t, ok := tx.s.ts.Type(name)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	if !t.Concrete() {
		return nil, fmt.Errorf("type %s has no storage", name)
	}
	return t, nil
}

func (tx *Tx) objectType(obj ir.ObjectBranchID) (*schema.Type, error) {
	if obj.Branch != tx.branch {
		return nil, fmt.Errorf("object %s is not on branch %d", obj, tx.branch)
	}
	return tx.concreteType(obj.Type)
}

// Commit applies the changes as a new revision and returns it. Applying
// fails as a whole: on error nothing is written. Every Tx commits at most
// once.
func (tx *Tx) Commit(ctx context.Context) (int64, error) {
	if tx.done {
		return 0, errors.New("commit: transaction already committed")
	}

	s := tx.s
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("commit: begin: %w", err)
	}
	defer sqlTx.Rollback()

	rev, err := nextRevision(ctx, sqlTx)
	if err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, "INSERT INTO KB_REVISION (REV, BRANCH) VALUES (?, ?)", rev, int64(tx.branch)); err != nil {
		return 0, fmt.Errorf("commit: record revision %d on branch %d: %w", rev, tx.branch, err)
	}

	w := &writer{tx: sqlTx, rev: rev, branch: tx.branch}
	for i, o := range tx.ops {
		if err := w.apply(ctx, o); err != nil {
			return 0, fmt.Errorf("commit: change %d: %w", i+1, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	tx.done = true

	s.logger.Info("committed revision", "revision", rev, "branch", tx.branch, "changes", len(tx.ops))
	return rev, nil
}

func nextRevision(ctx context.Context, tx *sql.Tx) (int64, error) {
	var head int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(REV), 0) FROM KB_REVISION").Scan(&head); err != nil {
		return 0, fmt.Errorf("read head revision: %w", err)
	}
	return head + 1, nil
}

// writer applies changes inside one SQL transaction at revision rev.
type writer struct {
	tx     *sql.Tx
	rev    int64
	branch ir.BranchID
}

// row is the live version of an object: every column of its table.
type row struct {
	revMin    int64
	revCreate int64
	cols      map[string]any
}

func (w *writer) apply(ctx context.Context, o op) error {
	switch o.kind {
	case opCreate:
		return w.create(ctx, o)
	case opSet:
		return w.set(ctx, o)
	case opSetFlex:
		return w.setFlex(ctx, o)
	case opDelete:
		return w.delete(ctx, o)
	default:
		return fmt.Errorf("unknown change kind %d", o.kind)
	}
}

func (w *writer) create(ctx context.Context, o op) error {
	if _, alive, err := w.liveRow(ctx, o.typ, o.obj.ID); err != nil {
		return err
	} else if alive {
		return fmt.Errorf("create %s: object already exists", o.obj)
	}

	r := row{revMin: w.rev, revCreate: w.rev, cols: make(map[string]any)}
	names := make([]string, 0, len(o.values))
	for name := range o.values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		a, _ := o.typ.Attribute(name)
		if err := w.encodeInto(r.cols, a, o.values[name]); err != nil {
			return fmt.Errorf("create %s: %w", o.obj, err)
		}
	}
	return w.insert(ctx, o.typ, o.obj.ID, r)
}

func (w *writer) set(ctx context.Context, o op) error {
	r, alive, err := w.liveRow(ctx, o.typ, o.obj.ID)
	if err != nil {
		return err
	}
	if !alive {
		return fmt.Errorf("set %s: object does not exist", o.obj)
	}
	if err := w.encodeInto(r.cols, o.attr, o.value); err != nil {
		return fmt.Errorf("set %s: %w", o.obj, err)
	}
	if r.revMin == w.rev {
		return w.update(ctx, o.typ, o.obj.ID, r)
	}
	if err := w.close(ctx, o.typ, o.obj.ID); err != nil {
		return err
	}
	r.revMin = w.rev
	return w.insert(ctx, o.typ, o.obj.ID, r)
}

func (w *writer) delete(ctx context.Context, o op) error {
	r, alive, err := w.liveRow(ctx, o.typ, o.obj.ID)
	if err != nil {
		return err
	}
	if !alive {
		return fmt.Errorf("delete %s: object does not exist", o.obj)
	}
	if r.revMin == w.rev {
		if _, err := w.tx.ExecContext(ctx, fmt.Sprintf(
			"DELETE FROM %s WHERE BRANCH = ? AND IDENTIFIER = ? AND REV_MIN = ?", quoteIdent(o.typ.Name)),
			int64(w.branch), o.obj.ID, w.rev); err != nil {
			return fmt.Errorf("delete %s: %w", o.obj, err)
		}
	} else if err := w.close(ctx, o.typ, o.obj.ID); err != nil {
		return err
	}
	return w.closeFlex(ctx, o.obj, "")
}

func (w *writer) setFlex(ctx context.Context, o op) error {
	if _, alive, err := w.liveRow(ctx, o.typ, o.obj.ID); err != nil {
		return err
	} else if !alive {
		return fmt.Errorf("set flex %s: object does not exist", o.obj)
	}
	if err := w.closeFlex(ctx, o.obj, o.name); err != nil {
		return err
	}
	if ir.IsNull(o.value) {
		return nil
	}
	kind, err := flexKind(o.value)
	if err != nil {
		return err
	}
	val, err := ir.DriverValue(o.value)
	if err != nil {
		return err
	}
	_, err = w.tx.ExecContext(ctx, `
		INSERT INTO KB_FLEX (BRANCH, TYPE, IDENTIFIER, ATTR, KIND, REV_MIN, REV_MAX, VAL)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, int64(w.branch), o.obj.Type, o.obj.ID, o.name, kind, w.rev, ir.CurrentRevision, val)
	if err != nil {
		return fmt.Errorf("set flex %s.%s: %w", o.obj, o.name, err)
	}
	return nil
}

// closeFlex ends the live flex rows of obj: the one named name, or all of
// them when name is empty. Rows written by this commit are removed.
func (w *writer) closeFlex(ctx context.Context, obj ir.ObjectBranchID, name string) error {
	where := "BRANCH = ? AND TYPE = ? AND IDENTIFIER = ? AND REV_MAX = ?"
	args := []any{int64(w.branch), obj.Type, obj.ID, ir.CurrentRevision}
	if name != "" {
		where += " AND ATTR = ?"
		args = append(args, name)
	}
	if _, err := w.tx.ExecContext(ctx, "DELETE FROM KB_FLEX WHERE "+where+" AND REV_MIN = ?", append(args, w.rev)...); err != nil {
		return fmt.Errorf("clear flex %s: %w", obj, err)
	}
	if _, err := w.tx.ExecContext(ctx, "UPDATE KB_FLEX SET REV_MAX = ? WHERE "+where, append([]any{w.rev - 1}, args...)...); err != nil {
		return fmt.Errorf("close flex %s: %w", obj, err)
	}
	return nil
}

func (w *writer) encodeInto(cols map[string]any, a *schema.Attribute, v ir.Value) error {
	enc, err := encodeAttribute(a, v, w.branch, w.rev)
	if err != nil {
		return err
	}
	for i, col := range a.Columns() {
		cols[col] = enc[i]
	}
	return nil
}

func (w *writer) liveRow(ctx context.Context, t *schema.Type, id string) (row, bool, error) {
	cols := attributeColumns(t)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	query := fmt.Sprintf("SELECT REV_MIN, REV_CREATE%s FROM %s WHERE BRANCH = ? AND IDENTIFIER = ? AND REV_MAX = ?",
		prefixed(quoted), quoteIdent(t.Name))

	values := make([]any, len(cols))
	dest := []any{new(int64), new(int64)}
	for i := range values {
		dest = append(dest, &values[i])
	}
	err := w.tx.QueryRowContext(ctx, query, int64(w.branch), id, ir.CurrentRevision).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return row{}, false, nil
	}
	if err != nil {
		return row{}, false, fmt.Errorf("read %s %q: %w", t.Name, id, err)
	}

	r := row{
		revMin:    *dest[0].(*int64),
		revCreate: *dest[1].(*int64),
		cols:      make(map[string]any, len(cols)),
	}
	for i, c := range cols {
		r.cols[c] = values[i]
	}
	return r, true, nil
}

func (w *writer) insert(ctx context.Context, t *schema.Type, id string, r row) error {
	cols := attributeColumns(t)
	quoted := make([]string, len(cols))
	args := []any{int64(w.branch), id, r.revMin, ir.CurrentRevision, r.revCreate}
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		args = append(args, r.cols[c])
	}
	query := fmt.Sprintf("INSERT INTO %s (BRANCH, IDENTIFIER, REV_MIN, REV_MAX, REV_CREATE%s) VALUES (?, ?, ?, ?, ?%s)",
		quoteIdent(t.Name), prefixed(quoted), strings.Repeat(", ?", len(cols)))
	if _, err := w.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s %q: %w", t.Name, id, err)
	}
	return nil
}

func (w *writer) update(ctx context.Context, t *schema.Type, id string, r row) error {
	cols := attributeColumns(t)
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+3)
	for i, c := range cols {
		sets[i] = quoteIdent(c) + " = ?"
		args = append(args, r.cols[c])
	}
	args = append(args, int64(w.branch), id, w.rev)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE BRANCH = ? AND IDENTIFIER = ? AND REV_MIN = ?",
		quoteIdent(t.Name), strings.Join(sets, ", "))
	if _, err := w.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update %s %q: %w", t.Name, id, err)
	}
	return nil
}

// close ends the live row of an object at the previous revision.
func (w *writer) close(ctx context.Context, t *schema.Type, id string) error {
	query := fmt.Sprintf("UPDATE %s SET REV_MAX = ? WHERE BRANCH = ? AND IDENTIFIER = ? AND REV_MAX = ?", quoteIdent(t.Name))
	if _, err := w.tx.ExecContext(ctx, query, w.rev-1, int64(w.branch), id, ir.CurrentRevision); err != nil {
		return fmt.Errorf("close %s %q: %w", t.Name, id, err)
	}
	return nil
}

// prefixed joins columns, each preceded by a comma.
func prefixed(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	return ", " + strings.Join(cols, ", ")
}

// CreateBranch forks a new branch from base as it was at baseRev. The fork
// is a commit on the new branch copying every object and dynamic attribute
// alive at baseRev; ir.CurrentRevision forks the latest state.
func (s *Store) CreateBranch(ctx context.Context, base ir.BranchID, baseRev int64) (ir.Branch, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Branch{}, fmt.Errorf("create branch: begin: %w", err)
	}
	defer sqlTx.Rollback()

	var exists int
	if err := sqlTx.QueryRowContext(ctx, "SELECT COUNT(*) FROM KB_BRANCH WHERE BRANCH = ?", int64(base)).Scan(&exists); err != nil {
		return ir.Branch{}, fmt.Errorf("create branch: %w", err)
	}
	if exists == 0 {
		return ir.Branch{}, fmt.Errorf("create branch: unknown base branch %d", base)
	}

	rev, err := nextRevision(ctx, sqlTx)
	if err != nil {
		return ir.Branch{}, fmt.Errorf("create branch: %w", err)
	}
	if baseRev == ir.CurrentRevision || baseRev >= rev {
		baseRev = rev - 1
	}

	var id int64
	if err := sqlTx.QueryRowContext(ctx, "SELECT MAX(BRANCH) + 1 FROM KB_BRANCH").Scan(&id); err != nil {
		return ir.Branch{}, fmt.Errorf("create branch: %w", err)
	}
	b := ir.Branch{ID: ir.BranchID(id), Base: base, BaseRevision: baseRev, Created: rev}

	if _, err := sqlTx.ExecContext(ctx, "INSERT INTO KB_BRANCH (BRANCH, BASE, BASE_REV, CREATED) VALUES (?, ?, ?, ?)",
		id, int64(base), baseRev, rev); err != nil {
		return ir.Branch{}, fmt.Errorf("create branch: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, "INSERT INTO KB_REVISION (REV, BRANCH) VALUES (?, ?)", rev, id); err != nil {
		return ir.Branch{}, fmt.Errorf("create branch: %w", err)
	}

	for _, t := range s.ts.ConcreteTypes() {
		cols := attributeColumns(t)
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = quoteIdent(c)
		}
		query := fmt.Sprintf(`INSERT INTO %[1]s (BRANCH, IDENTIFIER, REV_MIN, REV_MAX, REV_CREATE%[2]s)
			SELECT ?, IDENTIFIER, ?, ?, REV_CREATE%[2]s FROM %[1]s
			WHERE BRANCH = ? AND REV_MIN <= ? AND REV_MAX >= ?`, quoteIdent(t.Name), prefixed(quoted))
		if _, err := sqlTx.ExecContext(ctx, query, id, rev, ir.CurrentRevision, int64(base), baseRev, baseRev); err != nil {
			return ir.Branch{}, fmt.Errorf("create branch: copy %s: %w", t.Name, err)
		}
	}
	if _, err := sqlTx.ExecContext(ctx, `
		INSERT INTO KB_FLEX (BRANCH, TYPE, IDENTIFIER, ATTR, KIND, REV_MIN, REV_MAX, VAL)
		SELECT ?, TYPE, IDENTIFIER, ATTR, KIND, ?, ?, VAL FROM KB_FLEX
		WHERE BRANCH = ? AND REV_MIN <= ? AND REV_MAX >= ?
	`, id, rev, ir.CurrentRevision, int64(base), baseRev, baseRev); err != nil {
		return ir.Branch{}, fmt.Errorf("create branch: copy flex: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return ir.Branch{}, fmt.Errorf("create branch: %w", err)
	}

	s.logger.Info("created branch", "branch", b.ID, "base", base, "base_revision", baseRev, "revision", rev)
	return b, nil
}
