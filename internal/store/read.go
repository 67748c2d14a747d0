package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/schema"
)

// Version is one stored row of an object: its attribute values while the
// object was unchanged, from RevMin through RevMax inclusive.
type Version struct {
	Object  ir.ObjectBranchID
	RevMin  int64
	RevMax  int64
	Created int64
	Values  map[string]ir.Value
}

// FlexVersion is one stored value of a dynamic attribute.
type FlexVersion struct {
	Object ir.ObjectBranchID
	Attr   string
	RevMin int64
	RevMax int64
	Value  ir.Value
}

// Head returns the latest committed revision, 0 before the first commit.
func (s *Store) Head(ctx context.Context) (int64, error) {
	var head int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(REV), 0) FROM KB_REVISION").Scan(&head); err != nil {
		return 0, fmt.Errorf("read head revision: %w", err)
	}
	return head, nil
}

// Branches returns every branch ordered by id.
func (s *Store) Branches(ctx context.Context) ([]ir.Branch, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT BRANCH, BASE, BASE_REV, CREATED FROM KB_BRANCH ORDER BY BRANCH ASC")
	if err != nil {
		return nil, fmt.Errorf("query branches: %w", err)
	}
	defer rows.Close()

	branches := []ir.Branch{}
	for rows.Next() {
		var b ir.Branch
		if err := rows.Scan(&b.ID, &b.Base, &b.BaseRevision, &b.Created); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	return branches, nil
}

// Object returns the attribute values of obj at revision rev, and false if
// the object did not exist then.
func (s *Store) Object(ctx context.Context, obj ir.ObjectBranchID, rev int64) (map[string]ir.Value, bool, error) {
	t, ok := s.ts.Type(obj.Type)
	if !ok || !t.Concrete() {
		return nil, false, fmt.Errorf("read %s: unknown concrete type", obj)
	}

	query := fmt.Sprintf("%s WHERE BRANCH = ? AND IDENTIFIER = ? AND REV_MIN <= ? AND REV_MAX >= ?", selectVersions(t))
	rows, err := s.db.QueryContext(ctx, query, int64(obj.Branch), obj.ID, rev, rev)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", obj, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("read %s: %w", obj, err)
		}
		return nil, false, nil
	}
	v, err := scanVersion(rows, t)
	if err != nil {
		return nil, false, err
	}
	return v.Values, true, nil
}

// Versions returns every stored row of concrete type t on every branch,
// ordered by branch, identifier and REV_MIN.
//
// Returns an empty slice (not nil) if the type has no rows.
func (s *Store) Versions(ctx context.Context, t *schema.Type) ([]Version, error) {
	if !t.Concrete() {
		return nil, fmt.Errorf("versions: type %s has no storage", t.Name)
	}
	rows, err := s.db.QueryContext(ctx, selectVersions(t)+" ORDER BY BRANCH ASC, IDENTIFIER COLLATE BINARY ASC, REV_MIN ASC")
	if err != nil {
		return nil, fmt.Errorf("query versions of %s: %w", t.Name, err)
	}
	defer rows.Close()

	versions := []Version{}
	for rows.Next() {
		v, err := scanVersion(rows, t)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions of %s: %w", t.Name, err)
	}
	return versions, nil
}

// FlexVersions returns every stored dynamic attribute value, ordered by
// object, attribute and REV_MIN.
//
// Returns an empty slice (not nil) if no dynamic attribute was ever set.
func (s *Store) FlexVersions(ctx context.Context) ([]FlexVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT BRANCH, TYPE, IDENTIFIER, ATTR, KIND, REV_MIN, REV_MAX, VAL
		FROM KB_FLEX
		ORDER BY BRANCH ASC, TYPE COLLATE BINARY ASC, IDENTIFIER COLLATE BINARY ASC, ATTR COLLATE BINARY ASC, REV_MIN ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flex versions: %w", err)
	}
	defer rows.Close()

	versions := []FlexVersion{}
	for rows.Next() {
		var (
			fv     FlexVersion
			branch int64
			kind   string
			raw    any
		)
		if err := rows.Scan(&branch, &fv.Object.Type, &fv.Object.ID, &fv.Attr, &kind, &fv.RevMin, &fv.RevMax, &raw); err != nil {
			return nil, fmt.Errorf("scan flex version: %w", err)
		}
		fv.Object.Branch = ir.BranchID(branch)
		k, err := parseFlexKind(kind)
		if err != nil {
			return nil, fmt.Errorf("flex %s.%s: %w", fv.Object, fv.Attr, err)
		}
		if fv.Value, err = ir.FromColumn(k, raw); err != nil {
			return nil, fmt.Errorf("flex %s.%s: %w", fv.Object, fv.Attr, err)
		}
		versions = append(versions, fv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flex versions: %w", err)
	}
	return versions, nil
}

// Flex returns the value of a dynamic attribute at revision rev, NULL when
// it was not set.
func (s *Store) Flex(ctx context.Context, obj ir.ObjectBranchID, name string, rev int64) (ir.Value, error) {
	var (
		kind string
		raw  any
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT KIND, VAL FROM KB_FLEX
		WHERE BRANCH = ? AND TYPE = ? AND IDENTIFIER = ? AND ATTR = ? AND REV_MIN <= ? AND REV_MAX >= ?
	`, int64(obj.Branch), obj.Type, obj.ID, name, rev, rev).Scan(&kind, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Null{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read flex %s.%s: %w", obj, name, err)
	}
	k, err := parseFlexKind(kind)
	if err != nil {
		return nil, fmt.Errorf("flex %s.%s: %w", obj, name, err)
	}
	return ir.FromColumn(k, raw)
}

func selectVersions(t *schema.Type) string {
	cols := attributeColumns(t)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf("SELECT BRANCH, IDENTIFIER, REV_MIN, REV_MAX, REV_CREATE%s FROM %s", prefixed(quoted), quoteIdent(t.Name))
}

func scanVersion(rows *sql.Rows, t *schema.Type) (Version, error) {
	cols := attributeColumns(t)
	raw := make([]any, len(cols))
	var branch int64
	v := Version{Object: ir.ObjectBranchID{Type: t.Name}}
	dest := []any{&branch, &v.Object.ID, &v.RevMin, &v.RevMax, &v.Created}
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return Version{}, fmt.Errorf("scan %s row: %w", t.Name, err)
	}
	v.Object.Branch = ir.BranchID(branch)

	v.Values = make(map[string]ir.Value)
	i := 0
	for _, a := range t.Attributes() {
		n := len(a.Columns())
		val, err := decodeAttribute(a, raw[i:i+n], v.Object.Branch)
		if err != nil {
			return Version{}, fmt.Errorf("decode %s: %w", v.Object, err)
		}
		v.Values[a.Name] = val
		i += n
	}
	return v, nil
}
