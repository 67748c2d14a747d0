package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kbquery/internal/ir"
)

// ValidationErrors is returned by New when definitions do not validate.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no validation errors"
	case 1:
		return errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  %s", len(errs), strings.Join(msgs, "\n  "))
}

// New validates the definitions and builds the type system.
func New(defs []TypeDef) (*TypeSystem, error) {
	if errs := Validate(defs); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	sorted := slices.Clone(defs)
	slices.SortFunc(sorted, func(a, b TypeDef) int { return compareNames(a.Name, b.Name) })

	id, err := ir.SchemaID(describe(sorted))
	if err != nil {
		return nil, fmt.Errorf("fingerprint type system: %w", err)
	}

	ts := &TypeSystem{id: id, types: make(map[string]*Type, len(defs)+1)}
	ts.root = &Type{Name: RootTypeName, Kind: ClassType, Abstract: true, system: ts}
	ts.types[RootTypeName] = ts.root

	for _, d := range sorted {
		t := &Type{Name: d.Name, Abstract: d.Abstract, system: ts}
		switch {
		case d.IsUnion():
			t.Kind = UnionType
		case d.Association:
			t.Kind = AssociationType
		default:
			t.Kind = ClassType
		}
		ts.types[d.Name] = t
	}

	for _, d := range sorted {
		t := ts.types[d.Name]
		for _, m := range d.Union {
			t.Members = append(t.Members, ts.types[m])
		}
		if t.Kind == UnionType {
			continue
		}
		for _, p := range d.Extends {
			t.Parents = append(t.Parents, ts.types[p])
		}
		if len(t.Parents) == 0 {
			t.Parents = []*Type{ts.root}
		}
		for _, ad := range d.Attributes {
			kind, _ := ParseKind(ad.Kind)
			history, _ := ParseHistoryType(ad.History)
			a := &Attribute{
				Name:         ad.Name,
				Kind:         kind,
				History:      history,
				BranchGlobal: ad.BranchGlobal,
				Owner:        t,
			}
			if kind == KindReference {
				a.Target = ts.types[ad.Target]
			}
			t.own = append(t.own, a)
		}
	}

	ts.order = make([]*Type, 0, len(ts.types))
	for _, t := range ts.types {
		ts.order = append(ts.order, t)
	}
	slices.SortFunc(ts.order, func(a, b *Type) int { return compareNames(a.Name, b.Name) })
	return ts, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when the definitions are known to be valid.
func MustNew(defs []TypeDef) *TypeSystem {
	ts, err := New(defs)
	if err != nil {
		panic(err)
	}
	return ts
}
