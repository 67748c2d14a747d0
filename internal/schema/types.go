package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kbquery/internal/ir"
)

// RootTypeName is the implicit abstract supertype of every class.
const RootTypeName = "Item"

// Storage columns present on every concrete type table.
const (
	ColBranch     = "BRANCH"
	ColIdentifier = "IDENTIFIER"
	ColRevMin     = "REV_MIN"
	ColRevMax     = "REV_MAX"
	ColRevCreate  = "REV_CREATE"
)

// Kind classifies an attribute.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindBool
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindReference:
		return "reference"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps the textual kind of an attribute definition.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "string":
		return KindString, true
	case "int":
		return KindInt, true
	case "bool":
		return KindBool, true
	case "reference":
		return KindReference, true
	}
	return 0, false
}

// ValueKind returns the value kind attribute values of kind k have.
func (k Kind) ValueKind() ir.Kind {
	switch k {
	case KindString:
		return ir.KindString
	case KindInt:
		return ir.KindInt
	case KindBool:
		return ir.KindBool
	case KindReference:
		return ir.KindItem
	default:
		return ir.KindNull
	}
}

// HistoryType decides which revision of its target a reference designates.
type HistoryType int

const (
	// HistoryCurrent references follow the target at the revision the
	// referencing object is viewed at.
	HistoryCurrent HistoryType = iota
	// HistoryHistoric references are frozen to the target revision that
	// was current when the reference was set.
	HistoryHistoric
	// HistoryMixed references store either a fixed revision or the
	// current marker, and behave accordingly.
	HistoryMixed
)

func (h HistoryType) String() string {
	switch h {
	case HistoryCurrent:
		return "current"
	case HistoryHistoric:
		return "historic"
	case HistoryMixed:
		return "mixed"
	default:
		return fmt.Sprintf("HistoryType(%d)", int(h))
	}
}

// ParseHistoryType maps the textual history type. The empty string means
// current.
func ParseHistoryType(s string) (HistoryType, bool) {
	switch s {
	case "", "current":
		return HistoryCurrent, true
	case "historic":
		return HistoryHistoric, true
	case "mixed":
		return HistoryMixed, true
	}
	return 0, false
}

// TypeKind classifies a type.
type TypeKind int

const (
	ClassType TypeKind = iota
	AssociationType
	UnionType
)

func (k TypeKind) String() string {
	switch k {
	case ClassType:
		return "class"
	case AssociationType:
		return "association"
	case UnionType:
		return "union"
	default:
		return fmt.Sprintf("TypeKind(%d)", int(k))
	}
}

// Attribute is a declared attribute of a type.
type Attribute struct {
	Name         string
	Kind         Kind
	Target       *Type // reference target, nil for primitives
	History      HistoryType
	BranchGlobal bool
	Owner        *Type // declaring type
}

// IsReference reports whether the attribute holds references.
func (a *Attribute) IsReference() bool {
	return a.Kind == KindReference
}

// HasRevisionColumn reports whether the stored form carries a target
// revision.
func (a *Attribute) HasRevisionColumn() bool {
	return a.Kind == KindReference && a.History != HistoryCurrent
}

// Column returns the storage column of a primitive attribute, or the
// identifier column of a reference.
func (a *Attribute) Column() string {
	if a.Kind == KindReference {
		return a.Name + "__id"
	}
	return a.Name
}

// TypeColumn returns the column storing the target type of a reference.
func (a *Attribute) TypeColumn() string { return a.Name + "__type" }

// BranchColumn returns the column storing the target branch of a branch
// global reference.
func (a *Attribute) BranchColumn() string { return a.Name + "__branch" }

// RevisionColumn returns the column storing the target revision of a
// historic or mixed reference.
func (a *Attribute) RevisionColumn() string { return a.Name + "__rev" }

// Columns returns every storage column of the attribute.
func (a *Attribute) Columns() []string {
	if a.Kind != KindReference {
		return []string{a.Name}
	}
	cols := []string{a.Column(), a.TypeColumn()}
	if a.BranchGlobal {
		cols = append(cols, a.BranchColumn())
	}
	if a.HasRevisionColumn() {
		cols = append(cols, a.RevisionColumn())
	}
	return cols
}

func (a *Attribute) String() string {
	return a.Owner.Name + "." + a.Name
}

// Type is a named type of a TypeSystem.
type Type struct {
	Name     string
	Kind     TypeKind
	Abstract bool
	Parents  []*Type
	Members  []*Type // union members

	own    []*Attribute
	system *TypeSystem
}

// System returns the type system the type belongs to.
func (t *Type) System() *TypeSystem { return t.system }

// Concrete reports whether the type has storage of its own.
func (t *Type) Concrete() bool {
	return !t.Abstract && t.Kind != UnionType
}

// IsAssociation reports whether the type is a link type.
func (t *Type) IsAssociation() bool { return t.Kind == AssociationType }

// OwnAttributes returns the attributes declared by t itself.
func (t *Type) OwnAttributes() []*Attribute { return t.own }

// Attribute looks up an attribute declared by t or one of its supertypes.
// Unions declare the attributes all members have in common.
func (t *Type) Attribute(name string) (*Attribute, bool) {
	if t.Kind == UnionType {
		return t.commonAttribute(name)
	}
	for _, a := range t.own {
		if a.Name == name {
			return a, true
		}
	}
	for _, p := range t.Parents {
		if a, ok := p.Attribute(name); ok {
			return a, true
		}
	}
	return nil, false
}

func (t *Type) commonAttribute(name string) (*Attribute, bool) {
	var found *Attribute
	for _, m := range t.Members {
		a, ok := m.Attribute(name)
		if !ok {
			return nil, false
		}
		if found == nil {
			found = a
		} else if found != a {
			return nil, false
		}
	}
	return found, found != nil
}

// Attributes returns all attributes of t, inherited ones first, each once.
func (t *Type) Attributes() []*Attribute {
	if t.Kind == UnionType {
		return nil
	}
	var result []*Attribute
	seen := make(map[*Attribute]bool)
	var collect func(*Type)
	collect = func(x *Type) {
		for _, p := range x.Parents {
			collect(p)
		}
		for _, a := range x.own {
			if !seen[a] {
				seen[a] = true
				result = append(result, a)
			}
		}
	}
	collect(t)
	return result
}

// IsSubtypeOf reports whether t equals sup or transitively extends it.
// A type is a subtype of a union when it is a subtype of one of the
// members.
func (t *Type) IsSubtypeOf(sup *Type) bool {
	if t == sup {
		return true
	}
	if sup.Kind == UnionType {
		for _, m := range sup.Members {
			if t.IsSubtypeOf(m) {
				return true
			}
		}
	}
	if t.Kind == UnionType {
		for _, m := range t.Members {
			if !m.IsSubtypeOf(sup) {
				return false
			}
		}
		return len(t.Members) > 0
	}
	for _, p := range t.Parents {
		if p.IsSubtypeOf(sup) {
			return true
		}
	}
	return false
}

// ConcreteSubtypes returns every concrete type whose instances are
// instances of t, sorted by name.
func (t *Type) ConcreteSubtypes() []*Type {
	return t.system.concreteSubtypes(t)
}

func (t *Type) String() string { return t.Name }

// TypeSystem is an immutable set of types.
type TypeSystem struct {
	id    string
	types map[string]*Type
	order []*Type // sorted by name
	root  *Type
}

// ID returns the content fingerprint of the type system.
func (ts *TypeSystem) ID() string { return ts.id }

// Root returns the implicit supertype of every class.
func (ts *TypeSystem) Root() *Type { return ts.root }

// Type looks up a type by name.
func (ts *TypeSystem) Type(name string) (*Type, bool) {
	t, ok := ts.types[name]
	return t, ok
}

// MustType looks up a type and panics if it does not exist.
// Use only in tests or when the name is known to be valid.
func (ts *TypeSystem) MustType(name string) *Type {
	t, ok := ts.types[name]
	if !ok {
		panic(fmt.Sprintf("schema: unknown type %q", name))
	}
	return t
}

// Types returns all types including the root, sorted by name.
func (ts *TypeSystem) Types() []*Type {
	return slices.Clone(ts.order)
}

// ConcreteTypes returns every type with storage, sorted by name.
func (ts *TypeSystem) ConcreteTypes() []*Type {
	var result []*Type
	for _, t := range ts.order {
		if t.Concrete() {
			result = append(result, t)
		}
	}
	return result
}

func (ts *TypeSystem) concreteSubtypes(t *Type) []*Type {
	var result []*Type
	for _, c := range ts.order {
		if c.Concrete() && c.IsSubtypeOf(t) {
			result = append(result, c)
		}
	}
	return result
}

// Transfer looks up the type with the same name in ts.
func (ts *TypeSystem) Transfer(t *Type) (*Type, bool) {
	if t.system == ts {
		return t, true
	}
	return ts.Type(t.Name)
}

// IsCompatibleType reports whether a value of type actual can be used
// where expected is required: actual equals expected, is a transitive
// subtype of it, or is a member of the union expected. A type from another
// type system is compared after transferring expected by name.
func IsCompatibleType(expected, actual *Type) bool {
	if expected == nil || actual == nil {
		return false
	}
	if expected.system != actual.system {
		transferred, ok := actual.system.Transfer(expected)
		if !ok {
			return false
		}
		expected = transferred
	}
	return actual.IsSubtypeOf(expected)
}

// CommonSupertype returns the most specific type both a and b are
// subtypes of. Falls back to the root type.
func CommonSupertype(a, b *Type) *Type {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.IsSubtypeOf(b):
		return b
	case b.IsSubtypeOf(a):
		return a
	}
	var best *Type
	for _, c := range a.system.order {
		if c.Kind == UnionType || !a.IsSubtypeOf(c) || !b.IsSubtypeOf(c) {
			continue
		}
		if best == nil || c.IsSubtypeOf(best) {
			best = c
		}
	}
	if best == nil {
		return a.system.root
	}
	return best
}

// reservedColumns are compared case insensitively, SQLite identifiers are.
var reservedColumns = []string{ColBranch, ColIdentifier, ColRevMin, ColRevMax, ColRevCreate}

func isReservedColumn(name string) bool {
	for _, c := range reservedColumns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
