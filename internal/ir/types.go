package ir

import (
	"fmt"
	"math"
)

// CurrentRevision marks a binding that follows the live state of an object.
const CurrentRevision int64 = math.MaxInt64

// BranchID identifies a branch of the store. Trunk is always branch 1.
type BranchID int64

// TrunkBranch is the branch that exists before any fork.
const TrunkBranch BranchID = 1

// Branch describes an independently evolving line of revisions.
type Branch struct {
	ID           BranchID `json:"id"`
	Base         BranchID `json:"base"`          // 0 for trunk
	BaseRevision int64    `json:"base_revision"` // revision of Base the branch was forked from
	Created      int64    `json:"created"`       // commit that created the branch
}

// ObjectBranchID identifies an object irrespective of revision.
type ObjectBranchID struct {
	Branch BranchID `json:"branch"`
	Type   string   `json:"type"`
	ID     string   `json:"id"`
}

// IsZero reports whether the identifier is unset.
func (o ObjectBranchID) IsZero() bool {
	return o.ID == ""
}

// At binds the object to a revision.
func (o ObjectBranchID) At(rev int64) ObjectKey {
	return ObjectKey{Branch: o.Branch, Type: o.Type, ID: o.ID, Revision: rev}
}

// Compare orders identifiers by branch, type, then id.
func (o ObjectBranchID) Compare(other ObjectBranchID) int {
	switch {
	case o.Branch < other.Branch:
		return -1
	case o.Branch > other.Branch:
		return 1
	}
	if c := compareStrings(o.Type, other.Type); c != 0 {
		return c
	}
	return compareStrings(o.ID, other.ID)
}

func (o ObjectBranchID) String() string {
	return fmt.Sprintf("%s:%s@%d", o.Type, o.ID, o.Branch)
}

// ObjectKey is an object bound to the revision it is viewed at.
// Revision is CurrentRevision for live bindings.
type ObjectKey struct {
	Branch   BranchID `json:"branch"`
	Type     string   `json:"type"`
	ID       string   `json:"id"`
	Revision int64    `json:"revision"`
}

// ObjectBranchID drops the revision binding.
func (k ObjectKey) ObjectBranchID() ObjectBranchID {
	return ObjectBranchID{Branch: k.Branch, Type: k.Type, ID: k.ID}
}

// SameObject reports whether both keys denote the same object. The bound
// revision is ignored.
func (k ObjectKey) SameObject(other ObjectKey) bool {
	return k.ObjectBranchID() == other.ObjectBranchID()
}

// Resolve returns the revision the key reads state at when viewed from
// contextRev: a current binding follows the context.
func (k ObjectKey) Resolve(contextRev int64) int64 {
	if k.Revision == CurrentRevision {
		return contextRev
	}
	return k.Revision
}

func (k ObjectKey) String() string {
	if k.Revision == CurrentRevision {
		return k.ObjectBranchID().String()
	}
	return fmt.Sprintf("%s#%d", k.ObjectBranchID(), k.Revision)
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
