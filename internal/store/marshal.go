package store

import (
	"fmt"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/schema"
)

// encodeAttribute returns the column values storing v in attribute a, in
// a.Columns() order. References default to the writing branch; historic
// references to a live binding are frozen at rev, the committing revision.
func encodeAttribute(a *schema.Attribute, v ir.Value, branch ir.BranchID, rev int64) ([]any, error) {
	cols := make([]any, len(a.Columns()))
	if ir.IsNull(v) {
		return cols, nil
	}

	if !a.IsReference() {
		if v.Kind() != a.Kind.ValueKind() {
			return nil, fmt.Errorf("attribute %s holds %s values, got %s", a, a.Kind, v.Kind())
		}
		dv, err := ir.DriverValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a, err)
		}
		cols[0] = dv
		return cols, nil
	}

	item, ok := v.(ir.Item)
	if !ok {
		return nil, fmt.Errorf("reference %s requires an item, got %s", a, v.Kind())
	}
	target, ok := a.Owner.System().Type(item.Type)
	if !ok || !target.Concrete() {
		return nil, fmt.Errorf("reference %s: %q is not a concrete type", a, item.Type)
	}
	if !target.IsSubtypeOf(a.Target) {
		return nil, fmt.Errorf("reference %s: %s is not a %s", a, item.Type, a.Target.Name)
	}

	targetBranch := item.Branch
	if targetBranch == 0 {
		targetBranch = branch
	}
	if !a.BranchGlobal && targetBranch != branch {
		return nil, fmt.Errorf("reference %s is not branch global, cannot target branch %d", a, targetBranch)
	}
	targetRev := item.Revision
	if targetRev == 0 {
		targetRev = ir.CurrentRevision
	}
	if a.History == schema.HistoryHistoric && targetRev == ir.CurrentRevision {
		targetRev = rev
	}

	cols[0] = item.ID
	cols[1] = item.Type
	i := 2
	if a.BranchGlobal {
		cols[i] = int64(targetBranch)
		i++
	}
	if a.HasRevisionColumn() {
		cols[i] = targetRev
	}
	return cols, nil
}

// decodeAttribute rebuilds the value of attribute a from its columns, as
// returned by encodeAttribute. References without a branch column target
// the branch of the row.
func decodeAttribute(a *schema.Attribute, cols []any, branch ir.BranchID) (ir.Value, error) {
	if !a.IsReference() {
		v, err := ir.FromColumn(a.Kind.ValueKind(), cols[0])
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a, err)
		}
		return v, nil
	}

	if cols[0] == nil {
		return ir.Null{}, nil
	}
	id, err := ir.FromColumn(ir.KindString, cols[0])
	if err != nil {
		return nil, fmt.Errorf("reference %s id: %w", a, err)
	}
	typ, err := ir.FromColumn(ir.KindString, cols[1])
	if err != nil {
		return nil, fmt.Errorf("reference %s type: %w", a, err)
	}
	key := ir.ObjectKey{Branch: branch, Type: string(typ.(ir.String)), ID: string(id.(ir.String)), Revision: ir.CurrentRevision}

	i := 2
	if a.BranchGlobal {
		b, ok := cols[i].(int64)
		if !ok {
			return nil, fmt.Errorf("reference %s branch column holds %T", a, cols[i])
		}
		key.Branch = ir.BranchID(b)
		i++
	}
	if a.HasRevisionColumn() {
		r, ok := cols[i].(int64)
		if !ok {
			return nil, fmt.Errorf("reference %s revision column holds %T", a, cols[i])
		}
		key.Revision = r
	}
	return ir.Item(key), nil
}

// flexKind is the KB_FLEX.KIND of a dynamic attribute value.
func flexKind(v ir.Value) (string, error) {
	switch v.Kind() {
	case ir.KindString, ir.KindInt, ir.KindBool:
		return v.Kind().String(), nil
	default:
		return "", fmt.Errorf("flex attributes hold strings, ints or bools, got %s", v.Kind())
	}
}

// parseFlexKind maps KB_FLEX.KIND back to a value kind.
func parseFlexKind(s string) (ir.Kind, error) {
	switch s {
	case "string":
		return ir.KindString, nil
	case "int":
		return ir.KindInt, nil
	case "bool":
		return ir.KindBool, nil
	default:
		return 0, fmt.Errorf("unknown flex kind %q", s)
	}
}
