package harness

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/store"
)

// Apply commits every commit in order and returns the revision each one
// created.
func Apply(ctx context.Context, s *store.Store, commits []Commit) ([]int64, error) {
	revs := make([]int64, 0, len(commits))
	for i, c := range commits {
		rev, err := applyCommit(ctx, s, c)
		if err != nil {
			return nil, fmt.Errorf("commit %d: %w", i, err)
		}
		revs = append(revs, rev)

		slog.Debug("applied commit", "commit", i, "revision", rev)
	}
	return revs, nil
}

func applyCommit(ctx context.Context, s *store.Store, c Commit) (int64, error) {
	if c.Fork != nil {
		base := c.Fork.Base
		if base == 0 {
			base = ir.TrunkBranch
		}
		rev := c.Fork.Revision
		if rev == 0 {
			rev = ir.CurrentRevision
		}
		b, err := s.CreateBranch(ctx, base, rev)
		if err != nil {
			return 0, err
		}
		return b.Created, nil
	}

	branch := c.Branch
	if branch == 0 {
		branch = ir.TrunkBranch
	}
	tx := s.Begin(branch)
	object := func(o ObjectChange) ir.ObjectBranchID {
		return ir.ObjectBranchID{Branch: branch, Type: o.Type, ID: o.ID}
	}

	for _, o := range c.Create {
		values, err := convertValues(o.Values)
		if err != nil {
			return 0, fmt.Errorf("create %s: %w", o.ID, err)
		}
		if _, err := tx.CreateWithID(o.Type, o.ID, values); err != nil {
			return 0, err
		}
	}
	for _, o := range c.Update {
		values, err := convertValues(o.Values)
		if err != nil {
			return 0, fmt.Errorf("update %s: %w", o.ID, err)
		}
		for _, name := range slices.Sorted(maps.Keys(values)) {
			if err := tx.Set(object(o), name, values[name]); err != nil {
				return 0, err
			}
		}
	}
	for _, o := range c.Flex {
		values, err := convertValues(o.Values)
		if err != nil {
			return 0, fmt.Errorf("flex %s: %w", o.ID, err)
		}
		for _, name := range slices.Sorted(maps.Keys(values)) {
			if err := tx.SetFlex(object(o), name, values[name]); err != nil {
				return 0, err
			}
		}
	}
	for _, o := range c.Delete {
		if err := tx.Delete(object(o)); err != nil {
			return 0, err
		}
	}
	return tx.Commit(ctx)
}

// convertValues converts YAML decoded attribute values.
func convertValues(raw map[string]any) (map[string]ir.Value, error) {
	values := make(map[string]ir.Value, len(raw))
	for name, v := range raw {
		val, err := ir.FromJSON(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		values[name] = val
	}
	return values, nil
}
