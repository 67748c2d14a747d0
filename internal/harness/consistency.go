package harness

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/kbquery/internal/ir"
	"github.com/roach88/kbquery/internal/kb"
	"github.com/roach88/kbquery/internal/queryir"
)

// maxConcurrentRevisions bounds the point-in-time queries in flight.
const maxConcurrentRevisions = 4

// checkConsistency evaluates the history query q and the equivalent
// point-in-time query at every revision from 1 through head+1. An item is
// in the point-in-time result at r exactly when its history contains r.
// Returns one message per revision that disagrees.
func (h *Harness) checkConsistency(ctx context.Context, q QueryCase) ([]string, error) {
	hq, err := queryir.ParseHistory(q.Query)
	if err != nil {
		return nil, err
	}
	params, err := convertValues(q.Params)
	if err != nil {
		return nil, err
	}

	hist, err := h.kb.SearchHistory(ctx, hq, kb.Args{Branch: q.Branch, Params: params})
	if err != nil {
		return nil, err
	}
	point, err := h.kb.Compile(hq.AtRevision())
	if err != nil {
		return nil, err
	}

	last := h.head + 1
	msgs := make([]string, last)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRevisions)
	for rev := int64(1); rev <= last; rev++ {
		g.Go(func() error {
			values, err := point.Search(gctx, kb.Args{Branch: q.Branch, Revision: rev, Params: params})
			if err != nil {
				return fmt.Errorf("revision %d: %w", rev, err)
			}
			got := make([]ir.ObjectKey, len(values))
			for i, v := range values {
				item, ok := v.(ir.Item)
				if !ok {
					return fmt.Errorf("revision %d: result %s is not an item", rev, ir.Format(v))
				}
				got[i] = item.Key()
			}
			if want := hist.At(rev); !slices.Equal(want, got) {
				msgs[rev-1] = fmt.Sprintf("revision %d: history has %v, point-in-time search %v", rev, want, got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return slices.DeleteFunc(msgs, func(m string) bool { return m == "" }), nil
}
