package engine

import "github.com/DoyleJ11/chart-collab-backend/pkg/types"

// MergeDrawings reconciles two drawing collections during a full-state sync and
// returns the live result. For every id present on either side the merged record
// is deleted if either side deleted it; otherwise the first one seen (local) is
// kept. Concurrent edits to the same id are not versioned, so which non-deleted
// record survives is not meaningful.
func MergeDrawings(local, incoming []types.Drawing) []types.Drawing {
	return live(reconcile(local, incoming))
}

// reconcile is MergeDrawings without dropping tombstones, so that deletions keep
// winning against stale adds in later merges.
func reconcile(local, incoming []types.Drawing) []types.Drawing {
	out := make([]types.Drawing, 0, len(local)+len(incoming))
	index := make(map[string]int, len(local)+len(incoming))
	for _, set := range [][]types.Drawing{local, incoming} {
		for _, d := range set {
			if i, ok := index[d.ID]; ok {
				if d.IsDeleted {
					out[i].IsDeleted = true
				}
				continue
			}
			index[d.ID] = len(out)
			out = append(out, d.Clone())
		}
	}
	return out
}
