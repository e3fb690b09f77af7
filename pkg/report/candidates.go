package report

import (
	"sort"

	"github.com/srodi/lowmemd/pkg/types"
)

// TopCandidates ranks processes the way the selector would prefer them:
// highest adj first, larger resident size breaking ties. Used by the watch
// view to show what is in the firing line; processes below the cutoff or
// with no resident memory are excluded.
func TopCandidates(procs []types.ProcStat, minAdj int, limit int) []types.ProcStat {
	candidates := make([]types.ProcStat, 0, len(procs))
	for _, p := range procs {
		if p.OomAdj < minAdj || p.RSSPages == 0 {
			continue
		}
		candidates = append(candidates, p)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].OomAdj != candidates[j].OomAdj {
			return candidates[i].OomAdj > candidates[j].OomAdj
		}
		return candidates[i].RSSPages > candidates[j].RSSPages
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
