package hsg

import "sort"

// rrfK is the reciprocal-rank-fusion smoothing constant, the standard
// default used in RRF implementations.
const rrfK = 60.0

// RankedList is one ordered candidate set to fuse, e.g. one sector's
// SearchSimilar hits converted to ids in score-descending order.
type RankedList []string

// ReciprocalRankFusion merges multiple ranked id lists into one fused
// ranking: score(id) = sum over lists containing id of 1/(rrfK+rank),
// rank counted from 1. Used to pre-merge sector candidate sets before the
// full composite-scoring pass when a caller wants a cheap union ranking
// without hydrating every candidate (SPEC_FULL §C.3).
func ReciprocalRankFusion(lists ...RankedList) []string {
	scores := make(map[string]float64)
	for _, list := range lists {
		for i, id := range list {
			scores[id] += 1.0 / (rrfK + float64(i+1))
		}
	}
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}
