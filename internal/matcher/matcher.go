// Package matcher holds the pure matching decision: given the proximity
// finder's ordered candidates, pick at most one trip for a request. Kept
// free of transactions and I/O so the tie-break policy is testable on its
// own.
package matcher

import (
	"sort"

	"github.com/example/ride-pooling/internal/models"
)

// Pick returns the first candidate that can absorb the request, scanning
// nearest-first with lower trip id breaking distance ties. Candidates with
// a mismatched direction are skipped regardless of how they were fetched.
func Pick(req *models.RideRequest, cands []models.Candidate) (models.Candidate, bool) {
	ordered := Order(cands)
	for _, c := range ordered {
		if c.Direction != req.Direction {
			continue
		}
		if c.CanAccept(req.SeatsNeeded, req.LuggageCount) {
			return c, true
		}
	}
	return models.Candidate{}, false
}

// Order sorts candidates by ascending distance, then ascending trip id.
// The input slice is not modified. The same ordering governs winner
// selection everywhere, so repeated runs pick the same trip.
func Order(cands []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].TripID < out[j].TripID
	})
	return out
}

// LockOrder returns the candidate trip ids in ascending order. Every
// booking transaction acquires row locks in this order, independent of
// distance ranking, so overlapping candidate sets cannot deadlock.
func LockOrder(cands []models.Candidate) []int64 {
	ids := make([]int64, 0, len(cands))
	seen := make(map[int64]struct{}, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.TripID]; ok {
			continue
		}
		seen[c.TripID] = struct{}{}
		ids = append(ids, c.TripID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
