// Package rating computes post-contest rating changes from final ranks.
//
// Each contestant's expected rank (seed) is one plus the sum of the
// probabilities that every other contestant beats them under an Elo model.
// The geometric mean of seed and actual rank gives a target rank; the rating
// that would have produced that seed is found by binary search, and the
// contestant moves half way towards it, clamped to the maximum delta.
package rating

import (
	"math"
	"sort"
)

const (
	searchLow  = -2000.0
	searchHigh = 6000.0
)

type Participant struct {
	UserID int64
	Rank   int
	Rating int
}

type Change struct {
	UserID int64
	Before int
	After  int
	Delta  int
}

func winProbability(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

func seed(rating float64, others []float64) float64 {
	s := 1.0
	for _, r := range others {
		s += winProbability(r, rating)
	}
	return s
}

// performance finds the rating whose seed among others equals target.
func performance(target float64, others []float64) float64 {
	lo, hi := searchLow, searchHigh
	for i := 0; i < 60; i++ {
		mid := (lo + hi) / 2
		if seed(mid, others) < target {
			hi = mid
		} else {
			lo = mid
		}
	}
	return (lo + hi) / 2
}

// Compute returns one change per participant, ordered by rank then user id.
// maxDelta <= 0 disables clamping.
func Compute(participants []Participant, maxDelta int) []Change {
	ps := make([]Participant, len(participants))
	copy(ps, participants)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Rank != ps[j].Rank {
			return ps[i].Rank < ps[j].Rank
		}
		return ps[i].UserID < ps[j].UserID
	})

	changes := make([]Change, len(ps))
	if len(ps) < 2 {
		for i, p := range ps {
			changes[i] = Change{UserID: p.UserID, Before: p.Rating, After: p.Rating}
		}
		return changes
	}

	for i, p := range ps {
		others := make([]float64, 0, len(ps)-1)
		for j, q := range ps {
			if j != i {
				others = append(others, float64(q.Rating))
			}
		}
		expected := seed(float64(p.Rating), others)
		target := math.Sqrt(expected * float64(p.Rank))
		perf := performance(target, others)

		delta := int(math.Round((perf - float64(p.Rating)) / 2))
		if maxDelta > 0 {
			delta = clamp(delta, -maxDelta, maxDelta)
		}
		changes[i] = Change{UserID: p.UserID, Before: p.Rating, After: p.Rating + delta, Delta: delta}
	}
	return changes
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
