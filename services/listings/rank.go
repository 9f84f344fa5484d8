package listings

import (
	"cmp"
	"math"
	"slices"

	"landmash/services/store"
)

// Rank is the mean normalized score of a showing's film, -Inf when the
// film has no reviews.
func Rank(showing store.Showing) float64 {
	if showing.Film == nil || len(showing.Film.Reviews) == 0 {
		return math.Inf(-1)
	}
	sum := 0.0
	for _, review := range showing.Film.Reviews {
		sum += review.Normalized
	}
	return sum / float64(len(showing.Film.Reviews))
}

// SortShowings orders showings by descending rank, showings of equal rank
// keep their relative order.
func SortShowings(showings []store.Showing) {
	slices.SortStableFunc(showings, func(a, b store.Showing) int {
		return cmp.Compare(Rank(b), Rank(a))
	})
}
