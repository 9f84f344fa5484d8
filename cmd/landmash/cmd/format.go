package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"landmash/services/store"
)

// formatRating shows percentages as whole numbers and ten point scales
// with one decimal.
func formatRating(rating float64) string {
	if rating > 10 {
		return strconv.Itoa(int(rating))
	}
	return strconv.FormatFloat(rating, 'f', 1, 64)
}

func formatRank(rank float64) string {
	if math.IsInf(rank, -1) {
		return "unrated"
	}
	return strconv.FormatFloat(rank, 'f', 1, 64)
}

func formatReviews(reviews []store.Review) string {
	parts := make([]string, len(reviews))
	for i, r := range reviews {
		parts[i] = fmt.Sprintf("%s %s", r.Critic, formatRating(r.Rating))
	}
	return strings.Join(parts, ", ")
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
