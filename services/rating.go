package services

import "math"

// RatingFloor is the hard minimum a player's rating can reach.
const RatingFloor = 100

// RatingChange is the per-player outcome of one rating application.
type RatingChange struct {
	Old   int `json:"old"`
	New   int `json:"new"`
	Delta int `json:"delta"`
}

// ExpectedScore is the standard Elo expectation for player A against B.
func ExpectedScore(ratingA, ratingB int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(ratingB-ratingA)/400.0))
}

// KFactor scales the maximum rating swing by experience: newer players move
// faster, veterans stabilize.
func KFactor(gamesPlayed int) int {
	switch {
	case gamesPlayed < 30:
		return 40
	case gamesPlayed < 100:
		return 20
	default:
		return 10
	}
}

// ComputeNewRatings applies one game's outcome to both players.
// resultA is from A's perspective: 1 win, 0.5 draw, 0 loss.
// K-factors are selected independently per player.
func ComputeNewRatings(ratingA, ratingB int, resultA float64, gamesA, gamesB int) (RatingChange, RatingChange) {
	expectedA := ExpectedScore(ratingA, ratingB)
	expectedB := 1.0 - expectedA
	resultB := 1.0 - resultA

	newA := applyK(ratingA, KFactor(gamesA), resultA, expectedA)
	newB := applyK(ratingB, KFactor(gamesB), resultB, expectedB)

	return RatingChange{Old: ratingA, New: newA, Delta: newA - ratingA},
		RatingChange{Old: ratingB, New: newB, Delta: newB - ratingB}
}

func applyK(rating, k int, result, expected float64) int {
	next := int(math.Round(float64(rating) + float64(k)*(result-expected)))
	if next < RatingFloor {
		next = RatingFloor
	}
	return next
}
