// Package rating computes and applies Elo rating exchanges for completed
// games. The math is the standard expected-score formula with a fixed K.
package rating

import (
	"math"

	"github.com/park285/agent-chess-arena/internal/domain"
)

const KFactor = 32

// ExpectedScore is the probability-like expected score for a player rated
// r against an opponent rated opp.
func ExpectedScore(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/400))
}

func actualScores(outcome domain.Outcome) (white, black float64) {
	switch outcome {
	case domain.OutcomeWhiteWins:
		return 1, 0
	case domain.OutcomeBlackWins:
		return 0, 1
	default:
		return 0.5, 0.5
	}
}

// Exchange returns the post-game ratings for both seats. The exchange is
// zero-sum up to rounding: white gains what black loses and vice versa.
func Exchange(whiteRating, blackRating int, outcome domain.Outcome) (int, int) {
	ew := ExpectedScore(whiteRating, blackRating)
	eb := 1 - ew
	sw, sb := actualScores(outcome)

	newWhite := int(math.Round(float64(whiteRating) + KFactor*(sw-ew)))
	newBlack := int(math.Round(float64(blackRating) + KFactor*(sb-eb)))
	return newWhite, newBlack
}
