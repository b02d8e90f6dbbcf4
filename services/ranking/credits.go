// Package ranking computes the credit settlement for finished games and
// maintains the leaderboard materialization.
package ranking

import "math"

// baseReward anchors the credit delta before scaling.
const baseReward = 50

// CreditDelta computes the credits transferred from loser to winner.
//
// The delta grows with the average credit level of the two players, shrinks
// when the higher-credit player wins (expected outcome) and grows on an
// upset, and shrinks with game length so faster wins reward more. The result
// is always at least 1.
func CreditDelta(winnerCredits, loserCredits, moveCount int) int {
	creditGap := float64(winnerCredits-loserCredits) / 2

	stones := float64(moveCount)
	if stones < 9 {
		stones = 9
	}

	avgCredit := float64(winnerCredits+loserCredits) / 2
	creditScale := math.Log(avgCredit*2+10) / 5
	stoneEfficiency := 1 / math.Sqrt(stones)

	var skillFactor float64
	if winnerCredits >= loserCredits {
		skillFactor = 1 / (1 + math.Abs(creditGap)/100)
	} else {
		skillFactor = 1 + math.Abs(creditGap)/100
	}

	reward := baseReward * stoneEfficiency * skillFactor * creditScale
	if r := math.Round(reward); r >= 1 {
		return int(r)
	}
	return 1
}
