package session

import "math"

// ItemAccuracy scores how well an actual sale matched its recommendation.
// Selling 75-120% of the recommended quantity counts as perfect (100);
// outside the zone the score drops linearly, hitting 0 at nothing sold on
// the low side and at double the recommendation on the high side.
func ItemAccuracy(actualQty, recommendedQty int) float64 {
	if recommendedQty == 0 {
		if actualQty == 0 {
			return 100.0
		}
		return 0.0
	}
	if actualQty == 0 {
		return 0.0
	}

	achievement := float64(actualQty) / float64(recommendedQty) * 100

	switch {
	case achievement >= 75 && achievement <= 120:
		return 100.0
	case achievement < 75:
		return math.Max(0, achievement/75*100)
	case achievement >= 200:
		return 0.0
	default:
		return math.Max(0, 100-(achievement-120)/80*100)
	}
}

// CustomerScoreResult breaks a customer's supervision score into its
// coverage and accuracy components.
type CustomerScoreResult struct {
	Score    float64 `json:"score"`
	Coverage float64 `json:"coverage"`
	Accuracy float64 `json:"accuracy"`
}

// CustomerScore blends coverage (share of recommended items with any sale,
// 40%) with mean per-item accuracy (60%). Quantities are paired by index:
// actuals[i] against recommended[i].
func CustomerScore(actuals, recommended []int) CustomerScoreResult {
	if len(recommended) == 0 || len(actuals) != len(recommended) {
		return CustomerScoreResult{}
	}

	sold := 0
	accuracySum := 0.0
	for i := range recommended {
		if actuals[i] > 0 {
			sold++
		}
		accuracySum += ItemAccuracy(actuals[i], recommended[i])
	}

	coverage := float64(sold) / float64(len(recommended)) * 100
	accuracy := accuracySum / float64(len(recommended))
	score := coverage*0.4 + accuracy*0.6

	return CustomerScoreResult{
		Score:    math.Round(score*10) / 10,
		Coverage: math.Round(coverage*10) / 10,
		Accuracy: math.Round(accuracy*10) / 10,
	}
}
