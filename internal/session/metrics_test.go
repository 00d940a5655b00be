package session

import (
	"math"
	"testing"
)

func TestItemAccuracy(t *testing.T) {
	cases := []struct {
		actual, recommended int
		want                float64
	}{
		{0, 0, 100},   // nothing recommended, nothing sold
		{3, 0, 0},     // sold against no recommendation
		{0, 5, 0},     // recommended but nothing sold
		{4, 5, 100},   // 80%, inside the perfect zone
		{3, 4, 100},   // exactly 75%
		{6, 5, 100},   // exactly 120%
		{10, 5, 0},    // 200%, fully penalized
		{8, 5, 50},    // 160%: halfway through the over-sell penalty
		{12, 5, 0},    // beyond 200%
	}
	for _, tc := range cases {
		got := ItemAccuracy(tc.actual, tc.recommended)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ItemAccuracy(%d, %d) = %v, want %v", tc.actual, tc.recommended, got, tc.want)
		}
	}

	// 50% achievement: linear penalty below the zone
	if got := ItemAccuracy(3, 6); math.Abs(got-66.66666666666667) > 1e-9 {
		t.Errorf("ItemAccuracy(3, 6) = %v, want ~66.67", got)
	}
}

func TestCustomerScore(t *testing.T) {
	// one item sold perfectly, one not sold: coverage 50, accuracy 50
	got := CustomerScore([]int{5, 0}, []int{5, 5})
	if got.Coverage != 50.0 {
		t.Errorf("Coverage = %v, want 50", got.Coverage)
	}
	if got.Accuracy != 50.0 {
		t.Errorf("Accuracy = %v, want 50", got.Accuracy)
	}
	if got.Score != 50.0 {
		t.Errorf("Score = %v, want 50", got.Score)
	}
}

func TestCustomerScoreEmpty(t *testing.T) {
	if got := CustomerScore(nil, nil); got.Score != 0 {
		t.Errorf("Score = %v, want 0 for no data", got.Score)
	}
	if got := CustomerScore([]int{1}, []int{1, 2}); got.Score != 0 {
		t.Errorf("Score = %v, want 0 for mismatched slices", got.Score)
	}
}
