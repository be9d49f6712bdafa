package services_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"ancient-spinner-backend/internal/models"
	"ancient-spinner-backend/internal/services"
)

func scenarioWheel() []models.OutcomeSegment {
	win := func(p string) models.OutcomeSegment {
		return models.OutcomeSegment{Label: p + " SOL", IsWinning: true, Payout: decimal.RequireFromString(p)}
	}
	lose := models.OutcomeSegment{Label: "Perdu", Payout: decimal.Zero}
	return []models.OutcomeSegment{win("0.1"), lose, lose, win("0.2"), lose, lose, win("0.3"), lose}
}

func TestSelectOutcomeFollowsThreshold(t *testing.T) {
	segments := scenarioWheel()
	selector := services.NewOutcomeSelector(0.2, &scriptedRand{
		floats: []float64{0.05, 0.9},
		ints:   []int{1, 2},
	})

	first := selector.SelectOutcome(segments)
	if first != 3 || !segments[first].IsWinning {
		t.Errorf("Draw 0.05 should pick the second winning slot (3), got %d", first)
	}

	second := selector.SelectOutcome(segments)
	if second != 4 || segments[second].IsWinning {
		t.Errorf("Draw 0.9 should pick the third losing slot (4), got %d", second)
	}
}

func TestSelectOutcomeThresholdBoundary(t *testing.T) {
	segments := scenarioWheel()
	selector := services.NewOutcomeSelector(0.2, &scriptedRand{floats: []float64{0.2}})

	if idx := selector.SelectOutcome(segments); segments[idx].IsWinning {
		t.Errorf("A draw equal to the threshold should lose, got slot %d", idx)
	}
}

func TestSelectOutcomeWithoutWinningSlots(t *testing.T) {
	segments := []models.OutcomeSegment{{Label: "Rien"}, {Label: "Perdu"}, {Label: "Essaye encore"}}
	selector := services.NewOutcomeSelector(1, &scriptedRand{floats: []float64{0}, ints: []int{0, 1, 2}})

	for i := 0; i < 3; i++ {
		idx := selector.SelectOutcome(segments)
		if idx < 0 || idx >= len(segments) {
			t.Fatalf("Index out of range: %d", idx)
		}
		if segments[idx].IsWinning {
			t.Fatalf("Wheel without winners should never win")
		}
	}
}

func TestSelectOutcomeWithoutLosingSlots(t *testing.T) {
	segments := []models.OutcomeSegment{
		{Label: "1 SOL", IsWinning: true, Payout: decimal.NewFromInt(1)},
		{Label: "0.5 SOL", IsWinning: true, Payout: decimal.RequireFromString("0.5")},
	}
	selector := services.NewOutcomeSelector(0, &scriptedRand{floats: []float64{0.99}, ints: []int{1}})

	if idx := selector.SelectOutcome(segments); idx != 1 {
		t.Errorf("Expected fallback to winning slot 1, got %d", idx)
	}
}

func TestSelectOutcomeEmptyWheel(t *testing.T) {
	selector := services.NewOutcomeSelector(0.2, nil)
	if idx := selector.SelectOutcome(nil); idx != -1 {
		t.Errorf("Expected -1 for an empty wheel, got %d", idx)
	}
}

func TestSelectOutcomeWinFrequency(t *testing.T) {
	segments := models.DefaultSegments()
	selector := services.NewOutcomeSelector(0.2, nil)

	const draws = 20000
	wins := 0
	for i := 0; i < draws; i++ {
		idx := selector.SelectOutcome(segments)
		if idx < 0 || idx >= len(segments) {
			t.Fatalf("Index out of range: %d", idx)
		}
		if segments[idx].IsWinning {
			wins++
		}
	}

	rate := float64(wins) / draws
	if rate < 0.18 || rate > 0.22 {
		t.Errorf("Expected a win rate near 0.2, got %.3f", rate)
	}
}
