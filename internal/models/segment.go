package models

import "github.com/shopspring/decimal"

const (
	FullCircle   = 360.0
	SpinTurns    = 10
	SpinDuration = 10000 // milliseconds of front-end animation
	ColorGreen   = "#14F195"
	ColorPurple  = "#9945FF"
)

type OutcomeSegment struct {
	Label     string          `json:"label"`
	Color     string          `json:"color"`
	IsWinning bool            `json:"is_winning"`
	Payout    decimal.Decimal `json:"payout"`
}

// DefaultSegments is the compiled-in wheel. "0.1 SOL" is a losing slot despite its label.
func DefaultSegments() []OutcomeSegment {
	return []OutcomeSegment{
		{Label: "1 SOL", Color: ColorGreen, IsWinning: true, Payout: decimal.NewFromInt(1)},
		{Label: "0.5 SOL", Color: ColorPurple, IsWinning: true, Payout: decimal.RequireFromString("0.5")},
		{Label: "Essaye encore", Color: ColorGreen, Payout: decimal.Zero},
		{Label: "0.1 SOL", Color: ColorPurple, Payout: decimal.Zero},
		{Label: "Rien", Color: ColorGreen, Payout: decimal.Zero},
		{Label: "0.2 SOL", Color: ColorPurple, IsWinning: true, Payout: decimal.RequireFromString("0.2")},
		{Label: "Perdu", Color: ColorGreen, Payout: decimal.Zero},
		{Label: "0.3 SOL", Color: ColorPurple, IsWinning: true, Payout: decimal.RequireFromString("0.3")},
	}
}

// PartitionSegments splits segment indices into winning and losing buckets.
func PartitionSegments(segments []OutcomeSegment) (winning, losing []int) {
	for i, s := range segments {
		if s.IsWinning {
			winning = append(winning, i)
		} else {
			losing = append(losing, i)
		}
	}
	return winning, losing
}

// SegmentAngle is the angular width of one slot; all slots are equal.
func SegmentAngle(count int) float64 {
	if count <= 0 {
		return 0
	}
	return FullCircle / float64(count)
}

// RotationForIndex is the final wheel rotation in degrees that lands the
// pointer on the middle of the given slot after SpinTurns full turns.
func RotationForIndex(index, count int) float64 {
	angle := SegmentAngle(count)
	return FullCircle*SpinTurns - float64(index)*angle - angle/2
}

// WinningPayout returns the payout for a landed slot, zero when losing.
func (s OutcomeSegment) WinningPayout() decimal.Decimal {
	if !s.IsWinning || !s.Payout.IsPositive() {
		return decimal.Zero
	}
	return s.Payout
}
