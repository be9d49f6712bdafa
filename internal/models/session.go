package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SpinSession is the per-wallet game state. It is mutated only through
// Land, Claim and Replay.
type SpinSession struct {
	Wallet        string          `json:"wallet"`
	TotalWon      decimal.Decimal `json:"total_won"`
	Replayed      decimal.Decimal `json:"replayed"`
	SpinsUsed     int             `json:"spins_used"`
	PendingResult *int            `json:"pending_result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func NewSpinSession(wallet string) *SpinSession {
	now := time.Now()
	return &SpinSession{
		Wallet:    wallet,
		TotalWon:  decimal.Zero,
		Replayed:  decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Claimable is what the player could still claim: max(0, won - replayed).
func (s *SpinSession) Claimable() decimal.Decimal {
	c := s.TotalWon.Sub(s.Replayed)
	if c.IsNegative() {
		return decimal.Zero
	}
	return c
}

func (s *SpinSession) HasPendingResult() bool {
	return s.PendingResult != nil
}

// Land records the slot a spin stopped on and counts the spin.
func (s *SpinSession) Land(index int) {
	s.SpinsUsed++
	s.PendingResult = &index
	s.UpdatedAt = time.Now()
}

// Claim banks a pending winning result and returns the claimed amount.
func (s *SpinSession) Claim(segments []OutcomeSegment) (decimal.Decimal, error) {
	seg, err := s.pendingSegment(segments)
	if err != nil {
		return decimal.Zero, err
	}

	amount := seg.WinningPayout()
	s.TotalWon = s.TotalWon.Add(amount)
	s.PendingResult = nil
	s.UpdatedAt = time.Now()
	return amount, nil
}

// Replay puts the pending result back at stake. A win is moved from the won
// total to the replayed total; a loss replays the participation cost.
func (s *SpinSession) Replay(segments []OutcomeSegment, participationCost decimal.Decimal) (decimal.Decimal, error) {
	seg, err := s.pendingSegment(segments)
	if err != nil {
		return decimal.Zero, err
	}

	stake := seg.WinningPayout()
	if stake.IsPositive() {
		s.TotalWon = s.TotalWon.Sub(stake)
	} else {
		stake = participationCost
	}
	s.Replayed = s.Replayed.Add(stake)
	s.PendingResult = nil
	s.UpdatedAt = time.Now()
	return stake, nil
}

func (s *SpinSession) pendingSegment(segments []OutcomeSegment) (OutcomeSegment, error) {
	if s.PendingResult == nil {
		return OutcomeSegment{}, fmt.Errorf("no pending result")
	}
	idx := *s.PendingResult
	if idx < 0 || idx >= len(segments) {
		return OutcomeSegment{}, fmt.Errorf("pending result %d outside wheel of %d segments", idx, len(segments))
	}
	return segments[idx], nil
}
