package services

import (
	"math/rand"

	"ancient-spinner-backend/internal/models"
)

const DefaultWinThreshold = 0.2

// RandSource is the randomness the selector draws from.
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.Intn(n) }

// OutcomeSelector picks the slot a spin lands on. With probability threshold
// it draws uniformly among winning slots, otherwise among losing ones.
type OutcomeSelector struct {
	threshold float64
	rand      RandSource
}

func NewOutcomeSelector(threshold float64, src RandSource) *OutcomeSelector {
	if src == nil {
		src = globalRand{}
	}
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	return &OutcomeSelector{threshold: threshold, rand: src}
}

func (s *OutcomeSelector) Threshold() float64 {
	return s.threshold
}

// SelectOutcome returns an index into segments, or -1 for an empty wheel.
// A wheel with no winning slot never wins; a wheel with no losing slot
// always does.
func (s *OutcomeSelector) SelectOutcome(segments []models.OutcomeSegment) int {
	winning, losing := models.PartitionSegments(segments)

	pool := losing
	if len(winning) > 0 && s.rand.Float64() < s.threshold {
		pool = winning
	}
	if len(pool) == 0 {
		pool = winning
	}
	if len(pool) == 0 {
		return -1
	}
	return pool[s.rand.IntN(len(pool))]
}
