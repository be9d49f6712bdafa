package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"ancient-spinner-backend/internal/models"
)

type wheelFile struct {
	Segments []struct {
		Label   string `yaml:"label"`
		Color   string `yaml:"color"`
		Winning bool   `yaml:"winning"`
		Payout  string `yaml:"payout"`
	} `yaml:"segments"`
}

// LoadWheel returns the compiled-in wheel unless a YAML override path is set.
func LoadWheel(path string) ([]models.OutcomeSegment, error) {
	if path == "" {
		return models.DefaultSegments(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wheel config: %w", err)
	}

	var file wheelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode wheel config: %w", err)
	}
	if len(file.Segments) == 0 {
		return nil, fmt.Errorf("wheel config %s has no segments", path)
	}

	segments := make([]models.OutcomeSegment, 0, len(file.Segments))
	for i, s := range file.Segments {
		payout := decimal.Zero
		if s.Payout != "" {
			payout, err = decimal.NewFromString(s.Payout)
			if err != nil {
				return nil, fmt.Errorf("segment %d: invalid payout %q: %w", i, s.Payout, err)
			}
		}
		if payout.IsNegative() {
			return nil, fmt.Errorf("segment %d: payout must not be negative", i)
		}
		if !s.Winning {
			payout = decimal.Zero
		}
		segments = append(segments, models.OutcomeSegment{
			Label:     s.Label,
			Color:     s.Color,
			IsWinning: s.Winning,
			Payout:    payout,
		})
	}
	return segments, nil
}
