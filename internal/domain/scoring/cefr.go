package scoring

import (
	"math"
	"strings"

	"github.com/okian/intervue/internal/domain/model"
)

// Bands lists CEFR bands in ascending order.
var Bands = []string{"A1", "A2", "B1", "B2", "C1", "C2"}

var percentageMidpoints = map[string]float64{
	"A1": 10,
	"A2": 25,
	"B1": 45,
	"B2": 65,
	"C1": 80,
	"C2": 95,
}

// NormalizeBand returns the canonical band label or "" when band is unknown.
func NormalizeBand(band string) string {
	b := strings.ToUpper(strings.TrimSpace(band))
	if _, ok := percentageMidpoints[b]; ok {
		return b
	}
	return ""
}

func bandRank(band string) int {
	for i, b := range Bands {
		if b == band {
			return i
		}
	}
	return -1
}

// ScoreForBand maps a CEFR band onto the scale. Percentage scales use the
// midpoint table; other scales interpolate by rank and round up onto the
// scale step.
func ScoreForBand(band string, s model.Scale) (float64, bool) {
	band = NormalizeBand(band)
	if band == "" {
		return 0, false
	}
	s = ResolveScale(s)

	if s.Type == model.ScalePercentage {
		mid := percentageMidpoints[band]
		return Clamp(s.Min+mid/100*(s.Max-s.Min), s), true
	}

	pos := float64(bandRank(band)) / float64(len(Bands)-1)
	raw := pos * (s.Max - s.Min)
	step := Step(s)
	return Clamp(s.Min+math.Ceil(raw/step-epsilon)*step, s), true
}
