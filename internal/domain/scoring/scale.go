package scoring

import (
	"math"

	"github.com/okian/intervue/internal/domain/model"
)

// Default bounds per scale type.
var defaultBounds = map[model.ScaleType][2]float64{
	model.ScaleOneToFive:  {1, 5},
	model.ScalePercentage: {0, 100},
	model.ScaleStars:      {1, 5},
}

// ResolveScale fills in a known type and default bounds when the stored range
// is missing or inverted.
func ResolveScale(s model.Scale) model.Scale {
	if _, ok := defaultBounds[s.Type]; !ok {
		s.Type = model.ParseScaleType(string(s.Type))
	}
	if s.Max <= s.Min || math.IsNaN(s.Min) || math.IsNaN(s.Max) {
		b := defaultBounds[s.Type]
		s.Min, s.Max = b[0], b[1]
	}
	return s
}

// Step is the scoring granularity of a scale.
func Step(s model.Scale) float64 {
	if ResolveScale(s).Type == model.ScaleStars {
		return 0.5
	}
	return 1
}

// Clamp bounds score to the scale range.
func Clamp(score float64, s model.Scale) float64 {
	s = ResolveScale(s)
	if math.IsNaN(score) {
		return s.Min
	}
	return math.Max(s.Min, math.Min(s.Max, score))
}

// Snap rounds score to the nearest step measured from the scale minimum, then
// clamps it.
func Snap(score float64, s model.Scale) float64 {
	s = ResolveScale(s)
	step := Step(s)
	v := s.Min + math.Round((Clamp(score, s)-s.Min)/step)*step
	return Clamp(v, s)
}

// ResolveParameters resolves every scale and normalizes weights.
func ResolveParameters(params []model.RubricParameter) []model.RubricParameter {
	out := NormalizeWeights(params)
	for i := range out {
		out[i].Scale = ResolveScale(out[i].Scale)
	}
	return out
}
