// Package scoring holds the deterministic arithmetic behind interview reports:
// weight normalization, scale positions, aggregation, CEFR mapping and the
// fallback heuristic used when no model score is available.
package scoring

import (
	"math"

	"github.com/okian/intervue/internal/domain/model"
)

const (
	totalWeight = 100
	epsilon     = 1e-9
)

// NormalizeWeights returns a copy of params whose weights are whole numbers
// summing to exactly 100. Positive weights are scaled proportionally and
// floored; the remainder goes to the first positive parameter. Zero, negative
// and non-finite weights become 0. When no weight is positive the total is
// split evenly.
func NormalizeWeights(params []model.RubricParameter) []model.RubricParameter {
	out := make([]model.RubricParameter, len(params))
	copy(out, params)
	if len(out) == 0 {
		return out
	}

	var sum float64
	first := -1
	for i := range out {
		if !validWeight(out[i].Weight) {
			out[i].Weight = 0
			continue
		}
		sum += out[i].Weight
		if first < 0 {
			first = i
		}
	}

	if first < 0 {
		share := math.Floor(totalWeight / float64(len(out)))
		for i := range out {
			out[i].Weight = share
		}
		out[0].Weight += totalWeight - share*float64(len(out))
		return out
	}

	var assigned float64
	for i := range out {
		if out[i].Weight == 0 {
			continue
		}
		out[i].Weight = math.Floor(out[i].Weight*totalWeight/sum + epsilon)
		assigned += out[i].Weight
	}
	out[first].Weight += totalWeight - assigned
	return out
}

func validWeight(w float64) bool {
	return w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w)
}

// Position maps score onto [0,1] within scale.
func Position(score float64, scale model.Scale) float64 {
	s := ResolveScale(scale)
	if s.Max <= s.Min || math.IsNaN(score) {
		return 0
	}
	return clamp01((score - s.Min) / (s.Max - s.Min))
}

// Overall is the weighted mean of each scored parameter's position, as a
// percentage rounded to two decimals. Parameters with no positive weight, or
// without a score, are excluded from both sides of the mean.
func Overall(params []model.RubricParameter, scores []model.ParameterScore) float64 {
	byID := make(map[string]model.ParameterScore, len(scores))
	for _, s := range scores {
		byID[s.ParameterID] = s
	}

	var num, den float64
	for _, p := range params {
		if !validWeight(p.Weight) {
			continue
		}
		s, ok := byID[p.ID]
		if !ok {
			continue
		}
		num += p.Weight * Position(s.Score, p.Scale)
		den += p.Weight
	}
	if den == 0 {
		return 0
	}
	return round2(num / den * totalWeight)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
