package report

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Evaluation is the typed form of a model response.
type Evaluation struct {
	Parameters []ParameterEvaluation
	Summary    string
}

// ParameterEvaluation is one scored parameter as returned by the model.
// Score is NaN when the model sent no usable number.
type ParameterEvaluation struct {
	ID            string
	Score         float64
	Justification string
	CEFR          string
}

// Parse extracts an Evaluation from raw model text. Any failure is reported
// as ErrParseFailed; Parse never panics on malformed input.
func Parse(raw string) (ev Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = Evaluation{}, fmt.Errorf("%w: %v", ErrParseFailed, r)
		}
	}()

	cleaned := extractJSON(raw)
	if cleaned == "" {
		return Evaluation{}, fmt.Errorf("%w: no JSON object in response", ErrParseFailed)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	items, ok := data["parameters"].([]any)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: missing parameters array", ErrParseFailed)
	}

	ev.Summary = coerceString(data["summary"])
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := coerceString(obj["id"])
		if id == "" {
			continue
		}
		ev.Parameters = append(ev.Parameters, ParameterEvaluation{
			ID:            id,
			Score:         coerceFloat(obj["score"]),
			Justification: coerceString(obj["justification"]),
			CEFR:          coerceString(obj["cefr"]),
		})
	}
	return ev, nil
}

// extractJSON strips code fences and surrounding prose, returning the
// outermost object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
