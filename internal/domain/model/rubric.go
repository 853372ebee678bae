package model

import "strings"

// ScaleType identifies the numeric scale of a rubric parameter.
type ScaleType string

const (
	ScaleOneToFive  ScaleType = "1-5"
	ScalePercentage ScaleType = "percentage"
	ScaleStars      ScaleType = "stars"
)

// ParseScaleType maps free-form labels onto a known scale, defaulting to 1-5.
func ParseScaleType(s string) ScaleType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage", "percent", "%", "0-100":
		return ScalePercentage
	case "stars", "star":
		return ScaleStars
	}
	return ScaleOneToFive
}

// Scale is the numeric range a parameter is scored on.
type Scale struct {
	Type ScaleType `json:"type" yaml:"type"`
	Min  float64   `json:"min" yaml:"min"`
	Max  float64   `json:"max" yaml:"max"`
}

// RubricParameter is one weighted evaluation criterion.
type RubricParameter struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Weight      float64 `json:"weight" yaml:"weight"`
	Scale       Scale   `json:"scale" yaml:"scale"`
}

// ParameterScore is the evaluation of one parameter.
type ParameterScore struct {
	ParameterID   string  `json:"parameter_id"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
	CEFR          string  `json:"cefr,omitempty"`
	Fallback      bool    `json:"fallback"`
}
