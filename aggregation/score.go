package aggregation

import (
	"fmt"
	"math"
)

// Weights splits the quality score between the required and optional tiers.
type Weights struct {
	Required float64 `yaml:"required" json:"required"`
	Optional float64 `yaml:"optional" json:"optional"`
}

// DefaultWeights favours required units 80/20.
var DefaultWeights = Weights{Required: 80, Optional: 20}

// NewWeights builds validated weights.
func NewWeights(required, optional float64) (Weights, error) {
	w := Weights{Required: required, Optional: optional}
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}

// Validate checks each weight is within [0,100] and that they sum to 100.
func (w Weights) Validate() error {
	if w.Required < 0 || w.Required > 100 {
		return fmt.Errorf("required weight %.2f out of range [0,100]", w.Required)
	}
	if w.Optional < 0 || w.Optional > 100 {
		return fmt.Errorf("optional weight %.2f out of range [0,100]", w.Optional)
	}
	if math.Abs(w.Required+w.Optional-100) > 1e-9 {
		return fmt.Errorf("weights must sum to 100, got %.2f", w.Required+w.Optional)
	}
	return nil
}

// Summarize scores a report in [0,100] as the weighted pass rates of its
// tiers. A tier with no units hands its weight to the other tier; an empty
// report scores 0. This intentionally differs from a plain 80/20 sum, under
// which a required-only run could never score above 80.
func Summarize(r *Report, w Weights) float64 {
	if r == nil || r.Total == 0 {
		return 0
	}

	req, opt := r.Tiers.Required, r.Tiers.Optional
	var score float64
	switch {
	case req.Total == 0:
		score = opt.PassRate() * 100
	case opt.Total == 0:
		score = req.PassRate() * 100
	default:
		score = req.PassRate()*w.Required + opt.PassRate()*w.Optional
	}
	return math.Max(0, math.Min(100, score))
}
