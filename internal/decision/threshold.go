package decision

import (
	"fmt"
	"math"
)

// Threshold decides by two cut points on the scorer's scale:
// score >= High is present, Low <= score < High is uncertain, anything lower is absent.
type Threshold struct {
	Low  float64
	High float64
}

func (Threshold) Name() string { return "threshold" }

// Validate checks that the cut points form a non-empty uncertain band.
func (t Threshold) Validate() error {
	if math.IsNaN(t.Low) || math.IsNaN(t.High) {
		return fmt.Errorf("threshold cut points must be numbers")
	}
	if t.Low >= t.High {
		return fmt.Errorf("threshold low cut %v must be below high cut %v", t.Low, t.High)
	}
	return nil
}

func (t Threshold) Decide(score float64) Decision {
	d := Decision{Confidence: score}
	switch {
	case score >= t.High:
		d.Outcome = Present
	case score >= t.Low:
		d.Outcome = Uncertain
	default:
		d.Outcome = Absent
	}
	return d
}
