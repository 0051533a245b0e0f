package decision

import (
	"fmt"
	"math"
)

// MembershipFunc returns the degree in [0, 1] to which x belongs to a fuzzy set.
type MembershipFunc func(x float64) float64

// Trapezoid rises linearly from a to b, is 1 between b and c and falls to 0 at d.
// A vertical edge (a == b or c == d) is fully inside the set.
func Trapezoid(a, b, c, d float64) MembershipFunc {
	return func(x float64) float64 {
		switch {
		case x < a || x > d:
			return 0
		case x >= b && x <= c:
			return 1
		case x < b:
			return (x - a) / (b - a)
		default:
			return (d - x) / (d - c)
		}
	}
}

// Triangle peaks at b and is 0 outside (a, c).
func Triangle(a, b, c float64) MembershipFunc {
	return Trapezoid(a, b, b, c)
}

// Output weights of the low, medium and high sets.
const (
	weightLow    = 0.0
	weightMedium = 0.6
	weightHigh   = 1.0
	fuzzyEpsilon = 1e-8
)

// Fuzzy decides by fuzzy membership over a similarity in [-1, 1]. The
// memberships are combined into one value by a weighted average and that value
// is cut at LowCut and HighCut the same way Threshold cuts a raw score.
type Fuzzy struct {
	Low, Medium, High MembershipFunc

	LowCut  float64
	HighCut float64
	// Scale divides the incoming score before membership is evaluated;
	// the result is clamped to [-1, 1]. Zero or one leaves the score unscaled.
	Scale float64
}

// NewFuzzy returns the standard three-set system.
func NewFuzzy(lowCut, highCut, scale float64) Fuzzy {
	return Fuzzy{
		Low:     Trapezoid(-1, -1, 0, 0.4),
		Medium:  Triangle(0.2, 0.5, 0.8),
		High:    Trapezoid(0.6, 0.75, 1, 1),
		LowCut:  lowCut,
		HighCut: highCut,
		Scale:   scale,
	}
}

func (Fuzzy) Name() string { return "fuzzy" }

// Validate checks the cut points.
func (f Fuzzy) Validate() error {
	if math.IsNaN(f.LowCut) || math.IsNaN(f.HighCut) {
		return fmt.Errorf("fuzzy cut points must be numbers")
	}
	if f.LowCut >= f.HighCut {
		return fmt.Errorf("fuzzy low cut %v must be below high cut %v", f.LowCut, f.HighCut)
	}
	if f.Low == nil || f.Medium == nil || f.High == nil {
		return fmt.Errorf("fuzzy membership functions are not set")
	}
	return nil
}

// Memberships returns the degree of x in the low, medium and high sets after scaling.
func (f Fuzzy) Memberships(score float64) (low, medium, high float64) {
	x := f.normalize(score)
	return f.Low(x), f.Medium(x), f.High(x)
}

// Aggregate combines the memberships of score into a single value in [0, 1].
func (f Fuzzy) Aggregate(score float64) float64 {
	l, m, h := f.Memberships(score)
	return (h*weightHigh + m*weightMedium + l*weightLow) / (h + m + l + fuzzyEpsilon)
}

func (f Fuzzy) Decide(score float64) Decision {
	agg := f.Aggregate(score)
	d := Decision{Confidence: agg}
	switch {
	case agg >= f.HighCut:
		d.Outcome = Present
	case agg >= f.LowCut:
		d.Outcome = Uncertain
	default:
		d.Outcome = Absent
	}
	return d
}

func (f Fuzzy) normalize(score float64) float64 {
	if math.IsNaN(score) {
		return -1
	}
	if f.Scale > 0 {
		score /= f.Scale
	}
	return max(-1, min(1, score))
}
