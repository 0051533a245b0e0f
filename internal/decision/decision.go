// Package decision turns a raw similarity score into an attendance outcome.
package decision

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/rollcall/internal/config"
)

// UnknownName is reported in place of the matched identity for absent decisions.
const UnknownName = "Unknown"

// Outcome is the attendance decision for one probe.
type Outcome string

const (
	Present   Outcome = "present"
	Uncertain Outcome = "uncertain"
	Absent    Outcome = "absent"
)

// Status returns the user-facing label for the outcome.
func (o Outcome) Status() string {
	switch o {
	case Present:
		return "Accepted"
	case Uncertain:
		return "Uncertain"
	default:
		return "Rejected"
	}
}

// Decision is the result of applying a policy to a score. Confidence is on the
// policy's own scale: the raw score for Threshold, the defuzzified value for Fuzzy.
type Decision struct {
	Outcome    Outcome
	Confidence float64
}

// Policy maps a score to a decision. Implementations are pure and safe for
// concurrent use.
type Policy interface {
	Name() string
	Decide(score float64) Decision
}

// New builds the policy selected by cfg.
func New(cfg config.PolicyConfig) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "threshold", "":
		t := Threshold{Low: cfg.Threshold.LowCut, High: cfg.Threshold.HighCut}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		return t, nil
	case "fuzzy":
		scale := cfg.Fuzzy.Scale
		if scale <= 0 {
			scale = NativeScale(cfg.Scorer)
		}
		f := NewFuzzy(cfg.Fuzzy.LowCut, cfg.Fuzzy.HighCut, scale)
		if err := f.Validate(); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown policy %q (expected threshold or fuzzy)", cfg.Name)
	}
}

// NativeScale returns the divisor that maps a scorer's output onto [-1, 1].
func NativeScale(scorer string) float64 {
	if strings.EqualFold(strings.TrimSpace(scorer), "cosine") {
		return 1
	}
	return 100
}
