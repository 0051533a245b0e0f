// Package matcher finds the gallery identity closest to a probe vector.
package matcher

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNoCandidates is returned when there is nothing to compare the probe against.
	ErrNoCandidates = errors.New("no candidates to compare against")
	// ErrDimensionMismatch is returned when a candidate's length differs from the probe's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Result is the outcome of a single match.
type Result struct {
	Identity string
	Score    float64
	Scores   map[string]float64 // every candidate's score, keyed by identity
}

// Match scores the probe against every candidate and returns the best one.
// Candidates are visited in lexicographic order of identity and only a
// strictly greater score replaces the current best, so ties resolve to the
// first identity in that order.
func Match(probe []float32, candidates map[string][]float32, scorer Scorer) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}
	if len(probe) == 0 {
		return Result{}, fmt.Errorf("empty probe: %w", ErrDimensionMismatch)
	}

	names := make([]string, 0, len(candidates))
	for name, vec := range candidates {
		if len(vec) != len(probe) {
			return Result{}, fmt.Errorf("candidate %q has %d dimensions, probe has %d: %w",
				name, len(vec), len(probe), ErrDimensionMismatch)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	res := Result{Scores: make(map[string]float64, len(names))}
	for i, name := range names {
		score := scorer.Score(probe, candidates[name])
		res.Scores[name] = score
		if i == 0 || score > res.Score {
			res.Identity = name
			res.Score = score
		}
	}

	return res, nil
}
