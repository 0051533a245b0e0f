package matcher

import (
	"fmt"
	"math"
)

// Scorer compares a probe against one candidate vector. Larger is better.
// Callers guarantee both vectors have the same length.
type Scorer interface {
	Name() string
	Score(probe, candidate []float32) float64
}

// Distance scores by Euclidean distance: (1 - ||probe - candidate||) * 100.
// The result is not clamped; far-apart vectors produce negative scores.
type Distance struct{}

func (Distance) Name() string { return "distance" }

func (Distance) Score(probe, candidate []float32) float64 {
	return (1 - L2Distance(probe, candidate)) * 100
}

// Cosine scores by cosine similarity in [-1, 1].
type Cosine struct{}

func (Cosine) Name() string { return "cosine" }

func (Cosine) Score(probe, candidate []float32) float64 {
	return CosineSimilarity(probe, candidate)
}

// ScorerByName returns the scorer registered under name.
func ScorerByName(name string) (Scorer, error) {
	switch name {
	case "distance", "":
		return Distance{}, nil
	case "cosine":
		return Cosine{}, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q (expected distance or cosine)", name)
	}
}

// L2Distance computes the Euclidean distance between two equal-length vectors.
func L2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineSimilarity computes the cosine similarity between two embedding vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
// Zero vectors have no direction and score 0.
func CosineSimilarity(a, b []float32) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	return max(-1, min(1, similarity))
}
