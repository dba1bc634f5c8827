// Package similarity scores pairs of face feature vectors. Three metrics
// are combined into one confidence value in [0,1]: inverse Euclidean
// distance, cosine similarity and Pearson correlation.
package similarity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Weights holds the non-negative metric weights. They must sum to 1 so the
// combined score stays bounded and monotonic in every metric.
type Weights struct {
	Euclidean   float64
	Cosine      float64
	Correlation float64
}

// DefaultWeights lean slightly toward cosine similarity.
var DefaultWeights = Weights{Euclidean: 0.3, Cosine: 0.4, Correlation: 0.3}

// Validate checks that weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	if w.Euclidean < 0 || w.Cosine < 0 || w.Correlation < 0 {
		return fmt.Errorf("similarity weights must be non-negative: %+v", w)
	}
	sum := w.Euclidean + w.Cosine + w.Correlation
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("similarity weights must sum to 1, got %v", sum)
	}
	return nil
}

// Breakdown carries the constituent metric similarities, each already
// normalized to [0,1], plus the combined confidence.
type Breakdown struct {
	Euclidean   float64 `json:"euclidean"`
	Cosine      float64 `json:"cosine"`
	Correlation float64 `json:"correlation"`
	Combined    float64 `json:"combined"`
}

// Scorer combines metric similarities under a fixed weight set.
type Scorer struct {
	weights Weights
}

// NewScorer builds a scorer, rejecting invalid weights up front so the
// per-comparison path never has to.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

// Weights returns the scorer's weight set.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score compares two equal-length vectors and returns the metric breakdown.
func (s *Scorer) Score(a, b []float32) (Breakdown, error) {
	if len(a) != len(b) {
		return Breakdown{}, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return Breakdown{}, fmt.Errorf("empty vectors")
	}

	x := toFloat64(a)
	y := toFloat64(b)

	bd := Breakdown{
		Euclidean:   euclideanSimilarity(x, y),
		Cosine:      cosineSimilarity(x, y),
		Correlation: correlationSimilarity(x, y),
	}
	bd.Combined = s.Combine(bd.Euclidean, bd.Cosine, bd.Correlation)
	return bd, nil
}

// Combine applies the weighted sum over already-normalized similarities.
// With weights summing to 1 the result is bounded to [0,1] and increasing
// any single input can never decrease the output.
func (s *Scorer) Combine(euclidean, cosine, correlation float64) float64 {
	return clamp01(s.weights.Euclidean*euclidean +
		s.weights.Cosine*cosine +
		s.weights.Correlation*correlation)
}

// euclideanSimilarity maps L2 distance into (0,1] via 1/(1+d). Identical
// vectors score exactly 1; the transform is strictly decreasing in d.
func euclideanSimilarity(x, y []float64) float64 {
	d := floats.Distance(x, y, 2)
	return 1 / (1 + d)
}

// cosineSimilarity returns the cosine of the angle between the vectors,
// clamped to [0,1]. Zero vectors score 0.
func cosineSimilarity(x, y []float64) float64 {
	dot := floats.Dot(x, y)
	nx := floats.Norm(x, 2)
	ny := floats.Norm(y, 2)
	if nx == 0 || ny == 0 {
		return 0
	}
	return clamp01(dot / (nx * ny))
}

// correlationSimilarity returns the Pearson correlation clamped to [0,1].
// Zero-variance input makes correlation undefined; that scores 0 instead
// of failing the whole comparison.
func correlationSimilarity(x, y []float64) float64 {
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return clamp01(r)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
