// Package match scores a probe vector against the gallery and decides
// whether it belongs to an enrolled identity.
package match

import (
	"fmt"
	"sort"

	"github.com/amosdev/attendance/internal/gallery"
	"github.com/amosdev/attendance/internal/similarity"
)

// Result is the outcome of matching one probe against the gallery.
type Result struct {
	Matched  bool                 `json:"matched"`
	Identity string               `json:"identity,omitempty"`
	Score    float64              `json:"score"`
	Detail   similarity.Breakdown `json:"detail"`
	// Compared is how many identities were actually scored.
	Compared int `json:"compared"`
}

// Matcher finds the best-scoring enrolled identity for a probe vector.
// An identity with several enrollment samples is scored by its best
// sample. The decision threshold is inclusive.
type Matcher struct {
	scorer    *similarity.Scorer
	threshold float64
}

// New builds a matcher. Threshold must lie in [0, 1].
func New(scorer *similarity.Scorer, threshold float64) (*Matcher, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("match threshold %v out of range [0, 1]", threshold)
	}
	return &Matcher{scorer: scorer, threshold: threshold}, nil
}

// Threshold returns the configured decision threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match scores the probe against every candidate identity in the
// snapshot. Ties on the combined score are broken by the lexicographically
// smaller identity key, so results are reproducible run to run.
func (m *Matcher) Match(snap *gallery.Snapshot, probe []float32) (Result, error) {
	candidates := snap.Candidates(probe)
	all := snap.All()

	var (
		best       Result
		bestFound  bool
		bestDetail similarity.Breakdown
	)
	for _, identity := range candidates {
		score, detail, err := m.bestSample(all[identity], probe)
		if err != nil {
			return Result{}, fmt.Errorf("scoring %s: %w", identity, err)
		}
		if !bestFound || score > best.Score || (score == best.Score && identity < best.Identity) {
			best = Result{Identity: identity, Score: score, Compared: len(candidates)}
			bestDetail = detail
			bestFound = true
		}
	}

	if !bestFound {
		return Result{Compared: 0}, nil
	}

	best.Detail = bestDetail
	best.Compared = len(candidates)
	best.Matched = best.Score >= m.threshold
	if !best.Matched {
		best.Identity = ""
	}
	return best, nil
}

// Rank scores the probe against every candidate and returns all results
// ordered by score descending, identity ascending. Used by the debug
// surface; Match stays the decision path.
func (m *Matcher) Rank(snap *gallery.Snapshot, probe []float32) ([]Result, error) {
	candidates := snap.Candidates(probe)
	all := snap.All()

	results := make([]Result, 0, len(candidates))
	for _, identity := range candidates {
		score, detail, err := m.bestSample(all[identity], probe)
		if err != nil {
			return nil, fmt.Errorf("scoring %s: %w", identity, err)
		}
		results = append(results, Result{
			Matched:  score >= m.threshold,
			Identity: identity,
			Score:    score,
			Detail:   detail,
			Compared: len(candidates),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Identity < results[j].Identity
	})
	return results, nil
}

// bestSample returns the identity's best sample score against the probe.
func (m *Matcher) bestSample(samples []gallery.FaceSample, probe []float32) (float64, similarity.Breakdown, error) {
	var (
		best   float64
		detail similarity.Breakdown
		found  bool
	)
	for _, sample := range samples {
		b, err := m.scorer.Score(probe, sample.Vector)
		if err != nil {
			return 0, similarity.Breakdown{}, err
		}
		if !found || b.Combined > best {
			best = b.Combined
			detail = b
			found = true
		}
	}
	if !found {
		return 0, similarity.Breakdown{}, fmt.Errorf("identity has no samples")
	}
	return best, detail, nil
}
