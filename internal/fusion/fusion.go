// Package fusion combines the ranked candidate lists of the retrieval
// sources using weighted Reciprocal Rank Fusion (RRF).
package fusion

import (
	"sort"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/retrieval"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

const (
	// DefaultRRFConstant is the standard RRF smoothing parameter.
	DefaultRRFConstant = 60

	// DefaultInitialRetrievalLimit is the size of the fused working set
	// handed to re-ranking.
	DefaultInitialRetrievalLimit = 50
)

// Weights scales each source's contribution. They need not sum to 1.
type Weights struct {
	Vector  float64 `json:"vector"`
	Keyword float64 `json:"keyword"`
	Filter  float64 `json:"filter"`
}

// DefaultWeights returns {vector: 0.5, keyword: 0.3, filter: 0.2}.
func DefaultWeights() Weights {
	return Weights{Vector: 0.5, Keyword: 0.3, Filter: 0.2}
}

// Candidate is a fused result. Source ranks are 1-based, 0 when absent.
type Candidate struct {
	ID            string          `json:"id"`
	CombinedScore float64         `json:"combined_score"`
	VectorRank    int             `json:"vector_rank,omitempty"`
	KeywordRank   int             `json:"keyword_rank,omitempty"`
	FilterRank    int             `json:"filter_rank,omitempty"`
	Summary       vehicle.Summary `json:"summary"`
}

// Fuse combines the three lists with weighted RRF:
//
//	score(d) = Σ weight_s / (k + rank_s(d))
//
// over the sources s containing d, with rank the 1-based position in the
// list as given. Absence from a source contributes nothing and scores are
// not normalized. The first summary seen (vector, then keyword, then
// filter) is kept. Results are sorted by score descending; exact ties keep
// first-appearance order across vector, keyword, filter. k <= 0 means
// DefaultRRFConstant.
func Fuse(vector, keyword, filter []retrieval.Candidate, w Weights, k int) []Candidate {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	index := make(map[string]int, len(vector)+len(keyword)+len(filter))
	fused := make([]Candidate, 0, len(vector)+len(keyword)+len(filter))

	accumulate := func(list []retrieval.Candidate, weight float64, rankOf func(*Candidate) *int) {
		for i, c := range list {
			rank := i + 1
			pos, seen := index[c.ID]
			if !seen {
				pos = len(fused)
				index[c.ID] = pos
				fused = append(fused, Candidate{ID: c.ID, Summary: c.Summary})
			}
			f := &fused[pos]
			// A duplicate id within one list counts once, at its best rank.
			if r := rankOf(f); *r == 0 {
				*r = rank
				f.CombinedScore += weight / float64(k+rank)
			}
		}
	}

	accumulate(vector, w.Vector, func(c *Candidate) *int { return &c.VectorRank })
	accumulate(keyword, w.Keyword, func(c *Candidate) *int { return &c.KeywordRank })
	accumulate(filter, w.Filter, func(c *Candidate) *int { return &c.FilterRank })

	// fused is in first-appearance order, so a stable sort settles ties.
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].CombinedScore > fused[j].CombinedScore
	})
	return fused
}

// Truncate returns at most n candidates. n <= 0 returns the input.
func Truncate(cands []Candidate, n int) []Candidate {
	if n <= 0 || len(cands) <= n {
		return cands
	}
	return cands[:n]
}

// FuseTop fuses and truncates to limit, also returning the number of
// fused candidates before truncation.
func FuseTop(vector, keyword, filter []retrieval.Candidate, w Weights, k, limit int) ([]Candidate, int) {
	fused := Fuse(vector, keyword, filter, w, k)
	return Truncate(fused, limit), len(fused)
}
