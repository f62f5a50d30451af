// Package match ranks gallery candidates against a probe descriptor set.
// It is a pure computation over descriptors: no I/O, no storage, so it can be
// unit-tested and benchmarked independently of the serving path.
package match

import (
	"iter"
	"sort"

	"github.com/kozaktomas/attendance-kiosk/internal/features"
)

// Config holds the two matching constants. AcceptDistance is the maximum
// Hamming distance for a correspondence to count as good; Threshold is the
// minimum good-pair count for the best candidate to be accepted.
type Config struct {
	AcceptDistance int
	Threshold      int
}

// Reference is one reference image's descriptors plus the handle reported
// back to the operator when it produces the winning score.
type Reference struct {
	Handle      string
	Source      string
	Descriptors features.DescriptorSet
}

// Candidate is a gallery candidate prepared for matching.
type Candidate struct {
	ID   string
	Name string
	Refs []Reference
}

// Score is one candidate's result: the good-pair count of its best reference
// image (best-of-N, not sum or average).
type Score struct {
	ID      string
	Name    string
	Score   int
	BestRef Reference
}

// CountGoodPairs computes cross-checked one-to-one nearest-neighbor
// correspondences between probe and ref under the Hamming metric and counts
// those below cfg.AcceptDistance.
func (cfg Config) CountGoodPairs(probe, ref features.DescriptorSet) int {
	if len(probe) == 0 || len(ref) == 0 {
		return 0
	}

	// Nearest ref descriptor for every probe descriptor. Ties resolve to the
	// lowest index so the count is deterministic.
	probeNearest := make([]int, len(probe))
	probeDist := make([]int, len(probe))
	for i, p := range probe {
		best, bestDist := 0, features.HammingDistance(p, ref[0])
		for j := 1; j < len(ref); j++ {
			if d := features.HammingDistance(p, ref[j]); d < bestDist {
				best, bestDist = j, d
			}
		}
		probeNearest[i] = best
		probeDist[i] = bestDist
	}

	// Cross-check: keep a pair only when the ref descriptor's nearest probe
	// descriptor points back.
	good := 0
	for j, r := range ref {
		best, bestDist := 0, features.HammingDistance(r, probe[0])
		for i := 1; i < len(probe); i++ {
			if d := features.HammingDistance(r, probe[i]); d < bestDist {
				best, bestDist = i, d
			}
		}
		if probeNearest[best] == j && probeDist[best] < cfg.AcceptDistance {
			good++
		}
	}
	return good
}

// Rank scores every candidate with at least one reference image and returns
// them ordered by score, highest first. Candidates without reference images
// are skipped and counted separately so "nobody to compare against" can be
// reported distinctly from "compared and failed". Equal scores keep the
// gallery iteration order, which is the documented tie-break.
func Rank(cfg Config, probe features.DescriptorSet, candidates iter.Seq2[Candidate, error]) (ranked []Score, skipped int, err error) {
	if len(probe) == 0 {
		return nil, 0, nil
	}

	for candidate, iterErr := range candidates {
		if iterErr != nil {
			return nil, 0, iterErr
		}
		if len(candidate.Refs) == 0 {
			skipped++
			continue
		}

		best := Score{ID: candidate.ID, Name: candidate.Name, Score: -1}
		for _, ref := range candidate.Refs {
			// Best-of-N over reference images; the first image wins ties.
			if s := cfg.CountGoodPairs(probe, ref.Descriptors); s > best.Score {
				best.Score = s
				best.BestRef = ref
			}
		}
		ranked = append(ranked, best)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, skipped, nil
}

// Accepted reports whether the top-ranked candidate clears the threshold.
func (cfg Config) Accepted(ranked []Score) (Score, bool) {
	if len(ranked) == 0 || ranked[0].Score < cfg.Threshold {
		return Score{}, false
	}
	return ranked[0], true
}
