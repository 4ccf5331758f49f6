// Package voting implements the fuzzy-bucketing first-to-ahead-by-k
// reduction over a stream of ensemble candidates.
package voting

import "github.com/microfactory-run/microfactory/pkg/schema"

// SimilarityThreshold is the fixed tie threshold for fuzzy bucketing:
// implementations may tighten it but must never loosen it.
const SimilarityThreshold = 0.85

type bucket struct {
	representative string
	count          int
}

// Reduce implements first-to-ahead-by-k with fuzzy bucketing over a
// fully materialized batch of candidates, consumed in arrival order. Only
// Accepted candidates contribute tallies.
//
// The decisive (margin >= k) and plurality-fallback paths
// compute the identical {winner, margin, tally} shape from the final
// bucket state — they differ only in *when* a live sampler may stop
// requesting further samples, which this pure reduction does not model.
// k <= 1 degenerates to a plain majority vote over whatever was
// collected, so a dedicated majority_vote helper was unnecessary: that
// case collapses into this same path.
func Reduce(candidates []schema.AnnotatedCandidate, k int) schema.VoteResult {
	var buckets []*bucket

	for i, c := range candidates {
		if !c.Accepted {
			continue
		}
		found := false
		for _, b := range buckets {
			if Similarity(c.Text, b.representative) >= SimilarityThreshold {
				b.count++
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, &bucket{representative: c.Text, count: 1})
		}
		_ = i
	}

	if len(buckets) == 0 {
		return schema.VoteResult{Tally: map[string]int{}}
	}

	var top, second *bucket
	for _, b := range buckets {
		switch {
		case top == nil || b.count > top.count:
			second = top
			top = b
		case second == nil || b.count > second.count:
			second = b
		}
	}

	secondCount := 0
	if second != nil {
		secondCount = second.count
	}

	tally := make(map[string]int, len(buckets))
	for _, b := range buckets {
		tally[b.representative] = b.count
	}

	w := top.representative
	return schema.VoteResult{
		Winner: &w,
		Margin: top.count - secondCount,
		Tally:  tally,
	}
}

// DecisiveEarly reports whether, given the candidates seen so far (in
// arrival order), the leading bucket has already pulled ahead by k. The
// ensemble sampler does not call it: every batch is sampled in full
// before a vote.
func DecisiveEarly(soFar []schema.AnnotatedCandidate, k int) bool {
	if k < 1 {
		return false
	}
	result := Reduce(soFar, k)
	return result.Winner != nil && result.Margin >= k
}
