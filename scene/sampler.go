package scene

import (
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
)

// SampleEvenly returns k indices spread evenly across [0, count-1] inclusive,
// computed by linear interpolation and rounding to the nearest integer.
// Duplicates can appear only when rounding forces them (k close to count).
// When count < k the sampler degrades to min(k, count) indices instead of
// faulting; k <= 0 or count <= 0 yields an empty selection.
func SampleEvenly(count, k int) []int {
	if count <= 0 || k <= 0 {
		return nil
	}
	if k > count {
		k = count
	}
	if k == 1 {
		return []int{0}
	}

	positions := make([]float64, k)
	floats.Span(positions, 0, float64(count-1))

	indices := make([]int, k)
	for i, p := range positions {
		indices[i] = int(math.Round(p))
	}
	return indices
}

// SampleMatches selects an evenly spaced subsample of a correspondence set
// for display, preserving pixel co-indexing.
func SampleMatches(set CorrespondenceSet, k int) CorrespondenceSet {
	indices := SampleEvenly(set.Count(), k)

	out := CorrespondenceSet{
		Matches: make([]Match, len(indices)),
		PixelsA: make([]orb.Point, len(indices)),
		PixelsB: make([]orb.Point, len(indices)),
	}
	for i, idx := range indices {
		out.Matches[i] = set.Matches[idx]
		out.PixelsA[i] = set.PixelsA[idx]
		out.PixelsB[i] = set.PixelsB[idx]
	}
	return out
}
