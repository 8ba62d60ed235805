package scene

import (
	"runtime"
	"sync"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

// Match pairs an index into point set A with an index into point set B.
type Match struct {
	A int
	B int
}

// CorrespondenceSet is the accepted reciprocal correspondence between two
// filtered point sets, with the matched pixel coordinates co-indexed to
// Matches. It is derived on demand and discarded after sampling.
type CorrespondenceSet struct {
	Matches []Match
	PixelsA []orb.Point
	PixelsB []orb.Point
}

// Count returns the number of accepted matches.
func (c CorrespondenceSet) Count() int {
	return len(c.Matches)
}

// FindReciprocalMatches computes the mutual nearest-neighbor correspondence
// between two 3D point sets. A pair (a, b) is accepted iff b is the nearest
// point in B to a and a is the nearest point in A to b, by Euclidean
// distance. Ties resolve to the lowest candidate index, so identical inputs
// always produce the identical ordered output. Results are in enumeration
// order of set A. An empty side yields zero matches.
//
// maxDist, when > 0, additionally rejects mutual pairs farther apart than
// that; without it any two non-empty sets produce at least one match (the
// globally closest pair is always mutual).
func FindReciprocalMatches(a, b []r3.Vec, maxDist float64) []Match {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	nnB := nearestIndices(a, b)
	nnA := nearestIndices(b, a)

	maxDistSq := maxDist * maxDist

	var matches []Match
	for ai, bi := range nnB {
		if nnA[bi] != ai {
			continue
		}
		if maxDist > 0 && distSq(a[ai], b[bi]) > maxDistSq {
			continue
		}
		matches = append(matches, Match{A: ai, B: bi})
	}
	return matches
}

// MatchPointSets runs FindReciprocalMatches over two mask-filtered point
// sets and carries the originating pixel coordinates through to the result.
func MatchPointSets(a, b PointSet, maxDist float64) CorrespondenceSet {
	matches := FindReciprocalMatches(a.Points, b.Points, maxDist)

	set := CorrespondenceSet{
		Matches: matches,
		PixelsA: make([]orb.Point, len(matches)),
		PixelsB: make([]orb.Point, len(matches)),
	}
	for i, m := range matches {
		set.PixelsA[i] = a.Pixels[m.A]
		set.PixelsB[i] = b.Pixels[m.B]
	}
	return set
}

// nearestIndices returns, for every point in from, the index of its nearest
// point in to. Queries are independent, so the work is chunked across
// goroutines; each writes only its own slots of the preallocated result.
// Candidates are scanned in ascending index with a strict less-than, which
// makes the lowest index win on exact distance ties.
func nearestIndices(from, to []r3.Vec) []int {
	nn := make([]int, len(from))

	workers := runtime.NumCPU()
	if workers > len(from) {
		workers = len(from)
	}
	chunk := (len(from) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(from) {
			hi = len(from)
		}
		if lo >= hi {
			break
		}

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				nn[i] = nearestIndex(from[i], to)
			}
		}(lo, hi)
	}
	wg.Wait()

	return nn
}

// nearestIndex returns the index of the point in to closest to p. Squared
// distances avoid the sqrt; ordering is unchanged.
func nearestIndex(p r3.Vec, to []r3.Vec) int {
	best := 0
	bestDist := distSq(p, to[0])
	for i := 1; i < len(to); i++ {
		if d := distSq(p, to[i]); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func distSq(p, q r3.Vec) float64 {
	d := r3.Sub(p, q)
	return r3.Dot(d, d)
}
