package scene

import "fmt"

// MakePairs builds the list of view pairs submitted to the reconstruction
// stage. The complete strategy emits every unordered pair (i, j) with i < j;
// the subset strategy uses the configured pair list after checking that each
// referenced id exists. Symmetrize appends the reversed edge for every pair,
// skipping reversals already present.
func MakePairs(views []View, pairing PairingConfig) ([]ViewPair, error) {
	known := make(map[int]bool, len(views))
	for _, v := range views {
		known[v.ID] = true
	}

	var pairs []ViewPair
	switch pairing.Strategy {
	case PairingComplete:
		for i := 0; i < len(views); i++ {
			for j := i + 1; j < len(views); j++ {
				pairs = append(pairs, ViewPair{A: views[i].ID, B: views[j].ID})
			}
		}
	case PairingSubset:
		for _, p := range pairing.Pairs {
			if !known[p.A] || !known[p.B] {
				return nil, fmt.Errorf("pair (%d, %d) references an unknown view", p.A, p.B)
			}
			if p.A == p.B {
				return nil, fmt.Errorf("pair (%d, %d) is degenerate", p.A, p.B)
			}
			pairs = append(pairs, p)
		}
	default:
		return nil, fmt.Errorf("unknown pairing strategy %q", pairing.Strategy)
	}

	if pairing.Symmetrize {
		pairs = symmetrizePairs(pairs)
	}
	return pairs, nil
}

// symmetrizePairs appends the reversed edge for each pair unless that exact
// edge is already listed.
func symmetrizePairs(pairs []ViewPair) []ViewPair {
	seen := make(map[ViewPair]bool, len(pairs)*2)
	for _, p := range pairs {
		seen[p] = true
	}

	out := make([]ViewPair, len(pairs), len(pairs)*2)
	copy(out, pairs)
	for _, p := range pairs {
		rev := ViewPair{A: p.B, B: p.A}
		if !seen[rev] {
			seen[rev] = true
			out = append(out, rev)
		}
	}
	return out
}
