package generation

import (
	"sort"

	"mote/internal/domain"
)

// RootOf identifies which delta-debugging root a candidate descends from,
// for Filter's root-fair share (§4.7).
type RootOf func(*domain.Input) uint64

// Filter selects up to n candidates from candidates, per §4.7: eligible
// inputs are those whose effective length minus minLength permits
// backtracking, and (unless excludeDeltaDebugged is false) not already
// flagged DeltaDebugged. Selection starts at the relative threshold
// startFrac and relaxes it by step until n candidates are chosen or frac
// exceeds 1. Within each pass each root receives an equal integer share
// of n, capped at its own available candidate count; any candidates
// beyond a root's share are rejected starting from the worst-ranked
// (the tail of that root's primary-sorted list).
func Filter(candidates []*domain.Input, rootOf RootOf, n int, max, startFrac, step float64, minLength int, excludeDeltaDebugged bool) []*domain.Input {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}

	eligible := make([]*domain.Input, 0, len(candidates))
	for _, c := range candidates {
		if excludeDeltaDebugged && c.HasFlag(domain.FlagDeltaDebugged) {
			continue
		}
		if c.EffectiveLength()-minLength <= 0 {
			continue
		}
		eligible = append(eligible, c)
	}
	sort.Slice(eligible, func(i, j int) bool { return PrimaryDesc(eligible[i], eligible[j]) })

	selected := make(map[uint64]*domain.Input)
	for frac := startFrac; frac > 0 && frac <= 1 && len(selected) < n; frac += step {
		threshold := max * (1 - frac)

		byRoot := make(map[uint64][]*domain.Input)
		var roots []uint64
		for _, c := range eligible {
			if _, already := selected[c.ID()]; already {
				continue
			}
			if c.PrimaryScore < threshold {
				continue
			}
			root := rootOf(c)
			if _, ok := byRoot[root]; !ok {
				roots = append(roots, root)
			}
			byRoot[root] = append(byRoot[root], c)
		}
		if len(roots) == 0 {
			continue
		}
		sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

		share := n / len(roots)
		if share == 0 {
			share = 1
		}
		for _, root := range roots {
			list := byRoot[root]
			budget := share
			if budget > len(list) {
				budget = len(list)
			}
			for i := 0; i < budget && len(selected) < n; i++ {
				selected[list[i].ID()] = list[i]
			}
		}
	}

	out := make([]*domain.Input, 0, len(selected))
	for _, c := range selected {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return PrimaryDesc(out[i], out[j]) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
