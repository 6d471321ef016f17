// Package generation implements the per-cycle generation bookkeeping and
// the session-wide scored-input indices of §4.7: sorting predicates,
// bounded top-K multisets, the root-fair Filter algorithm, and the
// budget/ending arithmetic a Generation exposes to the session control
// loop.
package generation

import "mote/internal/domain"

// PrimaryDesc orders a ahead of b by primary score, then secondary score,
// then shorter length (§4.7 "Primary-desc").
func PrimaryDesc(a, b *domain.Input) bool {
	if a.PrimaryScore != b.PrimaryScore {
		return a.PrimaryScore > b.PrimaryScore
	}
	if a.SecondaryScore != b.SecondaryScore {
		return a.SecondaryScore > b.SecondaryScore
	}
	return a.Length() < b.Length()
}

// SecondaryDesc is PrimaryDesc with primary and secondary swapped
// (§4.7 "symmetric").
func SecondaryDesc(a, b *domain.Input) bool {
	if a.SecondaryScore != b.SecondaryScore {
		return a.SecondaryScore > b.SecondaryScore
	}
	if a.PrimaryScore != b.PrimaryScore {
		return a.PrimaryScore > b.PrimaryScore
	}
	return a.Length() < b.Length()
}

// LengthDesc orders a ahead of b by length, ties breaking by primary
// score descending (§4.7 "Length-desc").
func LengthDesc(a, b *domain.Input) bool {
	if a.Length() != b.Length() {
		return a.Length() > b.Length()
	}
	return a.PrimaryScore > b.PrimaryScore
}

// DefaultTopK is the stable_multiset<K> capacity used unless a session
// overrides it (§4.7 "Default K=100").
const DefaultTopK = 100
