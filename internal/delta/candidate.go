package delta

import "mote/internal/domain"

// Candidate is one queued ddmin trial: a split descriptor against the
// controller's current input, tagged with the batch it was generated in
// (§4.8 "Each queued candidate holds a strong reference to that
// struct" — the engine-level equivalent here is the BatchID match check
// in Controller.Complete).
type Candidate struct {
	ParentInputID    uint64
	DerivationTreeID uint64
	Split            domain.ParentSplit
	BatchID          uint64
	Sequence         []string
}

// Length is the candidate's token count, used as the ReproduceResult
// tie-break (§4.8 step 7).
func (c Candidate) Length() int { return len(c.Sequence) }

// ExclusionOutcome classifies a candidate before it is ever queued for
// execution (§4.8 step 3).
type ExclusionOutcome int

const (
	ExclusionNone ExclusionOutcome = iota
	ExclusionPrefix
	ExclusionApprox
	ExclusionInvalid
)

// ScoreLookup resolves a prior terminal input's primary score, for the
// approximate-execution dominance check (§4.8 step 3). Returns false if
// the input is no longer resolvable (already reclaimed).
type ScoreLookup func(inputID uint64) (primary float64, ok bool)

// Classify decides whether a candidate should be run, skipped as an
// already-known prefix, or skipped as dominated in approximate-execution
// mode (§4.8 step 3). tree is queried with the candidate's materialized
// token sequence, not the split descriptor, since the exclusion tree
// indexes executed sequences directly.
func Classify(seq []string, tree prefixTree, approxMode bool, approxThreshold, origPrimary float64, lookup ScoreLookup) ExclusionOutcome {
	if found, _ := tree.HasPrefix(seq); found {
		return ExclusionPrefix
	}
	if !approxMode {
		return ExclusionNone
	}
	hasPrefix, _, hasExt, extID := tree.HasPrefixAndShortestExtension(seq)
	if hasPrefix {
		return ExclusionPrefix
	}
	if hasExt && lookup != nil {
		if score, ok := lookup(extID); ok && score > origPrimary*(1-approxThreshold) {
			return ExclusionApprox
		}
	}
	return ExclusionNone
}

// prefixTree is the subset of exclusion.Tree's API Classify depends on,
// kept local to avoid an import cycle concern and to keep this package's
// tests independent of the exclusion package's internals.
type prefixTree interface {
	HasPrefix(seq []string) (found bool, terminalInputID uint64)
	HasPrefixAndShortestExtension(seq []string) (hasPrefix bool, prefixID uint64, hasExtension bool, extensionID uint64)
}
