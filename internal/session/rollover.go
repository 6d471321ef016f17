package session

import (
	"mote/internal/domain"
	"mote/internal/form"
	"mote/internal/generation"
	"mote/pkg/logger"
)

// maxRootWalk bounds the ParentID walk in rootOf against an accidental
// cycle; a real ddmin chain is never anywhere near this deep.
const maxRootWalk = 10000

// rootOf follows an input's ParentID chain back to the grammar-generated
// ancestor that started it (ParentID 0): a delta candidate's ParentID is
// its immediate predecessor within one controller's chain, so walking it
// to the root recovers which DeltaController (or none) a scored result
// ultimately descends from, for Filter's root-fair selection (§4.7).
func (s *Session) rootOf(id uint64) uint64 {
	for i := 0; i < maxRootWalk; i++ {
		in, err := form.Lookup[*domain.Input](s.registry, id)
		if err != nil || in.ParentID == 0 {
			return id
		}
		id = in.ParentID
	}
	return id
}

// filterEligible reports whether ref may be selected at all: its backing
// input must still exist, not be a recorded duplicate, have enough
// length left to backtrack, and (if configured) not already be
// DeltaDebugged (§4.7 "Only inputs whose length ... permits backtracking
// are eligible, and inputs flagged DeltaDebugged may be excluded").
func (s *Session) filterEligible(ref generation.ScoredRef) (*domain.Input, bool) {
	in, err := form.Lookup[*domain.Input](s.registry, ref.InputID)
	if err != nil || in.HasFlag(domain.FlagDuplicate) {
		return nil, false
	}
	if in.Length()-s.cfg.FilterMinLength <= 0 {
		return nil, false
	}
	if s.cfg.FilterExcludeDeltaDebugged && in.HasFlag(domain.FlagDeltaDebugged) {
		return nil, false
	}
	return in, true
}

// filterSelect implements §4.7's Filter: threshold-relax refs (already
// sorted best-first by primary score) down to target selections,
// root-fair across the delta-controller ancestry each ref descends from.
func (s *Session) filterSelect(refs []generation.ScoredRef, target int) []uint64 {
	if target <= 0 || len(refs) == 0 {
		return nil
	}

	roots := make(map[uint64]int, len(refs))
	for _, ref := range refs {
		roots[s.rootOf(ref.InputID)]++
	}
	perRoot := target
	if n := len(roots); n > 1 {
		perRoot = target / n
		if perRoot == 0 {
			perRoot = 1
		}
	}
	budget := make(map[uint64]int, len(roots))
	for root, count := range roots {
		b := perRoot
		if count < b {
			b = count
		}
		budget[root] = b
	}

	maxScore := refs[0].Primary
	used := make(map[uint64]int, len(roots))
	var selected []uint64
	seen := make(map[uint64]bool, target)

	for frac := s.cfg.FilterStartFrac; frac <= 1.0 && len(selected) < target; frac += s.cfg.FilterFracStep {
		threshold := maxScore * (1 - frac)
		for _, ref := range refs {
			if len(selected) >= target {
				break
			}
			if seen[ref.InputID] || ref.Primary < threshold {
				continue
			}
			if _, ok := s.filterEligible(ref); !ok {
				continue
			}
			root := s.rootOf(ref.InputID)
			if used[root] >= budget[root] {
				continue
			}
			seen[ref.InputID] = true
			used[root]++
			selected = append(selected, ref.InputID)
		}
	}
	return selected
}

// onGenerationEnd implements the generation-rollover half of §4.9's
// MasterControl: once a generation latches "ending", hand its qualifying
// Failing results to fresh DeltaControllers (if delta debugging is
// configured) and start the next generation seeded from the best
// surviving results overall. The session-wide end conditions (goal
// counts, timeout, convergence failure) are MasterControl's own end
// check, not this callback's concern; if the session has already been
// asked to abort, this is a no-op.
func (s *Session) onGenerationEnd(g *generation.Generation) {
	defer g.ClearEndCallback()
	if s.aborted() {
		return
	}

	if s.cfg.DeltaDebugging {
		s.startDeltaForGeneration(g)
	}

	sources := s.filterSelect(s.data.PositivesSnapshot(), int(s.cfg.FilterNextGenerationSources))
	s.beginGeneration(sources)
}

// startDeltaForGeneration selects the ended generation's own Failing
// results via Filter and starts one DeltaController per selection.
func (s *Session) startDeltaForGeneration(g *generation.Generation) {
	var ownResults []generation.ScoredRef
	for _, ref := range s.data.PositivesSnapshot() {
		if g.Contains(ref.InputID) {
			ownResults = append(ownResults, ref)
		}
	}
	target := int(s.cfg.DeltaDebugTargetCount)
	if target <= 0 {
		target = len(ownResults)
	}
	for _, id := range s.filterSelect(ownResults, target) {
		if err := s.startDeltaDebugging(id, g.ID()); err != nil {
			logger.Warn().Err(err).Uint64("input", id).Msg("session: failed to start delta debugging")
		}
	}
}
