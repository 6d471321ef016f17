package session

import (
	"context"

	"mote/internal/domain"
	"mote/internal/errkind"
	"mote/internal/exechandler"
	"mote/internal/form"
	"mote/internal/generation"
	"mote/internal/oracle"
	"mote/internal/retain"
	"mote/internal/taskqueue"
	"mote/pkg/logger"
)

// TestEnd dispatches a completed test through the seven steps of §4.9's
// test-completion pipeline: repeat detection, duplicate short-circuit,
// oracle evaluation, generation bookkeeping, index/exclusion-tree
// insertion, DoNotFree release, and generation-end check. holder is the
// execution-time pin acquired when the test was submitted (step 6
// releases it); a delta candidate carries a second, longer-lived pin
// tracked separately in its controllerEntry and released when the
// candidate is discarded as a repeat or duplicate, or when its controller
// finishes.
func (s *Session) TestEnd(t *exechandler.Test, wctx *taskqueue.WorkerContext, holder *retain.Holder) {
	defer holder.Release()
	in := t.Input
	if in == nil {
		return
	}

	if s.handleRepeat(in, holder) {
		return
	}
	if s.handleDuplicate(in, holder) {
		return
	}

	s.evaluateOracle(wctx, in)

	if gen := s.generationOf(in); gen != nil {
		gen.AddGeneratedOrDD(in.ID())
	}

	s.indexResult(in)

	if meta, ok := s.takeCandidateOwner(in.ID()); ok {
		s.reportCandidateResult(meta, in)
	}

	// Step 6 (DoNotFree release) happens via the deferred holder.Release
	// above; a delta candidate's extra pin is released separately, by
	// releaseCandidateHolder when handleRepeat or handleDuplicate discards
	// it, otherwise by finishController.

	s.mu.Lock()
	current := s.currentGenerationID
	s.mu.Unlock()
	if in.GenerationID != 0 && in.GenerationID == current {
		if gen := s.generationOf(in); gen != nil {
			s.checkGenerationEnd(gen)
		}
	}
}

// handleRepeat implements step 1: a delta candidate whose extracted
// derivation tree didn't actually produce the length the split predicted
// is discarded rather than scored, since the naive token-level split
// computed by Controller.Partition can diverge from what a
// context-sensitive grammar's extraction actually yields.
func (s *Session) handleRepeat(in *domain.Input, holder *retain.Holder) bool {
	if !in.HasFlag(domain.FlagGeneratedDeltaDebugging) || in.DerivationTreeID == 0 {
		return false
	}
	if in.Length() == in.TargetLength {
		return false
	}

	in.SetFlag(domain.FlagRepeat)
	logger.Warn().Uint64("input", in.ID()).Int("target", in.TargetLength).Int("actual", in.Length()).
		Msg("session: delta candidate size mismatch against parent derivation tree, discarding")

	if meta, ok := s.takeCandidateOwner(in.ID()); ok {
		s.markCandidateInvalid(meta.controllerID, meta.batchID)
		s.releaseCandidateHolder(meta.controllerID, in.ID())
	}
	s.discardInput(in, holder)
	return true
}

// handleDuplicate implements step 2: if the exclusion tree already has a
// decided terminal for this input's (possibly fragment-trimmed) effective
// sequence, this input contributes nothing new; its prior occupant is the
// effective input of record.
func (s *Session) handleDuplicate(in *domain.Input, holder *retain.Holder) bool {
	seq := effectiveSequence(in)
	found, priorID := s.tree.HasPrefix(seq)
	if !found || priorID == in.ID() {
		return false
	}

	in.SetFlag(domain.FlagDuplicate)
	if prior, err := form.Lookup[*domain.Input](s.registry, priorID); err == nil {
		prior.DerivedInputs++
		if prior.Verdict == domain.VerdictFailing {
			prior.DerivedFails++
		}
		prior.MarkChanged()
	}

	if meta, ok := s.takeCandidateOwner(in.ID()); ok {
		s.markCandidateInvalid(meta.controllerID, meta.batchID)
		s.releaseCandidateHolder(meta.controllerID, in.ID())
	}
	s.discardInput(in, holder)
	return true
}

// effectiveSequence returns the portion of in.Sequence that actually ran,
// trimming dead trailing fragments per Input.EffectiveLength.
func effectiveSequence(in *domain.Input) []string {
	if in.TrimmedLength >= 0 && in.TrimmedLength < len(in.Sequence) {
		return in.Sequence[:in.TrimmedLength]
	}
	return in.Sequence
}

// discardInput deletes in and its derivation tree from the registry,
// releasing the execution holder first since Registry.Delete refuses
// forms that are still DoNotFree-pinned.
func (s *Session) discardInput(in *domain.Input, holder *retain.Holder) {
	holder.Release()
	if in.DerivationTreeID != 0 {
		s.registry.Delete(in.DerivationTreeID)
	}
	s.registry.Delete(in.ID())
}

// evaluateOracle implements step 3: run the scripted oracle under the
// worker's context, or record OracleContextMissing and leave the input
// Undefined (which step 5's index insertion treats as a no-op) if the
// worker never got one.
func (s *Session) evaluateOracle(wctx *taskqueue.WorkerContext, in *domain.Input) {
	if wctx == nil {
		logger.Error().Uint64("input", in.ID()).Err(errkind.ErrOracleContextMissing).
			Msg("session: test completed on a worker with no oracle context")
		in.Verdict = domain.VerdictUndefined
		in.MarkChanged()
		return
	}

	verdict, err := oracle.Evaluate(context.Background(), wctx.Data(), in)
	if err != nil {
		logger.Error().Err(err).Uint64("input", in.ID()).Msg("session: oracle evaluation failed")
		verdict = domain.VerdictUndefined
	}
	in.Verdict = verdict
	in.MarkChanged()
}

// generationOf resolves the Generation an input was produced under, if
// it is still live.
func (s *Session) generationOf(in *domain.Input) *generation.Generation {
	if in.GenerationID == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[in.GenerationID]
}

// indexResult implements step 5: route the scored input into
// SessionData and, for terminal verdicts, publish it in the exclusion
// tree.
func (s *Session) indexResult(in *domain.Input) {
	s.data.Insert(in)

	switch in.Verdict {
	case domain.VerdictPassing, domain.VerdictFailing, domain.VerdictUnfinished:
		if dup := s.tree.AddInput(effectiveSequence(in), in.Verdict, in.ID()); dup {
			in.SetFlag(domain.FlagDuplicate)
		}
	}
}

// checkGenerationEnd implements step 7: ask the generation whether it has
// reached a terminal state now that one more of its outstanding attempts
// has resolved, firing its end callback at most once.
func (s *Session) checkGenerationEnd(g *generation.Generation) {
	_, running, _ := s.handler.Counts()
	handlerIdle := running == 0
	sourcesExhausted := g.SourcesExhausted()

	if !g.EndStatus(sourcesExhausted, handlerIdle) {
		return
	}
	if !g.TryBeginEndCallback() {
		return
	}
	s.onGenerationEnd(g)
}
