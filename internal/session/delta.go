package session

import (
	"fmt"

	"mote/internal/delta"
	"mote/internal/domain"
	"mote/internal/form"
	"mote/internal/retain"
	"mote/internal/taskqueue"
)

// candidateMeta is the ephemeral correlation Session keeps for every
// in-flight delta candidate: which controller owns it and which batch it
// was queued under. It is as transient as the controller's own queue and
// batch state (§4.8 design note: not persisted across a save).
type candidateMeta struct {
	controllerID uint64
	batchID      uint64
}

// splitKey identifies a candidate within one controller well enough to
// recover which concrete Input it produced once EvaluateLevel names the
// winning Candidate value (delta.CandidateResult carries only the
// abstract split descriptor, not an input id).
type splitKey struct {
	batchID    uint64
	complement bool
	ranges     string
}

func keyFor(cand delta.Candidate) splitKey {
	return splitKey{batchID: cand.BatchID, complement: cand.Split.Complement, ranges: fmt.Sprint(cand.Split.Ranges)}
}

// maxCandidateRetries is not referenced: handleRepeat reports a candidate
// whose extraction mismatches its predicted length as Invalid on the
// first mismatch, without retrying it.
const maxCandidateRetries = 3

// startDeltaDebugging begins a ddmin run over rootInputID under
// generationID (§4.8, §4.9): allocates the Controller, wires its Hooks to
// this session, and queues the first level.
func (s *Session) startDeltaDebugging(rootInputID, generationID uint64) error {
	root, err := form.Lookup[*domain.Input](s.registry, rootInputID)
	if err != nil {
		return err
	}
	baseline := delta.Baseline{Verdict: root.Verdict, Primary: root.PrimaryScore, Secondary: root.SecondaryScore}

	ctrl := form.Create(s.registry, func(id uint64) *delta.Controller {
		hooks := delta.Hooks{
			RunCandidate:    func(c delta.Candidate) { s.runDeltaCandidate(id, c) },
			EnqueueEvaluate: func() { s.scheduler.Submit(&evaluateLevelTask{session: s, controllerID: id}) },
		}
		return delta.New(id, s.cfg.DeltaGoal, s.cfg.DeltaMode, s.cfg.DeltaParams, rootInputID, baseline, hooks)
	})

	entry := &controllerEntry{
		controller:   ctrl,
		generationID: generationID,
		holders:      make(map[uint64]*retain.Holder),
		resultInputs: make(map[splitKey]uint64),
	}
	s.mu.Lock()
	s.controllers[ctrl.ID()] = entry
	s.mu.Unlock()

	rootHolder := retain.Acquire(root)
	s.mu.Lock()
	entry.holders[rootInputID] = rootHolder
	s.mu.Unlock()

	s.beginNextLevel(ctrl.ID(), entry)
	return nil
}

func (s *Session) approxMode() bool {
	return s.cfg.DeltaParams.ApproxThreshold > 0
}

func (s *Session) scoreLookup() delta.ScoreLookup {
	return func(inputID uint64) (float64, bool) {
		in, err := form.Lookup[*domain.Input](s.registry, inputID)
		if err != nil {
			return 0, false
		}
		return in.PrimaryScore, true
	}
}

// beginNextLevel partitions the controller's current input and queues
// its next ddmin level. If the partition yields nothing runnable,
// BeginLevel is a no-op and the control-loop watchdog
// (Controller.NeedsEvaluateRequeue) drives EvaluateLevel directly.
func (s *Session) beginNextLevel(ctrlID uint64, entry *controllerEntry) {
	curID := entry.controller.CurrentInput()
	cur, err := form.Lookup[*domain.Input](s.registry, curID)
	if err != nil {
		s.finishController(ctrlID)
		return
	}
	parts := entry.controller.Partition(cur.EffectiveLength(), cur.IndividualPrimary)
	entry.controller.BeginLevel(curID, cur.DerivationTreeID, cur.Sequence, parts, s.tree, s.approxMode(), s.scoreLookup())
}

// runDeltaCandidate implements §4.8's "derivation extraction": ask the
// generator to extract a sub-tree from the candidate's parent, build the
// resulting Input, and submit it for execution. Extraction failures are
// reported as invalid candidates (§4.8 "discard if extraction is
// invalid"), never surfaced as a test.
func (s *Session) runDeltaCandidate(ctrlID uint64, cand delta.Candidate) {
	parentTree, err := form.Lookup[*domain.DerivationTree](s.registry, cand.DerivationTreeID)
	if err != nil {
		s.markCandidateInvalid(ctrlID, cand.BatchID)
		return
	}
	tree, err := s.generator.Extract(parentTree, cand.Split)
	if err != nil {
		s.markCandidateInvalid(ctrlID, cand.BatchID)
		return
	}
	dt := form.Adopt(s.registry, tree)
	seq := s.generator.Tokens(dt)

	in := form.Create(s.registry, domain.NewInput)
	in.Sequence = seq
	in.ParentID = cand.ParentInputID
	in.DerivationTreeID = dt.ID()
	in.TargetLength = cand.Length()
	in.Split = cand.Split
	dt.InputID = in.ID()
	in.SetFlag(domain.FlagGeneratedDeltaDebugging)

	s.mu.Lock()
	s.candidateOwner[in.ID()] = candidateMeta{controllerID: ctrlID, batchID: cand.BatchID}
	entry := s.controllers[ctrlID]
	if entry != nil {
		entry.holders[in.ID()] = retain.Acquire(in)
	}
	s.mu.Unlock()

	execHolder := retain.Acquire(in)
	s.submit(in, execHolder, nil)
}

func (s *Session) takeCandidateOwner(inputID uint64) (candidateMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.candidateOwner[inputID]
	if ok {
		delete(s.candidateOwner, inputID)
	}
	return meta, ok
}

func (s *Session) markCandidateInvalid(ctrlID, batchID uint64) {
	s.mu.Lock()
	entry := s.controllers[ctrlID]
	s.mu.Unlock()
	if entry == nil {
		return
	}
	entry.controller.MarkInvalid(batchID)
}

func (s *Session) releaseCandidateHolder(ctrlID, inputID uint64) {
	s.mu.Lock()
	entry := s.controllers[ctrlID]
	var holder *retain.Holder
	if entry != nil {
		holder = entry.holders[inputID]
		delete(entry.holders, inputID)
	}
	s.mu.Unlock()
	holder.Release()
}

// reportCandidateResult implements the delta-specific half of TestEnd:
// once a candidate's oracle verdict is known, feed it into its
// controller's batch accounting and remember which Input it produced so
// a later Replaced outcome can adopt it as the controller's new current
// input.
func (s *Session) reportCandidateResult(meta candidateMeta, in *domain.Input) {
	s.mu.Lock()
	entry := s.controllers[meta.controllerID]
	s.mu.Unlock()
	if entry == nil {
		return
	}

	cand := delta.Candidate{
		ParentInputID:    in.ParentID,
		DerivationTreeID: in.DerivationTreeID,
		Split:            in.Split,
		BatchID:          meta.batchID,
		Sequence:         in.Sequence,
	}
	result := delta.CandidateResult{
		Candidate: cand,
		Outcome:   delta.Outcome{Verdict: in.Verdict, Primary: in.PrimaryScore, Secondary: in.SecondaryScore},
	}

	s.mu.Lock()
	entry.resultInputs[keyFor(cand)] = in.ID()
	s.mu.Unlock()

	entry.controller.Complete(result)
}

// evaluateLevelTask adapts Hooks.EnqueueEvaluate to taskqueue.Task,
// running on the Light class (§4.8 "enqueues a single 'evaluate level'
// task to TaskScheduler (Light class)").
type evaluateLevelTask struct {
	session      *Session
	controllerID uint64
}

func (t *evaluateLevelTask) TypeTag() int64         { return int64(t.controllerID) }
func (t *evaluateLevelTask) Class() taskqueue.Class { return taskqueue.Light }
func (t *evaluateLevelTask) Dispose()               {}

func (t *evaluateLevelTask) Run(*taskqueue.WorkerContext) {
	t.session.evaluateLevel(t.controllerID)
}

func (s *Session) evaluateLevel(ctrlID uint64) {
	s.mu.Lock()
	entry := s.controllers[ctrlID]
	s.mu.Unlock()
	if entry == nil {
		return
	}

	curID := entry.controller.CurrentInput()
	cur, err := form.Lookup[*domain.Input](s.registry, curID)
	if err != nil {
		s.finishController(ctrlID)
		return
	}

	outcome := entry.controller.EvaluateLevel(cur.EffectiveLength())
	switch {
	case outcome.Finished:
		s.finishController(ctrlID)
	case outcome.Replaced:
		s.adoptReplacement(ctrlID, entry, outcome.Best)
	default:
		s.beginNextLevel(ctrlID, entry)
	}
}

// adoptReplacement implements §4.8 step 7: install the winning
// candidate's Input as the controller's new current input and start its
// next level.
func (s *Session) adoptReplacement(ctrlID uint64, entry *controllerEntry, best delta.CandidateResult) {
	s.mu.Lock()
	inputID, ok := entry.resultInputs[keyFor(best.Candidate)]
	s.mu.Unlock()
	if !ok {
		s.finishController(ctrlID)
		return
	}
	entry.controller.ReplaceCurrentInput(inputID, best.Outcome, 0)
	s.beginNextLevel(ctrlID, entry)
}

// finishController implements §4.8's "Finish": release every tracked
// candidate's DoNotFree pin except the controller's final current input
// (the minimized result, left pinned so it survives until something else
// reads or re-derives it), then drop the controller itself.
func (s *Session) finishController(ctrlID uint64) {
	s.mu.Lock()
	entry := s.controllers[ctrlID]
	delete(s.controllers, ctrlID)
	if entry != nil {
		for id := range s.candidateOwner {
			if s.candidateOwner[id].controllerID == ctrlID {
				delete(s.candidateOwner, id)
			}
		}
	}
	s.mu.Unlock()
	if entry == nil {
		return
	}

	result := entry.controller.CurrentInput()
	if in, err := form.Lookup[*domain.Input](s.registry, result); err == nil {
		in.SetFlag(domain.FlagDeltaDebugged)
	}

	s.mu.Lock()
	holders := entry.holders
	entry.holders = nil
	s.mu.Unlock()
	for id, holder := range holders {
		if id == result {
			continue
		}
		holder.Release()
	}
}
