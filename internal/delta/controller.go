package delta

import (
	"sync"
	"sync/atomic"
	"time"

	"mote/internal/domain"
)

// Counters are the §4.8 per-controller diagnostics.
type Counters struct {
	Total     int64
	Skipped   int64 // stale batch
	Prefix    int64 // excluded by exclusion tree
	Approx    int64 // excluded by approximation
	Invalid   int64 // derivation extraction failed
	Active    int64
	Waiting   int64
	BatchID   uint64
	Level     int
	StartTime time.Time
	EndTime   time.Time
}

// Hooks connect a Controller to the rest of the engine without importing
// taskqueue or exechandler directly, mirroring the CommandBuilder-style
// indirection already used between internal/oracle and internal/exechandler.
type Hooks struct {
	// RunCandidate submits a candidate for derivation-tree extraction and
	// execution; the caller reports back via Controller.Complete.
	RunCandidate func(Candidate)
	// EnqueueEvaluate submits the controller's "evaluate level" task to
	// TaskScheduler's Light class (§4.8 "Batch orchestration").
	EnqueueEvaluate func()
}

// batchState is the §4.8 "Tasks" struct: an atomic counter plus the two
// end-of-batch bookkeeping bools, guarded by its own mutex since they are
// read/written from both candidate-completion callbacks and the
// session-control watchdog.
type batchState struct {
	mu                sync.Mutex
	id                uint64
	outstanding       int64
	sendEndEvent      bool
	processedEndEvent bool
}

// Controller is the per-root ddmin state machine (§4.8). It is a dynamic
// (non-singleton) form: DeltaController instances are created per
// delta-debugging root and referenced weakly by id, the same discipline
// as Generation.
type Controller struct {
	domain.Form

	mu sync.Mutex

	goal   Goal
	mode   Mode
	params Params
	hooks  Hooks

	currentInputID uint64
	baseline       Baseline
	level          int
	skipRanges     int

	batch     batchState
	queue     []Candidate
	completed []CandidateResult

	counters Counters

	totalTests atomic.Int64
	done       bool
}

// New allocates a Controller over root, whose own outcome becomes the
// ddmin baseline every candidate is measured against.
func New(id uint64, goal Goal, mode Mode, params Params, rootInputID uint64, baseline Baseline, hooks Hooks) *Controller {
	return &Controller{
		Form:           domain.NewForm(id, domain.FormTypeDeltaController),
		goal:           goal,
		mode:           mode,
		params:         params,
		hooks:          hooks,
		currentInputID: rootInputID,
		baseline:       baseline,
		level:          2,
		counters:       Counters{Level: 2, StartTime: timeNow()},
	}
}

// timeNow is a seam so tests can avoid depending on wall-clock time;
// production callers get time.Now via the default assignment below.
var timeNow = time.Now

// SetHooks rewires a controller's hooks. New controllers receive theirs
// through New; a controller reloaded from disk has a blank Hooks value
// until the session reattaches its RunCandidate/EnqueueEvaluate closures
// after InitializeLate (the resolver itself is hooks-agnostic).
func (c *Controller) SetHooks(hooks Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = hooks
}

// Budget reports whether the controller has exhausted its total-test
// budget (§4.8 step 9). Budget == 0 means unlimited.
func (c *Controller) Budget() (exceeded bool) {
	if c.params.Budget == 0 {
		return false
	}
	return c.totalTests.Load() >= c.params.Budget
}

// Level returns the controller's current ddmin level.
func (c *Controller) Level() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// CurrentInput returns the input id the controller currently treats as
// its best-known reduction.
func (c *Controller) CurrentInput() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentInputID
}

// Counters returns a snapshot of the controller's diagnostics.
func (c *Controller) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.counters
	snap.Waiting = int64(len(c.queue))
	return snap
}

// Partition computes this level's candidate splits for the controller's
// mode, given the current input's length (Standard) or per-position
// primary scores (ScoreProgress).
func (c *Controller) Partition(length int, individualPrimary []float64) []domain.SplitRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.mode {
	case ModeScoreProgress:
		ranges := ScoreRanges(individualPrimary, c.skipRanges)
		return PartitionScoreProgress(ranges, c.level)
	default:
		return PartitionStandard(length, c.level)
	}
}

// BeginLevel starts a fresh batch from parts, queuing a part/complement
// Candidate pair for every part of length >= ExecuteAboveLength that
// Classify lets through (§4.8 steps 2-5). Candidates Classify rejects are
// still counted but never queued or dispatched.
func (c *Controller) BeginLevel(parentInputID, derivationTreeID uint64, seq []string, parts []domain.SplitRange, tree prefixTree, approxMode bool, lookup ScoreLookup) {
	c.mu.Lock()

	c.batch.mu.Lock()
	c.batch.id++
	batchID := c.batch.id
	c.batch.sendEndEvent = false
	c.batch.processedEndEvent = false
	c.batch.outstanding = 0
	c.batch.mu.Unlock()

	c.completed = nil
	c.queue = nil
	c.counters.BatchID = batchID
	c.counters.Active = 0

	runnable := make([]Candidate, 0, len(parts)*2)
	for _, part := range parts {
		if part.Length < c.params.ExecuteAboveLength {
			continue
		}
		for _, complement := range []bool{false, true} {
			split := domain.ParentSplit{Ranges: []domain.SplitRange{part}, Complement: complement}
			candSeq := ApplySplit(seq, split)
			switch Classify(candSeq, tree, approxMode, c.params.ApproxThreshold, c.baseline.Primary, lookup) {
			case ExclusionPrefix:
				c.counters.Prefix++
			case ExclusionApprox:
				c.counters.Approx++
			default:
				runnable = append(runnable, Candidate{
					ParentInputID:    parentInputID,
					DerivationTreeID: derivationTreeID,
					Split:            split,
					BatchID:          batchID,
					Sequence:         candSeq,
				})
			}
		}
	}

	if len(runnable) == 0 {
		// Nothing to run this level; caller (session watchdog) observes
		// outstanding==0 && !sendEndEvent and drives EvaluateLevel directly.
		c.mu.Unlock()
		return
	}

	cap := c.params.BatchCap
	dispatch := len(runnable)
	if cap > 0 && int64(dispatch) > cap {
		dispatch = int(cap)
	}
	c.queue = append(c.queue, runnable[dispatch:]...)

	c.batch.mu.Lock()
	c.batch.outstanding = int64(len(runnable))
	c.batch.mu.Unlock()
	c.counters.Active = int64(dispatch)

	toRun := append([]Candidate(nil), runnable[:dispatch]...)
	c.mu.Unlock()

	for _, cand := range toRun {
		c.hooks.RunCandidate(cand)
	}
}

// MarkInvalid records a candidate whose derivation extraction failed
// (§4.8 "derivation extraction... discard if extraction is invalid"),
// using the same batch-accounting path as a completed candidate so the
// end-of-batch bookkeeping still fires correctly.
func (c *Controller) MarkInvalid(batchID uint64) {
	c.mu.Lock()
	c.counters.Invalid++
	c.mu.Unlock()
	c.settle(batchID)
}

// Complete records a candidate's execution result (§4.8 "Batch
// orchestration"). A stale batch id is counted and discarded; otherwise
// the result is recorded and the next waiting candidate (if any) is
// dispatched.
func (c *Controller) Complete(result CandidateResult) {
	c.totalTests.Add(1)

	c.mu.Lock()
	if result.Candidate.BatchID == c.counters.BatchID {
		c.counters.Total++
		c.completed = append(c.completed, result)
	} else {
		c.counters.Skipped++
	}
	c.mu.Unlock()

	c.settle(result.Candidate.BatchID)
}

// settle runs the shared end-of-candidate accounting: the slot the
// settled candidate held goes to the next waiting job (so the batch cap
// is never exceeded), the outstanding counter is decremented, and
// EnqueueEvaluate fires exactly once when the batch drains.
func (c *Controller) settle(batchID uint64) {
	c.mu.Lock()
	isCurrent := batchID == c.counters.BatchID
	if !isCurrent {
		// A stale batch's bookkeeping was already finalized when its own
		// batch ended or was superseded; nothing left to decrement here.
		c.mu.Unlock()
		return
	}
	var next *Candidate
	if len(c.queue) > 0 {
		n := c.queue[0]
		c.queue = c.queue[1:]
		next = &n
	} else {
		c.counters.Active--
	}
	c.mu.Unlock()

	if next != nil {
		c.hooks.RunCandidate(*next)
	}

	c.batch.mu.Lock()
	c.batch.outstanding--
	fire := c.batch.outstanding <= 0 && !c.batch.sendEndEvent
	if fire {
		c.batch.sendEndEvent = true
	}
	c.batch.mu.Unlock()

	if fire {
		c.hooks.EnqueueEvaluate()
	}
}

// StopBatch is the "stop batch" fast path of §4.8 (primary goal reached
// early): clears the waiting queue and drives outstanding to zero so the
// evaluate task fires immediately instead of waiting for every dispatched
// candidate to report back.
func (c *Controller) StopBatch() {
	c.mu.Lock()
	drained := int64(len(c.queue))
	c.queue = nil
	c.mu.Unlock()

	c.batch.mu.Lock()
	c.batch.outstanding -= drained
	fire := c.batch.outstanding <= 0 && !c.batch.sendEndEvent
	if fire {
		c.batch.sendEndEvent = true
	}
	c.batch.mu.Unlock()

	if fire {
		c.hooks.EnqueueEvaluate()
	}
}

// NeedsEvaluateRequeue implements the session control loop's watchdog
// (§4.8 safeguard i): true when the batch has quietly drained without
// ever firing EnqueueEvaluate, or when the evaluate task was enqueued but
// never actually ran.
func (c *Controller) NeedsEvaluateRequeue() bool {
	c.batch.mu.Lock()
	defer c.batch.mu.Unlock()
	if c.batch.outstanding <= 0 && !c.batch.sendEndEvent {
		return true
	}
	return c.batch.sendEndEvent && !c.batch.processedEndEvent
}

// RequeueEvaluate re-submits the evaluate task per the watchdog.
func (c *Controller) RequeueEvaluate() {
	c.batch.mu.Lock()
	c.batch.sendEndEvent = true
	c.batch.mu.Unlock()
	c.hooks.EnqueueEvaluate()
}

// LevelOutcome reports what EvaluateLevel decided, for the caller to act
// on (replace the current input, re-derive, or terminate).
type LevelOutcome struct {
	Finished     bool
	Replaced     bool
	Best         CandidateResult
	BudgetHit    bool
}

// EvaluateLevel is the task enqueued via Hooks.EnqueueEvaluate (§4.8
// steps 6-9). It flips processedEndEvent on entry, evaluates every
// completed candidate against Accept, and advances the controller's
// state per the level-progression rules.
func (c *Controller) EvaluateLevel(sequenceLength int) LevelOutcome {
	c.batch.mu.Lock()
	c.batch.processedEndEvent = true
	c.batch.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	var passing []CandidateResult
	for _, r := range c.completed {
		if Accept(c.goal, c.baseline, r.Outcome, c.params) {
			passing = append(passing, r)
		}
	}

	if c.Budget() {
		c.done = true
		c.counters.EndTime = timeNow()
		return LevelOutcome{Finished: true, BudgetHit: true}
	}

	if len(passing) > 0 {
		best := Best(c.goal, passing)
		if best.Candidate.Split.Complement {
			c.level = max(2, c.level-1)
		} else {
			c.level = 2
		}
		c.counters.Level = c.level
		return LevelOutcome{Replaced: true, Best: best}
	}

	c.level = min(2*c.level, sequenceLength)
	c.counters.Level = c.level
	if c.level >= sequenceLength {
		c.done = true
		c.counters.EndTime = timeNow()
		return LevelOutcome{Finished: true}
	}
	return LevelOutcome{}
}

// Done reports whether the controller has reached a terminal state.

func (c *Controller) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// ReplaceCurrentInput installs a new current input after a successful
// level (§4.8 step 7), for the caller to call once the replacement's
// derivation tree has actually been committed.
func (c *Controller) ReplaceCurrentInput(inputID uint64, outcome Outcome, skipRanges int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentInputID = inputID
	c.baseline = Baseline{Verdict: outcome.Verdict, Primary: outcome.Primary, Secondary: outcome.Secondary}
	c.skipRanges = skipRanges
}
