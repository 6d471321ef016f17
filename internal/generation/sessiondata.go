package generation

import (
	"sync"

	"mote/internal/domain"
	"mote/internal/stableset"
)

// ScoredRef is the weak, snapshot-scored reference stored in SessionData's
// indices: an input id plus the scores it had at insertion time, never a
// live *domain.Input pointer (§3's weak-reference discipline — the index
// must survive the backing input being dropped, and must re-validate
// liveness explicitly via Cleanup rather than by dereferencing a pointer).
type ScoredRef struct {
	InputID   uint64
	Primary   float64
	Secondary float64
	Length    int
}

func refOf(in *domain.Input) ScoredRef {
	return ScoredRef{InputID: in.ID(), Primary: in.PrimaryScore, Secondary: in.SecondaryScore, Length: in.Length()}
}

func primaryDescRef(a, b ScoredRef) bool {
	if a.Primary != b.Primary {
		return a.Primary > b.Primary
	}
	if a.Secondary != b.Secondary {
		return a.Secondary > b.Secondary
	}
	return a.Length < b.Length
}

const windowSize = 1000

// failureWindow is the sliding window of §4.7: the last windowSize
// generation attempts, tracked as a ring buffer so ConvergenceFailure can
// be decided in O(1) per attempt.
type failureWindow struct {
	buf      [windowSize]bool
	idx      int
	filled   int
	failures int
}

func (w *failureWindow) record(failed bool) {
	if w.filled == windowSize {
		if w.buf[w.idx] {
			w.failures--
		}
	} else {
		w.filled++
	}
	w.buf[w.idx] = failed
	if failed {
		w.failures++
	}
	w.idx = (w.idx + 1) % windowSize
}

// rateExceeded reports whether the window is full and the failure rate
// within it exceeds 0.9 (§4.7: "if the failure rate exceeds 0.9 and the
// total attempts exceed the window, the session ends with
// ConvergenceFailure").
func (w *failureWindow) rateExceeded() bool {
	return w.filled == windowSize && float64(w.failures)/float64(w.filled) > 0.9
}

// SessionData is the §3 singleton (reserved id 9) holding the session's
// scored-input indices and generation-failure window. Failing inputs are
// the "positive" finds of a bug-finding session; Passing inputs are
// "negative" (benign) results; Unfinished are timeouts/crashes the oracle
// could not classify. This positive=Failing mapping is a design decision
// recorded in DESIGN.md, since §4.7 names the indices without pinning
// which verdict is "positive".
type SessionData struct {
	domain.Form

	mu sync.Mutex

	topK int

	Positives  *stableset.Set[ScoredRef]
	Negatives  *stableset.Set[ScoredRef]
	Unfinished *stableset.Set[ScoredRef]

	window failureWindow

	TotalTests int64
}

// NewSessionData allocates the SessionData singleton; called by package
// form's CreateSingleton.
func NewSessionData(id uint64, topK int) *SessionData {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &SessionData{
		Form:       domain.NewForm(id, domain.FormTypeSessionData),
		topK:       topK,
		Positives:  stableset.New(topK, primaryDescRef),
		Negatives:  stableset.New(topK, primaryDescRef),
		Unfinished: stableset.New(topK, primaryDescRef),
	}
}

// Insert routes in into the index matching its verdict and records the
// test in the generation-failure window (§4.9 TestEnd step 5). Only
// Passing/Failing/Unfinished are valid here; other verdicts are a no-op.
func (sd *SessionData) Insert(in *domain.Input) {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	ref := refOf(in)
	switch in.Verdict {
	case domain.VerdictFailing:
		sd.Positives.Insert(ref)
	case domain.VerdictPassing:
		sd.Negatives.Insert(ref)
	case domain.VerdictUnfinished:
		sd.Unfinished.Insert(ref)
	default:
		return
	}
	sd.TotalTests++
	sd.MarkChanged()
}

// RecordGenerationAttempt folds a generation success/failure into the
// sliding window and reports whether the session must now end with
// ConvergenceFailure (§4.7).
func (sd *SessionData) RecordGenerationAttempt(failed bool) (convergenceFailure bool) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	sd.window.record(failed)
	sd.MarkChanged()
	return sd.window.rateExceeded()
}

// Counts reports the session-wide goal-check figures MasterControl's end
// check reads (§4.9 step 1): total scored tests and the current size of
// the positive/negative pools.
func (sd *SessionData) Counts() (total int64, positives, negatives int) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.TotalTests, sd.Positives.Len(), sd.Negatives.Len()
}

// PositivesSnapshot returns a copy of the current Positives ordering, for
// callers (generation rollover, delta-debugging selection) that need a
// consistent view without holding SessionData's own mutex across
// subsequent registry lookups.
func (sd *SessionData) PositivesSnapshot() []ScoredRef {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	out := make([]ScoredRef, len(sd.Positives.Items()))
	copy(out, sd.Positives.Items())
	return out
}

// SweepHalf implements §5's memory-pressure sweep (§4.9 MasterControl
// step 3): shrink the negative and unfinished pools to half their
// current size, evicting their weakest entries. The positive pool is
// never swept — it is the session's output, retained explicitly.
func (sd *SessionData) SweepHalf() {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	sd.Negatives.SetMaxSize(max(1, sd.Negatives.Len()/2))
	sd.Unfinished.SetMaxSize(max(1, sd.Unfinished.Len()/2))
	sd.MarkChanged()
}

// Status reports an input id's liveness for Cleanup: exists is false
// once the form has been dropped from the registry entirely.
type Status func(id uint64) (exists, duplicate, deleted bool)

// Cleanup walks the negative and unfinished indices, dropping entries
// whose backing input is gone, Duplicate, or Deleted (§4.9 MasterControl
// step 4). The positive index is never swept here: positive (Failing)
// results are the session's output and are retained explicitly.
func (sd *SessionData) Cleanup(status Status) {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	drop := func(r ScoredRef) bool {
		exists, dup, del := status(r.InputID)
		return !exists || dup || del
	}
	sd.Negatives.RemoveFunc(drop)
	sd.Unfinished.RemoveFunc(drop)
	sd.MarkChanged()
}
