package delta

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mote/internal/domain"
)

type fakeTree struct{}

func (fakeTree) HasPrefix(seq []string) (bool, uint64) { return false, 0 }
func (fakeTree) HasPrefixAndShortestExtension(seq []string) (bool, uint64, bool, uint64) {
	return false, 0, false, 0
}

func newTestController(goal Goal, hooks Hooks) *Controller {
	return New(1, goal, ModeStandard, Params{ExecuteAboveLength: 0, BatchCap: 0, AcceptableLossRel: 1, AcceptableLossAbs: 1000},
		10, Baseline{Verdict: 1, Primary: 100}, hooks)
}

func TestBeginLevelDispatchesAllCandidatesUnderUnlimitedCap(t *testing.T) {
	var mu sync.Mutex
	var dispatched []Candidate
	hooks := Hooks{
		RunCandidate: func(c Candidate) {
			mu.Lock()
			dispatched = append(dispatched, c)
			mu.Unlock()
		},
		EnqueueEvaluate: func() {},
	}
	c := newTestController(GoalReproduceResult, hooks)

	seq := make([]string, 10)
	for i := range seq {
		seq[i] = "t"
	}
	parts := PartitionStandard(10, 2)
	c.BeginLevel(10, 20, seq, parts, fakeTree{}, false, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, dispatched, 4) // 2 parts * (part + complement)
}

func TestCompleteThenEvaluateLevelReplacesOnPass(t *testing.T) {
	evaluateCalled := false
	hooks := Hooks{
		RunCandidate:    func(c Candidate) {},
		EnqueueEvaluate: func() { evaluateCalled = true },
	}
	c := newTestController(GoalReproduceResult, hooks)

	seq := make([]string, 10)
	parts := PartitionStandard(10, 2)
	c.BeginLevel(10, 20, seq, parts, fakeTree{}, false, nil)

	batchID := c.Counters().BatchID
	results := []CandidateResult{
		{Candidate: Candidate{BatchID: batchID, Split: splitFor(parts[0], false), Sequence: seq[:5]}, Outcome: Outcome{Verdict: 1}},
		{Candidate: Candidate{BatchID: batchID, Split: splitFor(parts[0], true), Sequence: seq[5:]}, Outcome: Outcome{Verdict: 2}},
		{Candidate: Candidate{BatchID: batchID, Split: splitFor(parts[1], false), Sequence: seq[5:]}, Outcome: Outcome{Verdict: 2}},
		{Candidate: Candidate{BatchID: batchID, Split: splitFor(parts[1], true), Sequence: seq[:5]}, Outcome: Outcome{Verdict: 2}},
	}
	for _, r := range results {
		c.Complete(r)
	}
	require.True(t, evaluateCalled)

	outcome := c.EvaluateLevel(10)
	assert.True(t, outcome.Replaced)
	assert.Equal(t, domain.OracleVerdict(1), outcome.Best.Outcome.Verdict)
}

func TestEvaluateLevelDoublesLevelOnNoPass(t *testing.T) {
	hooks := Hooks{RunCandidate: func(c Candidate) {}, EnqueueEvaluate: func() {}}
	c := newTestController(GoalReproduceResult, hooks)

	seq := make([]string, 10)
	parts := PartitionStandard(10, 2)
	c.BeginLevel(10, 20, seq, parts, fakeTree{}, false, nil)
	batchID := c.Counters().BatchID

	for _, part := range parts {
		for _, complement := range []bool{false, true} {
			c.Complete(CandidateResult{
				Candidate: Candidate{BatchID: batchID, Split: splitFor(part, complement)},
				Outcome:   Outcome{Verdict: 99},
			})
		}
	}

	outcome := c.EvaluateLevel(10)
	assert.False(t, outcome.Replaced)
	assert.False(t, outcome.Finished)
	assert.Equal(t, 4, c.Level())
}

func TestStaleBatchIsSkipped(t *testing.T) {
	hooks := Hooks{RunCandidate: func(c Candidate) {}, EnqueueEvaluate: func() {}}
	c := newTestController(GoalReproduceResult, hooks)

	seq := make([]string, 10)
	parts := PartitionStandard(10, 2)
	c.BeginLevel(10, 20, seq, parts, fakeTree{}, false, nil)

	c.Complete(CandidateResult{Candidate: Candidate{BatchID: 999}})
	assert.Equal(t, int64(1), c.Counters().Skipped)
}

func splitFor(part domain.SplitRange, complement bool) domain.ParentSplit {
	return domain.ParentSplit{Ranges: []domain.SplitRange{part}, Complement: complement}
}
