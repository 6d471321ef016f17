package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mote/internal/domain"
)

func TestAcceptReproduceResult(t *testing.T) {
	orig := Baseline{Verdict: domain.VerdictFailing}
	assert.True(t, Accept(GoalReproduceResult, orig, Outcome{Verdict: domain.VerdictFailing}, Params{}))
	assert.False(t, Accept(GoalReproduceResult, orig, Outcome{Verdict: domain.VerdictPassing}, Params{}))
}

func TestAcceptMaximizePrimaryWithinBounds(t *testing.T) {
	orig := Baseline{Primary: 100}
	p := Params{AcceptableLossRel: 0.1, AcceptableLossAbs: 20}

	assert.True(t, Accept(GoalMaximizePrimary, orig, Outcome{Primary: 95}, p))
	assert.False(t, Accept(GoalMaximizePrimary, orig, Outcome{Primary: 70}, p))
}

func TestAcceptMaximizeBothRequiresBoth(t *testing.T) {
	orig := Baseline{Primary: 100, Secondary: 50}
	p := Params{AcceptableLossRel: 0.5, AcceptableLossAbs: 1000}

	assert.True(t, Accept(GoalMaximizeBoth, orig, Outcome{Primary: 90, Secondary: 45}, p))
	assert.False(t, Accept(GoalMaximizeBoth, orig, Outcome{Primary: 90, Secondary: 0}, Params{AcceptableLossRel: 0.1, AcceptableLossAbs: 5}))
}

func TestBestPicksShortestForReproduceResult(t *testing.T) {
	results := []CandidateResult{
		{Candidate: Candidate{Sequence: make([]string, 10)}},
		{Candidate: Candidate{Sequence: make([]string, 3)}},
		{Candidate: Candidate{Sequence: make([]string, 7)}},
	}
	best := Best(GoalReproduceResult, results)
	assert.Equal(t, 3, best.Candidate.Length())
}

func TestBestPicksHighestPrimaryForMaximize(t *testing.T) {
	results := []CandidateResult{
		{Outcome: Outcome{Primary: 10}},
		{Outcome: Outcome{Primary: 90}},
		{Outcome: Outcome{Primary: 50}},
	}
	best := Best(GoalMaximizePrimary, results)
	assert.Equal(t, 90.0, best.Outcome.Primary)
}
