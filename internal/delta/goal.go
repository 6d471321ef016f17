// Package delta implements the ddmin-style DeltaController of §4.8:
// goal-directed subset search over a single input, in Standard and
// ScoreProgress partitioning modes, with batch orchestration against
// TaskScheduler.
package delta

import (
	"math"

	"mote/internal/domain"
)

// Goal selects the acceptance predicate a reduced candidate must satisfy
// to replace the controller's current input (§4.8 step 6).
type Goal int

const (
	GoalReproduceResult Goal = iota
	GoalMaximizePrimary
	GoalMaximizeSecondary
	GoalMaximizeBoth
)

// Mode selects how a level is partitioned into candidates (§4.8).
type Mode int

const (
	ModeStandard Mode = iota
	ModeScoreProgress
)

// Baseline is the outcome candidates are measured against: the root
// input's outcome at first, replaced by the adopted input's outcome each
// time Controller.ReplaceCurrentInput runs.
type Baseline struct {
	Verdict   domain.OracleVerdict
	Primary   float64
	Secondary float64
}

// Outcome is a candidate's execution result, as reported by the oracle.
type Outcome struct {
	Verdict   domain.OracleVerdict
	Primary   float64
	Secondary float64
}

// Params are the session-wide ddmin tunables (§6 dd.* settings).
type Params struct {
	ExecuteAboveLength int
	ApproxThreshold    float64
	AcceptableLossRel  float64
	AcceptableLossAbs  float64
	BatchCap           int64 // dd.batchprocessing; 0 = unlimited
	Budget             int64 // params.budget; 0 = unlimited
	RunReproduceAfterScoreApproxOnPositive bool
}

// Accept reports whether cand satisfies goal relative to orig (§4.8 step 6).
func Accept(goal Goal, orig Baseline, cand Outcome, p Params) bool {
	switch goal {
	case GoalReproduceResult:
		return cand.Verdict == orig.Verdict
	case GoalMaximizePrimary:
		return withinLoss(orig.Primary, cand.Primary, p.AcceptableLossRel, p.AcceptableLossAbs)
	case GoalMaximizeSecondary:
		return withinLoss(orig.Secondary, cand.Secondary, p.AcceptableLossRel, p.AcceptableLossAbs)
	case GoalMaximizeBoth:
		return withinLoss(orig.Primary, cand.Primary, p.AcceptableLossRel, p.AcceptableLossAbs) &&
			withinLoss(orig.Secondary, cand.Secondary, p.AcceptableLossRel, p.AcceptableLossAbs)
	default:
		return false
	}
}

// withinLoss reports whether cand's score has dropped from orig by less
// than relBound relatively and no more than absBound absolutely. An
// improvement (cand >= orig) always passes.
func withinLoss(orig, cand, relBound, absBound float64) bool {
	loss := orig - cand
	if loss <= 0 {
		return true
	}
	relLoss := loss
	if orig != 0 {
		relLoss = loss / math.Abs(orig)
	}
	return relLoss < relBound && loss <= absBound
}

// CandidateResult is a completed candidate's outcome plus the split that
// produced it, as evaluated against Accept.
type CandidateResult struct {
	Candidate Candidate
	Outcome   Outcome
}

// Best picks the most preferred passing result for goal (§4.8 step 7:
// "pick the best by the goal's secondary preference"). For
// ReproduceResult the tie-break is the shortest resulting length, since
// ddmin's actual objective is minimization; for the Maximize variants it
// is the named score.
func Best(goal Goal, results []CandidateResult) CandidateResult {
	best := results[0]
	for _, r := range results[1:] {
		if better(goal, r, best) {
			best = r
		}
	}
	return best
}

func better(goal Goal, a, b CandidateResult) bool {
	switch goal {
	case GoalMaximizePrimary, GoalMaximizeBoth:
		if a.Outcome.Primary != b.Outcome.Primary {
			return a.Outcome.Primary > b.Outcome.Primary
		}
		return a.Outcome.Secondary > b.Outcome.Secondary
	case GoalMaximizeSecondary:
		if a.Outcome.Secondary != b.Outcome.Secondary {
			return a.Outcome.Secondary > b.Outcome.Secondary
		}
		return a.Outcome.Primary > b.Outcome.Primary
	default: // GoalReproduceResult
		return a.Candidate.Length() < b.Candidate.Length()
	}
}
