package domain

import "time"

// SplitRange is one (begin, length) window a delta candidate was cut from
// its parent (§3 Input.parent-split descriptor).
type SplitRange struct {
	Begin  int
	Length int
}

// ParentSplit records how an Input was derived from its parent: a list of
// ranges to keep (or, if Complement, to remove) from the parent sequence.
type ParentSplit struct {
	Ranges     []SplitRange
	Complement bool
}

// Input is an ordered token sequence plus every field the scheduler,
// execution handler, oracle, and delta controller append over its
// lifetime (§3). Exported fields are safe to read under the registry's
// lock; writers serialize through the owning subsystem (ExecutionHandler,
// SessionFunctions.TestEnd, DeltaController) per the lock-order discipline
// of §5.
type Input struct {
	Form

	Sequence []string

	ParentID          uint64
	GenerationID      uint64
	DerivationTreeID  uint64

	Verdict OracleVerdict

	PrimaryScore   float64
	SecondaryScore float64
	// IndividualPrimary/IndividualSecondary carry one score per sequence
	// position; same length as Sequence once the oracle has scored it.
	IndividualPrimary   []float64
	IndividualSecondary []float64

	TargetLength  int
	TrimmedLength int // -1 if none (§3)

	ExecutionTime time.Duration
	ExitCode      int

	DerivedInputs int64
	DerivedFails  int64

	Split ParentSplit

	Retries int

	// PUTOutput optionally caches captured stdout+stderr, if the
	// execution handler was configured to store it (§6 StorePUTOutput).
	PUTOutput []byte
}

// NewInput allocates an Input header; called by package form's factory.
func NewInput(id uint64) *Input {
	in := &Input{Form: NewForm(id, FormTypeInput)}
	in.TrimmedLength = -1
	return in
}

// Length returns the current token count.
func (in *Input) Length() int { return len(in.Sequence) }

// EffectiveLength is Length minus TrimmedLength-awareness: once a fragment
// run trims dead trailing tokens, reducers should treat only the trimmed
// prefix as meaningful.
func (in *Input) EffectiveLength() int {
	if in.TrimmedLength >= 0 && in.TrimmedLength < in.Length() {
		return in.TrimmedLength
	}
	return in.Length()
}

// ScoreFixed reports whether the oracle verdict has reached one of the
// three terminal states after which scores/length are immutable (§3).
func (in *Input) ScoreFixed() bool { return in.Verdict.Fixed() }

// SetScores assigns primary/secondary plus per-position vectors. Callers
// (the oracle evaluation path) must not call this once ScoreFixed is true.
func (in *Input) SetScores(primary, secondary float64, perPosPrimary, perPosSecondary []float64) {
	in.PrimaryScore = primary
	in.SecondaryScore = secondary
	in.IndividualPrimary = perPosPrimary
	in.IndividualSecondary = perPosSecondary
	in.MarkChanged()
}
