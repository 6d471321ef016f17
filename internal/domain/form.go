// Package domain holds the leaf persistent entities of the engine: the
// common Form embedding every registry object, Input, and DerivationTree
// (§3). Higher-level bookkeeping (Generation, SessionData, DeltaController)
// lives in their own packages and references these by id through the
// form registry, never by pointer, per §3's ownership summary.
package domain

import "mote/internal/retain"

// FormType tags every registry entity. Reserved low values identify the
// session-wide singletons (§3).
type FormType int32

const (
	FormTypeInvalid FormType = iota
	FormTypeSettings
	FormTypeTaskScheduler
	FormTypeExecutionHandler
	FormTypeOracle
	FormTypeGenerator
	FormTypeGrammar
	FormTypeExclusionTree
	FormTypeSession
	FormTypeSessionData
	FormTypeGeneration
	FormTypeDeltaController
	FormTypeInput
	FormTypeDerivationTree
)

func (t FormType) String() string {
	switch t {
	case FormTypeSettings:
		return "Settings"
	case FormTypeTaskScheduler:
		return "TaskScheduler"
	case FormTypeExecutionHandler:
		return "ExecutionHandler"
	case FormTypeOracle:
		return "Oracle"
	case FormTypeGenerator:
		return "Generator"
	case FormTypeGrammar:
		return "Grammar"
	case FormTypeExclusionTree:
		return "ExclusionTree"
	case FormTypeSession:
		return "Session"
	case FormTypeSessionData:
		return "SessionData"
	case FormTypeGeneration:
		return "Generation"
	case FormTypeDeltaController:
		return "DeltaController"
	case FormTypeInput:
		return "Input"
	case FormTypeDerivationTree:
		return "DerivationTree"
	default:
		return "Invalid"
	}
}

// Flags is the bitset carried by every Form (§3).
type Flags uint32

const (
	FlagDoNotFree Flags = 1 << iota
	FlagDeleted
	FlagDuplicate
	FlagGeneratedDeltaDebugging
	FlagGeneratedGrammarParent
	FlagGeneratedGrammarParentBacktrack
	FlagDeltaDebugged
	FlagRepeat
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Form is embedded by every persistent entity. It carries the stable id,
// type tag, flag bitset, the "changed" taint used to skip re-saving
// quiescent records, and the retention counter backing the DoNotFree
// discipline (see internal/retain).
type Form struct {
	retain.Counter

	id      uint64
	kind    FormType
	flags   Flags
	changed bool
}

// NewForm constructs the embedded Form header; called by package form's
// allocator, never directly by domain consumers.
func NewForm(id uint64, kind FormType) Form {
	return Form{id: id, kind: kind, changed: true}
}

func (f *Form) ID() uint64      { return f.id }
func (f *Form) Type() FormType  { return f.kind }
func (f *Form) Flags() Flags    { return f.flags }
func (f *Form) Changed() bool   { return f.changed }
func (f *Form) MarkClean()      { f.changed = false }
func (f *Form) MarkChanged()    { f.changed = true }

// SetFlag sets bit and marks the form changed.
func (f *Form) SetFlag(bit Flags) {
	if f.flags&bit == 0 {
		f.flags |= bit
		f.changed = true
	}
}

// ClearFlag clears bit and marks the form changed.
func (f *Form) ClearFlag(bit Flags) {
	if f.flags&bit != 0 {
		f.flags &^= bit
		f.changed = true
	}
}

// HasFlag reports whether bit is set.
func (f *Form) HasFlag(bit Flags) bool { return f.flags.Has(bit) }

// DoNotFree reports whether the advisory pin (flag OR active retention
// holders) should block a sweep from reclaiming this form.
func (f *Form) DoNotFree() bool {
	return f.flags.Has(FlagDoNotFree) || f.Pinned()
}

// RestoreHeader is called exactly once by the loader immediately after
// allocating a blank form, before its own ReadData runs: the registry
// itself owns the id+flags portion of every record's payload (mirroring
// a common base-class serializing its own fields before dispatching to
// the derived WriteData/ReadData), so individual forms never encode their
// own id or flags.
func (f *Form) RestoreHeader(id uint64, flags Flags) {
	f.id = id
	f.flags = flags
	f.changed = false
}
