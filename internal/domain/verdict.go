package domain

// OracleVerdict classifies an executed test (§3, §4.5).
type OracleVerdict int32

const (
	VerdictNone OracleVerdict = iota
	VerdictPassing
	VerdictFailing
	VerdictUnfinished
	VerdictUndefined
	VerdictPrefix
	VerdictRunning
)

func (v OracleVerdict) String() string {
	switch v {
	case VerdictPassing:
		return "Passing"
	case VerdictFailing:
		return "Failing"
	case VerdictUnfinished:
		return "Unfinished"
	case VerdictUndefined:
		return "Undefined"
	case VerdictPrefix:
		return "Prefix"
	case VerdictRunning:
		return "Running"
	default:
		return "None"
	}
}

// Fixed reports whether the verdict is one of the three terminal,
// score-immutable states (§3 invariant: once fixed, scores and length
// never change again).
func (v OracleVerdict) Fixed() bool {
	return v == VerdictPassing || v == VerdictFailing || v == VerdictUndefined
}
