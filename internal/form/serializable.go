package form

import (
	"mote/internal/codec"
	"mote/internal/resolve"
)

// Serializable is implemented by every form the registry can persist.
// WriteData/ReadData mirror §4.1's per-record versioning contract:
// ReadData must accept every version >= errkind.MinSupportedVersion that
// this build has ever written, reading unresolved ids and primitive
// fields straight into the form's own fields rather than resolving
// references immediately (§4.2 Phase B).
type Serializable interface {
	Base

	// Tag identifies which record type this form writes/reads.
	Tag() codec.Tag
	// Version is the current on-disk version this build emits; readers
	// dispatch on the version found in the stream, not this value.
	Version() int32

	WriteData(w *codec.Writer)
	ReadData(r *codec.Reader, version int32)

	// InitializeEarly resolves the form's own id-references against
	// already-allocated forms and attaches singletons (§4.2 Phase C).
	InitializeEarly(res *resolve.Resolver) error
	// InitializeLate rebuilds indices and re-enters side-effecting
	// structures (e.g. the exclusion tree) once every form's own-id
	// references are resolved (§4.2 Phase D).
	InitializeLate(res *resolve.Resolver) error
}

// Factory constructs a blank form of a given tag, ready for RestoreHeader
// and then ReadData to populate. Registered once per type at startup
// (§4.3 "callbacks as objects" applies the same factory-table idea to
// forms).
type Factory func() Serializable

// FactoryTable maps every known tag to its factory; used by the loader
// to allocate the correct concrete type per record (§4.2 Phase B).
type FactoryTable map[codec.Tag]Factory
