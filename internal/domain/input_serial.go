package domain

import (
	"mote/internal/codec"
	"mote/internal/resolve"
)

// inputVersion is the current on-disk version Input emits (§4.1).
const inputVersion = 2

func (in *Input) Tag() codec.Tag { return codec.TagInput }
func (in *Input) Version() int32 { return inputVersion }

// WriteData encodes every field above the embedded Form header (id+flags
// are written by the registry itself, §4.2).
func (in *Input) WriteData(w *codec.Writer) {
	w.WriteStringSeq(in.Sequence)

	w.WriteU64(in.ParentID)
	w.WriteU64(in.GenerationID)
	w.WriteU64(in.DerivationTreeID)

	w.WriteI32(int32(in.Verdict))

	w.WriteDouble(in.PrimaryScore)
	w.WriteDouble(in.SecondaryScore)
	w.WriteU64(uint64(len(in.IndividualPrimary)))
	for _, v := range in.IndividualPrimary {
		w.WriteDouble(v)
	}
	w.WriteU64(uint64(len(in.IndividualSecondary)))
	for _, v := range in.IndividualSecondary {
		w.WriteDouble(v)
	}

	w.WriteI32(int32(in.TargetLength))
	w.WriteI32(int32(in.TrimmedLength))

	w.WriteDuration(in.ExecutionTime)
	w.WriteI32(int32(in.ExitCode))

	w.WriteI64(in.DerivedInputs)
	w.WriteI64(in.DerivedFails)

	w.WriteBool(in.Split.Complement)
	w.WriteU64(uint64(len(in.Split.Ranges)))
	for _, rg := range in.Split.Ranges {
		w.WriteI32(int32(rg.Begin))
		w.WriteI32(int32(rg.Length))
	}

	w.WriteI32(int32(in.Retries))
	w.WriteBytes(in.PUTOutput)
}

// ReadData decodes a record payload written by WriteData. version lets a
// future format add fields without breaking old saves; this build only
// ever wrote version 2 (and the minimum-supported version 2 the rest of
// the codebase enforces, so there is nothing older to special-case yet).
func (in *Input) ReadData(r *codec.Reader, version int32) {
	in.Sequence = r.ReadStringSeq()

	in.ParentID = r.ReadU64()
	in.GenerationID = r.ReadU64()
	in.DerivationTreeID = r.ReadU64()

	in.Verdict = OracleVerdict(r.ReadI32())

	in.PrimaryScore = r.ReadDouble()
	in.SecondaryScore = r.ReadDouble()
	nPrim := r.ReadU64()
	in.IndividualPrimary = make([]float64, nPrim)
	for i := range in.IndividualPrimary {
		in.IndividualPrimary[i] = r.ReadDouble()
	}
	nSec := r.ReadU64()
	in.IndividualSecondary = make([]float64, nSec)
	for i := range in.IndividualSecondary {
		in.IndividualSecondary[i] = r.ReadDouble()
	}

	in.TargetLength = int(r.ReadI32())
	in.TrimmedLength = int(r.ReadI32())

	in.ExecutionTime = r.ReadDuration()
	in.ExitCode = int(r.ReadI32())

	in.DerivedInputs = r.ReadI64()
	in.DerivedFails = r.ReadI64()

	in.Split.Complement = r.ReadBool()
	nRanges := r.ReadU64()
	in.Split.Ranges = make([]SplitRange, nRanges)
	for i := range in.Split.Ranges {
		in.Split.Ranges[i] = SplitRange{Begin: int(r.ReadI32()), Length: int(r.ReadI32())}
	}

	in.Retries = int(r.ReadI32())
	in.PUTOutput = r.ReadBytes()
}

// InitializeEarly queues a lookup of ParentID against already allocated
// forms (§4.2 Phase C). DerivationTreeID and GenerationID are kept as
// plain ids and are not resolved here.
func (in *Input) InitializeEarly(res *resolve.Resolver) error {
	res.AddTask(func() {
		if _, err := resolve.Form[*Input](res, in.ParentID); err != nil {
			// A dangling parent reference is tolerated: the parent may have
			// been pruned by a prior run before save. Downstream consumers
			// treat ParentID==0 and an unresolved nonzero ParentID alike.
			return
		}
	})
	return nil
}

// InitializeLate has nothing to do for Input; derivation-tree payload
// extraction and generation membership are rebuilt by their own owners
// once every form's own-id references are resolved (§4.2 Phase D).
func (in *Input) InitializeLate(res *resolve.Resolver) error { return nil }
