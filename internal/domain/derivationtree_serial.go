package domain

import (
	"mote/internal/codec"
	"mote/internal/resolve"
)

const derivationTreeVersion = 2

func (d *DerivationTree) Tag() codec.Tag { return codec.TagDerivationTree }
func (d *DerivationTree) Version() int32 { return derivationTreeVersion }

func (d *DerivationTree) WriteData(w *codec.Writer) {
	w.WriteU64(d.GrammarID)
	w.WriteU64(d.InputID)
	w.WriteBytes(d.Payload)
}

func (d *DerivationTree) ReadData(r *codec.Reader, version int32) {
	d.GrammarID = r.ReadU64()
	d.InputID = r.ReadU64()
	d.Payload = r.ReadBytes()
}

// InitializeEarly resolves InputID against the Input forms allocated in
// the same load (§4.2 Phase C); GrammarID refers to the session-wide
// Grammar singleton, which always exists once allocated, so resolution
// is not required to detect dangling references there.
func (d *DerivationTree) InitializeEarly(res *resolve.Resolver) error {
	res.AddTask(func() {
		if _, err := resolve.Form[*Input](res, d.InputID); err != nil {
			return
		}
	})
	return nil
}

// InitializeLate has nothing to do for DerivationTree: its payload is
// opaque to the core and reinterpreted lazily by the external generator
// via Extractor, not eagerly on load.
func (d *DerivationTree) InitializeLate(res *resolve.Resolver) error { return nil }
