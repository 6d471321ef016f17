package generation

import (
	"mote/internal/codec"
	"mote/internal/resolve"
)

const generationVersion = 2

func (g *Generation) Tag() codec.Tag { return codec.TagGeneration }
func (g *Generation) Version() int32 { return generationVersion }

func (g *Generation) WriteData(w *codec.Writer) {
	g.mu.Lock()
	defer g.mu.Unlock()

	w.WriteI64(g.cfg.TargetSize)
	w.WriteI64(g.cfg.MaxSimultaneous)
	w.WriteI64(g.cfg.PerSourceCap)
	w.WriteDouble(g.cfg.TweakStart)
	w.WriteDouble(g.cfg.TweakMax)
	w.WriteDouble(g.cfg.TweakStep)

	w.WriteI64(g.generatedCount)
	w.WriteI64(g.outstandingCount)
	w.WriteBool(g.ending)
	w.WriteBool(g.forced)

	w.WriteU64(uint64(len(g.sourceCaps)))
	for id, remaining := range g.sourceCaps {
		w.WriteU64(id)
		w.WriteI64(remaining)
	}

	w.WriteU64(uint64(len(g.generatedOrDD)))
	for id := range g.generatedOrDD {
		w.WriteU64(id)
	}
}

func (g *Generation) ReadData(r *codec.Reader, version int32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cfg.TargetSize = r.ReadI64()
	g.cfg.MaxSimultaneous = r.ReadI64()
	g.cfg.PerSourceCap = r.ReadI64()
	g.cfg.TweakStart = r.ReadDouble()
	g.cfg.TweakMax = r.ReadDouble()
	g.cfg.TweakStep = r.ReadDouble()
	g.cfg = g.cfg.withDefaults()

	g.generatedCount = r.ReadI64()
	g.outstandingCount = r.ReadI64()
	g.ending = r.ReadBool()
	g.forced = r.ReadBool()

	g.sourceCaps = make(map[uint64]int64)
	n := r.ReadU64()
	for i := uint64(0); i < n; i++ {
		id := r.ReadU64()
		g.sourceCaps[id] = r.ReadI64()
	}

	g.generatedOrDD = make(map[uint64]struct{})
	n = r.ReadU64()
	for i := uint64(0); i < n; i++ {
		g.generatedOrDD[r.ReadU64()] = struct{}{}
	}
}

// InitializeEarly/InitializeLate: Generation references other forms only
// by weak id (source/root ids, generated-or-dd member ids), none of which
// need resolving to a live pointer, so both are no-ops (§4.2 Phase C/D).
// The end-callback-in-flight slot is intentionally not persisted: no
// callback survives a save, so it always restores false.
func (g *Generation) InitializeEarly(res *resolve.Resolver) error { return nil }
func (g *Generation) InitializeLate(res *resolve.Resolver) error  { return nil }
