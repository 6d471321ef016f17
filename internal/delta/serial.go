package delta

import (
	"mote/internal/codec"
	"mote/internal/domain"
	"mote/internal/resolve"
)

const controllerVersion = 2

func (c *Controller) Tag() codec.Tag { return codec.TagDeltaController }
func (c *Controller) Version() int32 { return controllerVersion }

// WriteData persists the controller's reduction state: goal, mode,
// params, current input, baseline, level, and skip-ranges. The batch
// queue, in-flight candidates, and Tasks bookkeeping are deliberately not
// persisted: no candidate survives a save (its execution is mid-flight,
// transient engine state), so a resumed controller simply restarts its
// current level's batch from scratch, the same simplification already
// applied to TaskScheduler/ExecutionHandler's pending work.
func (c *Controller) WriteData(w *codec.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w.WriteI32(int32(c.goal))
	w.WriteI32(int32(c.mode))

	w.WriteI32(int32(c.params.ExecuteAboveLength))
	w.WriteDouble(c.params.ApproxThreshold)
	w.WriteDouble(c.params.AcceptableLossRel)
	w.WriteDouble(c.params.AcceptableLossAbs)
	w.WriteI64(c.params.BatchCap)
	w.WriteI64(c.params.Budget)
	w.WriteBool(c.params.RunReproduceAfterScoreApproxOnPositive)

	w.WriteU64(c.currentInputID)
	w.WriteI32(int32(c.baseline.Verdict))
	w.WriteDouble(c.baseline.Primary)
	w.WriteDouble(c.baseline.Secondary)

	w.WriteI32(int32(c.level))
	w.WriteI32(int32(c.skipRanges))
	w.WriteI64(c.totalTests.Load())
	w.WriteBool(c.done)
}

func (c *Controller) ReadData(r *codec.Reader, version int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.goal = Goal(r.ReadI32())
	c.mode = Mode(r.ReadI32())

	c.params.ExecuteAboveLength = int(r.ReadI32())
	c.params.ApproxThreshold = r.ReadDouble()
	c.params.AcceptableLossRel = r.ReadDouble()
	c.params.AcceptableLossAbs = r.ReadDouble()
	c.params.BatchCap = r.ReadI64()
	c.params.Budget = r.ReadI64()
	c.params.RunReproduceAfterScoreApproxOnPositive = r.ReadBool()

	c.currentInputID = r.ReadU64()
	c.baseline.Verdict = domain.OracleVerdict(r.ReadI32())
	c.baseline.Primary = r.ReadDouble()
	c.baseline.Secondary = r.ReadDouble()

	c.level = int(r.ReadI32())
	c.skipRanges = int(r.ReadI32())
	c.totalTests.Store(r.ReadI64())
	c.done = r.ReadBool()

	c.counters = Counters{Level: c.level}
}

// InitializeEarly resolves currentInputID so a dangling reference (the
// input was pruned by a prior run) is logged rather than silently
// carried forward; InitializeLate has nothing further to do (§4.2 Phase
// C/D). Hooks are wired by the session after load, not by the resolver.
func (c *Controller) InitializeEarly(res *resolve.Resolver) error {
	res.AddTask(func() {
		if _, err := resolve.Form[*domain.Input](res, c.currentInputID); err != nil {
			c.currentInputID = 0
		}
	})
	return nil
}

func (c *Controller) InitializeLate(res *resolve.Resolver) error { return nil }
