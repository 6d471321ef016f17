package session

import (
	"fmt"

	"mote/internal/codec"
	"mote/internal/delta"
	"mote/internal/domain"
	"mote/internal/exclusion"
	"mote/internal/exechandler"
	"mote/internal/form"
	"mote/internal/generation"
	"mote/internal/oracle"
	"mote/internal/resolve"
	"mote/internal/retain"
	"mote/internal/taskqueue"
	"mote/pkg/logger"
)

const sessionVersion = 2

// pendingControllerLink is the scratch form of one controllers map entry
// across a save: only the (controller id, generation id) pair survives.
// holders and resultInputs are as ephemeral as a controller's own batch
// state and are rebuilt fresh by LoadSession, never persisted -- the
// same simplification delta.Controller's own serial.go applies to its
// in-flight candidates.
type pendingControllerLink struct {
	ControllerID uint64
	GenerationID uint64
}

func (s *Session) Tag() codec.Tag  { return codec.TagSession }
func (s *Session) Version() int32  { return sessionVersion }

// WriteData persists the tuning Config plus the small amount of run
// state a resumed session needs: which generation is current, how many
// generations have started (so GenerationStep keeps growing from the
// right point), and which DeltaControllers are live and under which
// generation. Every collaborator singleton (registry, scheduler,
// handler, generator) is wired by LoadSession, not persisted here.
func (s *Session) WriteData(w *codec.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg

	w.WriteU64(cfg.GrammarID)
	w.WriteI64(cfg.GenerationSize)
	w.WriteI64(cfg.GenerationStep)
	w.WriteI64(cfg.MaxSimultaneous)
	w.WriteI64(cfg.PerSourceCap)
	w.WriteDouble(cfg.GenerationTweakStart)
	w.WriteDouble(cfg.GenerationTweakMax)
	w.WriteDouble(cfg.GenerationTweakStep)

	w.WriteBool(cfg.UseOverallTests)
	w.WriteI64(cfg.OverallTests)
	w.WriteBool(cfg.UseFoundPositives)
	w.WriteI64(cfg.FoundPositives)
	w.WriteBool(cfg.UseFoundNegatives)
	w.WriteI64(cfg.FoundNegatives)
	w.WriteBool(cfg.UseTimeout)
	w.WriteDuration(cfg.Timeout)

	w.WriteDouble(cfg.FailureRateThreshold)

	w.WriteBool(cfg.DeltaDebugging)
	w.WriteI32(int32(cfg.DeltaGoal))
	w.WriteI32(int32(cfg.DeltaMode))
	w.WriteI32(int32(cfg.DeltaParams.ExecuteAboveLength))
	w.WriteDouble(cfg.DeltaParams.ApproxThreshold)
	w.WriteDouble(cfg.DeltaParams.AcceptableLossRel)
	w.WriteDouble(cfg.DeltaParams.AcceptableLossAbs)
	w.WriteI64(cfg.DeltaParams.BatchCap)
	w.WriteI64(cfg.DeltaParams.Budget)
	w.WriteBool(cfg.DeltaParams.RunReproduceAfterScoreApproxOnPositive)
	w.WriteI64(cfg.DeltaDebugTargetCount)

	w.WriteDouble(cfg.FilterStartFrac)
	w.WriteDouble(cfg.FilterFracStep)
	w.WriteI32(int32(cfg.FilterMinLength))
	w.WriteBool(cfg.FilterExcludeDeltaDebugged)
	w.WriteI64(cfg.FilterNextGenerationSources)

	w.WriteI64(cfg.MemoryLimitBytes)
	w.WriteI64(cfg.MemorySoftLimitBytes)
	w.WriteDuration(cfg.MemorySweepPeriod)

	w.WriteBool(cfg.EnableSaves)
	w.WriteI64(cfg.AutosavePeriodTests)
	w.WriteDuration(cfg.AutosavePeriodSeconds)
	w.WriteString(cfg.SavePath)
	w.WriteString(cfg.SaveName)

	w.WriteDuration(cfg.ControlInterval)
	w.WriteDuration(cfg.StaleWindow)

	w.WriteU64(uint64(len(cfg.WorkerSpecs)))
	for _, spec := range cfg.WorkerSpecs {
		w.WriteI32(int32(spec.Mode))
		w.WriteI64(int64(spec.Count))
	}

	w.WriteU64(s.currentGenerationID)
	w.WriteI64(s.generationSeq)

	w.WriteU64(uint64(len(s.controllers)))
	for ctrlID, entry := range s.controllers {
		w.WriteU64(ctrlID)
		w.WriteU64(entry.generationID)
	}
}

func (s *Session) ReadData(r *codec.Reader, version int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cfg Config

	cfg.GrammarID = r.ReadU64()
	cfg.GenerationSize = r.ReadI64()
	cfg.GenerationStep = r.ReadI64()
	cfg.MaxSimultaneous = r.ReadI64()
	cfg.PerSourceCap = r.ReadI64()
	cfg.GenerationTweakStart = r.ReadDouble()
	cfg.GenerationTweakMax = r.ReadDouble()
	cfg.GenerationTweakStep = r.ReadDouble()

	cfg.UseOverallTests = r.ReadBool()
	cfg.OverallTests = r.ReadI64()
	cfg.UseFoundPositives = r.ReadBool()
	cfg.FoundPositives = r.ReadI64()
	cfg.UseFoundNegatives = r.ReadBool()
	cfg.FoundNegatives = r.ReadI64()
	cfg.UseTimeout = r.ReadBool()
	cfg.Timeout = r.ReadDuration()

	cfg.FailureRateThreshold = r.ReadDouble()

	cfg.DeltaDebugging = r.ReadBool()
	cfg.DeltaGoal = delta.Goal(r.ReadI32())
	cfg.DeltaMode = delta.Mode(r.ReadI32())
	cfg.DeltaParams.ExecuteAboveLength = int(r.ReadI32())
	cfg.DeltaParams.ApproxThreshold = r.ReadDouble()
	cfg.DeltaParams.AcceptableLossRel = r.ReadDouble()
	cfg.DeltaParams.AcceptableLossAbs = r.ReadDouble()
	cfg.DeltaParams.BatchCap = r.ReadI64()
	cfg.DeltaParams.Budget = r.ReadI64()
	cfg.DeltaParams.RunReproduceAfterScoreApproxOnPositive = r.ReadBool()
	cfg.DeltaDebugTargetCount = r.ReadI64()

	cfg.FilterStartFrac = r.ReadDouble()
	cfg.FilterFracStep = r.ReadDouble()
	cfg.FilterMinLength = int(r.ReadI32())
	cfg.FilterExcludeDeltaDebugged = r.ReadBool()
	cfg.FilterNextGenerationSources = r.ReadI64()

	cfg.MemoryLimitBytes = r.ReadI64()
	cfg.MemorySoftLimitBytes = r.ReadI64()
	cfg.MemorySweepPeriod = r.ReadDuration()

	cfg.EnableSaves = r.ReadBool()
	cfg.AutosavePeriodTests = r.ReadI64()
	cfg.AutosavePeriodSeconds = r.ReadDuration()
	cfg.SavePath = r.ReadString()
	cfg.SaveName = r.ReadString()

	cfg.ControlInterval = r.ReadDuration()
	cfg.StaleWindow = r.ReadDuration()

	specCount := r.ReadU64()
	cfg.WorkerSpecs = make([]taskqueue.WorkerSpec, 0, specCount)
	for i := uint64(0); i < specCount; i++ {
		mode := taskqueue.Mode(r.ReadI32())
		count := int(r.ReadI64())
		cfg.WorkerSpecs = append(cfg.WorkerSpecs, taskqueue.WorkerSpec{Mode: mode, Count: count})
	}

	s.cfg = cfg.withDefaults()

	s.currentGenerationID = r.ReadU64()
	s.generationSeq = r.ReadI64()

	linkCount := r.ReadU64()
	s.pendingControllers = make([]pendingControllerLink, 0, linkCount)
	for i := uint64(0); i < linkCount; i++ {
		ctrlID := r.ReadU64()
		genID := r.ReadU64()
		s.pendingControllers = append(s.pendingControllers, pendingControllerLink{ControllerID: ctrlID, GenerationID: genID})
	}
}

// InitializeEarly/InitializeLate are no-ops: Session's cross-form wiring
// (the generations index, the controllers map's live pointers and
// re-armed Hooks, every collaborator singleton) is rebuilt by
// LoadSession once form.Load returns, not by the resolver -- the same
// "wired by the session after load" pattern delta.Controller's own
// serial.go documents for its Hooks, applied one level up since Session
// is itself the thing that does the wiring for everything else.
func (s *Session) InitializeEarly(res *resolve.Resolver) error { return nil }
func (s *Session) InitializeLate(res *resolve.Resolver) error  { return nil }

// newBlankSession is factoryTable's zero-value constructor for
// codec.TagSession. Load immediately overwrites its id via RestoreHeader
// and populates cfg/run-state via ReadData; the collaborator fields
// (registry, scheduler, handler, tree, data, oracle, generator) are left
// nil here and are wired in by LoadSession once every form in the file
// has been allocated.
func newBlankSession() *Session {
	return &Session{
		Form:           domain.NewForm(0, domain.FormTypeSession),
		generations:    make(map[uint64]*generation.Generation),
		controllers:    make(map[uint64]*controllerEntry),
		candidateOwner: make(map[uint64]candidateMeta),
	}
}

// Save writes the full registry to path, freezing the task scheduler and
// execution handler first so the graph is quiescent (§4.2).
func (s *Session) Save(path string, opts form.SaveOptions) error {
	s.mu.Lock()
	opts.Guid1, opts.Guid2 = s.guid1, s.guid2
	opts.Runtime = s.runtimeLocked()
	s.mu.Unlock()
	return form.Save(s.registry, path, []form.Freezable{s.scheduler, s.handler}, opts)
}

// LoadSession reconstructs a Session from a save file and wires in the
// collaborators that are never themselves persisted forms: the worker
// pool and execution handler are rebuilt fresh (mirroring Build's
// construction order; neither TaskScheduler nor ExecutionHandler is a
// Serializable form, only a Freezable one), and generator is supplied by
// the caller since it is external to this module entirely (§1). The
// returned Session is fully wired but not yet running; callers resume it
// with StartLoaded.
func LoadSession(path string, guidWant [2]uint64, handlerOpts exechandler.Options, generator Generator) (*Session, error) {
	result, err := form.Load(path, guidWant, factoryTable())
	if err != nil {
		return nil, err
	}
	registry := result.Registry

	s, err := form.Lookup[*Session](registry, form.ReservedID(domain.FormTypeSession))
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	orc, err := form.Lookup[*oracle.Oracle](registry, form.ReservedID(domain.FormTypeOracle))
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	tree, err := form.Lookup[*exclusion.Tree](registry, form.ReservedID(domain.FormTypeExclusionTree))
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	data, err := form.Lookup[*generation.SessionData](registry, form.ReservedID(domain.FormTypeSessionData))
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}

	scheduler := taskqueue.New(orc.NewWorkerContext, func(c *oracle.WorkerContext) { orc.CloseWorkerContext(c) })
	handler := exechandler.New(handlerOpts, orc.BuildCommand, scheduler)

	s.mu.Lock()
	s.registry = registry
	s.scheduler = scheduler
	s.handler = handler
	s.tree = tree
	s.data = data
	s.oracle = orc
	s.generator = generator
	s.guid1, s.guid2 = result.Header.Guid1, result.Header.Guid2
	s.accumulatedRuntime = result.Header.Runtime
	pending := s.pendingControllers
	s.pendingControllers = nil
	s.mu.Unlock()

	for _, f := range registry.Snapshot() {
		gen, ok := f.(*generation.Generation)
		if !ok {
			continue
		}
		s.mu.Lock()
		s.generations[gen.ID()] = gen
		s.mu.Unlock()
	}

	for _, link := range pending {
		ctrl, err := form.Lookup[*delta.Controller](registry, link.ControllerID)
		if err != nil {
			logger.Warn().Uint64("controller", link.ControllerID).Msg("session: load: dangling delta controller reference dropped")
			continue
		}
		s.rewireController(ctrl, link.GenerationID)
	}

	return s, nil
}

// rewireController reattaches a resumed Controller's Hooks -- no hook
// closure survives a save, the same note delta's own serial.go makes --
// and re-acquires the holder pinning its current input, mirroring
// startDeltaDebugging's own setup.
func (s *Session) rewireController(ctrl *delta.Controller, generationID uint64) {
	id := ctrl.ID()
	ctrl.SetHooks(delta.Hooks{
		RunCandidate:    func(c delta.Candidate) { s.runDeltaCandidate(id, c) },
		EnqueueEvaluate: func() { s.scheduler.Submit(&evaluateLevelTask{session: s, controllerID: id}) },
	})

	entry := &controllerEntry{
		controller:   ctrl,
		generationID: generationID,
		holders:      make(map[uint64]*retain.Holder),
		resultInputs: make(map[splitKey]uint64),
	}
	if cur, err := form.Lookup[*domain.Input](s.registry, ctrl.CurrentInput()); err == nil {
		entry.holders[cur.ID()] = retain.Acquire(cur)
	}

	s.mu.Lock()
	s.controllers[id] = entry
	s.mu.Unlock()
}
