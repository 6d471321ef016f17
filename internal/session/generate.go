package session

import (
	"mote/internal/domain"
	"mote/internal/errkind"
	"mote/internal/exechandler"
	"mote/internal/form"
	"mote/internal/generation"
	"mote/internal/retain"
	"mote/internal/taskqueue"
)

// virtualGrammarSource is the source id used for a generation that
// expands directly from the grammar root rather than from a prior
// interesting input (§3 Generation "a set of source inputs").
const virtualGrammarSource = 0

func generationConfigFromSession(cfg Config, targetSize int64) generation.Config {
	return generation.Config{
		TargetSize:      targetSize,
		MaxSimultaneous: cfg.MaxSimultaneous,
		PerSourceCap:    cfg.PerSourceCap,
		TweakStart:      cfg.GenerationTweakStart,
		TweakMax:        cfg.GenerationTweakMax,
		TweakStep:       cfg.GenerationTweakStep,
	}
}

// beginGeneration starts a new Generation over sources (nil means a
// grammar-root generation) and submits its first GenerateTests task
// (§4.9 "On start it ... issues the initial MasterControl + GenerateTests
// tasks").
func (s *Session) beginGeneration(sources []uint64) uint64 {
	s.mu.Lock()
	s.generationSeq++
	targetSize := s.cfg.GenerationSize + (s.generationSeq-1)*s.cfg.GenerationStep
	cfg := generationConfigFromSession(s.cfg, targetSize)
	perSource := s.cfg.PerSourceCap
	s.mu.Unlock()

	gen := form.Create(s.registry, func(id uint64) *generation.Generation {
		return generation.New(id, cfg)
	})

	if len(sources) == 0 {
		gen.SetSourceCap(virtualGrammarSource, targetSize)
	} else {
		for _, src := range sources {
			gen.SetSourceCap(src, perSource)
		}
	}

	s.mu.Lock()
	s.generations[gen.ID()] = gen
	s.currentGenerationID = gen.ID()
	s.mu.Unlock()

	s.submitGenerateTests(gen.ID())
	return gen.ID()
}

// submitGenerateTests enqueues one GenerateTests task on the Heavy class
// (§4.3's generation-supervision work).
func (s *Session) submitGenerateTests(generationID uint64) {
	s.scheduler.Submit(&generateTask{session: s, generationID: generationID})
}

// generateTask drives one round of candidate production for a generation:
// while the generation can still accept more attempts, ask the generator
// for a candidate, reject it immediately if the exclusion tree already
// has its prefix decided, and otherwise submit it for execution. It
// resubmits itself once per completed attempt via the execution
// handler's completion callback (see Session.submit), so this task only
// ever needs to run until CanGenerate reports false or the session
// aborts.
type generateTask struct {
	session      *Session
	generationID uint64
}

func (t *generateTask) TypeTag() int64        { return int64(t.generationID) }
func (t *generateTask) Class() taskqueue.Class { return taskqueue.Heavy }
func (t *generateTask) Dispose()               {}

func (t *generateTask) Run(*taskqueue.WorkerContext) {
	s := t.session
	if s.aborted() {
		return
	}

	s.mu.Lock()
	gen, ok := s.generations[t.generationID]
	cfg := s.cfg
	s.mu.Unlock()
	if !ok {
		return
	}

	can, _ := gen.CanGenerate()
	if !can {
		return
	}

	sourceID, targetLength := pickSource(gen)
	tree, err := s.generator.Generate(sourceID, targetLength, cfg.GrammarID)
	gen.BeginAttempt(sourceID)

	if err != nil {
		gen.EndAttempt()
		if convergence := s.data.RecordGenerationAttempt(true); convergence {
			s.endSession(errkind.ErrConvergenceFailure)
			return
		}
		s.submitGenerateTests(t.generationID)
		return
	}

	dt := form.Adopt(s.registry, tree)
	seq := s.generator.Tokens(dt)

	if found, _ := s.tree.HasPrefix(seq); found {
		gen.EndAttempt()
		s.data.RecordGenerationAttempt(false)
		s.submitGenerateTests(t.generationID)
		return
	}

	in := form.Create(s.registry, domain.NewInput)
	in.Sequence = seq
	in.GenerationID = t.generationID
	in.DerivationTreeID = dt.ID()
	in.TargetLength = len(seq)
	dt.InputID = in.ID()

	in.SetFlag(domain.FlagGeneratedGrammarParent)
	holder := retain.Acquire(in)

	s.submit(in, holder, func() {
		gen.EndAttempt()
		s.submitGenerateTests(t.generationID)
	})
}

// pickSource chooses which source id a generation attempt should expand
// from. It always returns the virtual grammar source, including for a
// generation that onGenerationEnd started with Filter-selected sources:
// those sources' caps count toward CanGenerate but are never drawn down,
// since BeginAttempt only decrements the cap of the id it is given.
func pickSource(gen *generation.Generation) (sourceID uint64, targetLength int) {
	return virtualGrammarSource, 0 // targetLength 0 lets the generator choose
}

// submit hands in to the execution handler, releasing holder once the
// test completes and running onDone before TestEnd so generation
// bookkeeping is updated even if TestEnd itself short-circuits.
func (s *Session) submit(in *domain.Input, holder *retain.Holder, onDone func()) {
	s.handler.Submit(in, false, func(t *exechandler.Test, wctx *taskqueue.WorkerContext) {
		if onDone != nil {
			onDone()
		}
		s.TestEnd(t, wctx, holder)
	})
}
