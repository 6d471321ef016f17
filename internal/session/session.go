// Package session implements §4.9's Session and SessionFunctions: the
// lifecycle owner that wires TaskScheduler, ExecutionHandler,
// ExclusionTree, Oracle, Generation/SessionData, and DeltaController into
// one running engine, plus the control loop and per-test completion
// dispatch that drive them.
//
// Grounded on internal/cli/root.go's context-construction-then-wiring
// style (build every collaborator, then hand them to the thing that
// drives them) and internal/cron's Scheduler (one supervisory goroutine,
// a logger, and explicit Start/Stop with a WaitGroup for in-flight work),
// reworked from a cron-expression job table into a single bounded-wait
// control loop per §5's "Session control-loop condvar (bounded ~500ms)".
package session

import (
	"fmt"
	"sync"
	"time"

	"mote/internal/codec"
	"mote/internal/cron"
	"mote/internal/delta"
	"mote/internal/domain"
	"mote/internal/exclusion"
	"mote/internal/exechandler"
	"mote/internal/form"
	"mote/internal/generation"
	"mote/internal/oracle"
	"mote/internal/retain"
	"mote/internal/taskqueue"
	"mote/pkg/logger"
)

// Generator is the external grammar/generation collaborator (§1 "out of
// scope: grammar parser and input generator; we only consume their
// contracts", §3 DerivationTree). The engine never interprets a
// DerivationTree's Payload itself; Tokens is the generator's own
// accessor for the token sequence a tree encodes.
type Generator interface {
	domain.Extractor

	// Generate produces a fresh candidate sequence and derivation tree
	// rooted at sourceID, targeting targetLength tokens (§3 "created by
	// generator"). The returned tree has id 0; the session adopts it into
	// the registry.
	Generate(sourceID uint64, targetLength int, grammarID uint64) (*domain.DerivationTree, error)

	// Tokens materializes tree's token sequence.
	Tokens(tree *domain.DerivationTree) []string
}

// State is the Session's coarse lifecycle state (§4.9: start |
// start_loaded | stop | destroy | pause | resume).
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StatePaused
	StateStopped
)

// Config is the session-wide tuning surface (§6 Settings, generation and
// delta-debugging subset; CLI/PUT-invocation settings live in
// internal/config and are handed to Oracle/ExecutionHandler directly by
// the caller that builds a Session).
type Config struct {
	GrammarID uint64

	GenerationSize      int64
	GenerationStep      int64 // added to TargetSize for each subsequent generation
	MaxSimultaneous     int64
	PerSourceCap        int64
	GenerationTweakStart float64
	GenerationTweakMax   float64
	GenerationTweakStep  float64

	UseOverallTests   bool
	OverallTests      int64
	UseFoundPositives bool
	FoundPositives    int64
	UseFoundNegatives bool
	FoundNegatives    int64
	UseTimeout        bool
	Timeout           time.Duration

	FailureRateThreshold float64 // matches generation's 1000-deep window default of 0.9

	DeltaDebugging        bool
	DeltaGoal             delta.Goal
	DeltaMode             delta.Mode
	DeltaParams           delta.Params
	DeltaDebugTargetCount int64 // how many of a finished generation's Positives to hand a Controller, 0 = all

	// Filter (§4.7): root-fair threshold relaxation used both to pick
	// which Positives a finished generation hands to DeltaController and
	// to pick the sources a new generation expands from.
	FilterStartFrac           float64
	FilterFracStep            float64
	FilterMinLength           int
	FilterExcludeDeltaDebugged bool
	FilterNextGenerationSources int64

	MemoryLimitBytes     int64
	MemorySoftLimitBytes int64
	MemorySweepPeriod    time.Duration

	EnableSaves            bool
	AutosavePeriodTests    int64
	AutosavePeriodSeconds  time.Duration
	SavePath               string
	SaveName               string
	CompressionLevel       int32 // -1..9; -1 bypasses compression (§4.1)
	CompressionExtreme     bool

	ControlInterval time.Duration
	StaleWindow     time.Duration

	WorkerSpecs []taskqueue.WorkerSpec
}

func (c Config) withDefaults() Config {
	if c.GenerationSize <= 0 {
		c.GenerationSize = 1000
	}
	if c.MaxSimultaneous <= 0 {
		c.MaxSimultaneous = 16
	}
	if c.PerSourceCap <= 0 {
		c.PerSourceCap = c.GenerationSize
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = 0.9
	}
	if c.ControlInterval <= 0 {
		c.ControlInterval = 500 * time.Millisecond
	}
	if c.StaleWindow <= 0 {
		c.StaleWindow = 5 * time.Second
	}
	if c.MemorySweepPeriod <= 0 {
		c.MemorySweepPeriod = 30 * time.Second
	}
	if len(c.WorkerSpecs) == 0 {
		c.WorkerSpecs = []taskqueue.WorkerSpec{{Mode: taskqueue.SingleThread, Count: 4}}
	}
	if c.FilterStartFrac <= 0 {
		c.FilterStartFrac = 0.05
	}
	if c.FilterFracStep <= 0 {
		c.FilterFracStep = 0.05
	}
	if c.FilterNextGenerationSources <= 0 {
		c.FilterNextGenerationSources = 10
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = -1
	}
	return c
}

// controllerEntry tracks one active delta-debugging root: the controller
// driving it and the generation it was spawned under, so TestEnd and
// generation bookkeeping can cross-reference the two (§3 Generation
// "a set of delta controllers that ran under it").
type controllerEntry struct {
	controller   *delta.Controller
	generationID uint64

	// holders pins every candidate Input this controller has in flight or
	// has kept as a completed-but-unresolved result, independent of the
	// per-test execution pin TestEnd releases at step 6 (§5's multi-holder
	// retain.Counter). Released in bulk when the controller finishes.
	holders map[uint64]*retain.Holder

	// resultInputs correlates a completed candidate back to the concrete
	// Input it produced, keyed by its batch and split descriptor, since
	// delta.CandidateResult carries only the abstract Candidate value.
	resultInputs map[splitKey]uint64
}

// Session is the §3/§4.9 singleton (reserved id 8) orchestrating a run.
type Session struct {
	domain.Form

	mu  sync.Mutex
	cfg Config

	registry  *form.Registry
	scheduler *taskqueue.Scheduler
	handler   *exechandler.Handler
	tree      *exclusion.Tree
	data      *generation.SessionData
	oracle    *oracle.Oracle
	generator Generator

	generations          map[uint64]*generation.Generation
	currentGenerationID  uint64
	generationSeq        int64 // how many generations have been started, for GenerationStep growth

	controllers map[uint64]*controllerEntry

	// pendingControllers is ReadData's scratch form of the controllers
	// map across a save: LoadSession drains it into live controllerEntry
	// values once every form in the file has been allocated.
	pendingControllers []pendingControllerLink

	// candidateOwner maps an in-flight delta-candidate Input's id to the
	// controller it belongs to, so TestEnd can report the outcome back to
	// Controller.Complete without adding a field to domain.Input itself
	// (this bookkeeping is as ephemeral as the controller's own queue and
	// batch state, and is rebuilt, not persisted, across a save).
	candidateOwner map[uint64]candidateMeta

	state State
	abort bool

	guid1, guid2 uint64

	startedAt          time.Time
	accumulatedRuntime time.Duration

	lastAutosaveTests int64
	lastAutosaveAt    time.Time
	lastControlAt     time.Time
	memoryHardSince    time.Time

	lastError error

	ctrlStop chan struct{}
	ctrlDone chan struct{}

	// cronSched drives the coarser autosave/cleanup cadence on
	// github.com/robfig/cron/v3 (§4.9, see control.go); it runs
	// alongside, not instead of, the sub-second ctrlStop/ctrlDone ticker
	// since robfig/cron's ConstantDelaySchedule truncates to whole
	// seconds and cannot carry the ~500ms MasterControl bound.
	cronSched *cron.Scheduler
}

// New allocates the Session singleton; called by package form's
// CreateSingleton once every collaborator below has been constructed.
func New(id uint64, cfg Config, registry *form.Registry, scheduler *taskqueue.Scheduler, handler *exechandler.Handler, tree *exclusion.Tree, data *generation.SessionData, orc *oracle.Oracle, generator Generator) *Session {
	return &Session{
		Form:        domain.NewForm(id, domain.FormTypeSession),
		cfg:         cfg.withDefaults(),
		registry:    registry,
		scheduler:   scheduler,
		handler:     handler,
		tree:        tree,
		data:        data,
		oracle:      orc,
		generator:   generator,
		generations:    make(map[uint64]*generation.Generation),
		controllers:    make(map[uint64]*controllerEntry),
		candidateOwner: make(map[uint64]candidateMeta),
	}
}

// Build constructs a brand-new Session and every singleton it needs
// (§4.9 "On start it wires TaskScheduler, ExecutionHandler,
// ExclusionTree..."), for the common case of starting a fresh run rather
// than resuming one via form.Load.
func Build(cfg Config, oracleCfg oracle.Config, handlerOpts exechandler.Options, generator Generator, guid1, guid2 uint64) *Session {
	cfg = cfg.withDefaults()
	registry := form.NewRegistry()

	orc := form.CreateSingleton(registry, domain.FormTypeOracle, func(id uint64) *oracle.Oracle {
		return oracle.NewOracle(id, oracleCfg)
	})
	scheduler := taskqueue.New(orc.NewWorkerContext, func(c *oracle.WorkerContext) { orc.CloseWorkerContext(c) })
	handler := exechandler.New(handlerOpts, orc.BuildCommand, scheduler)
	tree := form.CreateSingleton(registry, domain.FormTypeExclusionTree, exclusion.NewTree)
	data := form.CreateSingleton(registry, domain.FormTypeSessionData, func(id uint64) *generation.SessionData {
		return generation.NewSessionData(id, generation.DefaultTopK)
	})

	s := form.CreateSingleton(registry, domain.FormTypeSession, func(id uint64) *Session {
		return New(id, cfg, registry, scheduler, handler, tree, data, orc, generator)
	})
	s.guid1, s.guid2 = guid1, guid2
	return s
}

// Registry exposes the backing registry, e.g. for a stats reader.
func (s *Session) Registry() *form.Registry { return s.registry }

// SessionData exposes the scoring indices, e.g. for print-stats.
func (s *Session) SessionData() *generation.SessionData { return s.data }

// State returns the session's current coarse lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentGenerationID returns the generation id MasterControl is
// currently driving, 0 if none is open (e.g. before Start).
func (s *Session) CurrentGenerationID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentGenerationID
}

// Runtime returns the session's accumulated wall-clock runtime.
func (s *Session) Runtime() time.Duration {
	return s.elapsedRuntime()
}

// GUID returns the save-compatibility guid pair this session was built
// or loaded with.
func (s *Session) GUID() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guid1, s.guid2
}

// LastError returns the last fatal error recorded by the control loop,
// if any (§5 "surface through the session's last_error field").
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
}

// Start launches a fresh run: worker pool, execution handler, control
// loop, and the first generation (§4.9).
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return fmt.Errorf("session: Start called in state %v", s.state)
	}
	s.state = StateRunning
	s.startedAt = timeNow()
	s.mu.Unlock()

	s.scheduler.Start(s.cfg.WorkerSpecs)
	go s.handler.Run()
	s.launchControlLoop()
	s.beginGeneration(nil)
	return nil
}

// StartLoaded resumes a run reconstructed by form.Load: the generations
// and controllers already exist (rebuilt by LoadSession); StartLoaded
// only needs to relaunch the worker pool, handler, control loop, and
// re-arm generation-tests for whichever generation is still open.
func (s *Session) StartLoaded() error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return fmt.Errorf("session: StartLoaded called in state %v", s.state)
	}
	s.state = StateRunning
	s.startedAt = timeNow()
	genID := s.currentGenerationID
	s.mu.Unlock()

	s.scheduler.Start(s.cfg.WorkerSpecs)
	go s.handler.Run()
	s.launchControlLoop()

	if genID != 0 {
		s.submitGenerateTests(genID)
	}
	return nil
}

func (s *Session) launchControlLoop() {
	s.mu.Lock()
	s.ctrlStop = make(chan struct{})
	s.ctrlDone = make(chan struct{})
	sched := cron.New()
	s.cronSched = sched
	s.mu.Unlock()

	interval := s.cfg.ControlInterval.Round(time.Second)
	if interval < time.Second {
		interval = time.Second
	}
	if _, err := sched.Every(interval, s.cronTick); err != nil {
		logger.Error().Err(err).Msg("session: failed to register autosave/cleanup cron entry")
	}
	sched.Start()

	go s.controlLoop()
}

// Pause freezes new work (non-destructive: running tests and the control
// loop's watchdog continue) so the registry graph can be inspected or
// saved consistently (§5 "freeze is used for non-destructive pauses").
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StatePaused
	s.mu.Unlock()

	s.scheduler.Freeze()
	s.handler.Freeze()
}

// Resume thaws a paused session.
func (s *Session) Resume() {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.mu.Unlock()

	s.scheduler.Thaw()
	s.handler.Thaw()
}

// Stop requests the session end, optionally saving first (§4.9
// stop(save?)). Cancellation is by flag: abort=true causes every loop to
// exit at its next suspension point (§5).
func (s *Session) Stop(save bool, path string, opts form.SaveOptions) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.abort = true
	s.mu.Unlock()

	var saveErr error
	if save {
		saveErr = s.Save(path, opts)
	}

	s.shutdownLoops()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	return saveErr
}

// Destroy is Stop without saving, for abrupt teardown (e.g. fatal error
// paths that must not re-enter the save path, per §5's reentrancy note).
func (s *Session) Destroy() {
	s.mu.Lock()
	s.abort = true
	s.mu.Unlock()
	s.shutdownLoops()
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

func (s *Session) shutdownLoops() {
	s.mu.Lock()
	stop := s.ctrlStop
	done := s.ctrlDone
	sched := s.cronSched
	s.mu.Unlock()
	if sched != nil {
		<-sched.Stop().Done()
	}
	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
	s.handler.Stop()
	s.scheduler.Stop(false)
}

// Wait blocks until the session reaches StateStopped.
func (s *Session) Wait() {
	for {
		s.mu.Lock()
		done := s.ctrlDone
		state := s.state
		s.mu.Unlock()
		if state == StateStopped || done == nil {
			return
		}
		<-done
		return
	}
}

// WaitFor waits up to timeout for the session to stop, reporting whether
// it did.
func (s *Session) WaitFor(timeout time.Duration) bool {
	s.mu.Lock()
	done := s.ctrlDone
	state := s.state
	s.mu.Unlock()
	if state == StateStopped || done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Session) aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abort
}

// timeNow is a seam for deterministic tests.
var timeNow = time.Now

// endSession runs the asynchronous fatal-error path (§5: "a fatal error
// schedules EndSession asynchronously to avoid reentrancy with the save
// path"). It records err and then runs Stop, with any final save, on a
// freshly spawned goroutine rather than on the caller's stack.
func (s *Session) endSession(err error) {
	s.setError(err)
	logger.Error().Err(err).Msg("session: ending run")
	path, opts := s.defaultSaveTarget()
	shouldSave := s.cfg.EnableSaves
	go func() {
		_ = s.Stop(shouldSave, path, opts)
	}()
}

func (s *Session) defaultSaveTarget() (string, form.SaveOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.cfg.SavePath + "/" + s.cfg.SaveName
	return path, form.SaveOptions{
		Guid1:   s.guid1,
		Guid2:   s.guid2,
		Runtime: s.runtimeLocked(),
		Compression: codec.CompressionHeader{
			Level:   s.cfg.CompressionLevel,
			Extreme: s.cfg.CompressionExtreme,
		},
	}
}

func (s *Session) runtimeLocked() time.Duration {
	if s.state == StateRunning || s.state == StatePaused {
		return s.accumulatedRuntime + timeNow().Sub(s.startedAt)
	}
	return s.accumulatedRuntime
}
