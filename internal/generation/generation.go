package generation

import (
	"sync"
	"sync/atomic"

	"mote/internal/domain"
)

// Config holds the per-session parameters that shape a Generation's
// budget: MaxSimultaneous and PerSourceCap bound CanGenerate. TweakStart,
// TweakMax and TweakStep carry the §6 generation tweak settings; they are
// persisted with the generation but nothing reads them (Filter takes its
// start fraction and step as arguments).
type Config struct {
	TargetSize      int64
	MaxSimultaneous int64
	PerSourceCap    int64

	TweakStart float64
	TweakMax   float64
	TweakStep  float64
}

func (c Config) withDefaults() Config {
	if c.TweakStart <= 0 {
		c.TweakStart = 0.05
	}
	if c.TweakMax <= 0 {
		c.TweakMax = 1.0
	}
	if c.TweakStep <= 0 {
		c.TweakStep = 0.05
	}
	return c
}

// Generation is one generation cycle's bookkeeping (§4.7, §3). It is a
// dynamic (non-singleton) form: Input.GenerationID references it weakly,
// the same discipline as every other cross-form link in the registry.
type Generation struct {
	domain.Form

	cfg Config

	mu               sync.Mutex
	generatedCount   int64
	outstandingCount int64
	sourceCaps       map[uint64]int64
	generatedOrDD    map[uint64]struct{}

	ending bool
	forced bool

	endCallbackInFlight atomic.Bool
}

// New allocates a Generation; called by package form's Create.
func New(id uint64, cfg Config) *Generation {
	return &Generation{
		Form:          domain.NewForm(id, domain.FormTypeGeneration),
		cfg:           cfg.withDefaults(),
		sourceCaps:    make(map[uint64]int64),
		generatedOrDD: make(map[uint64]struct{}),
	}
}

// SetSourceCap installs the remaining fail/input quota for a delta
// controller root (§4.7 "per-source caps").
func (g *Generation) SetSourceCap(sourceID uint64, remaining int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sourceCaps[sourceID] = remaining
}

// CanGenerate reports whether this generation can still submit more
// candidates and, if so, how many (§4.7): bounded by the target size
// minus what has already been generated, by the simultaneous-generating
// cap minus what is currently outstanding, and by the sum of remaining
// per-source caps.
func (g *Generation) CanGenerate() (can bool, remaining int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	byTarget := g.cfg.TargetSize - g.generatedCount
	if byTarget < 0 {
		byTarget = 0
	}
	bySimultaneous := g.cfg.MaxSimultaneous - g.outstandingCount
	if bySimultaneous < 0 {
		bySimultaneous = 0
	}
	var bySources int64
	for _, remaining := range g.sourceCaps {
		if remaining > 0 {
			bySources += remaining
		}
	}

	remaining = byTarget
	if bySimultaneous < remaining {
		remaining = bySimultaneous
	}
	if g.cfg.MaxSimultaneous > 0 && bySources < remaining {
		remaining = bySources
	}
	return remaining > 0, remaining
}

// BeginAttempt records that a candidate generation attempt has been
// submitted against sourceID, incrementing the outstanding count and
// decrementing that source's remaining cap.
func (g *Generation) BeginAttempt(sourceID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generatedCount++
	g.outstandingCount++
	if _, ok := g.sourceCaps[sourceID]; ok {
		g.sourceCaps[sourceID]--
	}
	g.MarkChanged()
}

// EndAttempt decrements the outstanding count once a submitted attempt's
// test completes or fails to generate (§4.7 "Failures decrement the
// outstanding count").
func (g *Generation) EndAttempt() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outstandingCount > 0 {
		g.outstandingCount--
	}
	g.MarkChanged()
}

// AddGeneratedOrDD records inputID in the current generation's
// generated-or-dd set (§4.9 TestEnd step 4).
func (g *Generation) AddGeneratedOrDD(inputID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generatedOrDD[inputID] = struct{}{}
	g.MarkChanged()
}

// Contains reports whether inputID was generated or dd'd in this
// generation.
func (g *Generation) Contains(inputID uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.generatedOrDD[inputID]
	return ok
}

// SourcesExhausted reports whether no source has any remaining fail/input
// quota (§4.7 generation-ending rule b). A generation with no sources at
// all (shouldn't happen in practice) counts as exhausted.
func (g *Generation) SourcesExhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, remaining := range g.sourceCaps {
		if remaining > 0 {
			return false
		}
	}
	return true
}

// Force marks the generation for an unconditional end (§4.7 rule d).
func (g *Generation) Force() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forced = true
}

// EndStatus reports the four §4.7 generation-ending conditions. The
// caller (session control) supplies the two facts it alone knows:
// sourcesExhausted (no source has remaining fail/input quota) and
// handlerIdle+noneInFlight (the execution handler is idle and no
// generation is in flight).
func (g *Generation) EndStatus(sourcesExhausted, handlerIdleNoneInFlight bool) (ending bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	targetsComplete := g.generatedCount >= g.cfg.TargetSize
	if targetsComplete || sourcesExhausted || handlerIdleNoneInFlight || g.forced {
		g.ending = true
	}
	return g.ending
}

// TryBeginEndCallback atomically claims the single end-callback slot for
// this generation (§4.7 "at most one end-callback is in flight per
// generation"). Returns false if one is already in flight.
func (g *Generation) TryBeginEndCallback() bool {
	return g.endCallbackInFlight.CompareAndSwap(false, true)
}

// ClearEndCallback releases the slot, e.g. after the callback's own
// requeue-on-failure logic decides to retry later.
func (g *Generation) ClearEndCallback() {
	g.endCallbackInFlight.Store(false)
}
