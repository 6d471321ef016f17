// Package taskqueue implements the three-class priority worker pool of
// §4.3: Light (oracle-bound short callbacks), Medium (delta-debugging
// inner orchestration), Heavy (generation, execution supervision).
// Modeled on internal/scheduler/run_queue.go's per-queue channel +
// worker-goroutine + freeze discipline, generalized from one FIFO queue
// per session to three FIFO queues shared by a fixed worker pool.
package taskqueue

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"mote/pkg/logger"
)

// Class is a task's priority class (§4.3).
type Class int

const (
	Light Class = iota
	Medium
	Heavy
	numClasses
)

func (c Class) String() string {
	switch c {
	case Light:
		return "Light"
	case Medium:
		return "Medium"
	case Heavy:
		return "Heavy"
	default:
		return "Invalid"
	}
}

// Task is a self-contained unit of work (§4.3): run() / dispose() / a
// stable type tag / a class. The type tag lets a future callback-record
// format (save/load of pending callbacks) dispatch to the right factory;
// this build only uses it for logging.
type Task interface {
	Run(ctx *WorkerContext)
	Dispose()
	TypeTag() int64
	Class() Class
}

// WorkerContext is the per-thread state some tasks require (e.g. an
// oracle scripting context, §4.5). It is registered when a worker starts
// and handed to every task that worker runs; it is never shared across
// workers.
type WorkerContext struct {
	WorkerID int
	data     any
}

// Data returns whatever the context factory attached to this worker, or
// nil if none was configured.
func (c *WorkerContext) Data() any { return c.data }

// ContextFactory builds the per-worker context when a worker starts;
// ContextClose tears it down when the worker exits. Both may be nil.
type ContextFactory func(workerID int) any
type ContextClose func(any)

// Mode selects which classes a worker pool drains and in what order
// (§4.3's four start modes).
type Mode int

const (
	// SingleThread drains Light, then Medium, then Heavy.
	SingleThread Mode = iota
	// LightExclusive drains only Light.
	LightExclusive
	// LightMedium drains Light, then Medium.
	LightMedium
	// General drains Medium, then Heavy.
	General
)

func (m Mode) order() []Class {
	switch m {
	case SingleThread:
		return []Class{Light, Medium, Heavy}
	case LightExclusive:
		return []Class{Light}
	case LightMedium:
		return []Class{Light, Medium}
	case General:
		return []Class{Medium, Heavy}
	default:
		return []Class{Light, Medium, Heavy}
	}
}

func (m Mode) serves(c Class) bool {
	for _, x := range m.order() {
		if x == c {
			return true
		}
	}
	return false
}

// WorkerSpec describes one group of workers started in a given mode.
type WorkerSpec struct {
	Mode  Mode
	Count int
}

// Scheduler is the three-queue worker pool. Zero value is not usable;
// construct with New.
type Scheduler struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue [numClasses][]Task

	ctxFactory ContextFactory
	ctxClose   ContextClose

	frozen        bool
	freezeWaiting int
	freezeTarget  int
	freezeCond    *sync.Cond

	terminate bool
	started   int
	modes     []Mode

	eg     *errgroup.Group
	egCtx  context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler. ctxFactory/ctxClose may be nil if no task
// needs per-worker state.
func New(ctxFactory ContextFactory, ctxClose ContextClose) *Scheduler {
	s := &Scheduler{ctxFactory: ctxFactory, ctxClose: ctxClose}
	s.cond = sync.NewCond(&s.mu)
	s.freezeCond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker groups described by specs (§4.3: settings-
// driven explicit per-class counts, or a single general count split by
// policy — callers decide the split and pass it as specs). Start may only
// be called once.
func (s *Scheduler) Start(specs []WorkerSpec) {
	s.mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.egCtx = ctx
	eg, _ := errgroup.WithContext(ctx)
	s.eg = eg
	for _, spec := range specs {
		s.modes = append(s.modes, spec.Mode)
		for i := 0; i < spec.Count; i++ {
			id := s.started
			s.started++
			mode := spec.Mode
			s.wg.Add(1)
			eg.Go(func() error {
				s.runWorker(id, mode)
				return nil
			})
		}
	}
	s.mu.Unlock()
}

// servesLocked reports whether any started worker serves c. Caller holds
// s.mu.
func (s *Scheduler) servesLocked(c Class) bool {
	for _, m := range s.modes {
		if m.serves(c) {
			return true
		}
	}
	return false
}

// Submit appends task to its class queue and wakes one worker. If no
// started worker serves that class, the task falls back to Medium, then
// Heavy, then Light, taking the first class an active worker serves
// (§4.3: "submission to a disabled class falls back to general").
func (s *Scheduler) Submit(task Task) {
	s.mu.Lock()
	class := task.Class()
	if !s.servesLocked(class) {
		for _, fallback := range []Class{Medium, Heavy, Light} {
			if s.servesLocked(fallback) {
				class = fallback
				break
			}
		}
	}
	s.queue[class] = append(s.queue[class], task)
	s.mu.Unlock()
	s.cond.Signal()
}

// Len reports the number of pending tasks across all classes, for tests
// and diagnostics.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for c := Class(0); c < numClasses; c++ {
		n += len(s.queue[c])
	}
	return n
}

func (s *Scheduler) runWorker(id int, mode Mode) {
	defer s.wg.Done()
	wctx := &WorkerContext{WorkerID: id}
	if s.ctxFactory != nil {
		wctx.data = s.ctxFactory(id)
	}
	defer func() {
		if s.ctxClose != nil {
			s.ctxClose(wctx.data)
		}
	}()

	order := mode.order()
	for {
		task := s.waitForTask(order)
		if task == nil {
			return // terminate was set
		}
		s.runTask(task, wctx)
	}
}

// waitForTask blocks until a task in order is available, termination is
// requested (returns nil), or a freeze is in effect (reports Waiting and
// keeps blocking until thawed).
func (s *Scheduler) waitForTask(order []Class) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.terminate {
			return nil
		}
		if s.frozen {
			s.freezeWaiting++
			if s.freezeWaiting >= s.freezeTarget {
				s.freezeCond.Broadcast()
			}
			s.cond.Wait() // suspension point: exactly at the queue wait
			s.freezeWaiting--
			continue
		}
		if task := s.popLocked(order); task != nil {
			return task
		}
		s.cond.Wait()
	}
}

func (s *Scheduler) runTask(task Task, wctx *WorkerContext) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Int64("type_tag", task.TypeTag()).Msg("task panicked")
		}
	}()
	task.Run(wctx)
}

// popLocked removes and returns the first task found by scanning order,
// or nil if every queue in order is empty. Caller holds s.mu.
func (s *Scheduler) popLocked(order []Class) Task {
	for _, c := range order {
		if len(s.queue[c]) > 0 {
			t := s.queue[c][0]
			s.queue[c] = s.queue[c][1:]
			return t
		}
	}
	return nil
}

// Freeze requests every worker complete its current task and block at
// its queue wait; it returns once all started workers report Waiting
// (§4.3).
func (s *Scheduler) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.freezeTarget = s.started
	s.cond.Broadcast()
	for s.freezeWaiting < s.freezeTarget {
		s.freezeCond.Wait()
	}
	s.mu.Unlock()
}

// Thaw unblocks workers parked by Freeze.
func (s *Scheduler) Thaw() {
	s.mu.Lock()
	s.frozen = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Clear drains every pending task from every queue, calling Dispose on
// each, without touching running workers (§4.3).
func (s *Scheduler) Clear() {
	s.mu.Lock()
	var drained []Task
	for c := Class(0); c < numClasses; c++ {
		drained = append(drained, s.queue[c]...)
		s.queue[c] = nil
	}
	s.mu.Unlock()
	for _, t := range drained {
		t.Dispose()
	}
}

// Stop requests every worker to terminate. If drain is false, pending
// tasks are cleared (Dispose called on each) before workers exit;
// if true, workers keep consuming their queues until empty, then exit.
func (s *Scheduler) Stop(drain bool) {
	if !drain {
		s.Clear()
	} else {
		for s.Len() > 0 {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		}
	}
	s.mu.Lock()
	s.terminate = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
	if s.cancel != nil {
		s.cancel()
	}
}
