// Package exechandler supervises the program-under-test (PUT) processes
// spawned for each Input (§4.4). It is the single dedicated supervisory
// thread in the concurrency model of §5: one polling loop owns every
// running Test, while submission and freeze/thaw are called from other
// threads under the handler's lock.
//
// Grounded on internal/procmgr/manager.go's spawn/supervise/pipe
// discipline, reworked from named long-lived service processes restarted
// on exit into short-lived fuzzing runs that terminate exactly once and
// report an ExitReason back through a completion callback instead of
// being restarted.
package exechandler

import (
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"mote/internal/domain"
	"mote/internal/taskqueue"
	"mote/pkg/logger"
)

// ExitReason tags why a Test stopped (§4.4's state list after Running).
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitNatural
	ExitLastInput
	ExitTerminated
	ExitTimeout
	ExitFragmentTimeout
	ExitMemory
	ExitInitError
	ExitRepeat
	ExitPipe
)

func (r ExitReason) String() string {
	switch r {
	case ExitNatural:
		return "Natural"
	case ExitLastInput:
		return "LastInput"
	case ExitTerminated:
		return "Terminated"
	case ExitTimeout:
		return "Timeout"
	case ExitFragmentTimeout:
		return "FragmentTimeout"
	case ExitMemory:
		return "Memory"
	case ExitInitError:
		return "InitError"
	case ExitRepeat:
		return "Repeat"
	case ExitPipe:
		return "Pipe"
	default:
		return "None"
	}
}

// CommandBuilder resolves the PUT invocation for an input; normally the
// oracle adapter's GetCmdArgs (§4.5), kept as a function value here so
// exechandler never imports package oracle.
type CommandBuilder func(in *domain.Input) (path string, args []string, err error)

// Test is one PUT execution in flight (§4.4's "Test object").
type Test struct {
	ID    uint64
	Input *domain.Input

	fragmentMode bool
	fragmentIdx  int
	reactions    []time.Duration

	cmd    *exec.Cmd
	stdin  *execPipe
	output *outputReader
	exit   atomic.Pointer[exitState]

	pid        int
	exitCode   int
	exitReason ExitReason

	state        state
	startedAt    time.Time
	lastWriteAt  time.Time
	lastProgress time.Time

	onComplete func(*Test, *taskqueue.WorkerContext)
}

type state int

const (
	stateInitialized state = iota
	stateRunning
	stateDone
)

// Options configures a Handler (§6 settings: MaxConcurrentTests,
// PollInterval, FragmentMode, FragmentTimeout, TestTimeout, MemoryLimit).
type Options struct {
	MaxConcurrentTests int
	PollInterval       time.Duration
	FragmentMode       bool
	FragmentTimeout    time.Duration
	TestTimeout        time.Duration
	MemoryLimitBytes   int64
	StorePUTOutput     bool
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentTests <= 0 {
		o.MaxConcurrentTests = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.FragmentTimeout <= 0 {
		o.FragmentTimeout = 2 * time.Second
	}
	if o.TestTimeout <= 0 {
		o.TestTimeout = 10 * time.Second
	}
	return o
}

// Handler is the ExecutionHandler singleton (§3, §4.4).
type Handler struct {
	mu   sync.Mutex
	cond *sync.Cond

	opts    Options
	builder CommandBuilder
	sched   *taskqueue.Scheduler

	waiting []*Test
	running []*Test

	initialized int64
	runningCnt  int64
	stopping    int64

	frozen    bool
	terminate bool

	lastIteration time.Time

	nextID uint64
}

// New constructs a Handler. builder resolves PUT command/args per input;
// sched receives the completion callback for each finished Test.
func New(opts Options, builder CommandBuilder, sched *taskqueue.Scheduler) *Handler {
	h := &Handler{opts: opts.withDefaults(), builder: builder, sched: sched}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Submit enqueues a new test for in, invoking onComplete (on the
// TaskScheduler's Heavy class, §4.3) once the PUT terminates. onComplete
// receives the Heavy-class worker's WorkerContext so it can reach the
// oracle's per-worker script VM without the handler importing package
// oracle (nil if the handler has no scheduler to run the callback on).
func (h *Handler) Submit(in *domain.Input, fragmentMode bool, onComplete func(*Test, *taskqueue.WorkerContext)) *Test {
	h.mu.Lock()
	h.nextID++
	t := &Test{ID: h.nextID, Input: in, fragmentMode: fragmentMode, onComplete: onComplete}
	h.waiting = append(h.waiting, t)
	h.mu.Unlock()
	h.cond.Signal()
	return t
}

// Freeze stops new tests from starting; tests already running continue
// to completion (§4.4).
func (h *Handler) Freeze() {
	h.mu.Lock()
	h.frozen = true
	h.mu.Unlock()
}

// Thaw resumes starting new tests.
func (h *Handler) Thaw() {
	h.mu.Lock()
	h.frozen = false
	h.mu.Unlock()
	h.cond.Signal()
}

// Stale reports whether the polling loop completed an iteration within
// window; Session uses this to decide whether to request reinitialization
// (§4.4).
func (h *Handler) Stale(window time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastIteration.IsZero() {
		return false
	}
	return time.Since(h.lastIteration) > window
}

// Run executes the supervisory polling loop until Stop is called. Run is
// meant to be the body of the handler's single dedicated goroutine (§5).
func (h *Handler) Run() {
	for {
		h.mu.Lock()
		if h.terminate {
			h.mu.Unlock()
			return
		}
		if h.frozen {
			h.cond.Wait()
			h.mu.Unlock()
			continue
		}
		h.mu.Unlock()

		start := time.Now()
		h.drainWaiting()
		h.waitForWork()
		h.pollRunning()

		h.mu.Lock()
		h.lastIteration = time.Now()
		h.mu.Unlock()

		elapsed := time.Since(start)
		sleep := h.opts.PollInterval - elapsed
		if sleep > 0 {
			time.Sleep(sleep)
		}
		// If we're running behind, skip whole periods rather than trying
		// to catch up (§4.4 step 5).
	}
}

// Stop requests the polling loop to exit after its current iteration.
func (h *Handler) Stop() {
	h.mu.Lock()
	h.terminate = true
	h.mu.Unlock()
	h.cond.Signal()
}

// drainWaiting moves queued tests into the running set while under
// max_concurrent_tests (§4.4 step 1).
func (h *Handler) drainWaiting() {
	for {
		h.mu.Lock()
		if h.frozen || len(h.waiting) == 0 || int(h.runningCnt) >= h.opts.MaxConcurrentTests {
			h.mu.Unlock()
			return
		}
		t := h.waiting[0]
		h.waiting = h.waiting[1:]
		h.mu.Unlock()

		if err := h.spawn(t); err != nil {
			logger.Warn().Uint64("test_id", t.ID).Err(err).Msg("PUT spawn failed")
			t.exitReason = ExitInitError
			t.state = stateDone
			h.finish(t)
			continue
		}
		h.mu.Lock()
		h.running = append(h.running, t)
		h.runningCnt++
		h.mu.Unlock()
	}
}

// waitForWork blocks up to PollInterval if there is nothing running or
// waiting (§4.4 step 2), returning early if Submit wakes it.
func (h *Handler) waitForWork() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.running) > 0 || len(h.waiting) > 0 {
		return
	}
	timer := time.AfterFunc(h.opts.PollInterval, func() { h.cond.Signal() })
	defer timer.Stop()
	h.cond.Wait()
}

// pollRunning advances every running test one polling tick (§4.4 step 3-4).
func (h *Handler) pollRunning() {
	h.mu.Lock()
	tests := append([]*Test(nil), h.running...)
	h.mu.Unlock()

	var finished []*Test
	for _, t := range tests {
		if h.tick(t) {
			finished = append(finished, t)
		}
	}
	if len(finished) == 0 {
		return
	}

	h.mu.Lock()
	remaining := h.running[:0]
	for _, t := range h.running {
		keep := true
		for _, f := range finished {
			if f == t {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, t)
		}
	}
	h.running = remaining
	h.runningCnt = int64(len(h.running))
	h.mu.Unlock()

	for _, t := range finished {
		h.finish(t)
	}
}

// tick advances one running test and reports whether it has finished.
func (h *Handler) tick(t *Test) bool {
	// advanceFragment may have already flagged completion during spawn
	// (a single-element sequence needs no acknowledgment to be "last").
	switch t.exitReason {
	case ExitLastInput, ExitPipe:
		killProcess(t.cmd)
		return true
	}

	chunk, ok := t.output.tryRead()
	if ok {
		t.lastProgress = time.Now()
		if h.opts.StorePUTOutput {
			t.Input.PUTOutput = append(t.Input.PUTOutput, chunk...)
		}
		if t.fragmentMode {
			t.reactions = append(t.reactions, time.Since(t.lastWriteAt))
			h.advanceFragment(t)
			switch t.exitReason {
			case ExitLastInput, ExitPipe:
				killProcess(t.cmd)
				return true
			}
		}
	}

	if es := t.exit.Load(); es != nil {
		t.exitCode = es.code
		t.exitReason = ExitNatural
		return true
	}

	if h.opts.MemoryLimitBytes > 0 && t.pid > 0 {
		if rss, err := readRSS(t.pid); err == nil && rss > h.opts.MemoryLimitBytes {
			killProcess(t.cmd)
			t.exitReason = ExitMemory
			return true
		}
	}

	if t.fragmentMode && !t.lastWriteAt.IsZero() && time.Since(t.lastWriteAt) > h.opts.FragmentTimeout {
		killProcess(t.cmd)
		t.exitReason = ExitFragmentTimeout
		return true
	}
	if time.Since(t.startedAt) > h.opts.TestTimeout {
		killProcess(t.cmd)
		t.exitReason = ExitTimeout
		return true
	}
	return false
}

// advanceFragment writes the next sequence element once the previous one
// was acknowledged by incoming output (§4.4 fragment mode), or marks
// LastInput once the sequence is exhausted.
func (h *Handler) advanceFragment(t *Test) {
	if t.fragmentIdx >= len(t.Input.Sequence) {
		return
	}
	if err := t.stdin.writeString(t.Input.Sequence[t.fragmentIdx]); err != nil {
		t.exitReason = ExitPipe
		return
	}
	t.fragmentIdx++
	t.lastWriteAt = time.Now()
	if t.fragmentIdx >= len(t.Input.Sequence) {
		t.exitReason = ExitLastInput
	}
}

// finish finalizes a terminated test: trims the sequence to what was
// actually delivered in fragment mode, attaches timing stats to the
// input, and submits the completion callback to the TaskScheduler's
// Heavy class (§4.4 step 4).
func (h *Handler) finish(t *Test) {
	t.state = stateDone
	if t.Input != nil {
		if t.fragmentMode {
			t.Input.TrimmedLength = t.fragmentIdx
		}
		t.Input.ExecutionTime = time.Since(t.startedAt)
		t.Input.ExitCode = t.exitCode
		t.Input.MarkChanged()
	}
	t.output.close()
	if t.stdin != nil {
		t.stdin.close()
	}

	h.mu.Lock()
	h.stopping++
	h.mu.Unlock()

	cb := t.onComplete
	if cb == nil || h.sched == nil {
		if cb != nil {
			cb(t, nil)
		}
		return
	}
	h.sched.Submit(&completionTask{test: t, fn: cb, tag: int64(t.ID)})
}

// completionTask adapts a Test completion callback to taskqueue.Task,
// running on the Heavy class alongside generation/execution supervision
// work (§4.3, §4.4).
type completionTask struct {
	test *Test
	fn   func(*Test, *taskqueue.WorkerContext)
	tag  int64
}

func (c *completionTask) Run(ctx *taskqueue.WorkerContext) { c.fn(c.test, ctx) }
func (c *completionTask) Dispose()                         {}
func (c *completionTask) TypeTag() int64                    { return c.tag }
func (c *completionTask) Class() taskqueue.Class            { return taskqueue.Heavy }

// ExitReason reports why t stopped, for TestEnd dispatch (§4.9 step 1).
func (t *Test) ExitReason() ExitReason { return t.exitReason }

// Counts returns the handler's bookkeeping counters for statistics (§4.4).
func (h *Handler) Counts() (initialized, running, stopping int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initialized, h.runningCnt, h.stopping
}

var errNoCommand = fmt.Errorf("exechandler: command builder returned empty path")

// ReadProcessRSS reports a process's resident set size, for the session's
// own memory watchdog (§4.9 MasterControl step 3) as well as this
// handler's per-test limit. Exported since the session checks its own
// pid, not a PUT's.
func ReadProcessRSS(pid int) (int64, error) { return readRSS(pid) }
