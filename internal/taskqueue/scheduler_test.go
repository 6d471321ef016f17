package taskqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fnTask struct {
	class    Class
	tag      int64
	run      func(*WorkerContext)
	disposed *atomic.Bool
}

func (t *fnTask) Run(ctx *WorkerContext) {
	if t.run != nil {
		t.run(ctx)
	}
}
func (t *fnTask) Dispose() {
	if t.disposed != nil {
		t.disposed.Store(true)
	}
}
func (t *fnTask) TypeTag() int64 { return t.tag }
func (t *fnTask) Class() Class   { return t.class }

func TestSubmitRunsOnGeneralWorker(t *testing.T) {
	s := New(nil, nil)
	s.Start([]WorkerSpec{{Mode: General, Count: 1}})
	defer s.Stop(true)

	var wg sync.WaitGroup
	wg.Add(1)
	var ran atomic.Bool
	s.Submit(&fnTask{class: Heavy, run: func(*WorkerContext) { ran.Store(true); wg.Done() }})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	assert.True(t, ran.Load())
}

func TestLightExclusiveWorkerRunsHeavyViaFallback(t *testing.T) {
	s := New(nil, nil)
	s.Start([]WorkerSpec{{Mode: LightExclusive, Count: 1}})
	defer s.Stop(false)

	var lightRan atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	s.Submit(&fnTask{class: Light, run: func(*WorkerContext) { lightRan.Store(true); wg.Done() }})
	wg.Wait()
	assert.True(t, lightRan.Load())

	// Heavy has no server among started workers; Submit falls back, and
	// since no worker serves Heavy either, it falls back further to the
	// only active class (Light) where the exclusive worker will drain it.
	var heavyRan atomic.Bool
	wg.Add(1)
	s.Submit(&fnTask{class: Heavy, run: func(*WorkerContext) { heavyRan.Store(true); wg.Done() }})
	wg.Wait()
	assert.True(t, heavyRan.Load())
}

func TestFreezeBlocksNewWork(t *testing.T) {
	s := New(nil, nil)
	s.Start([]WorkerSpec{{Mode: General, Count: 2}})
	defer s.Stop(false)

	s.Freeze()
	var ran atomic.Bool
	s.Submit(&fnTask{class: Heavy, run: func(*WorkerContext) { ran.Store(true) }})
	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load(), "task must not run while frozen")

	s.Thaw()
	require.Eventually(t, func() bool { return ran.Load() }, 2*time.Second, 10*time.Millisecond)
}

func TestClearDisposesPendingTasks(t *testing.T) {
	s := New(nil, nil)
	s.Start([]WorkerSpec{{Mode: General, Count: 1}})
	defer s.Stop(false)

	s.Freeze()
	var disposed atomic.Bool
	s.Submit(&fnTask{class: Heavy, disposed: &disposed})
	s.Clear()
	assert.True(t, disposed.Load())
	assert.Equal(t, 0, s.Len())
	s.Thaw()
}

func TestWorkerContextFactoryRunsPerWorker(t *testing.T) {
	var created atomic.Int32
	var closed atomic.Int32
	s := New(func(id int) any {
		created.Add(1)
		return id
	}, func(any) { closed.Add(1) })
	s.Start([]WorkerSpec{{Mode: General, Count: 3}})

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		s.Submit(&fnTask{class: Heavy, run: func(*WorkerContext) { wg.Done() }})
	}
	wg.Wait()
	s.Stop(false)

	assert.EqualValues(t, 3, created.Load())
	assert.EqualValues(t, 3, closed.Load())
}

func TestModeOrder(t *testing.T) {
	assert.Equal(t, []Class{Light, Medium, Heavy}, SingleThread.order())
	assert.Equal(t, []Class{Light}, LightExclusive.order())
	assert.Equal(t, []Class{Light, Medium}, LightMedium.order())
	assert.Equal(t, []Class{Medium, Heavy}, General.order())
}
