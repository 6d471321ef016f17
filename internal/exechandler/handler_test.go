package exechandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mote/internal/domain"
	"mote/internal/taskqueue"
)

func catBuilder(in *domain.Input) (string, []string, error) {
	return "/bin/cat", nil, nil
}

func TestWholeInputRunCompletes(t *testing.T) {
	h := New(Options{MaxConcurrentTests: 2, PollInterval: 20 * time.Millisecond, TestTimeout: 2 * time.Second}, catBuilder, nil)
	go h.Run()
	defer h.Stop()

	in := domain.NewInput(101)
	in.Sequence = []string{"hello"}

	done := make(chan *Test, 1)
	h.Submit(in, false, func(tt *Test, _ *taskqueue.WorkerContext) { done <- tt })

	select {
	case tt := <-done:
		assert.Equal(t, ExitNatural, tt.exitReason)
	case <-time.After(3 * time.Second):
		t.Fatal("test never completed")
	}
}

func TestFragmentModeAdvancesOnAck(t *testing.T) {
	h := New(Options{MaxConcurrentTests: 1, PollInterval: 10 * time.Millisecond, FragmentTimeout: time.Second, TestTimeout: 3 * time.Second}, catBuilder, nil)
	go h.Run()
	defer h.Stop()

	in := domain.NewInput(202)
	in.Sequence = []string{"a", "b", "c"}

	done := make(chan *Test, 1)
	h.Submit(in, true, func(tt *Test, _ *taskqueue.WorkerContext) { done <- tt })

	select {
	case tt := <-done:
		require.Equal(t, 3, tt.fragmentIdx)
		assert.Equal(t, ExitLastInput, tt.exitReason)
	case <-time.After(4 * time.Second):
		t.Fatal("fragment test never completed")
	}
}

func TestSpawnFailureReportsInitError(t *testing.T) {
	h := New(Options{MaxConcurrentTests: 1, PollInterval: 10 * time.Millisecond}, func(in *domain.Input) (string, []string, error) {
		return "/no/such/binary-xyz", nil, nil
	}, nil)
	go h.Run()
	defer h.Stop()

	in := domain.NewInput(303)
	done := make(chan *Test, 1)
	h.Submit(in, false, func(tt *Test, _ *taskqueue.WorkerContext) { done <- tt })

	select {
	case tt := <-done:
		assert.Equal(t, ExitInitError, tt.exitReason)
	case <-time.After(2 * time.Second):
		t.Fatal("init-error test never completed")
	}
}
