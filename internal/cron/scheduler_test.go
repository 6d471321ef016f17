package cron

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerFiresEvery(t *testing.T) {
	s := New()
	var count int64
	_, err := s.Every(time.Second, func() { atomic.AddInt64(&count, 1) })
	require.NoError(t, err)

	s.Start()
	defer func() { <-s.Stop().Done() }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&count) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerRemove(t *testing.T) {
	s := New()
	var count int64
	id, err := s.Every(500*time.Millisecond, func() { atomic.AddInt64(&count, 1) })
	require.NoError(t, err)

	s.Start()
	s.Remove(id)
	<-s.Stop().Done()

	require.Zero(t, atomic.LoadInt64(&count))
}

func TestSchedulerStopIdempotentBeforeStart(t *testing.T) {
	s := New()
	ctx := s.Stop()
	select {
	case <-ctx.Done():
	default:
		t.Fatal("Stop() before Start() should return an already-done context")
	}
}
