// Package cron drives the session's whole-seconds autosave/cleanup tick
// with github.com/robfig/cron/v3. The control loop's own sub-second
// cadence is not a cron entry; it runs on its own goroutine.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler is a thin wrapper around cron.Cron: the session registers one
// entry driving its autosave/cleanup tick on ControlInterval rounded to
// whole seconds, with Remove/Every available to re-arm it.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New creates a Scheduler. Entries are registered with Every before
// Start.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Every registers fn to run every interval, returning an id Remove can
// later use to cancel it. Sub-second intervals are not supported by
// cron's "@every" spec below 1s resolution; callers needing the §5
// ~500ms bound should pass intervals already rounded to whole seconds
// at the scheduler boundary, or drive that tick directly — Scheduler is
// meant for the second-or-coarser autosave/cleanup cadence, not the
// control loop's own sub-second wakeups.
func (s *Scheduler) Every(interval time.Duration, fn func()) (cron.EntryID, error) {
	spec := fmt.Sprintf("@every %s", interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron.AddFunc(spec, fn)
}

// Remove cancels a previously registered entry.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Remove(id)
}

// Start begins dispatching registered entries. Safe to call once;
// subsequent calls are no-ops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop cancels future dispatches and returns a context that is done once
// any in-flight entry has returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.running = false
	return s.cron.Stop()
}
