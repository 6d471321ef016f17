// Package retain implements the DoNotFree flag-holder pattern described in
// design note 9: borrowing a form past a single task invocation pins it
// against reclamation by incrementing a per-form retention counter on
// entry and decrementing it on exit, rather than toggling a single bool
// that different borrowers could race on.
package retain

import "sync/atomic"

// Pinnable is satisfied by any form that exposes a retention counter.
type Pinnable interface {
	retentionCounter() *atomic.Int32
}

// Counter is embedded by forms that can be pinned by multiple concurrent
// holders (running tests, active delta candidates, generation sources,
// ordering indices).
type Counter struct {
	n atomic.Int32
}

func (c *Counter) retentionCounter() *atomic.Int32 { return &c.n }

// Pinned reports whether any holder currently retains the form, i.e.
// DoNotFree should be treated as set.
func (c *Counter) Pinned() bool { return c.n.Load() > 0 }

// Holder is a single RAII-style retention; Release is idempotent.
type Holder struct {
	counter  *atomic.Int32
	released atomic.Bool
}

// Acquire pins p and returns a Holder that must be released exactly once
// (Release is safe to call more than once; only the first call decrements).
func Acquire(p Pinnable) *Holder {
	c := p.retentionCounter()
	c.Add(1)
	return &Holder{counter: c}
}

// Release unpins the form. Safe to call multiple times or on a nil Holder.
func (h *Holder) Release() {
	if h == nil {
		return
	}
	if h.released.CompareAndSwap(false, true) {
		h.counter.Add(-1)
	}
}
