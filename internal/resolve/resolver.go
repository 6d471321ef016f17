// Package resolve implements the two-phase load resolver described in
// §4.2 and design note 9: cyclic cross-form references (Input <->
// DerivationTree, DeltaController <-> Input, Generation <->
// DeltaController) are never raw pointers. During load, each form
// queues a task (or late task) that resolves its own id-references once
// every form in the file has been allocated. It is deliberately
// independent of both package domain and package form so that domain
// entities can implement the resolver-facing interface without creating
// an import cycle with the registry that drives it.
package resolve

import "fmt"

// Lookup resolves a form id to its concrete value (type-erased) and
// reports whether it exists at all; package form supplies this by
// closing over its registry.
type Lookup func(id uint64) (any, bool)

// Resolver is handed to every form's InitializeEarly/InitializeLate.
type Resolver struct {
	lookup  Lookup
	current string

	tasks     []func() error
	lateTasks []func() error
}

func New(lookup Lookup) *Resolver { return &Resolver{lookup: lookup} }

// SetCurrent labels the form currently being initialized, for error
// attribution in queued task failures.
func (r *Resolver) SetCurrent(label string) { r.current = label }

// AddTask queues fn to run once every form has been allocated (Phase E,
// first drain) but before any late task runs.
func (r *Resolver) AddTask(fn func()) {
	if fn == nil {
		return
	}
	r.tasks = append(r.tasks, func() error { fn(); return nil })
}

// AddLateTask queues fn to run after every AddTask callback (from every
// form) has already completed, so it observes fully-initialized forms.
func (r *Resolver) AddLateTask(fn func()) {
	if fn == nil {
		return
	}
	r.lateTasks = append(r.lateTasks, func() error { fn(); return nil })
}

// Form resolves id to a T, returning a zero value (no error) for id==0
// (the "no reference" sentinel) and an error if id is set but doesn't
// resolve to a T.
func Form[T any](r *Resolver, id uint64) (T, error) {
	var zero T
	if id == 0 {
		return zero, nil
	}
	v, ok := r.lookup(id)
	if !ok {
		return zero, fmt.Errorf("dangling reference: id %d not found", id)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("id %d resolved to unexpected type %T", id, v)
	}
	return t, nil
}

// Drain runs every queued task, then every queued late task, reporting
// the first error encountered (tasks after it still run, so every
// problem surfaces in logs even though only the first is returned).
func (r *Resolver) Drain() error {
	var firstErr error
	for _, t := range r.tasks {
		if err := t(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("resolver task (%s): %w", r.current, err)
		}
	}
	for _, t := range r.lateTasks {
		if err := t(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("resolver late task (%s): %w", r.current, err)
		}
	}
	return firstErr
}
