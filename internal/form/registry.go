// Package form implements the process-wide, type-indexed object registry
// (§3, §4.2): stable id allocation, weak/shared ownership via id lookup,
// and the versioned codec-driven save/load pipeline with its two-phase
// resolver. Modeled on internal/procmgr/manager.go's mutex-guarded
// registration table, generalized from string names to 64-bit ids and
// from process supervision to arbitrary persistent entities.
package form

import (
	"fmt"
	"sync"
	"sync/atomic"

	"mote/internal/domain"
	"mote/internal/errkind"
	"mote/pkg/logger"
)

// Base is the minimal interface every registry entry satisfies; it is
// embedded in domain.Form and promoted automatically.
type Base interface {
	ID() uint64
	Type() domain.FormType
	Flags() domain.Flags
	HasFlag(domain.Flags) bool
	SetFlag(domain.Flags)
	ClearFlag(domain.Flags)
	DoNotFree() bool
	Changed() bool
	MarkClean()
	MarkChanged()
	RestoreHeader(id uint64, flags domain.Flags)
}

// ReservedID returns the fixed id for each singleton form type (§3), or 0
// if kind is not a singleton.
func ReservedID(kind domain.FormType) uint64 {
	switch kind {
	case domain.FormTypeSettings:
		return 1
	case domain.FormTypeTaskScheduler:
		return 2
	case domain.FormTypeExecutionHandler:
		return 3
	case domain.FormTypeOracle:
		return 4
	case domain.FormTypeGenerator:
		return 5
	case domain.FormTypeGrammar:
		return 6
	case domain.FormTypeExclusionTree:
		return 7
	case domain.FormTypeSession:
		return 8
	case domain.FormTypeSessionData:
		return 9
	default:
		return 0
	}
}

// firstDynamicID is where non-singleton allocation begins, leaving room
// for every reserved singleton slot.
const firstDynamicID = 100

// Registry is the process-wide form map. All mutation is guarded by mu;
// visit() takes the read lock and may be upgraded to the write lock when
// the visitor requests deletion (§4.2).
type Registry struct {
	mu     sync.RWMutex
	forms  map[uint64]Base
	nextID atomic.Uint64
}

func NewRegistry() *Registry {
	r := &Registry{forms: make(map[uint64]Base)}
	r.nextID.Store(firstDynamicID)
	return r
}

// SetNextID seeds the allocator, used when resuming from a save file
// header's next_id field.
func (r *Registry) SetNextID(n uint64) {
	r.nextID.Store(n)
}

// NextID returns the value that would currently be handed out, for
// persisting in the save header.
func (r *Registry) NextID() uint64 { return r.nextID.Load() }

func (r *Registry) allocID() uint64 { return r.nextID.Add(1) - 1 }

// Insert registers f under its own id, which must not already be taken.
func (r *Registry) Insert(f Base) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms[f.ID()] = f
}

// CreateSingleton returns the existing singleton of kind if one exists,
// otherwise allocates it at its reserved id via factory and inserts it
// (§4.2: "For singleton types, returns the existing singleton if
// present").
func CreateSingleton[T Base](r *Registry, kind domain.FormType, factory func(id uint64) T) T {
	id := ReservedID(kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.forms[id]; ok {
		if t, ok := existing.(T); ok {
			return t
		}
	}
	v := factory(id)
	r.forms[id] = v
	return v
}

// Create allocates a fresh non-singleton form.
func Create[T Base](r *Registry, factory func(id uint64) T) T {
	id := r.allocID()
	v := factory(id)
	r.mu.Lock()
	r.forms[id] = v
	r.mu.Unlock()
	return v
}

// Adopt inserts a value an external collaborator built outside the
// registry (id 0, no flags) by giving it a fresh id and taking ownership
// of it. Used for domain.DerivationTree values the Generator constructs
// itself (§1's generator/grammar contract is external to this module; it
// has no registry of its own to allocate ids from).
func Adopt[T Base](r *Registry, v T) T {
	id := r.allocID()
	v.RestoreHeader(id, 0)
	r.mu.Lock()
	r.forms[id] = v
	r.mu.Unlock()
	return v
}

// LookupAny resolves id to its stored value without a type assertion, for
// wiring into a resolve.Resolver (package resolve cannot import form).
func (r *Registry) LookupAny(id uint64) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.forms[id]
	return f, ok
}

// Lookup resolves id to a T, returning errkind.ErrWrongType if the id
// exists under a different concrete type (§4.2).
func Lookup[T Base](r *Registry, id uint64) (T, error) {
	var zero T
	r.mu.RLock()
	f, ok := r.forms[id]
	r.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w: id %d", errkind.ErrNotFound, id)
	}
	t, ok := f.(T)
	if !ok {
		return zero, &errkind.FormError{Op: "lookup", ID: id, Type: f.Type().String(), Err: errkind.ErrWrongType}
	}
	return t, nil
}

// VisitAction is returned by a Visit callback.
type VisitAction int

const (
	Continue VisitAction = iota
	Delete
)

// Visit iterates every live form under a shared lock; if any callback
// returns Delete, the loop upgrades to the writer lock to perform the
// removal (§4.2).
func (r *Registry) Visit(fn func(Base) VisitAction) {
	r.mu.RLock()
	var toDelete []uint64
	for id, f := range r.forms {
		if fn(f) == Delete {
			toDelete = append(toDelete, id)
		}
	}
	r.mu.RUnlock()

	if len(toDelete) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range toDelete {
		r.deleteLocked(id)
	}
}

// Delete marks id Deleted and removes it from the lookup map, preserving
// enough for outstanding weak references to resolve to "not found"
// rather than panic. Forms with DoNotFree cannot be deleted; the attempt
// becomes a logged no-op (§4.2).
func (r *Registry) Delete(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked(id)
}

func (r *Registry) deleteLocked(id uint64) {
	f, ok := r.forms[id]
	if !ok {
		return
	}
	if f.DoNotFree() {
		logger.Warn().Uint64("id", id).Str("type", f.Type().String()).Msg("form delete refused: DoNotFree set")
		return
	}
	f.SetFlag(domain.FlagDeleted)
	delete(r.forms, id)
}

// Count returns the number of live (non-deleted) forms, for diagnostics.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms)
}

// Snapshot returns every live form, for the save path to iterate without
// holding the lock across I/O.
func (r *Registry) Snapshot() []Base {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Base, 0, len(r.forms))
	for _, f := range r.forms {
		out = append(out, f)
	}
	return out
}
