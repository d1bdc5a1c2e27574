// Package refobject implements an intrusive refcount with zombie
// detection and non-owning weak handles (spec.md §3 Lifecycles, §9
// "Pointer graphs + weak references"). CallEndpoint embeds a Ref
// (media.Endpoint does not) to get refcounted ownership without reaching for a garbage
// collector's finalizers, matching the original's deterministic-teardown
// discipline (last reference triggers graceful teardown synchronously).
package refobject

import (
	"sync/atomic"
)

// Ref is an intrusive refcount. Embed it by value in an owned type; call
// Init once after construction, Retain to take a new reference, and
// Release to drop one. The refcount starts at 1 (the creator's own
// reference), matching typical C++ refobject construction.
type Ref struct {
	count  atomic.Int32
	zombie atomic.Bool
}

// Init must be called exactly once, before the object is published to any
// other goroutine.
func (r *Ref) Init() {
	r.count.Store(1)
}

// Retain increments the refcount. Calling Retain on a zombie (fully
// released) object is a usage bug: it returns false instead of panicking,
// since a collaborator racing teardown is expected to handle "too late"
// gracefully rather than crash the process.
func (r *Ref) Retain() bool {
	for {
		n := r.count.Load()
		if n <= 0 {
			return false
		}
		if r.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release decrements the refcount and reports whether this call dropped
// it to zero (i.e. the caller is responsible for running teardown).
// Calling Release on an already-zombie object logs nothing here (no
// logger dependency in this package) and returns false; callers that care
// should check IsZombie first in debug builds.
func (r *Ref) Release() bool {
	n := r.count.Add(-1)
	if n == 0 {
		r.zombie.Store(true)
		return true
	}
	if n < 0 {
		// Over-release: restore to zombie floor so further calls stay
		// idempotent instead of wrapping through positive counts again.
		r.count.Store(0)
		r.zombie.Store(true)
		return false
	}
	return false
}

// Count returns the current refcount (0 once released).
func (r *Ref) Count() int32 {
	n := r.count.Load()
	if n < 0 {
		return 0
	}
	return n
}

// IsZombie reports whether the object has been fully released.
func (r *Ref) IsZombie() bool { return r.zombie.Load() }

// Weak is a non-owning handle to a refcounted object. Unlike Ref itself,
// a Weak may be held past the object's teardown; Get returns the zero
// value and false once the target is a zombie, letting peer-pointer style
// graphs detach cleanly without the owner needing to hunt down every Weak
// and null it out. The CallEndpoint peer link is a plain pointer, not a
// Weak.
type Weak[T any] struct {
	target T
	ref    *Ref
}

// NewWeak creates a Weak handle to target, whose liveness is tracked by ref.
func NewWeak[T any](target T, ref *Ref) Weak[T] {
	return Weak[T]{target: target, ref: ref}
}

// Get returns the target and true if it is still live, or the zero value
// and false if it has been released.
func (w Weak[T]) Get() (T, bool) {
	if w.ref == nil || w.ref.IsZombie() {
		var zero T
		return zero, false
	}
	return w.target, true
}

// Valid reports whether the weak handle still points at a live object.
func (w Weak[T]) Valid() bool {
	return w.ref != nil && !w.ref.IsZombie()
}
