// Package mutexes implements the engine's recursive, timed-acquisition
// mutex and cooperative thread-cancellation primitives (spec.md §5,
// "Mutexes" and "Cancellation"). Go's sync.Mutex is neither recursive nor
// interruptible, so the call and media graphs (internal/callgraph,
// internal/media) build on this package instead of sync directly. The
// dispatcher and engine use sync locks.
//
// Recursion is tracked against an explicit Owner token rather than an
// implicit goroutine identity (Go deliberately has no public
// goroutine-local storage): callers acquire one Owner per logical thread
// of control — typically a Thread's Owner(), or a package-level Owner for
// code that never runs inside a Thread — and pass it to every Lock call
// along that logical call chain.
package mutexes

import (
	"sync"
	"sync/atomic"
	"time"
)

// liveCount and heldCount back the process-wide debug counters spec.md §5
// calls for ("a global counter tracks live mutexes and held locks").
var (
	liveCount atomic.Int64
	heldCount atomic.Int64
)

// LiveCount returns the number of constructed Mutexes in this process.
func LiveCount() int64 { return liveCount.Load() }

// HeldCount returns the number of currently-held lock levels, summed
// across all Mutexes (a recursive lock held 3 times by one Owner counts
// as 3).
func HeldCount() int64 { return heldCount.Load() }

var ownerCounter atomic.Int64

// Owner identifies one logical thread of control for recursive-lock
// accounting. Two Lock calls presenting the same Owner are treated as the
// same caller re-entering the mutex; calls presenting distinct Owners
// (including two independent goroutines, or the zero Owner used by
// ad-hoc callers) contend normally.
type Owner struct{ id int64 }

// NewOwner mints a fresh, process-unique Owner.
func NewOwner() *Owner {
	return &Owner{id: ownerCounter.Add(1)}
}

// Mutex is a recursive mutex. Not safe to copy after first use.
type Mutex struct {
	mu      sync.Mutex // guards the fields below
	owner   *Owner     // nil = unheld
	depth   int
	waiters chan struct{} // closed and replaced each time the lock becomes free
}

// New constructs a ready-to-use Mutex.
func New() *Mutex {
	liveCount.Add(1)
	return &Mutex{waiters: make(chan struct{})}
}

// Lock blocks until the mutex is acquired on behalf of owner, waiting
// forever. Equivalent to TimedLock(owner, -1).
func (m *Mutex) Lock(owner *Owner) { _ = m.TimedLock(owner, -1) }

// TryLock attempts to acquire on behalf of owner without blocking.
// Equivalent to TimedLock(owner, 0).
func (m *Mutex) TryLock(owner *Owner) bool { return m.TimedLock(owner, 0) }

// TimedLock attempts to acquire the mutex on behalf of owner, waiting up
// to timeout. A negative timeout waits forever; zero means try-lock (no
// waiting). Returns whether the lock was acquired.
func (m *Mutex) TimedLock(owner *Owner, timeout time.Duration) bool {
	var deadline time.Time
	hasDeadline := timeout >= 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		m.mu.Lock()
		if m.owner == nil || m.owner == owner {
			m.owner = owner
			m.depth++
			m.mu.Unlock()
			heldCount.Add(1)
			return true
		}
		wake := m.waiters
		m.mu.Unlock()

		if timeout == 0 {
			return false
		}
		if !hasDeadline {
			<-wake
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-wake:
			timer.Stop()
		case <-timer.C:
			return false
		}
	}
}

// Unlock releases one level of the recursive lock held by owner. Calling
// Unlock without a matching successful Lock by the same owner indicates a
// programming error in engine code (never collaborator input) and panics.
func (m *Mutex) Unlock(owner *Owner) {
	m.mu.Lock()
	if m.owner != owner {
		m.mu.Unlock()
		panic("mutexes: Unlock called by non-owner")
	}
	m.depth--
	heldCount.Add(-1)
	if m.depth == 0 {
		m.owner = nil
		wake := m.waiters
		m.waiters = make(chan struct{})
		m.mu.Unlock()
		close(wake)
		return
	}
	m.mu.Unlock()
}

// Depth returns how many times owner currently holds this mutex (0 if
// unheld or held by a different owner).
func (m *Mutex) Depth(owner *Owner) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != owner {
		return 0
	}
	return m.depth
}
