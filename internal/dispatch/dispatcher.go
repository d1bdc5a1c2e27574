package dispatch

import (
	"sort"
	"sync"
	"sync/atomic"

	"tallhat.dev/tonal/internal/wire"
)

// PostHook is invoked after a dispatch completes, with the final handled
// result. Used for tracing/sniffing (spec.md §6 CLI "sniffer" command).
type PostHook func(msg *wire.Message, handled bool)

// Dispatcher owns a priority-ordered handler chain and a FIFO deferred
// queue. All methods are safe for concurrent use; dispatch.Dispatch may
// run concurrently with Install/Uninstall — a handler uninstalled mid
// dispatch still finishes its current Received call, and an uninstall of
// the currently running handler is otherwise safe because traversal
// iterates over a snapshot taken under the handlers lock.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []*Handler
	seq      int64

	qmu   sync.Mutex
	queue []*wire.Message

	hook atomic.Value // PostHook
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	d := &Dispatcher{}
	d.hook.Store(PostHook(nil))
	return d
}

// SetPostHook installs (or clears, with nil) the post-dispatch hook.
func (d *Dispatcher) SetPostHook(hook PostHook) {
	d.hook.Store(hook)
}

// Install inserts h in priority order (ties broken by install order).
// Installing the same *Handler pointer twice fails and returns false.
func (d *Dispatcher) Install(h *Handler) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.handlers {
		if existing == h {
			return false
		}
	}
	d.seq++
	h.seq = d.seq
	// Build a fresh slice so snapshots already handed to running dispatches
	// are never reordered underneath them.
	handlers := make([]*Handler, 0, len(d.handlers)+1)
	handlers = append(handlers, d.handlers...)
	handlers = append(handlers, h)
	sort.SliceStable(handlers, func(i, j int) bool {
		if handlers[i].Priority != handlers[j].Priority {
			return handlers[i].Priority < handlers[j].Priority
		}
		return handlers[i].seq < handlers[j].seq
	})
	d.handlers = handlers
	return true
}

// Uninstall removes h. Idempotent: uninstalling a handler that is not
// installed (or was already removed) is a no-op and returns false.
func (d *Dispatcher) Uninstall(h *Handler) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.handlers {
		if existing == h {
			d.handlers = append(d.handlers[:i:i], d.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the current handler slice. Since Install/Uninstall
// always allocate a new backing slice (never mutate in place), a snapshot
// taken under RLock is safe to range over after the lock is released even
// if another goroutine installs/uninstalls concurrently — this package's "new
// state takes effect no earlier than the next message" guarantee.
func (d *Dispatcher) snapshot() []*Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers
}

// Dispatch runs msg synchronously through the matching handler chain.
// Non-broadcast: traversal stops at the first handler returning true.
// Broadcast: every matching handler runs; the result is the logical OR.
// Sets the dispatched flag and invokes the post-hook (if any) before
// returning.
func (d *Dispatcher) Dispatch(msg *wire.Message) bool {
	handled := false
	name := msg.Name()
	broadcast := msg.Broadcast()
	for _, h := range d.snapshot() {
		if !h.Matches(name) {
			continue
		}
		if h.Receiver.Received(msg) {
			handled = true
			if !broadcast {
				break
			}
		}
	}
	msg.MarkDispatched()
	if hook, _ := d.hook.Load().(PostHook); hook != nil {
		hook(msg, handled)
	}
	return handled
}

// Enqueue appends msg to the deferred queue, taking ownership of it.
// Enqueuing the same *Message pointer twice fails and returns false.
// Messages enqueued from a single goroutine dispatch in enqueue order
// (spec.md §8 "Enqueue-dispatch FIFO"); the queue is a single FIFO shared
// by all producers, so cross-producer order is whatever arrives first.
func (d *Dispatcher) Enqueue(msg *wire.Message) bool {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	for _, m := range d.queue {
		if m == msg {
			return false
		}
	}
	d.queue = append(d.queue, msg)
	return true
}

// QueueLen returns the number of messages currently pending.
func (d *Dispatcher) QueueLen() int {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	return len(d.queue)
}

// DequeueOne pops the head of the deferred queue (if any), dispatches it,
// and returns it along with the handled result. Returns (nil, false,
// false) if the queue was empty.
func (d *Dispatcher) DequeueOne() (msg *wire.Message, handled bool, ok bool) {
	d.qmu.Lock()
	if len(d.queue) == 0 {
		d.qmu.Unlock()
		return nil, false, false
	}
	msg = d.queue[0]
	d.queue = d.queue[1:]
	d.qmu.Unlock()

	handled = d.Dispatch(msg)
	return msg, handled, true
}
