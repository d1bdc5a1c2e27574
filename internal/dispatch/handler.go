// Package dispatch implements the message bus: a priority-ordered handler
// chain plus a FIFO deferred queue (spec.md §3 "Dispatcher", §4.2, §8).
package dispatch

import (
	"tallhat.dev/tonal/internal/wire"
)

// Receiver processes one Message and reports whether it handled it.
// Returning true stops chain traversal for non-broadcast dispatch.
type Receiver interface {
	Received(msg *wire.Message) bool
}

// ReceiverFunc adapts a plain function to Receiver.
type ReceiverFunc func(msg *wire.Message) bool

// Received implements Receiver.
func (f ReceiverFunc) Received(msg *wire.Message) bool { return f(msg) }

// Handler is an immutable (name, priority, receiver) tuple installed on a
// Dispatcher. An empty Name matches every message (catch-all).
type Handler struct {
	Name     string
	Priority int
	Receiver Receiver

	// seq breaks priority ties in install order; set by Dispatcher.Install.
	seq int64
}

// Matches reports whether h should run for a message named name.
func (h *Handler) Matches(name string) bool {
	return h.Name == "" || h.Name == name
}

// NewHandler is a convenience constructor for the common case of
// installing a plain function as the receiver.
func NewHandler(name string, priority int, fn func(msg *wire.Message) bool) *Handler {
	return &Handler{Name: name, Priority: priority, Receiver: ReceiverFunc(fn)}
}
