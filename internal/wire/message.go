// Package wire implements Message, the typed event routed through the
// dispatcher bus, and its ASCII line-oriented wire codec (spec.md §3, §4.1,
// §6).
package wire

import (
	"sync"

	"github.com/google/uuid"

	"tallhat.dev/tonal/internal/namedlist"
)

// Message is a NamedList plus dispatch bookkeeping: a creation timestamp,
// a mutable return-value string, a user-data payload, and dispatched/
// broadcast flags.
//
// A Message is created by one goroutine, may be read and mutated by many
// handlers sequentially (the dispatcher guarantees handlers for one
// dispatch run one at a time), and is destroyed by exactly one owner after
// dispatch. The zero value is not ready for use; construct with New.
type Message struct {
	ID         string
	params     *namedlist.NamedList
	createdUs  int64
	retval     string
	userData   any
	dispatched bool
	broadcast  bool

	mu sync.Mutex // guards retval/userData/dispatched/broadcast and Name's read of params; the parameter accessors are unguarded
}

// New creates a Message named name, stamped with createdUs (microseconds).
// If id is empty a random one is minted.
func New(id, name string, createdUs int64) *Message {
	if id == "" {
		id = uuid.NewString()
	}
	return &Message{
		ID:        id,
		params:    namedlist.New(name),
		createdUs: createdUs,
	}
}

// Name returns the message kind (e.g. "call.route").
func (m *Message) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params.Kind()
}

// CreatedUs returns the creation timestamp in microseconds.
func (m *Message) CreatedUs() int64 { return m.createdUs }

// Params returns the underlying NamedList. Handlers are expected to use
// its accessors directly; the NamedList itself is not goroutine-safe for
// concurrent handlers, matching spec.md §5's "handlers run sequentially
// within one dispatch" guarantee — concurrent access is only a concern
// across dispatches, which this type's own mutex covers for metadata.
func (m *Message) Params() *namedlist.NamedList { return m.params }

// RetVal returns the current return-value string.
func (m *Message) RetVal() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retval
}

// SetRetVal updates the return-value string.
func (m *Message) SetRetVal(v string) {
	m.mu.Lock()
	m.retval = v
	m.mu.Unlock()
}

// UserData returns the attached payload pointer.
func (m *Message) UserData() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userData
}

// SetUserData attaches a payload pointer to the message.
func (m *Message) SetUserData(v any) {
	m.mu.Lock()
	m.userData = v
	m.mu.Unlock()
}

// SetBroadcast marks the message for broadcast dispatch: every matching
// handler runs regardless of return value, and the final handled result
// is the logical OR of all of them.
func (m *Message) SetBroadcast(v bool) {
	m.mu.Lock()
	m.broadcast = v
	m.mu.Unlock()
}

// Broadcast reports whether this message is marked for broadcast dispatch.
func (m *Message) Broadcast() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcast
}

// MarkDispatched sets the dispatched flag. Called by the Dispatcher once
// traversal completes.
func (m *Message) MarkDispatched() {
	m.mu.Lock()
	m.dispatched = true
	m.mu.Unlock()
}

// Dispatched reports whether dispatch has completed for this message.
func (m *Message) Dispatched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatched
}

// GetParam, GetValue, GetIntValue, GetBoolValue, SetParam and ClearParam
// forward to the embedded NamedList for ergonomic handler code
// (msg.GetValue("caller", "") instead of msg.Params().GetValue(...)).

func (m *Message) GetParam(name string) (*namedlist.NamedParam, bool) { return m.params.GetParam(name) }
func (m *Message) GetValue(name, def string) string                   { return m.params.GetValue(name, def) }
func (m *Message) GetIntValue(name string, def int) int               { return m.params.GetIntValue(name, def) }
func (m *Message) GetBoolValue(name string, def bool) bool            { return m.params.GetBoolValue(name, def) }
func (m *Message) SetParam(name, value string)                        { m.params.SetParam(name, value) }
func (m *Message) ClearParam(name string) int                         { return m.params.ClearParam(name) }
