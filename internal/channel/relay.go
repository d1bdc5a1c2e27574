package channel

import (
	"sync"

	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/wire"
)

// RelayID identifies a cluster of related message kinds multiplexed onto
// one Relay (the MultiRouter / ChanAssistList pattern from spec.md §4.6).
// Assign one constant per logical relay a component installs.
type RelayID int

// relayFunc handles one message for a given call/session id, already
// resolved from the message's "id" (falling back to "billid") parameter.
type relayFunc func(id string, msg *wire.Message) bool

// Relay groups several message kinds under a single dispatcher.Handler:
// instead of one Handler per kind, Relay's own Received method multiplexes
// by message name and then by call id, so a component with many related
// handlers shows up on the Dispatcher as one priority-ordered entry.
//
// Modeled on the same processControl-style dispatch switch as channel.go,
// which dispatches by a string case inside one function; Relay
// generalizes that into two dispatch levels — by message kind, then by
// call id — so callers needn't re-derive the id-lookup boilerplate in
// every case arm.
type Relay struct {
	mu    sync.RWMutex
	kinds map[string]relayFunc
}

// NewRelay creates an empty Relay.
func NewRelay() *Relay {
	return &Relay{kinds: make(map[string]relayFunc)}
}

// On registers fn to handle messages named kind. Registering the same
// kind twice replaces the previous handler.
func (r *Relay) On(kind string, fn relayFunc) *Relay {
	r.mu.Lock()
	r.kinds[kind] = fn
	r.mu.Unlock()
	return r
}

// Received implements dispatch.Receiver. It looks up a handler for the
// message's kind, resolves the call id from the "id" parameter (falling
// back to "billid"), and invokes the handler. Returns false for any
// message kind this Relay did not register, so the dispatcher chain keeps
// moving.
func (r *Relay) Received(msg *wire.Message) bool {
	r.mu.RLock()
	fn, ok := r.kinds[msg.Name()]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	id := msg.GetValue("id", "")
	if id == "" {
		id = msg.GetValue("billid", "")
	}
	return fn(id, msg)
}

// Handler wraps this Relay as a dispatch.Handler, installable directly
// with disp.Install. name is usually empty (the Relay's own kind lookup
// decides what it handles), at priority prio.
func (r *Relay) Handler(name string, prio int) *dispatch.Handler {
	return &dispatch.Handler{Name: name, Priority: prio, Receiver: r}
}
