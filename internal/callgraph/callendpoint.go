// Package callgraph implements CallEndpoint, the call-graph node that
// peers two sides of a call together and wires their per-media
// DataEndpoints (spec.md §4.4 "Call and Data graphs"). It depends on
// internal/media but not the reverse, so a DataEndpoint never needs to
// reach back up into the call graph that owns it.
package callgraph

import (
	"sync"

	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/media"
	"tallhat.dev/tonal/internal/mutexes"
	"tallhat.dev/tonal/internal/refobject"
	"tallhat.dev/tonal/internal/wire"
)

// topologyMutex is the single shared lock guarding every CallEndpoint's
// peer link and media map, per spec.md §5 ("the data-endpoint topology
// one shared mutex"). It is package-level because the invariant it
// protects — "at most one peer link between any two endpoints" — spans
// every CallEndpoint instance, not just one. Connect and Disconnect each
// lock it under a fresh Owner, so concurrent callers exclude one another.
var topologyMutex = mutexes.New()

// CallEndpoint is one side of a call: an identity, at most one peer, and
// a set of named media legs (spec.md §3 "CallEndpoint").
type CallEndpoint struct {
	refobject.Ref

	ID     string
	disp   *dispatch.Dispatcher
	reg    *media.Registry
	nowUs  func() int64

	mu    sync.RWMutex // guards peer/media below; topologyMutex guards cross-endpoint linking
	peer  *CallEndpoint
	media map[string]*media.Endpoint
}

// New creates a CallEndpoint identified by id, wired to disp for emitting
// lifecycle messages. reg is the translator factory registry shared by
// every media leg this endpoint creates (may be nil).
func New(id string, disp *dispatch.Dispatcher, reg *media.Registry, nowUs func() int64) *CallEndpoint {
	e := &CallEndpoint{
		ID:    id,
		disp:  disp,
		reg:   reg,
		nowUs: nowUs,
		media: make(map[string]*media.Endpoint),
	}
	e.Ref.Init()
	return e
}

// AddMedia registers a named media leg (e.g. "audio", "video") producing
// in format. Must be called before Connect for that name to participate
// in peering.
func (e *CallEndpoint) AddMedia(name string, produceFormat media.Format) *media.Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	ep := media.NewEndpoint(produceFormat, e.reg)
	e.media[name] = ep
	return ep
}

// Media returns the named media leg, if registered.
func (e *CallEndpoint) Media(name string) (*media.Endpoint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ep, ok := e.media[name]
	return ep, ok
}

// Peer returns the currently peered endpoint, or nil if unpeered.
func (e *CallEndpoint) Peer() *CallEndpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.peer
}

// owner is the ownership token CallEndpoint methods present to the
// media.Endpoint mutex they touch while topologyMutex is held. One token suffices for the whole package: topologyMutex already
// serializes every call site that reaches into a media.Endpoint from
// here, so there is no real recursion to track, just a token to satisfy
// the Endpoint API.
var owner = mutexes.NewOwner()

// Connect peers e to other for reason (spec.md §4.4 CallEndpoint.connect
// steps 1-3):
//  1. If already peered to other, no-op, return true.
//  2. Disconnect the current peer (if any), emitting chan.disconnected.
//  3. Link both sides; for each media name present in both endpoints,
//     wire source to consumer in both directions.
func (e *CallEndpoint) Connect(other *CallEndpoint, reason string) bool {
	lockOwner := mutexes.NewOwner()
	topologyMutex.Lock(lockOwner)
	defer topologyMutex.Unlock(lockOwner)

	if e.samePeerLocked(other) {
		return true
	}
	e.disconnectLocked(reason)
	other.disconnectLocked(reason)

	e.setPeerLocked(other)
	other.setPeerLocked(e)

	e.wireMediaLocked(other)

	return true
}

func (e *CallEndpoint) samePeerLocked(other *CallEndpoint) bool {
	e.mu.RLock()
	p := e.peer
	e.mu.RUnlock()
	return p == other
}

func (e *CallEndpoint) setPeerLocked(other *CallEndpoint) {
	e.mu.Lock()
	e.peer = other
	e.mu.Unlock()
}

// wireMediaLocked connects every media name present on both e and other,
// source to consumer in both directions, tolerating format mismatches on
// individual legs (a leg that fails to bridge is simply left unwired; it
// does not abort the rest of the call).
func (e *CallEndpoint) wireMediaLocked(other *CallEndpoint) {
	e.mu.RLock()
	names := make([]string, 0, len(e.media))
	for name := range e.media {
		names = append(names, name)
	}
	e.mu.RUnlock()

	for _, name := range names {
		localEp, ok := e.Media(name)
		if !ok {
			continue
		}
		peerEp, ok := other.Media(name)
		if !ok {
			continue
		}
		_ = localEp.SetConsumer(owner, peerSourceConsumer{src: peerEp.Source()})
		_ = peerEp.SetConsumer(owner, peerSourceConsumer{src: localEp.Source()})
	}
}

// peerSourceConsumer adapts a media.Source to satisfy media.Consumer so
// it can be installed as the other side's consumer: forwarding to it
// really means "push into this source's own fan-out", which is how two
// DataEndpoints' sources end up cross-wired.
type peerSourceConsumer struct{ src *media.Source }

func (p peerSourceConsumer) Format() media.Format { return p.src.Format() }
func (p peerSourceConsumer) Consume(b media.Block) int { return p.src.Forward(b) }

// Disconnect tears down the current peer link, if any, emitting
// chan.disconnected and chan.hangup on this endpoint's dispatcher.
func (e *CallEndpoint) Disconnect(reason string) {
	lockOwner := mutexes.NewOwner()
	topologyMutex.Lock(lockOwner)
	defer topologyMutex.Unlock(lockOwner)
	e.disconnectLocked(reason)
}

func (e *CallEndpoint) disconnectLocked(reason string) {
	e.mu.Lock()
	peer := e.peer
	e.peer = nil
	names := make([]string, 0, len(e.media))
	for name := range e.media {
		names = append(names, name)
	}
	e.mu.Unlock()

	if peer == nil {
		return
	}
	peer.mu.Lock()
	if peer.peer == e {
		peer.peer = nil
	}
	peer.mu.Unlock()

	for _, name := range names {
		if ep, ok := e.Media(name); ok {
			ep.ClearConsumer(owner)
		}
		if ep, ok := peer.Media(name); ok {
			ep.ClearConsumer(owner)
		}
	}

	e.emit("chan.disconnected", peer, reason)
	e.emit("chan.hangup", peer, reason)
}

func (e *CallEndpoint) emit(name string, peer *CallEndpoint, reason string) {
	if e.disp == nil {
		return
	}
	var createdUs int64
	if e.nowUs != nil {
		createdUs = e.nowUs()
	}
	msg := wire.New("", name, createdUs)
	msg.SetParam("id", e.ID)
	if peer != nil {
		msg.SetParam("peer", peer.ID)
	}
	msg.SetParam("reason", reason)
	e.disp.Dispatch(msg)
}
