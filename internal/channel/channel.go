// Package channel implements the Driver/Channel base types and the
// message-relay pattern used to multiplex a cluster of related messages
// onto one component (spec.md §4.6).
//
// Modeled on a processControl-style dispatch switch
// (server/client.go:256) — one function dispatching many message kinds
// for a single connected client — generalized here into the priority
// handler model: instead of one big switch, a Driver installs one
// Handler per message kind at a configured priority, and a Relay groups
// several such Handlers under one call/session identifier.
package channel

import (
	"strings"
	"sync"

	"tallhat.dev/tonal/internal/callgraph"
	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/media"
	"tallhat.dev/tonal/internal/mutexes"
	"tallhat.dev/tonal/internal/wire"
)

// Channel is one call leg owned by a Driver: a CallEndpoint plus the
// status string collaborators query it for.
type Channel struct {
	*callgraph.CallEndpoint
	ID     string
	Status string
}

// locateRegistry is a process-wide id -> Channel index shared by every
// Driver in the process, backing chan.locate's O(1) lookup without
// requiring the caller to know which Driver owns a given channel id
// (spec.md §4 supplemented features: "a process-wide endpoint registry").
// It stays here rather than moving into internal/engine because it is
// keyed and populated entirely by Driver/Channel lifecycle events;
// internal/engine's registry (AdmissionControl, the plugin list) tracks
// engine-level state, not individual call legs.
var locateRegistry = struct {
	mu sync.RWMutex
	m  map[string]*Channel
}{m: make(map[string]*Channel)}

// Driver owns a set of Channels and answers call.execute requests whose
// callto starts with its prefix (spec.md §4.6 "park/", "tone/",
// "dsound/", "mrcp/" examples). A Driver installs its own handlers on
// the shared Dispatcher at construction; Unload removes them.
type Driver struct {
	Prefix string

	disp *dispatch.Dispatcher
	reg  *media.Registry
	nowUs func() int64

	mu       sync.RWMutex
	channels map[string]*Channel
	counter  int

	execHandler       *dispatch.Handler
	statusHandler     *dispatch.Handler
	masqueradeHandler *dispatch.Handler
	locateHandler     *dispatch.Handler

	// onCreate, if set, runs once right after a new Channel is built and
	// registered, before call.execute returns. Subclasses of the base
	// Driver (ParkDriver, EchoDriver) use it to wire their media
	// legs without overriding handleExecute itself.
	onCreate func(*Channel)
}

// NewDriver creates a Driver answering call.execute for callto values
// starting with prefix (e.g. "park/"), installing its handlers at
// priority prio on disp.
func NewDriver(prefix string, prio int, disp *dispatch.Dispatcher, reg *media.Registry, nowUs func() int64) *Driver {
	d := &Driver{
		Prefix:   prefix,
		disp:     disp,
		reg:      reg,
		nowUs:    nowUs,
		channels: make(map[string]*Channel),
	}
	d.execHandler = dispatch.NewHandler("call.execute", prio, d.handleExecute)
	d.statusHandler = dispatch.NewHandler("engine.status", prio, d.handleStatus)
	d.masqueradeHandler = dispatch.NewHandler("chan.masquerade", prio, d.handleMasquerade)
	d.locateHandler = dispatch.NewHandler("chan.locate", prio, d.handleLocate)
	disp.Install(d.execHandler)
	disp.Install(d.statusHandler)
	disp.Install(d.masqueradeHandler)
	disp.Install(d.locateHandler)
	return d
}

// Unload removes this driver's handlers and drops all channels,
// disconnecting each one first (spec.md §6 "unload(now) returning
// whether safe" — this Driver always reports it is safe to unload).
func (d *Driver) Unload(reason string) bool {
	d.disp.Uninstall(d.execHandler)
	d.disp.Uninstall(d.statusHandler)
	d.disp.Uninstall(d.masqueradeHandler)
	d.disp.Uninstall(d.locateHandler)

	d.mu.Lock()
	channels := make([]*Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		channels = append(channels, ch)
	}
	d.channels = make(map[string]*Channel)
	d.mu.Unlock()

	locateRegistry.mu.Lock()
	for _, ch := range channels {
		delete(locateRegistry.m, ch.ID)
	}
	locateRegistry.mu.Unlock()

	for _, ch := range channels {
		ch.Disconnect(reason)
	}
	return true
}

func (d *Driver) handleExecute(msg *wire.Message) bool {
	callto := msg.GetValue("callto", "")
	if !strings.HasPrefix(callto, d.Prefix) {
		return false
	}
	target := strings.TrimPrefix(callto, d.Prefix)
	ch := d.newChannel(target)
	msg.SetParam("id", ch.ID)
	msg.SetRetVal("true")
	return true
}

func (d *Driver) newChannel(target string) *Channel {
	d.mu.Lock()
	d.counter++
	id := d.Prefix + target + "/" + itoa(d.counter)
	ep := callgraph.New(id, d.disp, d.reg, d.nowUs)
	ch := &Channel{CallEndpoint: ep, ID: id, Status: "new"}
	d.channels[id] = ch
	d.mu.Unlock()

	locateRegistry.mu.Lock()
	locateRegistry.m[id] = ch
	locateRegistry.mu.Unlock()

	if d.onCreate != nil {
		d.onCreate(ch)
	}
	return ch
}

// Channel returns the channel by ID, if this driver owns it.
func (d *Driver) Channel(id string) (*Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[id]
	return ch, ok
}

// Channels returns a snapshot of all channels this driver currently owns.
func (d *Driver) Channels() []*Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, ch)
	}
	return out
}

// Drop removes a channel from this driver's registry (called once it has
// torn down), without itself disconnecting it.
func (d *Driver) Drop(id string) {
	d.mu.Lock()
	delete(d.channels, id)
	d.mu.Unlock()

	locateRegistry.mu.Lock()
	delete(locateRegistry.m, id)
	locateRegistry.mu.Unlock()
}

// handleMasquerade implements chan.masquerade: it attributes a new
// synthetic message to one of this driver's channels and enqueues it for
// dispatch, as though that channel itself had raised it. msg carries
// "id" (the channel to attribute to) and "message" (the kind to
// synthesize); every other parameter is copied onto the synthetic
// message.
func (d *Driver) handleMasquerade(msg *wire.Message) bool {
	id := msg.GetValue("id", "")
	ch, ok := d.Channel(id)
	if !ok {
		return false
	}
	kind := msg.GetValue("message", "")
	if kind == "" {
		return false
	}
	synthetic := wire.New("", kind, d.nowUs())
	for _, p := range msg.Params().Params() {
		if p.Name == "id" || p.Name == "message" {
			continue
		}
		synthetic.SetParam(p.Name, p.Value)
	}
	synthetic.SetParam("id", ch.ID)
	d.disp.Enqueue(synthetic)
	msg.SetRetVal("true")
	return true
}

// handleLocate implements chan.locate: an O(1) lookup against the
// process-wide registry every Driver publishes into, reporting whether
// the given id currently names a live channel (spec.md §4 supplemented
// features).
func (d *Driver) handleLocate(msg *wire.Message) bool {
	id := msg.GetValue("id", "")
	if id == "" {
		return false
	}
	locateRegistry.mu.RLock()
	ch, found := locateRegistry.m[id]
	locateRegistry.mu.RUnlock()
	if !found {
		msg.SetRetVal("false")
		return true
	}
	msg.SetParam("status", ch.Status)
	msg.SetRetVal("true")
	return true
}

func (d *Driver) handleStatus(msg *wire.Message) bool {
	module := msg.GetValue("module", "")
	if module != "" && module != d.Prefix {
		return false
	}
	d.mu.RLock()
	count := len(d.channels)
	details := msg.GetBoolValue("details", false)
	var b strings.Builder
	if details {
		for id, ch := range d.channels {
			b.WriteString(id)
			b.WriteString("=")
			b.WriteString(ch.Status)
			b.WriteString(";")
		}
	}
	d.mu.RUnlock()

	msg.SetParam("module", d.Prefix)
	msg.SetParam("channels", itoa(count))
	if details {
		msg.SetParam("details", b.String())
	}
	return true
}

// owner is shared by every Driver-created CallEndpoint; see
// internal/callgraph for why one token suffices across this package.
var owner = mutexes.NewOwner()

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
