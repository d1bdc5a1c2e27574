package media

import (
	"tallhat.dev/tonal/internal/errs"
	"tallhat.dev/tonal/internal/mutexes"
)

// Endpoint is the unit CallEndpoints wire together: one Source side and
// one Consumer side, with an optional translator chain transparently
// bridging a format mismatch between the two (spec.md §4.4
// "DataEndpoint"). Endpoint methods recursively re-enter commonMutex, so
// every call must present the Owner the caller already holds it under (or
// a fresh Owner for callers outside a Thread).
type Endpoint struct {
	mu       *mutexes.Mutex
	registry *Registry

	source   *Source
	consumer Consumer

	chainHead *Translator // nil when no translation is needed
	overrides []Consumer  // sniffers/recorders attached in parallel, never translated
}

// commonMutex is the one recursive mutex every Endpoint locks, so consumer
// attachment changes are serialized across all endpoints.
var commonMutex = mutexes.New()

// NewEndpoint builds an Endpoint producing in format 'produce', backed by
// reg for translator resolution (reg may be nil, disabling translation:
// a format mismatch then always fails).
func NewEndpoint(produce Format, reg *Registry) *Endpoint {
	return &Endpoint{
		mu:       commonMutex,
		registry: reg,
		source:   NewSource(produce),
	}
}

// Source returns the endpoint's producing side, for peers to Attach to.
func (e *Endpoint) Source() *Source { return e.source }

// SetConsumer wires c as this endpoint's sole logical consumer, resolving
// and inserting a translator chain if c's format differs from this
// endpoint's own source format. Replaces any previously set consumer.
func (e *Endpoint) SetConsumer(owner *mutexes.Owner, c Consumer) error {
	e.mu.Lock(owner)
	defer e.mu.Unlock(owner)

	if e.consumer != nil {
		e.detachLocked()
	}
	e.consumer = c

	srcFormat := e.source.Format()
	dstFormat := c.Format()
	if dstFormat == "" || srcFormat == dstFormat {
		e.source.Attach(c)
		return nil
	}
	if e.registry == nil {
		e.consumer = nil
		return errs.New(errs.FormatMismatch, "endpoint: no translator registry to bridge %s to %s", srcFormat, dstFormat)
	}
	path, err := e.registry.Resolve(srcFormat, dstFormat)
	if err != nil {
		e.consumer = nil
		return err
	}
	head, tail := BuildChain(path)
	tail.Source.Attach(c)
	e.source.Attach(head)
	e.chainHead = head
	return nil
}

// Replace swaps the current consumer for a new one atomically: the old
// consumer stops receiving blocks and the new one starts, with no window
// where both or neither is attached from the caller's perspective.
func (e *Endpoint) Replace(owner *mutexes.Owner, c Consumer) error {
	return e.SetConsumer(owner, c)
}

// ClearConsumer detaches the current consumer (and any translator chain),
// leaving the endpoint's source with only its overrides attached.
func (e *Endpoint) ClearConsumer(owner *mutexes.Owner) {
	e.mu.Lock(owner)
	defer e.mu.Unlock(owner)
	e.detachLocked()
	e.consumer = nil
}

func (e *Endpoint) detachLocked() {
	if e.chainHead != nil {
		e.source.Detach(e.chainHead)
		e.chainHead = nil
		return
	}
	if e.consumer != nil {
		e.source.Detach(e.consumer)
	}
}

// AddOverride attaches c to receive every block this endpoint forwards,
// in parallel with (never instead of) the primary consumer — for
// sniffers and recorders (spec.md §4.4 "sniffers/recorders attach
// without disturbing the primary path"). Overrides are never translated:
// they must accept the endpoint's native produce format.
func (e *Endpoint) AddOverride(owner *mutexes.Owner, c Consumer) {
	e.mu.Lock(owner)
	defer e.mu.Unlock(owner)
	e.overrides = append(e.overrides, c)
	e.source.Attach(c)
}

// RemoveOverride detaches a previously added override.
func (e *Endpoint) RemoveOverride(owner *mutexes.Owner, c Consumer) {
	e.mu.Lock(owner)
	defer e.mu.Unlock(owner)
	for i, existing := range e.overrides {
		if existing == c {
			e.overrides = append(e.overrides[:i:i], e.overrides[i+1:]...)
			break
		}
	}
	e.source.Detach(c)
}

// Forward pushes block through the endpoint's source to its consumer
// (possibly via a translator chain) and every attached override.
func (e *Endpoint) Forward(block Block) int {
	return e.source.Forward(block)
}
