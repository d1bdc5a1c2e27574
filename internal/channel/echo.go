package channel

import (
	"sync"

	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/media"
)

// EchoPrefix is a diagnostic Driver prefix: callto="echo/<label>" gets a
// channel whose audio leg records every block it receives (readable through
// EchoChannel.Last) rather than playing anything back. The recorded blocks
// are not reported by any status handler.
const EchoPrefix = "echo/"

// EchoChannel extends Channel with the last block its audio leg recorded.
type EchoChannel struct {
	*Channel

	mu   sync.Mutex
	last media.Block
	n    int
}

func (c *EchoChannel) record(b media.Block) int {
	c.mu.Lock()
	c.last = b
	c.n++
	c.mu.Unlock()
	return len(b.Data)
}

// Last returns the most recently recorded block and how many have been
// recorded in total.
func (c *EchoChannel) Last() (media.Block, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.n
}

// NewEchoDriver builds the diagnostic echo Driver. Unlike ParkDriver it
// wires a real Consumer via SetConsumer (using the package-shared owner
// token), demonstrating the non-nil consumer path through
// media.Endpoint without looping a Source back into its own Forward
// call.
func NewEchoDriver(prio int, disp *dispatch.Dispatcher, reg *media.Registry, nowUs func() int64) *Driver {
	d := NewDriver(EchoPrefix, prio, disp, reg, nowUs)
	d.onCreate = func(ch *Channel) {
		echo := &EchoChannel{Channel: ch}
		audio := ch.AddMedia("audio", media.Format("slin"))
		audio.SetConsumer(owner, media.NewConsumerFunc("slin", echo.record))
		ch.Status = "echoing"
	}
	return d
}
