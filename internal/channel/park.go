package channel

import (
	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/media"
)

// ParkPrefix is the callto prefix spec.md §4.6 names as an example
// Driver ("park/<lot>").
const ParkPrefix = "park/"

// NewParkDriver builds the example park Driver spec.md §4.6 names: every
// channel it creates gets an "audio" leg with no consumer, so whatever
// the parked party sends is simply absorbed (Source.Forward is defined
// to accept blocks with zero attached consumers and report nothing
// consumed). It demonstrates the Driver/onCreate contract end to end and
// is not hold-music infrastructure.
func NewParkDriver(prio int, disp *dispatch.Dispatcher, reg *media.Registry, nowUs func() int64) *Driver {
	d := NewDriver(ParkPrefix, prio, disp, reg, nowUs)
	d.onCreate = func(ch *Channel) {
		ch.AddMedia("audio", media.Format("slin"))
		ch.Status = "parked"
	}
	return d
}
