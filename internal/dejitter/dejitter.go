// Package dejitter implements the RTP dejitter buffer (spec.md §4.5):
// it turns a jittery packet arrival schedule into a smooth delivery
// stream bounded by configurable min/max buffering windows. It operates
// on real pion/rtp.Packet values rather than an ad-hoc struct, and its
// native delivery unit is media.Block so it can feed a DataSource
// directly.
//
// Grounded on original_source/libs/yrtp/dejitter.cpp's RTPDejitter, with
// two deliberate generalizations: a dedicated headSet/tailSet bool marks
// "no reference yet" instead of overloading a timestamp value of zero as
// a sentinel, and the sample-rate smoothing keeps its integer fixed-point
// math (bit shifts for the 7/8 and 31/32 weighted averages) rather than
// switching to floating point.
package dejitter

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"golang.org/x/time/rate"

	"tallhat.dev/tonal/internal/clock"
	"tallhat.dev/tonal/internal/media"
	"tallhat.dev/tonal/internal/obslog"
)

const (
	minDelayFloor  = 5 * time.Millisecond
	minDelayMargin = 30 * time.Millisecond
	maxDelayFloor  = 50 * time.Millisecond
	maxDelayCeil   = time.Second

	sampleRateInitialUs = 125000
	sampleRateMinUs     = 20000
	sampleRateMaxUs     = 150000

	fastRateSamples = 10
)

// queued is one buffered packet awaiting its scheduled delivery time.
type queued struct {
	seq         uint16
	ts          int64
	payload     []byte
	marker      bool
	scheduledUs int64
}

// Buffer is a single-stream RTP dejitter buffer. Not safe for concurrent
// use: Receive and Tick are expected to be called from the same media
// thread (spec.md §5 "the dejitter timerTick is invoked from a media
// thread at approximately 20ms cadence").
type Buffer struct {
	clk clock.Clock
	log obslog.Logger

	minDelayUs int64
	maxDelayUs int64

	headSet    bool
	headStamp  int64
	headTimeUs int64
	tailSet    bool
	tailStamp  int64

	sampleRateUs int64
	fastRate     int

	queue []queued

	delivered  uint64
	dropped    uint64
	lastSeq    uint16
	lastSeqSet bool

	dropLog *rate.Limiter
}

// New creates a Buffer. maxDelay is clamped to [50ms, 1s] first; minDelay
// is then clamped to [5ms, maxDelay-30ms].
func New(minDelay, maxDelay time.Duration, clk clock.Clock, log obslog.Logger) *Buffer {
	if maxDelay > maxDelayCeil {
		maxDelay = maxDelayCeil
	}
	if maxDelay < maxDelayFloor {
		maxDelay = maxDelayFloor
	}
	if minDelay < minDelayFloor {
		minDelay = minDelayFloor
	}
	if cap := maxDelay - minDelayMargin; minDelay > cap {
		minDelay = cap
	}
	if log == nil {
		log = obslog.NewNop()
	}
	return &Buffer{
		clk:          clk,
		log:          log,
		minDelayUs:   minDelay.Microseconds(),
		maxDelayUs:   maxDelay.Microseconds(),
		sampleRateUs: sampleRateInitialUs,
		fastRate:     fastRateSamples,
		dropLog:      rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Receive admits pkt into the buffer per spec.md §4.5 "Receive", and
// reports whether it was accepted. Late and future-too-far packets are
// dropped and report false; a duplicate is discarded silently but reports
// true. None of these are errors.
//
// The very first packet of a burst (nothing delivered yet and nothing
// queued) seeds headStamp/headTime from its own arrival instead of
// waiting for a delivery to do so: with a dedicated headSet flag there
// is no zero-timestamp ambiguity forcing that wait, and seeding
// immediately lets the very next packet's reorder check compare against
// a real rate estimate rather than guessing blind.
func (b *Buffer) Receive(pkt *rtp.Packet) bool {
	now := b.clk.Now()
	ts := int64(pkt.Timestamp)
	fresh := !b.headSet && !b.tailSet

	var when int64
	if b.headSet {
		dTs := ts - b.headStamp
		if dTs == 0 {
			return true
		}
		if dTs < 0 {
			b.countDrop()
			return false
		}

		var estimate int64
		if diff := now - b.headTimeUs; diff >= 0 {
			estimate = 1000 * diff / dTs
		}
		if estimate > 0 {
			if b.fastRate > 0 {
				b.fastRate--
				estimate = (7*b.sampleRateUs + estimate) >> 3
			} else {
				estimate = (31*b.sampleRateUs + estimate) >> 5
			}
			if estimate > sampleRateMaxUs {
				estimate = sampleRateMaxUs
			} else if estimate < sampleRateMinUs {
				estimate = sampleRateMinUs
			}
			b.sampleRateUs = estimate
		} else {
			estimate = b.sampleRateUs
		}

		if estimate > 0 {
			when = b.headTimeUs + dTs*estimate/1000 + b.minDelayUs
		} else {
			when = now + b.minDelayUs
		}
	} else {
		when = now + b.minDelayUs
	}
	if floor := now + b.minDelayUs; when < floor {
		// The sender-clock-relative estimate can undershoot real elapsed
		// time when the stream is running slower than its last estimate;
		// clamping here is what keeps every admitted packet's
		// scheduledDelivery-minus-arrival inside [minDelay, maxDelay].
		when = floor
	}

	insert := false
	if b.tailSet {
		if ts == b.tailStamp {
			return true
		}
		if ts < b.tailStamp {
			insert = true
		} else if when > now+b.maxDelayUs {
			b.countDrop()
			if b.dropLog.Allow() {
				b.log.Debugf("dejitter: dropping future-too-far packet seq=%d ts=%d when=%d now=%d maxDelay=%d", pkt.SequenceNumber, ts, when, now, b.maxDelayUs)
			}
			return false
		}
	}

	q := queued{seq: pkt.SequenceNumber, ts: ts, payload: pkt.Payload, marker: pkt.Marker, scheduledUs: when}

	if insert {
		inserted := false
		for i, existing := range b.queue {
			if existing.ts == ts {
				return true
			}
			if existing.ts > ts && existing.scheduledUs > when {
				b.queue = append(b.queue, queued{})
				copy(b.queue[i+1:], b.queue[i:])
				b.queue[i] = q
				inserted = true
				break
			}
		}
		if !inserted {
			b.queue = append(b.queue, q)
		}
	} else {
		b.queue = append(b.queue, q)
		b.tailStamp = ts
		b.tailSet = true
	}

	if fresh {
		b.headSet = true
		b.headStamp = ts
		b.headTimeUs = now
	}
	return true
}

func (b *Buffer) countDrop() { b.dropped++ }

// Tick delivers the head packet if its scheduled time has arrived, then
// discards (without delivering) any further packets already overdue by
// more than minDelay — catch-up after the receive path or a stalled
// caller falls behind (spec.md §4.5 "Tick").
func (b *Buffer) Tick(now int64, deliver func(media.Block)) {
	if len(b.queue) == 0 {
		b.tailSet = false
		if b.headSet && b.headTimeUs+b.maxDelayUs < now {
			b.headSet = false
		}
		return
	}

	head := b.queue[0]
	if head.scheduledUs > now {
		return
	}
	b.queue = b.queue[1:]
	b.headSet = true
	b.headStamp = head.ts
	b.headTimeUs = head.scheduledUs
	b.delivered++
	b.lastSeq = head.seq
	b.lastSeqSet = true

	flags := media.Flags(0)
	if head.marker {
		flags |= media.DataMark
	}
	deliver(media.Block{Data: head.payload, TimestampUs: head.scheduledUs, Flags: flags})

	for len(b.queue) > 0 {
		next := b.queue[0]
		delayed := now - next.scheduledUs
		if delayed <= 0 || delayed <= b.minDelayUs {
			break
		}
		b.queue = b.queue[1:]
		b.countDrop()
	}
}

// QueueLen returns the number of packets currently buffered, for tests
// and status reporting.
func (b *Buffer) QueueLen() int { return len(b.queue) }

// ReceptionReport summarizes this buffer's loss/ordering state as a
// pion/rtcp ReceptionReport, for the monitor.notify collaborator
// contract (spec.md §6): an external collaborator samples this to build
// RTCP receiver reports without this package depending on any transport.
func (b *Buffer) ReceptionReport(ssrc uint32) rtcp.ReceptionReport {
	total := b.delivered + b.dropped
	var fraction uint8
	if total > 0 {
		fraction = uint8((b.dropped * 256) / total)
	}
	rr := rtcp.ReceptionReport{
		SSRC:         ssrc,
		FractionLost: fraction,
		TotalLost:    uint32(b.dropped),
	}
	if b.lastSeqSet {
		rr.LastSequenceNumber = uint32(b.lastSeq)
	}
	return rr
}
