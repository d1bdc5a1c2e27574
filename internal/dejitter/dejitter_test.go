package dejitter

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallhat.dev/tonal/internal/clock"
	"tallhat.dev/tonal/internal/media"
)

func pkt(seq uint16, ts uint32) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq, Timestamp: ts}, Payload: []byte{byte(ts)}}
}

func TestDejitterInOrderDeliveryIsNonDecreasing(t *testing.T) {
	clk := clock.NewManual(0)
	buf := New(40*time.Millisecond, 200*time.Millisecond, clk, nil)

	clk.Set(0)
	require.True(t, buf.Receive(pkt(1, 0)))
	clk.Set(25_000)
	require.True(t, buf.Receive(pkt(2, 160)))
	clk.Set(55_000)
	require.True(t, buf.Receive(pkt(3, 320)))

	var delivered []uint32
	for _, now := range []int64{40_000, 65_000, 95_000, 120_000} {
		buf.Tick(now, func(b media.Block) { delivered = append(delivered, uint32(b.Data[0])) })
	}

	assert.Equal(t, []uint32{0, 160, 320}, delivered)
}

func TestDejitterReorderDeliversAscendingNoDrops(t *testing.T) {
	clk := clock.NewManual(0)
	buf := New(40*time.Millisecond, 200*time.Millisecond, clk, nil)

	clk.Set(0)
	require.True(t, buf.Receive(pkt(1, 0)))
	clk.Set(30_000)
	require.True(t, buf.Receive(pkt(3, 320)))
	clk.Set(35_000)
	require.True(t, buf.Receive(pkt(2, 160)))

	var delivered []uint32
	for now := int64(0); now <= 150_000; now += 1_000 {
		buf.Tick(now, func(b media.Block) { delivered = append(delivered, uint32(b.Data[0])) })
	}

	assert.Equal(t, []uint32{0, 160, 320}, delivered)
}

func TestDejitterDuplicateAgainstHeadIsDroppedSilently(t *testing.T) {
	clk := clock.NewManual(0)
	buf := New(40*time.Millisecond, 200*time.Millisecond, clk, nil)

	require.True(t, buf.Receive(pkt(1, 0)))
	buf.Tick(40_000, func(media.Block) {})

	clk.Set(45_000)
	ok := buf.Receive(pkt(2, 0)) // same ts as the just-delivered head
	assert.True(t, ok)           // duplicate against head: accepted-but-discarded, not an error
	assert.Equal(t, 0, buf.QueueLen())
}

func TestDejitterLateAgainstHeadIsDropped(t *testing.T) {
	clk := clock.NewManual(0)
	buf := New(40*time.Millisecond, 200*time.Millisecond, clk, nil)

	require.True(t, buf.Receive(pkt(1, 320)))
	buf.Tick(40_000, func(media.Block) {})

	clk.Set(45_000)
	ok := buf.Receive(pkt(2, 160)) // older than last delivered head
	assert.False(t, ok)
}

func TestDejitterFutureTooFarIsDropped(t *testing.T) {
	clk := clock.NewManual(0)
	buf := New(5*time.Millisecond, 50*time.Millisecond, clk, nil)

	require.True(t, buf.Receive(pkt(1, 0)))
	clk.Set(1_000)
	// A huge RTP-timestamp jump barely moves the smoothed sample-rate
	// estimate, so the jump alone projects the schedule far past maxDelay.
	ok := buf.Receive(pkt(2, 1_000_000))
	assert.False(t, ok)
}

func TestDejitterScheduledMinusArrivalWithinBounds(t *testing.T) {
	clk := clock.NewManual(0)
	minDelay := 40 * time.Millisecond
	maxDelay := 200 * time.Millisecond
	buf := New(minDelay, maxDelay, clk, nil)

	arrivals := []struct {
		us int64
		ts uint32
	}{{0, 0}, {25_000, 160}, {55_000, 320}, {70_000, 480}}

	for _, a := range arrivals {
		clk.Set(a.us)
		require.True(t, buf.Receive(pkt(1, a.ts)))
	}

	for _, q := range buf.queue {
		diff := q.scheduledUs - lastArrivalFor(arrivals, q.ts)
		assert.GreaterOrEqual(t, diff, minDelay.Microseconds())
		assert.LessOrEqual(t, diff, maxDelay.Microseconds())
	}
}

func lastArrivalFor(arrivals []struct {
	us int64
	ts uint32
}, ts uint32) int64 {
	for _, a := range arrivals {
		if a.ts == ts {
			return a.us
		}
	}
	return 0
}

func TestDejitterMinDelayClampedAgainstMaxDelay(t *testing.T) {
	buf := New(500*time.Millisecond, 100*time.Millisecond, clock.NewManual(0), nil)
	assert.LessOrEqual(t, buf.minDelayUs, buf.maxDelayUs-minDelayMargin.Microseconds())
}

func TestDejitterMaxDelayClampedToCeiling(t *testing.T) {
	buf := New(10*time.Millisecond, 10*time.Second, clock.NewManual(0), nil)
	assert.Equal(t, maxDelayCeil.Microseconds(), buf.maxDelayUs)
}

func TestDejitterIdleResetsHeadAfterMaxDelay(t *testing.T) {
	clk := clock.NewManual(0)
	buf := New(40*time.Millisecond, 200*time.Millisecond, clk, nil)

	require.True(t, buf.Receive(pkt(1, 0)))
	buf.Tick(40_000, func(media.Block) {})
	assert.True(t, buf.headSet)

	buf.Tick(40_000+buf.maxDelayUs+1, func(media.Block) {})
	assert.False(t, buf.headSet)
}

func TestDejitterReceptionReportCarriesSSRCAndLastSeq(t *testing.T) {
	clk := clock.NewManual(0)
	buf := New(40*time.Millisecond, 200*time.Millisecond, clk, nil)

	require.True(t, buf.Receive(pkt(1, 0)))
	buf.Tick(40_000, func(media.Block) {})
	require.True(t, buf.Receive(pkt(2, 0))) // dup against head

	rr := buf.ReceptionReport(0xabcd)
	assert.EqualValues(t, 0xabcd, rr.SSRC)
	assert.Equal(t, uint32(1), rr.LastSequenceNumber)
}
