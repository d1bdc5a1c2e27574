package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/wire"
)

func TestRelayMultiplexesByMessageKindThenCallID(t *testing.T) {
	r := NewRelay()

	var routed, disconnected []string
	r.On("call.route", func(id string, msg *wire.Message) bool {
		routed = append(routed, id)
		return true
	})
	r.On("chan.disconnected", func(id string, msg *wire.Message) bool {
		disconnected = append(disconnected, id)
		return true
	})

	disp := dispatch.New()
	disp.Install(r.Handler("", 0))

	route := wire.New("", "call.route", 0)
	route.SetParam("id", "call-1")
	assert.True(t, disp.Dispatch(route))

	hangup := wire.New("", "chan.disconnected", 0)
	hangup.SetParam("id", "call-1")
	assert.True(t, disp.Dispatch(hangup))

	assert.Equal(t, []string{"call-1"}, routed)
	assert.Equal(t, []string{"call-1"}, disconnected)
}

func TestRelayFallsBackToBillidWhenIDMissing(t *testing.T) {
	r := NewRelay()
	var got string
	r.On("call.execute", func(id string, msg *wire.Message) bool {
		got = id
		return true
	})

	msg := wire.New("", "call.execute", 0)
	msg.SetParam("billid", "bill-42")
	assert.True(t, r.Received(msg))
	assert.Equal(t, "bill-42", got)
}

func TestRelayIgnoresUnregisteredKinds(t *testing.T) {
	r := NewRelay()
	r.On("call.route", func(id string, msg *wire.Message) bool { return true })

	msg := wire.New("", "call.execute", 0)
	assert.False(t, r.Received(msg))
}

func TestRelayChainsWithOtherHandlersByPriority(t *testing.T) {
	disp := dispatch.New()
	r := NewRelay()
	var relayHit bool
	r.On("chan.hangup", func(id string, msg *wire.Message) bool {
		relayHit = true
		return false
	})
	disp.Install(r.Handler("", 0))

	var fallbackHit bool
	disp.Install(dispatch.NewHandler("chan.hangup", 1, func(msg *wire.Message) bool {
		fallbackHit = true
		return true
	}))

	msg := wire.New("", "chan.hangup", 0)
	assert.True(t, disp.Dispatch(msg))
	assert.True(t, relayHit)
	assert.True(t, fallbackHit)
}
