package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/media"
	"tallhat.dev/tonal/internal/wire"
)

func fixedClock() func() int64 { return func() int64 { return 1000 } }

func TestConnectWiresMatchingMediaBothWays(t *testing.T) {
	disp := dispatch.New()
	a := New("a", disp, nil, fixedClock())
	b := New("b", disp, nil, fixedClock())

	aAudio := a.AddMedia("audio", "slin")
	bAudio := b.AddMedia("audio", "slin")

	var gotAtB, gotAtA media.Block
	bAudio.AddOverride(owner, media.NewConsumerFunc("slin", func(blk media.Block) int {
		gotAtB = blk
		return len(blk.Data)
	}))
	aAudio.AddOverride(owner, media.NewConsumerFunc("slin", func(blk media.Block) int {
		gotAtA = blk
		return len(blk.Data)
	}))

	require.True(t, a.Connect(b, ""))
	assert.Equal(t, b, a.Peer())
	assert.Equal(t, a, b.Peer())

	aAudio.Forward(media.Block{Data: []byte("a-to-b")})
	bAudio.Forward(media.Block{Data: []byte("b-to-a")})

	assert.Equal(t, []byte("a-to-b"), gotAtB.Data)
	assert.Equal(t, []byte("b-to-a"), gotAtA.Data)
}

func TestConnectAlreadyPeeredIsNoop(t *testing.T) {
	disp := dispatch.New()
	a := New("a", disp, nil, fixedClock())
	b := New("b", disp, nil, fixedClock())

	require.True(t, a.Connect(b, ""))
	require.True(t, a.Connect(b, "again"))
	assert.Equal(t, b, a.Peer())
}

func TestConnectDisconnectsPriorPeerAndEmits(t *testing.T) {
	disp := dispatch.New()
	var names []string
	disp.Install(dispatch.NewHandler("", 0, func(msg *wire.Message) bool {
		names = append(names, msg.Name())
		return false
	}))

	a := New("a", disp, nil, fixedClock())
	b := New("b", disp, nil, fixedClock())
	c := New("c", disp, nil, fixedClock())

	require.True(t, a.Connect(b, ""))
	require.True(t, a.Connect(c, "reroute"))

	assert.Nil(t, b.Peer())
	assert.Equal(t, a, c.Peer())
	assert.Contains(t, names, "chan.disconnected")
	assert.Contains(t, names, "chan.hangup")
}

func TestDisconnectClearsBothSides(t *testing.T) {
	disp := dispatch.New()
	a := New("a", disp, nil, fixedClock())
	b := New("b", disp, nil, fixedClock())
	require.True(t, a.Connect(b, ""))

	a.Disconnect("done")
	assert.Nil(t, a.Peer())
	assert.Nil(t, b.Peer())
}

func TestConnectToleratesMismatchedMediaNames(t *testing.T) {
	disp := dispatch.New()
	a := New("a", disp, nil, fixedClock())
	b := New("b", disp, nil, fixedClock())
	a.AddMedia("audio", "slin")
	b.AddMedia("video", "h264")

	assert.True(t, a.Connect(b, ""))
}
