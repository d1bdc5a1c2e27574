package wsrelay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tallhat.dev/tonal/internal/clock"
	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/engine"
	"tallhat.dev/tonal/internal/obslog"
	"tallhat.dev/tonal/internal/wire"
)

func startTestServer(t *testing.T) (*engine.Engine, *dispatch.Dispatcher, string) {
	t.Helper()
	disp := dispatch.New()
	eng := engine.New(disp, clock.NewManual(0), obslog.NewNop(), 1)

	p := New("127.0.0.1:0")
	require.NoError(t, eng.Register(p))
	t.Cleanup(func() { p.Unload(true) })

	srv := httptest.NewServer(http.HandlerFunc(p.handleUpgrade))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return eng, disp, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRelayDispatchesDecodedMessageAndRepliesWithMutatedParams(t *testing.T) {
	_, disp, url := startTestServer(t)

	h := dispatch.NewHandler("test.echo", 0, func(msg *wire.Message) bool {
		msg.SetParam("seen", "true")
		msg.SetRetVal("ok")
		return true
	})
	disp.Install(h)

	conn := dial(t, url)

	line := wire.Encode(wire.Request, wire.New("req-1", "test.echo", 0))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(line)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, dir, err := wire.Decode(string(reply))
	require.NoError(t, err)
	assert.Equal(t, wire.Reply, dir)
	assert.Equal(t, "ok", msg.RetVal())
	assert.Equal(t, "true", msg.GetValue("seen", ""))
}

func TestRelaySkipsUndecodableLineWithoutClosingConnection(t *testing.T) {
	_, disp, url := startTestServer(t)

	h := dispatch.NewHandler("test.echo", 0, func(msg *wire.Message) bool {
		msg.SetRetVal("ok")
		return true
	})
	disp.Install(h)

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not a valid wire line")))

	good := wire.Encode(wire.Request, wire.New("req-2", "test.echo", 0))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(good)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, _, err := wire.Decode(string(reply))
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.RetVal())
}
