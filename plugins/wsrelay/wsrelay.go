// Package wsrelay exposes the engine's wire.Message ASCII form (spec.md §6)
// over a websocket: a connected client sends "%%>message:..." request
// lines and receives "%%<message:..." replies carrying the dispatched
// message's mutated params and retval.
//
// It deliberately does not use Dispatcher.SetPostHook — that single slot
// is already claimed by internal/engine.Sniffer for the CLI's sniffer
// command, so wsrelay instead dispatches each decoded message directly
// and relays back the result, a request/reply channel rather than a
// broadcast tap.
//
// Uses a gorilla/websocket Upgrader with CheckOrigin always true,
// registered on a plain http.ServeMux rather than echo (statushttp
// already exercises echo), one goroutine per connection reading until
// error.
package wsrelay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tallhat.dev/tonal/internal/engine"
	"tallhat.dev/tonal/internal/wire"
)

const writeTimeout = 5 * time.Second

// Plugin serves the wire-message websocket relay on addr.
type Plugin struct {
	addr string

	mu      sync.Mutex
	eng     *engine.Engine
	srv     *http.Server
	clients map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
}

// New creates a Plugin that will listen on addr once registered.
func New(addr string) *Plugin {
	return &Plugin{
		addr:    addr,
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Name implements engine.Plugin.
func (p *Plugin) Name() string { return "wsrelay" }

// Initialize starts the HTTP listener (once; idempotent on reload).
func (p *Plugin) Initialize(e *engine.Engine) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.eng = e
	if p.srv != nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/relay", p.handleUpgrade)
	p.srv = &http.Server{
		Addr:              p.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := p.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.Log().Errorf("wsrelay: listen %s: %v", p.addr, err)
		}
	}()
	return nil
}

// Unload shuts the listener down gracefully and closes any open
// connections. Returns false (vetoing only this plugin's shutdown) if
// the graceful shutdown itself errors.
func (p *Plugin) Unload(now bool) bool {
	p.mu.Lock()
	srv := p.srv
	conns := make([]*websocket.Conn, 0, len(p.clients))
	for c := range p.clients {
		conns = append(conns, c)
	}
	p.srv = nil
	p.mu.Unlock()

	if srv == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	for _, c := range conns {
		_ = c.Close()
	}
	return err == nil
}

func (p *Plugin) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.clients[conn] = struct{}{}
	p.mu.Unlock()

	p.serve(conn)

	p.mu.Lock()
	delete(p.clients, conn)
	p.mu.Unlock()
}

func (p *Plugin) serve(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(1 << 16)

	for {
		_, line, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, _, err := wire.Decode(string(line))
		if err != nil {
			p.eng.Log().Debugf("wsrelay: decode: %v", err)
			continue
		}
		p.eng.Dispatcher.Dispatch(msg)

		reply := wire.Encode(wire.Reply, msg)
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}
