// Package statushttp exposes engine.status as JSON over HTTP
// (spec.md's domain stack table: "exposes engine.status as JSON over
// HTTP"). /health answers unconditionally; /status dispatches an
// engine.status message, optionally scoped by a "module" query
// parameter, and renders its resulting params.
//
// Uses echo.New() with HideBanner/HidePort, middleware.Recover(),
// Start(addr) in a goroutine, Shutdown(ctx) with a 5s timeout on
// teardown.
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"tallhat.dev/tonal/internal/engine"
	"tallhat.dev/tonal/internal/wire"
)

const shutdownTimeout = 5 * time.Second

// Plugin serves /health and /status on addr.
type Plugin struct {
	addr string

	mu   sync.Mutex
	eng  *engine.Engine
	echo *echo.Echo
}

// New creates a Plugin that will listen on addr once registered.
func New(addr string) *Plugin {
	return &Plugin{addr: addr}
}

// Name implements engine.Plugin.
func (p *Plugin) Name() string { return "statushttp" }

// Initialize builds the Echo app and starts listening (once; idempotent
// on reload).
func (p *Plugin) Initialize(e *engine.Engine) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.eng = e
	if p.echo != nil {
		return nil
	}

	ec := echo.New()
	ec.HideBanner = true
	ec.HidePort = true
	ec.Use(middleware.Recover())
	ec.GET("/health", p.handleHealth)
	ec.GET("/status", p.handleStatus)
	p.echo = ec

	go func() {
		if err := ec.Start(p.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Log().Errorf("statushttp: listen %s: %v", p.addr, err)
		}
	}()
	return nil
}

// Unload shuts the Echo server down gracefully. Returns false (vetoing
// only this plugin's shutdown) on a shutdown error.
func (p *Plugin) Unload(now bool) bool {
	p.mu.Lock()
	ec := p.echo
	p.echo = nil
	p.mu.Unlock()

	if ec == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return ec.Shutdown(ctx) == nil
}

func (p *Plugin) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (p *Plugin) handleStatus(c echo.Context) error {
	status := wire.New("", "engine.status", p.eng.Now())
	if module := c.QueryParam("module"); module != "" {
		status.SetParam("module", module)
	}
	if !p.eng.Dispatcher.Dispatch(status) {
		return echo.NewHTTPError(http.StatusNotFound, "no module answered the status query")
	}

	out := make(map[string]string)
	for _, param := range status.Params().Params() {
		out[param.Name] = param.Value
	}
	return c.JSON(http.StatusOK, out)
}
