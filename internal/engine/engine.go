// Package engine ties the Dispatcher to a worker pool, a 1 Hz timer, the
// admission-control ladder, and the plugin registry — the subsystem
// spec.md §1 and §4.3 describe as the core's main loop.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tallhat.dev/tonal/internal/clock"
	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/errs"
	"tallhat.dev/tonal/internal/obslog"
	"tallhat.dev/tonal/internal/wire"
)

// workerIdleSleep is how long a worker goroutine waits before checking
// the deferred queue again after finding it empty (spec.md §4.2: "sleeping
// briefly when empty").
const workerIdleSleep = 5 * time.Millisecond

const timerTick = time.Second

var builtinCommands = []string{"status", "help", "reload", "stop", "sniffer"}

// Engine owns the global Dispatcher, the worker pool draining its
// deferred queue, the 1 Hz engine.timer source, the admission-control
// ladder, and the ordered plugin registry (spec.md §4.3).
type Engine struct {
	Dispatcher *dispatch.Dispatcher
	clk        clock.Clock
	log        obslog.Logger

	admission *AdmissionControl
	sniffer   *Sniffer

	workers int

	mu      sync.Mutex
	plugins []Plugin

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	commandHandler   *dispatch.Handler
	statusHandler    *dispatch.Handler
	monitorHandler   *dispatch.Handler
	admissionHandler *dispatch.Handler
}

// New creates an Engine bound to disp with the given worker-pool size.
// clk sources timestamps for every message the engine itself emits; log
// receives diagnostic output (pass obslog.NewNop() in tests).
func New(disp *dispatch.Dispatcher, clk clock.Clock, log obslog.Logger, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	e := &Engine{
		Dispatcher: disp,
		clk:        clk,
		log:        log,
		admission:  DefaultAdmissionControl(),
		workers:    workers,
	}
	e.sniffer = NewSniffer(disp, log)

	e.commandHandler = dispatch.NewHandler("engine.command", 0, e.handleCommand)
	e.statusHandler = dispatch.NewHandler("engine.status", 0, e.handleStatus)
	e.monitorHandler = dispatch.NewHandler("monitor.notify", 0, func(msg *wire.Message) bool {
		return e.admission.Notify(msg)
	})
	e.admissionHandler = dispatch.NewHandler("call.route", -1000, e.handleAdmission)

	disp.Install(e.commandHandler)
	disp.Install(e.statusHandler)
	disp.Install(e.monitorHandler)
	disp.Install(e.admissionHandler)
	return e
}

// Admission returns the engine's admission-control helper, so plugins
// feeding it monitor.notify-equivalent state programmatically (rather
// than via a dispatched message) can call Notify directly.
func (e *Engine) Admission() *AdmissionControl { return e.admission }

// Sniffer returns the engine's post-hook-backed tracer.
func (e *Engine) Sniffer() *Sniffer { return e.sniffer }

// Now returns the engine clock's current microsecond reading.
func (e *Engine) Now() int64 { return e.clk.Now() }

// Log returns the engine's logger.
func (e *Engine) Log() obslog.Logger { return e.log }

// Register loads a plugin: Initialize runs immediately, and on success
// the plugin is appended to the registry in declared order (spec.md
// §4.3 "Plugins are loaded in declared order").
func (e *Engine) Register(p Plugin) error {
	if err := p.Initialize(e); err != nil {
		return errs.Wrap(errs.Fatal, err, "plugin "+p.Name()+" initialize")
	}
	e.mu.Lock()
	e.plugins = append(e.plugins, p)
	e.mu.Unlock()
	return nil
}

// Reload re-invokes Initialize on every registered plugin, in load
// order, simulating a SIGHUP-equivalent reload. Initialize must be
// idempotent; Reload does not remove a plugin on error, it only reports
// the first failure.
func (e *Engine) Reload() error {
	e.mu.Lock()
	plugins := append([]Plugin(nil), e.plugins...)
	e.mu.Unlock()

	for _, p := range plugins {
		if err := p.Initialize(e); err != nil {
			e.log.Errorf("reload: plugin %s: %v", p.Name(), err)
			return errs.Wrap(errs.Fatal, err, "plugin "+p.Name()+" reload")
		}
	}
	return nil
}

func (e *Engine) pluginCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.plugins)
}

// shutdownPlugins runs Unload(true) on every plugin that implements
// Unloader, in load order. A false return vetoes that plugin's shutdown;
// the engine logs it and continues with the rest rather than aborting
// the whole process (spec.md §4.3 "any false return aborts shutdown of
// that plugin").
func (e *Engine) shutdownPlugins() {
	e.mu.Lock()
	plugins := append([]Plugin(nil), e.plugins...)
	e.mu.Unlock()

	for _, p := range plugins {
		u, ok := p.(Unloader)
		if !ok {
			continue
		}
		if !u.Unload(true) {
			e.log.Warnf("plugin %s vetoed shutdown", p.Name())
		}
	}
}

// Run starts the worker pool and the 1 Hz timer, dispatches engine.start,
// then blocks until ctx is cancelled. On cancellation it dispatches
// engine.halt, waits for the worker pool and timer goroutines to exit,
// runs plugin shutdown, and returns. Uses context.WithCancel plus
// ticker-driven background goroutines selecting on ctx.Done().
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errs.New(errs.BadArgument, "engine: already running")
	}
	defer e.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	defer cancel()

	e.wg.Add(e.workers)
	for i := 0; i < e.workers; i++ {
		go e.worker(ctx)
	}

	e.wg.Add(1)
	go e.runTimer(ctx)

	e.Dispatcher.Dispatch(wire.New("", "engine.start", e.clk.Now()))

	<-ctx.Done()

	e.Dispatcher.Dispatch(wire.New("", "engine.halt", e.clk.Now()))
	e.wg.Wait()

	e.shutdownPlugins()
	return nil
}

// Stop cancels a running Engine's context, unblocking Run. It is safe to
// call from any goroutine, including a dispatcher handler.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, _, ok := e.Dispatcher.DequeueOne(); ok {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(workerIdleSleep):
		}
	}
}

func (e *Engine) runTimer(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(timerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := wire.New("", "engine.timer", e.clk.Now())
			msg.SetParam("time", strconv.FormatInt(e.clk.Now()/1_000_000, 10))
			e.Dispatcher.Enqueue(msg)
		}
	}
}

func (e *Engine) handleAdmission(msg *wire.Message) bool {
	if e.admission.Admit() {
		return false
	}
	msg.SetParam("error", string(errs.Congestion))
	msg.SetRetVal("false")
	return true
}

// handleStatus answers engine.status queries scoped to module "engine"
// (or unscoped queries, which every Driver's own handler also answers
// for its own prefix — see internal/channel).
func (e *Engine) handleStatus(msg *wire.Message) bool {
	module := msg.GetValue("module", "")
	if module != "" && module != "engine" {
		return false
	}
	msg.SetParam("module", "engine")
	msg.SetParam("accept", e.admission.Level().String())
	msg.SetParam("queue", strconv.Itoa(e.Dispatcher.QueueLen()))
	msg.SetParam("plugins", strconv.Itoa(e.pluginCount()))
	return true
}

// handleCommand implements the CLI contract (spec.md §6): status, help,
// reload, stop, sniffer on|off|filter <regex>|timer on|off, plus whatever
// commands a plugin installs at a competing priority on engine.command.
func (e *Engine) handleCommand(msg *wire.Message) bool {
	line := strings.TrimSpace(msg.GetValue("line", ""))
	if line == "" {
		return false
	}
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "status":
		return e.cmdStatus(msg, args)
	case "help":
		return e.cmdHelp(msg, args)
	case "reload":
		return e.cmdReload(msg)
	case "stop":
		return e.cmdStop(msg)
	case "sniffer":
		return e.cmdSniffer(msg, args)
	default:
		if msg.GetValue("partword", "") != "" || msg.GetValue("partline", "") != "" {
			return e.cmdComplete(msg, cmd)
		}
		return false
	}
}

func (e *Engine) cmdStatus(msg *wire.Message, args []string) bool {
	status := wire.New("", "engine.status", e.clk.Now())
	status.SetParam("details", "true")
	if len(args) > 0 {
		status.SetParam("module", args[0])
	}
	if !e.Dispatcher.Dispatch(status) {
		return false
	}
	var b strings.Builder
	for _, p := range status.Params().Params() {
		if p.Name == "details" {
			continue
		}
		fmt.Fprintf(&b, "%s=%s ", p.Name, p.Value)
	}
	msg.SetRetVal(strings.TrimSpace(b.String()))
	return true
}

func (e *Engine) cmdHelp(msg *wire.Message, args []string) bool {
	help := wire.New("", "engine.help", e.clk.Now())
	if len(args) > 0 {
		help.SetParam("line", args[0])
	}
	help.SetBroadcast(true)
	e.Dispatcher.Dispatch(help)

	builtins := strings.Join(builtinCommands, ", ")
	if extra := help.GetValue("text", ""); extra != "" {
		msg.SetRetVal(builtins + "; " + extra)
	} else {
		msg.SetRetVal(builtins)
	}
	return true
}

func (e *Engine) cmdReload(msg *wire.Message) bool {
	if err := e.Reload(); err != nil {
		msg.SetParam("error", err.Error())
		msg.SetRetVal("false")
		return true
	}
	msg.SetRetVal("true")
	return true
}

func (e *Engine) cmdStop(msg *wire.Message) bool {
	e.Stop()
	msg.SetRetVal("stopping")
	return true
}

func (e *Engine) cmdSniffer(msg *wire.Message, args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "on":
		e.sniffer.SetEnabled(true)
	case "off":
		e.sniffer.SetEnabled(false)
	case "filter":
		if len(args) < 2 {
			return false
		}
		if err := e.sniffer.SetFilter(strings.Join(args[1:], " ")); err != nil {
			msg.SetParam("error", err.Error())
			msg.SetRetVal("false")
			return true
		}
	case "timer":
		if len(args) < 2 {
			return false
		}
		switch args[1] {
		case "on":
			e.sniffer.SetTimerVisible(true)
		case "off":
			e.sniffer.SetTimerVisible(false)
		default:
			return false
		}
	default:
		return false
	}
	msg.SetRetVal("true")
	return true
}

// cmdComplete answers engine.command tab-completion requests (the
// partline/partword parameters from the standard message-kind table):
// it matches prefix against the built-in command names and returns the
// matches space-joined in retval.
func (e *Engine) cmdComplete(msg *wire.Message, prefix string) bool {
	var matches []string
	for _, c := range builtinCommands {
		if strings.HasPrefix(c, prefix) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return false
	}
	msg.SetRetVal(strings.Join(matches, " "))
	return true
}
