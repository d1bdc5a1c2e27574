package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tallhat.dev/tonal/internal/clock"
	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/obslog"
	"tallhat.dev/tonal/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestEngine() (*Engine, *dispatch.Dispatcher) {
	disp := dispatch.New()
	e := New(disp, clock.NewManual(0), obslog.NewNop(), 2)
	return e, disp
}

func TestRunDispatchesStartThenHaltAndReturnsOnCancel(t *testing.T) {
	e, disp := newTestEngine()

	var mu sync.Mutex
	var seen []string
	disp.Install(dispatch.NewHandler("", 0, func(msg *wire.Message) bool {
		mu.Lock()
		seen = append(seen, msg.Name())
		mu.Unlock()
		return false
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 1 && seen[0] == "engine.start"
	}, time.Second, time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "engine.halt")
}

func TestRunRejectsConcurrentSecondRun(t *testing.T) {
	e, _ := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return e.running.Load() }, time.Second, time.Millisecond)
	assert.Error(t, e.Run(context.Background()))

	cancel()
	<-done
}

func TestWorkerPoolDrainsDeferredQueue(t *testing.T) {
	e, disp := newTestEngine()

	received := make(chan string, 1)
	disp.Install(dispatch.NewHandler("chan.dtmf", 0, func(msg *wire.Message) bool {
		received <- msg.GetValue("digit", "")
		return true
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()

	msg := wire.New("", "chan.dtmf", 0)
	msg.SetParam("digit", "5")
	disp.Enqueue(msg)

	select {
	case digit := <-received:
		assert.Equal(t, "5", digit)
	case <-time.After(time.Second):
		t.Fatal("worker pool never drained the deferred queue")
	}

	cancel()
	<-done
}

func TestEngineTimerEnqueuesAtOneHertz(t *testing.T) {
	e, disp := newTestEngine()

	ticks := make(chan struct{}, 4)
	disp.Install(dispatch.NewHandler("engine.timer", 0, func(*wire.Message) bool {
		ticks <- struct{}{}
		return true
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("engine.timer never fired")
	}

	cancel()
	<-done
}

func TestHandleCommandStatusReportsEngineState(t *testing.T) {
	e, disp := newTestEngine()

	cmd := wire.New("", "engine.command", 0)
	cmd.SetParam("line", "status")
	require.True(t, disp.Dispatch(cmd))
	assert.Contains(t, cmd.RetVal(), "accept=accept")
}

func TestHandleCommandHelpListsBuiltins(t *testing.T) {
	e, disp := newTestEngine()
	_ = e

	cmd := wire.New("", "engine.command", 0)
	cmd.SetParam("line", "help")
	require.True(t, disp.Dispatch(cmd))
	assert.Contains(t, cmd.RetVal(), "status")
	assert.Contains(t, cmd.RetVal(), "sniffer")
}

func TestHandleCommandSnifferTogglesPostHook(t *testing.T) {
	e, disp := newTestEngine()

	on := wire.New("", "engine.command", 0)
	on.SetParam("line", "sniffer on")
	require.True(t, disp.Dispatch(on))
	assert.True(t, e.Sniffer().Enabled())

	filter := wire.New("", "engine.command", 0)
	filter.SetParam("line", `sniffer filter chan\..*`)
	require.True(t, disp.Dispatch(filter))

	off := wire.New("", "engine.command", 0)
	off.SetParam("line", "sniffer off")
	require.True(t, disp.Dispatch(off))
	assert.False(t, e.Sniffer().Enabled())
}

func TestHandleCommandStopCancelsRun(t *testing.T) {
	e, disp := newTestEngine()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.running.Load() }, time.Second, time.Millisecond)

	cmd := wire.New("", "engine.command", 0)
	cmd.SetParam("line", "stop")
	require.True(t, disp.Dispatch(cmd))
	assert.Equal(t, "stopping", cmd.RetVal())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop command did not unblock Run")
	}
}

func TestHandleCommandCompletionMatchesPrefix(t *testing.T) {
	e, disp := newTestEngine()
	_ = e

	cmd := wire.New("", "engine.command", 0)
	cmd.SetParam("line", "sta")
	cmd.SetParam("partword", "sta")
	require.True(t, disp.Dispatch(cmd))
	assert.Equal(t, "status", cmd.RetVal())
}

func TestHandleCommandUnknownWithoutCompletionIsUnhandled(t *testing.T) {
	_, disp := newTestEngine()

	cmd := wire.New("", "engine.command", 0)
	cmd.SetParam("line", "bogus")
	assert.False(t, disp.Dispatch(cmd))
}

type fakePlugin struct {
	name        string
	initCount   int
	initErr     error
	unloadOK    bool
	unloadCalls int
}

func (p *fakePlugin) Name() string { return p.name }
func (p *fakePlugin) Initialize(*Engine) error {
	p.initCount++
	return p.initErr
}
func (p *fakePlugin) Unload(now bool) bool {
	p.unloadCalls++
	return p.unloadOK
}

func TestRegisterInitializesOnceAndReloadReinvokes(t *testing.T) {
	e, _ := newTestEngine()
	p := &fakePlugin{name: "park", unloadOK: true}

	require.NoError(t, e.Register(p))
	assert.Equal(t, 1, p.initCount)
	assert.Equal(t, 1, e.pluginCount())

	require.NoError(t, e.Reload())
	assert.Equal(t, 2, p.initCount, "reload must re-invoke Initialize")
}

func TestShutdownPluginsLogsVetoButContinues(t *testing.T) {
	e, disp := newTestEngine()
	vetoing := &fakePlugin{name: "stubborn", unloadOK: false}
	compliant := &fakePlugin{name: "cooperative", unloadOK: true}
	require.NoError(t, e.Register(vetoing))
	require.NoError(t, e.Register(compliant))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return e.running.Load() }, time.Second, time.Millisecond)

	cancel()
	<-done
	_ = disp

	assert.Equal(t, 1, vetoing.unloadCalls)
	assert.Equal(t, 1, compliant.unloadCalls)
}
