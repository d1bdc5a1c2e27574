package engine

import (
	"regexp"
	"sync"

	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/obslog"
	"tallhat.dev/tonal/internal/wire"
)

// Sniffer implements the CLI's "sniffer on|off|filter <regex>|timer
// on|off" commands (spec.md §6) on top of the Dispatcher's existing
// post-dispatch hook — no separate tracing path is needed, tracing is
// just a hook that logs instead of acting.
type Sniffer struct {
	disp *dispatch.Dispatcher
	log  obslog.Logger

	mu      sync.Mutex
	enabled bool
	timer   bool
	filter  *regexp.Regexp
}

// NewSniffer creates a Sniffer bound to disp, initially disabled.
func NewSniffer(disp *dispatch.Dispatcher, log obslog.Logger) *Sniffer {
	return &Sniffer{disp: disp, log: log}
}

// SetEnabled turns tracing on or off.
func (s *Sniffer) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
	s.apply()
}

// Enabled reports whether tracing is currently on.
func (s *Sniffer) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetTimerVisible controls whether engine.timer ticks show up in the
// trace; off by default since they fire once a second regardless of
// traffic and drown out everything else.
func (s *Sniffer) SetTimerVisible(on bool) {
	s.mu.Lock()
	s.timer = on
	s.mu.Unlock()
}

// SetFilter restricts tracing to messages whose name matches pattern. An
// empty pattern clears the filter.
func (s *Sniffer) SetFilter(pattern string) error {
	if pattern == "" {
		s.mu.Lock()
		s.filter = nil
		s.mu.Unlock()
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.filter = re
	s.mu.Unlock()
	return nil
}

func (s *Sniffer) apply() {
	s.mu.Lock()
	on := s.enabled
	s.mu.Unlock()
	if !on {
		s.disp.SetPostHook(nil)
		return
	}
	s.disp.SetPostHook(s.trace)
}

func (s *Sniffer) trace(msg *wire.Message, handled bool) {
	s.mu.Lock()
	timer := s.timer
	filter := s.filter
	s.mu.Unlock()

	if !timer && msg.Name() == "engine.timer" {
		return
	}
	if filter != nil && !filter.MatchString(msg.Name()) {
		return
	}
	s.log.Infof("sniff: %s handled=%v", wire.Encode(wire.Request, msg), handled)
}
