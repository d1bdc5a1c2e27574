package errs

import (
	"sync/atomic"
)

// BugLogger receives runtime invariant-violation reports. It is installed
// with SetBugLogger and defaults to a no-op, so this package has no hard
// logging dependency; the engine does not install one itself.
type BugLogger func(format string, args ...any)

var (
	abortOnBug atomic.Bool
	bugLogger  atomic.Value // BugLogger
)

func init() {
	bugLogger.Store(BugLogger(func(string, ...any) {}))
}

// SetAbortOnBug toggles whether ReportBug panics (simulating the engine's
// configured process abort) instead of only logging.
func SetAbortOnBug(v bool) { abortOnBug.Store(v) }

// AbortOnBug reports the current toggle state.
func AbortOnBug() bool { return abortOnBug.Load() }

// SetBugLogger installs the sink used by ReportBug.
func SetBugLogger(fn BugLogger) {
	if fn == nil {
		fn = func(string, ...any) {}
	}
	bugLogger.Store(fn)
}

// ReportBug records a runtime invariant violation. If AbortOnBug is set it
// panics after logging, matching the engine's configurable abort-on-bug
// behaviour from spec.md §7; otherwise it degrades by logging only.
func ReportBug(format string, args ...any) {
	bugLogger.Load().(BugLogger)(format, args...)
	if abortOnBug.Load() {
		panic(New(Fatal, format, args...))
	}
}
