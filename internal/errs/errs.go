// Package errs implements the engine's error taxonomy. Handlers on the
// dispatcher bus report failures as data (an "error"/"reason" parameter on
// the Message and a false return), not as panics or exceptions; this
// package exists for the minority of call sites — plugin load, translator
// resolution, engine bring-up — where a Go error value is still the right
// shape, and for classifying those errors consistently.
package errs

import (
	"github.com/cockroachdb/errors"
)

// Kind is one of the taxonomy's fixed categories (spec.md §4.8).
type Kind string

const (
	BadArgument    Kind = "bad-argument"
	NotFound       Kind = "not-found"
	Busy           Kind = "busy"
	Congestion     Kind = "congestion"
	FormatMismatch Kind = "format-mismatch"
	TimedOut       Kind = "timed-out"
	PeerGone       Kind = "peer-gone"
	Cancelled      Kind = "cancelled"
	Fatal          Kind = "fatal"
)

// kindError pairs a Kind with a cockroachdb/errors-wrapped cause, which
// captures a stack trace at construction time.
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string { return string(e.kind) + ": " + e.cause.Error() }
func (e *kindError) Unwrap() error { return e.cause }

// New creates an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, cause: errors.Newf(format, args...)}
}

// Wrap attaches kind to an existing error, preserving its stack/cause chain.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: errors.Wrap(err, msg)}
}

// KindOf extracts the Kind from err, if any of its wrapped causes carry one.
func KindOf(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return "", false
}

// Is reports whether err was constructed (directly or via wrapping) with
// the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
