package engine

import (
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"tallhat.dev/tonal/internal/wire"
)

// Level is one rung of the call-accept ladder (spec.md §4.3).
type Level int

const (
	Accept Level = iota
	Congestion
	Restrict
	Reject
)

func (l Level) String() string {
	switch l {
	case Accept:
		return "accept"
	case Congestion:
		return "congestion"
	case Restrict:
		return "restrict"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

func clampLevel(n int) Level {
	switch {
	case n <= int(Accept):
		return Accept
	case n >= int(Reject):
		return Reject
	default:
		return Level(n)
	}
}

// AdmissionControl aggregates monitor.notify reports from external
// collaborators (connection-pool exhaustion, SS7 link congestion, and
// the like — none of which are core per spec.md §4.3's own framing:
// "the helper itself is core, its feeders are not") into one worst-case
// accept level, then gates new call intake through a token bucket sized
// per level.
type AdmissionControl struct {
	mu       sync.Mutex
	reported map[string]Level
	limiters [4]*rate.Limiter
}

// NewAdmissionControl builds an AdmissionControl whose per-level token
// buckets are limits[Accept..Reject] with the matching bursts.
func NewAdmissionControl(limits [4]rate.Limit, bursts [4]int) *AdmissionControl {
	a := &AdmissionControl{reported: make(map[string]Level)}
	for i := range a.limiters {
		a.limiters[i] = rate.NewLimiter(limits[i], bursts[i])
	}
	return a
}

// DefaultAdmissionControl ladders Accept (unlimited) down through Reject
// (blocked outright), throttling Congestion/Restrict to 50 and 5
// admits/sec — a reasonable default a deployment overrides via
// configuration.
func DefaultAdmissionControl() *AdmissionControl {
	return NewAdmissionControl(
		[4]rate.Limit{rate.Inf, 50, 5, 0},
		[4]int{1, 50, 5, 0},
	)
}

// Notify implements the monitor.notify handler: it scans indexed
// notify.N/value.N parameter pairs, each naming one monitor and its
// advertised level, and records the most recent level per monitor name.
func (a *AdmissionControl) Notify(msg *wire.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; ; i++ {
		name, ok := msg.GetParam("notify." + strconv.Itoa(i))
		if !ok {
			break
		}
		val, ok := msg.GetParam("value." + strconv.Itoa(i))
		if !ok {
			break
		}
		n, err := strconv.Atoi(val.Value)
		if err != nil {
			continue
		}
		a.reported[name.Value] = clampLevel(n)
	}
	return true
}

// Level returns the worst level currently advertised by any monitor.
func (a *AdmissionControl) Level() Level {
	a.mu.Lock()
	defer a.mu.Unlock()
	worst := Accept
	for _, lvl := range a.reported {
		if lvl > worst {
			worst = lvl
		}
	}
	return worst
}

// Admit reports whether a new call should be accepted right now: always
// true at Accept, token-bucket-gated at Congestion/Restrict, always
// false at Reject.
func (a *AdmissionControl) Admit() bool {
	return a.limiters[a.Level()].Allow()
}
