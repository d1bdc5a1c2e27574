// Package sigshell implements the generic signalling engine shell
// (spec.md §4.7): a scheduler and timer wheel shared by Layer-2/3
// protocol components (MTP2/MTP3/SCCP/ISUP, Q.931, MGCP). The shell
// itself never understands any protocol; it only owns the priority
// schedule and the tick loop.
package sigshell

import (
	"container/heap"
	"sync"

	"tallhat.dev/tonal/internal/clock"
)

// Component is one protocol layer driven by the shell's timer wheel.
type Component interface {
	Name() string
	TimerTick(nowUs int64)
}

// entry is one scheduled component in the shell's timer heap.
type entry struct {
	comp       Component
	prio       int
	intervalUs int64
	nextUs     int64
	index      int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].nextUs != h[j].nextUs {
		return h[i].nextUs < h[j].nextUs
	}
	return h[i].prio < h[j].prio
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Shell is the scheduler: insert components once, start/stop their
// periodic ticking, and drive them forward with Tick.
type Shell struct {
	clk clock.Clock

	mu       sync.Mutex
	comps    map[string]Component
	sched    entryHeap
	scheduls map[string]*entry
}

// New creates an empty Shell driven by clk.
func New(clk clock.Clock) *Shell {
	return &Shell{
		clk:      clk,
		comps:    make(map[string]Component),
		scheduls: make(map[string]*entry),
	}
}

// Insert registers comp by its Name(). Re-inserting the same name
// replaces the previous component; a schedule already running under that
// name keeps its timing and ticks the new component from then on.
func (s *Shell) Insert(comp Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comps[comp.Name()] = comp
	if e, ok := s.scheduls[comp.Name()]; ok {
		e.comp = comp
	}
}

// Start begins periodic ticking of the named component at priority prio
// (lower runs first among components due at the same instant) every
// intervalUs microseconds. Returns false if the component was never
// inserted or intervalUs is not positive.
func (s *Shell) Start(name string, prio int, intervalUs int64) bool {
	if intervalUs <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	comp, ok := s.comps[name]
	if !ok {
		return false
	}
	if old, exists := s.scheduls[name]; exists {
		heap.Remove(&s.sched, old.index)
	}
	e := &entry{comp: comp, prio: prio, intervalUs: intervalUs, nextUs: s.clk.Now() + intervalUs}
	heap.Push(&s.sched, e)
	s.scheduls[name] = e
	return true
}

// Stop cancels the named component's periodic ticking, if any started.
func (s *Shell) Stop(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.scheduls[name]
	if !ok {
		return false
	}
	heap.Remove(&s.sched, e.index)
	delete(s.scheduls, name)
	return true
}

// Tick runs every component whose schedule is due by now, in priority
// order (earliest-due first, ties broken by priority), then reschedules
// each for its next interval relative to when it was due. If that slot has
// already passed (a stall longer than one interval), the next run is one
// interval after now instead, so missed runs are skipped, not replayed.
func (s *Shell) Tick(now int64) {
	s.mu.Lock()
	var due []*entry
	for len(s.sched) > 0 && s.sched[0].nextUs <= now {
		e := heap.Pop(&s.sched).(*entry)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		e.comp.TimerTick(now)
	}

	s.mu.Lock()
	for _, e := range due {
		e.nextUs += e.intervalUs
		if e.nextUs <= now {
			e.nextUs = now + e.intervalUs
		}
		heap.Push(&s.sched, e)
	}
	s.mu.Unlock()
}

// Len returns the number of components currently on a periodic schedule.
func (s *Shell) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sched)
}
