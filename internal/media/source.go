package media

import (
	"sync"
)

// Source produces media blocks and fans them out to attached consumers,
// synchronously, in producer order (spec.md §5 "Media forwarding is
// synchronous in producer order per source").
type Source struct {
	format Format

	mu        sync.RWMutex
	consumers []Consumer
}

// NewSource creates a Source declaring format.
func NewSource(format Format) *Source {
	return &Source{format: format}
}

// Format returns the format this source declares it produces.
func (s *Source) Format() Format { return s.format }

// Attach adds c to the fan-out list. A Consumer already attached is not
// added twice.
func (s *Source) Attach(c Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.consumers {
		if existing == c {
			return
		}
	}
	s.consumers = append(s.consumers, c)
}

// Detach removes c from the fan-out list, if present.
func (s *Source) Detach(c Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.consumers {
		if existing == c {
			s.consumers = append(s.consumers[:i:i], s.consumers[i+1:]...)
			return
		}
	}
}

// Consumers returns a snapshot of currently attached consumers.
func (s *Source) Consumers() []Consumer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Consumer, len(s.consumers))
	copy(out, s.consumers)
	return out
}

// Forward pushes block to every attached consumer synchronously and
// returns the number of bytes the first consumer reported consuming (0 if
// there are no consumers — spec.md §8 invariant: "DataSource with no
// attached consumers must accept Forward and return zero bytes
// consumed").
func (s *Source) Forward(block Block) int {
	consumers := s.Consumers()
	consumed := 0
	for i, c := range consumers {
		n := c.Consume(block)
		if i == 0 {
			consumed = n
		}
	}
	return consumed
}
