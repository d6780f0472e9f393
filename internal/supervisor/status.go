package supervisor

import (
	"log"
	"sync"
	"time"
)

type statusSlot struct {
	msg    string
	lastAt time.Time
}

// statusTracker logs a line per slot, holding back repeats of the same line
// for minInterval. Engine workers share it, so it locks.
type statusTracker struct {
	mu          sync.Mutex
	prefix      string
	minInterval time.Duration
	now         func() time.Time
	slots       map[string]statusSlot
}

func newStatusTracker(prefix string, minInterval time.Duration) *statusTracker {
	if minInterval < 0 {
		minInterval = 0
	}
	return &statusTracker{
		prefix:      prefix,
		minInterval: minInterval,
		now:         time.Now,
		slots:       make(map[string]statusSlot),
	}
}

// Set logs msg for slot and reports whether it was written.
func (s *statusTracker) Set(slot, msg string) bool {
	if s == nil || slot == "" || msg == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	prev := s.slots[slot]
	if prev.msg == msg && !prev.lastAt.IsZero() && now.Sub(prev.lastAt) < s.minInterval {
		return false
	}
	s.slots[slot] = statusSlot{msg: msg, lastAt: now}
	log.Printf("%s %s", s.prefix, msg)
	return true
}

// Clear forgets slot so its next line is always written.
func (s *statusTracker) Clear(slot string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, slot)
}
