// ABOUTME: Bounded, expiring set of recently resolved correlation ids.
// ABOUTME: Oldest entries are evicted first; a background sweep drops expired ones.

package recent

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	marked time.Time
}

// Set is a thread-safe set of keys that forgets each key after a TTL or when
// capacity forces the oldest one out.
type Set struct {
	mu       sync.Mutex
	index    map[string]*list.Element
	order    *list.List // front is oldest
	ttl      time.Duration
	capacity int
	now      func() time.Time

	stop    chan struct{}
	stopped bool
}

// NewSet creates a Set and starts a sweeper that runs every sweepEvery.
// A non-positive sweepEvery disables the sweeper; expired keys are then only
// dropped lazily.
func NewSet(ttl time.Duration, capacity int, sweepEvery time.Duration) *Set {
	if capacity <= 0 {
		capacity = 1
	}
	s := &Set{
		index:    make(map[string]*list.Element),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	}
	return s
}

// Mark records key as resolved now. Re-marking refreshes its age.
func (s *Set) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if el, ok := s.index[key]; ok {
		el.Value.(*entry).marked = now
		s.order.MoveToBack(el)
		return
	}

	for len(s.index) >= s.capacity {
		s.removeLocked(s.order.Front())
	}
	s.index[key] = s.order.PushBack(&entry{key: key, marked: now})
}

// Check reports whether key was marked within the TTL. Expired keys are
// removed on the way out.
func (s *Set) Check(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[key]
	if !ok {
		return false
	}
	if s.expiredLocked(el, s.now()) {
		s.removeLocked(el)
		return false
	}
	return true
}

// Len returns the number of keys currently held, expired or not.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Sweep drops every expired key and returns how many were removed.
func (s *Set) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	// Entries are kept in mark order, so the first live one ends the scan.
	for el := s.order.Front(); el != nil; el = s.order.Front() {
		if !s.expiredLocked(el, now) {
			break
		}
		s.removeLocked(el)
		removed++
	}
	return removed
}

// Close stops the sweeper. Safe to call more than once.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		close(s.stop)
		s.stopped = true
	}
}

func (s *Set) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Set) expiredLocked(el *list.Element, now time.Time) bool {
	return now.Sub(el.Value.(*entry).marked) >= s.ttl
}

func (s *Set) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	s.order.Remove(el)
	delete(s.index, el.Value.(*entry).key)
}
