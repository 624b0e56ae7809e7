// ABOUTME: Tests for the recently-resolved id set.
// ABOUTME: Uses a fake clock for expiry and checks capacity eviction order.

package recent

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestSet(t *testing.T, ttl time.Duration, capacity int) (*Set, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewSet(ttl, capacity, 0)
	s.now = clock.now
	t.Cleanup(s.Close)
	return s, clock
}

func TestSet_MarkAndCheck(t *testing.T) {
	s, _ := newTestSet(t, time.Minute, 10)

	assert.False(t, s.Check("a"))
	s.Mark("a")
	assert.True(t, s.Check("a"))
	assert.False(t, s.Check("b"))
	assert.Equal(t, 1, s.Len())
}

func TestSet_Expiry(t *testing.T) {
	s, clock := newTestSet(t, time.Minute, 10)

	s.Mark("a")
	clock.advance(59 * time.Second)
	assert.True(t, s.Check("a"))

	clock.advance(time.Second)
	assert.False(t, s.Check("a"))
	assert.Equal(t, 0, s.Len(), "expired key is dropped when checked")
}

func TestSet_RemarkRefreshes(t *testing.T) {
	s, clock := newTestSet(t, time.Minute, 10)

	s.Mark("a")
	clock.advance(40 * time.Second)
	s.Mark("a")
	clock.advance(40 * time.Second)

	assert.True(t, s.Check("a"))
	assert.Equal(t, 1, s.Len())
}

func TestSet_EvictsOldestAtCapacity(t *testing.T) {
	s, clock := newTestSet(t, time.Hour, 3)

	for _, k := range []string{"first", "second", "third"} {
		s.Mark(k)
		clock.advance(time.Millisecond)
	}
	s.Mark("fourth")

	assert.False(t, s.Check("first"))
	assert.True(t, s.Check("second"))
	assert.True(t, s.Check("third"))
	assert.True(t, s.Check("fourth"))

	// Refreshing "second" makes "third" the oldest.
	s.Mark("second")
	s.Mark("fifth")
	assert.False(t, s.Check("third"))
	assert.True(t, s.Check("second"))
	assert.Equal(t, 3, s.Len())
}

func TestSet_Sweep(t *testing.T) {
	s, clock := newTestSet(t, time.Minute, 100)

	s.Mark("old-1")
	s.Mark("old-2")
	clock.advance(30 * time.Second)
	s.Mark("fresh")
	clock.advance(45 * time.Second)

	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Check("fresh"))
}

func TestSet_BackgroundSweep(t *testing.T) {
	s := NewSet(time.Millisecond, 100, 5*time.Millisecond)
	defer s.Close()

	s.Mark("a")
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSet_CloseIsIdempotent(t *testing.T) {
	s := NewSet(time.Minute, 10, time.Minute)
	s.Close()
	s.Close()

	s.Mark("still-works")
	assert.True(t, s.Check("still-works"))
}

func TestSet_Concurrent(t *testing.T) {
	s := NewSet(time.Minute, 500, 0)
	defer s.Close()

	var wg sync.WaitGroup
	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				s.Mark(key)
				s.Check(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 500)
	s.Mark("final")
	assert.True(t, s.Check("final"))
}
