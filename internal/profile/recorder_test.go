package profile

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every reading.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func TestRecorder_ScopeMeasuresDuration(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0), step: 4 * time.Millisecond}
	rec := NewRecorder()
	rec.now = clock.now

	for i := 0; i < 3; i++ {
		stop := rec.Scope("shm-bridge cam0")
		d := stop()
		assert.Equal(t, 4*time.Millisecond, d)
	}

	s, ok := rec.Summary("shm-bridge cam0")
	require.True(t, ok)
	assert.Equal(t, uint64(3), s.Calls)
	assert.InDelta(t, 4.0, s.MeanMS, 1e-9)
	assert.InDelta(t, 4.0, s.MaxMS, 1e-9)
	assert.Equal(t, 4*time.Millisecond, s.Last)
}

func TestRecorder_OverlappingScopes(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0), step: time.Millisecond}
	rec := NewRecorder()
	rec.now = clock.now

	a := rec.Start("x") // t=1
	b := rec.Start("x") // t=2
	assert.Equal(t, time.Millisecond, rec.Stop("x", b))    // t=3
	assert.Equal(t, 3*time.Millisecond, rec.Stop("x", a))  // t=4
	assert.Equal(t, time.Duration(0), rec.Stop("x", a))    // already stopped
	assert.Equal(t, time.Duration(0), rec.Stop("nope", 1)) // unknown scope
}

func TestRecorder_SummariesSortedAndForget(t *testing.T) {
	rec := NewRecorder()
	rec.Scope("b")()
	rec.Scope("a")()

	sums := rec.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, "a", sums[0].Name)
	assert.Equal(t, "b", sums[1].Name)

	rec.Forget("a")
	_, ok := rec.Summary("a")
	assert.False(t, ok)
}

func TestRecorder_ConcurrentScopes(t *testing.T) {
	rec := NewRecorder()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rec.Scope("hot")()
			}
		}()
	}
	wg.Wait()

	s, ok := rec.Summary("hot")
	require.True(t, ok)
	assert.Equal(t, uint64(800), s.Calls)
}
