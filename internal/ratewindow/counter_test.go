package ratewindow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	mu  sync.Mutex
	now int64
}

func (f *fakeTicker) NowNanos() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTicker) advance(d int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += d
}

func TestCounter_ZeroAfterWindowOfInactivity(t *testing.T) {
	ticker := &fakeTicker{now: 0}
	window := int64(1_000_000_000) // 1s
	c := New(window, ticker)

	c.Count(5)
	require.EqualValues(t, 5, c.Get())

	// The count sits in the bucket starting at t=0. One window later that
	// bucket is the previous one at full weight; a further window of
	// inactivity pushes it out of the previous slot.
	ticker.advance(2 * window)
	assert.EqualValues(t, 0, c.Get())
}

func TestCounter_SmoothedMidBucket(t *testing.T) {
	ticker := &fakeTicker{now: 0}
	window := int64(1_000_000_000)
	c := New(window, ticker)

	c.Count(10) // lands in bucket starting at t=0
	ticker.advance(window)
	c.Count(4) // lands in the next bucket

	// Halfway into the new bucket: weight on prev should be ~0.5.
	ticker.advance(window / 2)
	got := c.Get()
	assert.EqualValues(t, int64(0.5*10)+4, got)
}

func TestCounter_ConcurrentRotationNeverLosesCounts(t *testing.T) {
	ticker := &fakeTicker{now: 0}
	window := int64(1_000_000_000)
	c := New(window, ticker)

	var wg sync.WaitGroup
	const writers = 50
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			c.Count(1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, writers, c.Get())
}

func TestCounter_BucketRotationAcrossMultipleWindows(t *testing.T) {
	ticker := &fakeTicker{now: 0}
	window := int64(1_000_000_000)
	c := New(window, ticker)

	c.Count(7)
	ticker.advance(window * 3) // skip two whole buckets
	assert.EqualValues(t, 0, c.Get())
}
