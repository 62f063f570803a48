// Package ratewindow implements the sliding-window event-rate counter (C1)
// used by the retry engine's rate-limit gate.
package ratewindow

import (
	"sync/atomic"
	"time"
)

// Ticker is an injectable time source, in nanoseconds, so tests can control
// bucket rotation deterministically.
type Ticker interface {
	NowNanos() int64
}

// SystemTicker reads the wall clock via time.Now().UnixNano().
type SystemTicker struct{}

func (SystemTicker) NowNanos() int64 { return time.Now().UnixNano() }

type bucket struct {
	key   int64 // t - t mod window
	count int64
}

// Counter reports the approximate event rate over the trailing Window
// nanoseconds, using two buckets (current, previous) rotated lazily via
// CAS so concurrent writers never lose counts (spec.md §4.1).
type Counter struct {
	window int64
	ticker Ticker

	cur  atomic.Pointer[bucket]
	prev atomic.Pointer[bucket]
}

// New creates a counter over the given window (nanoseconds). A nil ticker
// defaults to the system clock.
func New(windowNanos int64, ticker Ticker) *Counter {
	if ticker == nil {
		ticker = SystemTicker{}
	}
	c := &Counter{window: windowNanos, ticker: ticker}
	now := ticker.NowNanos()
	c.cur.Store(&bucket{key: bucketKey(now, windowNanos)})
	c.prev.Store(&bucket{key: bucketKey(now, windowNanos) - windowNanos})
	return c
}

func bucketKey(t, window int64) int64 {
	if window <= 0 {
		return t
	}
	return t - (t % window)
}

// Count adds n to the current bucket, rotating buckets first if time has
// moved on since the last access.
func (c *Counter) Count(n int64) {
	c.rotate()
	cur := c.cur.Load()
	atomic.AddInt64(&cur.count, n)
}

// Get returns the smoothed event count:
// (1 - (t-curKey)/W) * prev.count + cur.count, truncated to integer.
func (c *Counter) Get() int64 {
	c.rotate()
	now := c.ticker.NowNanos()
	cur := c.cur.Load()
	prev := c.prev.Load()

	elapsed := now - cur.key
	if c.window <= 0 || elapsed >= c.window {
		return atomic.LoadInt64(&cur.count)
	}
	weight := 1.0 - float64(elapsed)/float64(c.window)
	return int64(weight*float64(atomic.LoadInt64(&prev.count))) + atomic.LoadInt64(&cur.count)
}

// rotate advances cur/prev if the current wall time has crossed into a new
// bucket. A CAS on cur ensures only one goroutine performs the rotation;
// losers simply observe the winner's result on their next load.
func (c *Counter) rotate() {
	now := c.ticker.NowNanos()
	key := bucketKey(now, c.window)

	for {
		cur := c.cur.Load()
		if cur.key == key {
			return
		}
		if cur.key > key {
			// Clock moved backwards relative to an already-rotated bucket
			// (possible with an injected test ticker); nothing to do.
			return
		}

		next := &bucket{key: key}
		// If we've skipped more than one window width, the old "cur"
		// bucket is no longer adjacent and shouldn't become "prev".
		var newPrev *bucket
		if key-cur.key == c.window {
			newPrev = &bucket{key: cur.key, count: atomic.LoadInt64(&cur.count)}
		} else {
			newPrev = &bucket{key: key - c.window}
		}

		if c.cur.CompareAndSwap(cur, next) {
			c.prev.Store(newPrev)
			return
		}
		// Lost the race; loop and re-check against whatever won.
	}
}
