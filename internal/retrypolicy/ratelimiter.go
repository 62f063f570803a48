package retrypolicy

import (
	"github.com/tinywideclouds/go-push-gateway/internal/ratewindow"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// RateLimiter tracks a request and a retry sliding-window counter and
// decides whether the retry budget (spec.md §4.5 rule 1) still has room.
type RateLimiter struct {
	opts           push.RetryRateLimitOptions
	requestCounter *ratewindow.Counter
	retryCounter   *ratewindow.Counter
}

// NewRateLimiter builds a limiter with its own pair of sliding-window
// counters over opts.WindowNanos.
func NewRateLimiter(opts push.RetryRateLimitOptions, ticker ratewindow.Ticker) *RateLimiter {
	return &RateLimiter{
		opts:           opts,
		requestCounter: ratewindow.New(opts.WindowNanos, ticker),
		retryCounter:   ratewindow.New(opts.WindowNanos, ticker),
	}
}

// RecordRequest counts one logical request toward the request rate; the
// dispatcher calls it once per Send, however many attempts follow.
func (r *RateLimiter) RecordRequest() {
	r.requestCounter.Count(1)
}

// RecordRetry counts one actual retry toward the retry rate.
func (r *RateLimiter) RecordRetry() {
	r.retryCounter.Count(1)
}

// Allow reports whether another retry still fits the budget:
// max(requestRate*retryThresholdRatio, minimumRetryCount) - retryRate > 0.
// A negative retryThresholdRatio disables the gate unconditionally.
func (r *RateLimiter) Allow() bool {
	if r.opts.RetryThresholdRatio < 0 {
		return true
	}
	requestRate := float64(r.requestCounter.Get())
	retryRate := float64(r.retryCounter.Get())
	budget := requestRate * r.opts.RetryThresholdRatio
	if r.opts.MinimumRetryCount > budget {
		budget = r.opts.MinimumRetryCount
	}
	return budget-retryRate > 0
}
