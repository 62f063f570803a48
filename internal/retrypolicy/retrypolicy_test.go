package retrypolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func TestParseBackoffSpec_Fixed(t *testing.T) {
	bo, err := ParseBackoffSpec("fixed=500")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, bo.NextBackOff())
}

func TestParseBackoffSpec_Exponential(t *testing.T) {
	bo, err := ParseBackoffSpec("exponential=500:10000:2.0")
	require.NoError(t, err)
	first := bo.NextBackOff()
	assert.InDelta(t, 500*time.Millisecond, first, float64(100*time.Millisecond))
}

func TestParseBackoffSpec_Malformed(t *testing.T) {
	_, err := ParseBackoffSpec("exponential=abc:def:ghi")
	require.Error(t, err)
}

func TestEngine_MaxAttemptsOneNeverRetries(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)
	opts := &push.RetryOptions{MaxAttempts: 1, RetryPolicies: []push.Policy{push.PolicyServerError}}
	d, err := e.Decide(opts, 1, AttemptOutcome{StatusCode: 500}, nil)
	require.NoError(t, err)
	assert.False(t, d.Retry)
}

func TestEngine_ServerErrorPolicyRetries(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)
	opts := &push.RetryOptions{
		MaxAttempts:   3,
		BackoffSpec:   "fixed=400",
		RetryPolicies: []push.Policy{push.PolicyServerError},
	}
	d, err := e.Decide(opts, 1, AttemptOutcome{StatusCode: 500}, nil)
	require.NoError(t, err)
	assert.True(t, d.Retry)
	assert.Equal(t, 400*time.Millisecond, d.Backoff)
}

func TestEngine_RetryAfterComply(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)
	opts := &push.RetryOptions{
		MaxAttempts:        2,
		RetryAfterStrategy: push.RetryAfterComply,
	}
	d, err := e.Decide(opts, 1, AttemptOutcome{StatusCode: 503, RetryAfter: "2"}, nil)
	require.NoError(t, err)
	assert.True(t, d.Retry)
	assert.Equal(t, 2*time.Second, d.Backoff)
}

func TestEngine_RetryAfterNoRetryDeclines(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)
	opts := &push.RetryOptions{
		MaxAttempts:        2,
		RetryAfterStrategy: push.RetryAfterNoRetry,
		RetryPolicies:      []push.Policy{push.PolicyServerError},
	}
	d, err := e.Decide(opts, 1, AttemptOutcome{StatusCode: 503, RetryAfter: "2"}, nil)
	require.NoError(t, err)
	assert.False(t, d.Retry)
}

func TestEngine_FCMDefaultNoRetryOnClientErrors(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)
	opts := &push.RetryOptions{MaxAttempts: 3, RetryPolicies: []push.Policy{push.PolicyFCMDefault}}
	for _, status := range []int{400, 401, 403, 404} {
		d, err := e.Decide(opts, 1, AttemptOutcome{StatusCode: status}, nil)
		require.NoError(t, err)
		assert.False(t, d.Retry, "status %d", status)
	}
}

func TestEngine_FCMDefaultRetryAfter429(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)
	opts := &push.RetryOptions{MaxAttempts: 3, RetryPolicies: []push.Policy{push.PolicyFCMDefault}}
	d, err := e.Decide(opts, 1, AttemptOutcome{StatusCode: 429, RetryAfter: "2"}, nil)
	require.NoError(t, err)
	assert.True(t, d.Retry)
	assert.Equal(t, 2*time.Second, d.Backoff)
}

func TestEngine_RateLimitGateDeclinesWhenBudgetExhausted(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)
	opts := &push.RetryOptions{MaxAttempts: 3, RetryPolicies: []push.Policy{push.PolicyServerError}}

	limiter := NewRateLimiter(push.RetryRateLimitOptions{
		WindowNanos:         int64(time.Second),
		MinimumRetryCount:   -1,
		RetryThresholdRatio: 1.0,
	}, nil)
	limiter.RecordRequest()
	limiter.RecordRetry()
	limiter.RecordRetry()

	d, err := e.Decide(opts, 1, AttemptOutcome{StatusCode: 500}, limiter)
	require.NoError(t, err)
	assert.False(t, d.Retry)
}

func TestHeaders_RoundTrip(t *testing.T) {
	opts := &push.RetryOptions{
		MaxAttempts:         2,
		BackoffSpec:         "fixed=200",
		TimeoutPerAttemptMs: 1000,
		RetryPolicies:       []push.Policy{push.PolicyTimeout, push.PolicyClientError},
		HTTPStatusOptions: []push.HTTPStatusOption{
			{Statuses: []int{400, 401, 403, 404}, Backoff: "exponential=200:10000:2.0,jitter=0.2", NoRetry: false},
			{Statuses: []int{429}, NoRetry: true},
		},
		RetryAfterStrategy: push.RetryAfterComply,
	}
	timeout := int64(3000)

	h := EncodeHeaders(opts, &timeout)
	decoded, decodedTimeout, err := DecodeHeaders(h)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	require.NotNil(t, decodedTimeout)

	assert.Equal(t, opts.MaxAttempts, decoded.MaxAttempts)
	assert.Equal(t, opts.BackoffSpec, decoded.BackoffSpec)
	assert.Equal(t, opts.TimeoutPerAttemptMs, decoded.TimeoutPerAttemptMs)
	assert.ElementsMatch(t, opts.RetryPolicies, decoded.RetryPolicies)
	assert.Equal(t, opts.RetryAfterStrategy, decoded.RetryAfterStrategy)
	assert.Equal(t, timeout, *decodedTimeout)
	require.Len(t, decoded.HTTPStatusOptions, 2)
	assert.ElementsMatch(t, opts.HTTPStatusOptions[0].Statuses, decoded.HTTPStatusOptions[0].Statuses)
}

func TestHeaders_NoValidFieldYieldsNoOverride(t *testing.T) {
	h := make(map[string][]string)
	h[HeaderMaxAttempts] = []string{"not-a-number"}
	decoded, timeout, err := DecodeHeaders(h)
	require.NoError(t, err)
	assert.Nil(t, decoded)
	assert.Nil(t, timeout)
}
