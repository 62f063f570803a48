package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/codec"
	"github.com/tinywideclouds/go-push-gateway/internal/endpoint"
	"github.com/tinywideclouds/go-push-gateway/internal/ratewindow"
	"github.com/tinywideclouds/go-push-gateway/internal/retrypolicy"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// stubEncoder is a minimal Encoder for exercising the attempt loop without
// a real vendor codec. encodeErr, when set, short-circuits Send before any
// HTTP call is made, exactly like a real codec rejecting a payload.
type stubEncoder struct {
	encodeErr error
}

func (e *stubEncoder) Path(push.PushRequest) (string, error) { return "/3/device/tok", nil }

func (e *stubEncoder) Encode(push.PushRequest) (codec.EncodedRequest, error) {
	if e.encodeErr != nil {
		return codec.EncodedRequest{}, e.encodeErr
	}
	return codec.EncodedRequest{Body: []byte(`{}`)}, nil
}

func (e *stubEncoder) AuthHeaders(context.Context) (map[string]string, error) {
	return nil, nil
}

func (e *stubEncoder) MapResponse(resp *http.Response, body []byte) push.PushResult {
	if resp.StatusCode >= 500 {
		return push.PushResult{Status: push.StatusInternalError, ResultSource: push.SourcePushProvider}
	}
	return push.PushResult{Status: push.StatusSuccess, ResultSource: push.SourcePushProvider}
}

func testRequest() push.PushRequest {
	return push.PushRequest{Provider: push.Apple, DeviceToken: "tok"}
}

func newTestDispatcher(t *testing.T, server *httptest.Server, enc Encoder, limiter *retrypolicy.RateLimiter, hooks Hooks) *Dispatcher {
	t.Helper()
	addr := server.Listener.Addr().String()
	group := endpoint.NewGroup(&endpoint.StaticResolver{Endpoints: []string{addr}}, endpoint.Options{MaxNumEndpoints: 1})
	group.Start(context.Background())
	t.Cleanup(group.Close)

	engine, err := retrypolicy.NewEngine()
	require.NoError(t, err)

	return New(server.Client(), nil, group, engine, limiter, enc, hooks, nil)
}

func TestDispatcher_TooLargePayloadMapsToTooLargeStatus(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("encoder failure must short-circuit before any HTTP call")
	}))
	defer server.Close()

	enc := &stubEncoder{encodeErr: codec.ErrTooLarge}
	d := newTestDispatcher(t, server, enc, nil, Hooks{})

	result := d.Send(context.Background(), testRequest(), push.RetryOptions{MaxAttempts: 1}, 0)

	assert.Equal(t, push.StatusTooLargePayload, result.Status)
	assert.Equal(t, push.SourceClient, result.ResultSource)
}

func TestWebDispatcher_TooLargePayloadMapsToTooLargeStatus(t *testing.T) {
	req := push.PushRequest{
		Provider:    push.Web,
		DeviceToken: "tok",
		Push: push.Push{Web: &push.WebPushProps{
			Title:    "hi",
			Body:     string(make([]byte, 5000)),
			Endpoint: "https://example.com/sub",
			P256dh:   "p",
			Auth:     "a",
		}},
	}

	d := NewWebDispatcher(push.WebPushProfile{
		VAPIDPublicKey:  "pub",
		VAPIDPrivateKey: "priv",
		VAPIDSubscriber: "mailto:test@example.com",
	}, nil, nil, nil, nil)

	result := d.Send(context.Background(), req, push.RetryOptions{MaxAttempts: 1}, 0)

	// A too-large Web Push body must be attributed to the client and
	// flagged 413, never the generic 400 INVALID_REQUEST.
	assert.Equal(t, push.StatusTooLargePayload, result.Status)
	assert.Equal(t, push.SourceClient, result.ResultSource)
}

// TestDispatcher_RetryBudgetExhaustion drives spec.md's seed scenario 3: a
// rate limiter configured with retryThresholdRatio=1.0, minimumRetryCount=-1
// grants exactly one retry per logical request, because RecordRequest is
// called once per Send call rather than once per attempt. A vendor that
// keeps failing with a retryable status must stop at 2 attempts, not climb
// to MaxAttempts.
func TestDispatcher_RetryBudgetExhaustion(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	limiter := retrypolicy.NewRateLimiter(push.RetryRateLimitOptions{
		WindowNanos:         int64(1e9),
		MinimumRetryCount:   -1,
		RetryThresholdRatio: 1.0,
	}, ratewindow.SystemTicker{})

	var attempts int
	var outlierCalls []bool
	hooks := Hooks{
		BeforeSend: func(ctx context.Context, req *http.Request) { attempts++ },
		OnOutlier:  func(addr string, success bool) { outlierCalls = append(outlierCalls, success) },
	}
	d := newTestDispatcher(t, server, &stubEncoder{}, limiter, hooks)

	retryOpts := push.RetryOptions{
		MaxAttempts:   5,
		BackoffSpec:   "fixed=1",
		RetryPolicies: []push.Policy{push.PolicyServerError},
	}

	result := d.Send(context.Background(), testRequest(), retryOpts, 0)

	assert.Equal(t, 2, attempts, "budget must exhaust after exactly one retry")
	assert.Equal(t, push.StatusInternalError, result.Status)
	// BeforeSend fires before the HTTP call and OnOutlier after it, once per
	// attempt, in that order, feeding the endpoint's breaker on every try.
	assert.Equal(t, []bool{false, false}, outlierCalls)
}

// TestDispatcher_RetrySucceedsWithinBudget exercises the ordinary decorator
// path: a single retryable failure followed by success, with the rate
// limiter's gate disabled (ratio -1); the attempt loop stops once the 200
// response matches no retry rule.
func TestDispatcher_RetrySucceedsWithinBudget(t *testing.T) {
	var calls int
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	limiter := retrypolicy.NewRateLimiter(push.RetryRateLimitOptions{RetryThresholdRatio: -1}, ratewindow.SystemTicker{})

	var metrics []int
	hooks := Hooks{
		OnMetrics: func(addr string, status int, _ time.Duration, _ error) { metrics = append(metrics, status) },
	}
	d := newTestDispatcher(t, server, &stubEncoder{}, limiter, hooks)

	retryOpts := push.RetryOptions{
		MaxAttempts:   5,
		BackoffSpec:   "fixed=1",
		RetryPolicies: []push.Policy{push.PolicyServerError},
	}

	result := d.Send(context.Background(), testRequest(), retryOpts, 0)

	assert.Equal(t, push.StatusSuccess, result.Status)
	assert.Equal(t, []int{500, 200}, metrics)
}
