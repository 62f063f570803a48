package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-push-gateway/internal/codec"
	"github.com/tinywideclouds/go-push-gateway/internal/resultmapper"
	"github.com/tinywideclouds/go-push-gateway/internal/retrypolicy"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// WebDispatcher drives VAPID Web Push sends (SPEC_FULL.md §4.8). Unlike
// Dispatcher, it never selects an endpoint from an endpoint group: every
// request already carries its own absolute subscription URL, so only the
// retry engine (C5) wraps the per-attempt webpush-go call, grounded on the
// teacher's internal/platform/web/webdispatcher.go send loop.
type WebDispatcher struct {
	profile push.WebPushProfile
	client  *http.Client
	engine  *retrypolicy.Engine
	limiter *retrypolicy.RateLimiter
	logger  *slog.Logger
}

// NewWebDispatcher builds a WebDispatcher for one WebPushProfile.
func NewWebDispatcher(profile push.WebPushProfile, client *http.Client, engine *retrypolicy.Engine, limiter *retrypolicy.RateLimiter, logger *slog.Logger) *WebDispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebDispatcher{
		profile: profile,
		client:  client,
		engine:  engine,
		limiter: limiter,
		logger:  logger.With("component", "WebDispatcher"),
	}
}

// Send runs the attempt chain for one Web Push request against its own
// subscription endpoint.
func (d *WebDispatcher) Send(ctx context.Context, req push.PushRequest, retryOpts push.RetryOptions, totalTimeoutMs int64) push.PushResult {
	encoded, err := codec.EncodeWeb(req)
	if err != nil {
		return localFailure(err)
	}
	props := req.Push.Web
	if props == nil || props.Endpoint == "" || props.P256dh == "" || props.Auth == "" {
		return localFailure(fmt.Errorf("dispatch: web push request requires endpoint, p256dh, and auth"))
	}
	sub := &webpush.Subscription{
		Endpoint: props.Endpoint,
		Keys: webpush.Keys{
			P256dh: props.P256dh,
			Auth:   props.Auth,
		},
	}

	if totalTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(totalTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	opts := &retryOpts
	var last push.PushResult

	if d.limiter != nil {
		d.limiter.RecordRequest()
	}

	for attempt := 1; ; attempt++ {
		result, outcome := d.attempt(sub, encoded)
		last = result

		decision, err := d.engine.Decide(opts, attempt, outcome, d.limiter)
		if err != nil {
			d.logger.Warn("retry decision failed", "err", err)
			return last
		}
		if !decision.Retry {
			return last
		}
		if d.limiter != nil {
			d.limiter.RecordRetry()
		}

		select {
		case <-ctx.Done():
			return push.PushResult{
				Status:       push.StatusInternalError,
				ResultSource: push.SourceClient,
				Reason:       "timeout",
				Cause:        ctx.Err(),
			}
		case <-time.After(decision.Backoff):
		}
	}
}

func (d *WebDispatcher) attempt(sub *webpush.Subscription, encoded codec.EncodedRequest) (push.PushResult, retrypolicy.AttemptOutcome) {
	resp, err := webpush.SendNotification(encoded.Body, sub, &webpush.Options{
		Subscriber:      d.profile.VAPIDSubscriber,
		VAPIDPublicKey:  d.profile.VAPIDPublicKey,
		VAPIDPrivateKey: d.profile.VAPIDPrivateKey,
		TTL:             60,
		HTTPClient:      d.client,
	})
	if err != nil {
		return resultmapper.MapTransportError(resultmapper.TransportError{Err: err}),
			retrypolicy.AttemptOutcome{Err: err}
	}
	defer resp.Body.Close()

	result := resultmapper.MapWeb(resp)
	return result, retrypolicy.AttemptOutcome{
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("retry-after"),
	}
}
