// Package dispatch implements C6: the shared attempt loop that selects an
// endpoint, sends one HTTP/2 request, feeds the outcome back into the
// endpoint group's breaker, and asks the retry engine whether to try
// again.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-push-gateway/internal/codec"
	"github.com/tinywideclouds/go-push-gateway/internal/endpoint"
	"github.com/tinywideclouds/go-push-gateway/internal/resultmapper"
	"github.com/tinywideclouds/go-push-gateway/internal/retrypolicy"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Encoder produces the wire body, path, and base headers for one request.
// apple.go, fcm.go and pushsphere.go each supply one; Web Push goes
// through WebDispatcher (web.go) instead.
type Encoder interface {
	Path(req push.PushRequest) (string, error)
	Encode(req push.PushRequest) (codec.EncodedRequest, error)
	AuthHeaders(ctx context.Context) (map[string]string, error)
	MapResponse(resp *http.Response, body []byte) push.PushResult
}

// RawEncoder is implemented by providers that accept RawPushRequest
// forwarding (spec.md §4.2/§6): Apple, Firebase, and Pushsphere. Web Push
// has no raw-content wire form and does not implement it.
type RawEncoder interface {
	PathRaw(req push.RawPushRequest) (string, error)
	EncodeRaw(req push.RawPushRequest) (codec.EncodedRequest, error)
}

// Sender is the shape both Dispatcher (endpoint-group-backed providers)
// and WebDispatcher (direct-to-subscription Web Push) implement, so a
// caller wiring a ProfileSet doesn't need to special-case Web.
type Sender interface {
	Send(ctx context.Context, req push.PushRequest, retryOpts push.RetryOptions, totalTimeoutMs int64) push.PushResult
}

// Hooks are the three optional instrumentation points composed around
// the endpoint-group breaker feedback and the retry engine (spec.md
// §4.6): a user-supplied pre-send hook, an outlier-observer callback fed
// once per attempt in addition to the breaker's own internal bookkeeping,
// and a metrics callback for the raw HTTP call. All are optional.
type Hooks struct {
	BeforeSend func(ctx context.Context, req *http.Request)
	OnOutlier  func(endpointAddr string, success bool)
	OnMetrics  func(endpointAddr string, status int, duration time.Duration, err error)
}

// Dispatcher drives one provider's send path end to end.
type Dispatcher struct {
	client   *http.Client
	closeFn  func()
	group    *endpoint.Group
	engine   *retrypolicy.Engine
	limiter  *retrypolicy.RateLimiter
	encoder  Encoder
	hooks    Hooks
	logger   *slog.Logger
	baseURL  string
	defaults push.RetryOptions
}

// New builds a Dispatcher. group must already be started.
func New(client *http.Client, closeFn func(), group *endpoint.Group, engine *retrypolicy.Engine, limiter *retrypolicy.RateLimiter, encoder Encoder, hooks Hooks, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:  client,
		closeFn: closeFn,
		group:   group,
		engine:  engine,
		limiter: limiter,
		encoder: encoder,
		hooks:   hooks,
		logger:  logger.With("component", "dispatcher"),
	}
}

// Close releases the transport's background resources and the endpoint
// group's refresh loop.
func (d *Dispatcher) Close() {
	if d.closeFn != nil {
		d.closeFn()
	}
	if d.group != nil {
		d.group.Close()
	}
}

// Send runs the full attempt chain for one push request and returns the
// uniform PushResult. Encoding and path errors come back as CLIENT-sourced
// results via localFailure, without any HTTP call; panics are not
// recovered here.
func (d *Dispatcher) Send(ctx context.Context, req push.PushRequest, retryOpts push.RetryOptions, totalTimeoutMs int64) push.PushResult {
	encoded, err := d.encoder.Encode(req)
	if err != nil {
		return localFailure(err)
	}
	path, err := d.encoder.Path(req)
	if err != nil {
		return localFailure(err)
	}
	return d.run(ctx, path, encoded, retryOpts, totalTimeoutMs)
}

// SendRaw runs the attempt chain for a pre-built JSON body (spec.md §4.2's
// raw-push path). encoder must additionally implement RawEncoder; it does
// for every provider but Web Push, which has no raw wire form.
func (d *Dispatcher) SendRaw(ctx context.Context, req push.RawPushRequest, retryOpts push.RetryOptions, totalTimeoutMs int64) push.PushResult {
	rawEncoder, ok := d.encoder.(RawEncoder)
	if !ok {
		return localFailure(fmt.Errorf("dispatch: provider does not support raw push"))
	}
	encoded, err := rawEncoder.EncodeRaw(req)
	if err != nil {
		return localFailure(err)
	}
	path, err := rawEncoder.PathRaw(req)
	if err != nil {
		return localFailure(err)
	}
	return d.run(ctx, path, encoded, retryOpts, totalTimeoutMs)
}

func (d *Dispatcher) run(ctx context.Context, path string, encoded codec.EncodedRequest, retryOpts push.RetryOptions, totalTimeoutMs int64) push.PushResult {
	if totalTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(totalTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	used := make(map[string]bool)
	var last push.PushResult
	opts := &retryOpts

	if d.limiter != nil {
		d.limiter.RecordRequest()
	}

	for attempt := 1; ; attempt++ {
		addr, selErr := d.group.SelectWithWait(ctx, used)
		if selErr != nil {
			return push.PushResult{
				Status:       push.StatusUnavailable,
				ResultSource: push.SourceClient,
				Reason:       "no endpoint available",
				Cause:        selErr,
			}
		}
		used[addr] = true

		result, outcome := d.attempt(ctx, addr, path, encoded)
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

func (d *Dispatcher) attempt(ctx context.Context, addr, path string, encoded codec.EncodedRequest) (push.PushResult, retrypolicy.AttemptOutcome) {
	done, allowErr := d.group.Allow(addr)
	if allowErr != nil {
		return push.PushResult{
			Status:       push.StatusUnavailable,
			ResultSource: push.SourcePushProvider,
			Reason:       "endpoint circuit open",
			Cause:        allowErr,
		}, retrypolicy.AttemptOutcome{Unprocessed: true}
	}

	url := "https://" + addr + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded.Body))
	if err != nil {
		done(false)
		return localFailure(err), retrypolicy.AttemptOutcome{Err: err, Unprocessed: true}
	}
	for k, v := range encoded.Headers {
		httpReq.Header.Set(k, v)
	}
	authHeaders, err := d.encoder.AuthHeaders(ctx)
	if err != nil {
		done(false)
		return localFailure(err), retrypolicy.AttemptOutcome{Err: err, Unprocessed: true}
	}
	for k, v := range authHeaders {
		// An apns-topic already set by the encoder carries any topic
		// suffix; the profile's plain bundle ID does not replace it.
		if k == "apns-topic" && httpReq.Header.Get(k) != "" {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	if d.hooks.BeforeSend != nil {
		d.hooks.BeforeSend(ctx, httpReq)
	}

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	duration := time.Since(start)

	if d.hooks.OnMetrics != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		d.hooks.OnMetrics(addr, status, duration, err)
	}

	if err != nil {
		timeout := ctx.Err() == context.DeadlineExceeded
		done(false)
		if d.hooks.OnOutlier != nil {
			d.hooks.OnOutlier(addr, false)
		}
		return resultmapper.MapTransportError(resultmapper.TransportError{Err: err, Timeout: timeout}),
			retrypolicy.AttemptOutcome{Err: err, Timeout: timeout}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	success := endpoint.IsSuccess(resp.StatusCode)
	done(success)
	if d.hooks.OnOutlier != nil {
		d.hooks.OnOutlier(addr, success)
	}

	result := d.encoder.MapResponse(resp, body)
	return result, retrypolicy.AttemptOutcome{
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("retry-after"),
	}
}

func localFailure(err error) push.PushResult {
	status := push.StatusInvalidRequest
	if errors.Is(err, codec.ErrTooLarge) {
		status = push.StatusTooLargePayload
	}
	return push.PushResult{
		Status:       status,
		ResultSource: push.SourceClient,
		Reason:       err.Error(),
		Cause:        err,
	}
}
