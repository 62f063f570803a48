package retrypolicy

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

const defaultCacheSize = 1000

// AttemptOutcome describes what happened on one dispatch attempt, enough
// for the policy rules in spec.md §4.5 to be evaluated.
type AttemptOutcome struct {
	StatusCode  int // 0 when no response was received
	RetryAfter  string
	Timeout     bool
	Unprocessed bool
	Err         error
}

// Decision is the result of evaluating one attempt against a profile's
// retry options.
type Decision struct {
	Retry   bool
	Backoff time.Duration
}

// Engine evaluates retry decisions and caches the parsed form of each
// distinct RetryOptions it sees (backoff specs are strings; parsing them
// per attempt would be wasted work on a hot path).
type Engine struct {
	cache *lru.Cache[*push.RetryOptions, *derivedConfig]
}

// NewEngine builds an Engine with the ~1000-entry bounded cache spec.md
// §4.5 calls for.
func NewEngine() (*Engine, error) {
	cache, err := lru.New[*push.RetryOptions, *derivedConfig](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("retrypolicy: failed to build cache: %w", err)
	}
	return &Engine{cache: cache}, nil
}

type statusOptionConfig struct {
	opt     push.HTTPStatusOption
	backoff backoff.BackOff
}

type derivedConfig struct {
	statusOptions []statusOptionConfig
	defaultBO     backoff.BackOff
}

func (e *Engine) derive(opts *push.RetryOptions) (*derivedConfig, error) {
	if cached, ok := e.cache.Get(opts); ok {
		return cached, nil
	}
	cfg := &derivedConfig{}
	for _, so := range opts.HTTPStatusOptions {
		bo, err := ParseBackoffSpec(so.Backoff)
		if err != nil {
			return nil, err
		}
		cfg.statusOptions = append(cfg.statusOptions, statusOptionConfig{opt: so, backoff: bo})
	}
	defaultBO, err := ParseBackoffSpec(opts.BackoffSpec)
	if err != nil {
		return nil, err
	}
	cfg.defaultBO = defaultBO
	e.cache.Add(opts, cfg)
	return cfg, nil
}

// Decide evaluates the four-rule chain for one attempt. attempt is
// 1-indexed (the first dispatch is attempt 1).
func (e *Engine) Decide(opts *push.RetryOptions, attempt int, outcome AttemptOutcome, limiter *RateLimiter) (Decision, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if attempt >= maxAttempts {
		return Decision{Retry: false}, nil
	}

	if limiter != nil && !limiter.Allow() {
		return Decision{Retry: false}, nil
	}

	if outcome.RetryAfter != "" {
		switch opts.RetryAfterStrategy {
		case push.RetryAfterNoRetry:
			return Decision{Retry: false}, nil
		case push.RetryAfterComply:
			if d, ok := ParseRetryAfter(outcome.RetryAfter, time.Now()); ok {
				return Decision{Retry: true, Backoff: d}, nil
			}
			// unparseable/negative: fall through to later rules.
		}
	}

	cfg, err := e.derive(opts)
	if err != nil {
		return Decision{}, err
	}

	for _, so := range cfg.statusOptions {
		if !so.opt.Matches(outcome.StatusCode) {
			continue
		}
		if so.opt.NoRetry {
			return Decision{Retry: false}, nil
		}
		return Decision{Retry: true, Backoff: so.backoff.NextBackOff()}, nil
	}

	for _, policy := range opts.RetryPolicies {
		if d, matched := evaluatePolicy(policy, outcome, cfg.defaultBO); matched {
			return d, nil
		}
	}

	return Decision{Retry: false}, nil
}

func evaluatePolicy(policy push.Policy, outcome AttemptOutcome, defaultBO backoff.BackOff) (Decision, bool) {
	switch policy {
	case push.PolicyClientError:
		if outcome.StatusCode >= 400 && outcome.StatusCode < 500 {
			return Decision{Retry: true, Backoff: defaultBO.NextBackOff()}, true
		}
	case push.PolicyServerError:
		if outcome.StatusCode >= 500 && outcome.StatusCode < 600 {
			return Decision{Retry: true, Backoff: defaultBO.NextBackOff()}, true
		}
	case push.PolicyTimeout:
		if outcome.Timeout {
			return Decision{Retry: true, Backoff: defaultBO.NextBackOff()}, true
		}
	case push.PolicyOnException:
		if outcome.Err != nil {
			return Decision{Retry: true, Backoff: defaultBO.NextBackOff()}, true
		}
	case push.PolicyOnUnprocessed:
		if outcome.Unprocessed {
			return Decision{Retry: true, Backoff: defaultBO.NextBackOff()}, true
		}
	case push.PolicyFCMDefault:
		return evaluateFCMDefault(outcome)
	}
	return Decision{}, false
}

func evaluateFCMDefault(outcome AttemptOutcome) (Decision, bool) {
	switch outcome.StatusCode {
	case 400, 401, 403, 404:
		return Decision{Retry: false}, true
	case 429:
		d := 60 * time.Second
		if parsed, ok := ParseRetryAfter(outcome.RetryAfter, time.Now()); ok {
			d = parsed
		}
		return Decision{Retry: true, Backoff: d}, true
	}
	if outcome.StatusCode >= 500 && outcome.StatusCode < 600 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 10 * time.Second
		eb.MaxInterval = 60 * time.Second
		eb.Multiplier = 3.0
		eb.MaxElapsedTime = 0
		eb.Reset()
		return Decision{Retry: true, Backoff: eb.NextBackOff()}, true
	}
	if outcome.Err != nil {
		return Decision{Retry: true, Backoff: DefaultBackoff().NextBackOff()}, true
	}
	return Decision{}, false
}
