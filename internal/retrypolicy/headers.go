package retrypolicy

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Header names for relaying retry/timeout overrides through a
// Pushsphere-to-Pushsphere hop (spec.md §6).
const (
	HeaderMaxAttempts        = "retry-options-max-attempts"
	HeaderBackoff            = "retry-options-backoff"
	HeaderTimeoutPerAttempt  = "retry-options-timeout-per-attempt"
	HeaderRetryPolicies      = "retry-options-retry-policies"
	HeaderHTTPStatusOptions  = "retry-options-http-status-options"
	HeaderRetryAfterStrategy = "retry-options-retry-after-strategy"
	HeaderResponseTimeout    = "response-timeout"
)

// EncodeHeaders serializes opts into the relay header set. A nil opts
// produces no retry-options-* headers; response-timeout is still set when
// totalTimeoutMs is non-nil.
func EncodeHeaders(opts *push.RetryOptions, totalTimeoutMs *int64) http.Header {
	h := http.Header{}
	if opts == nil {
		if totalTimeoutMs != nil {
			h.Set(HeaderResponseTimeout, strconv.FormatInt(*totalTimeoutMs, 10))
		}
		return h
	}
	if opts.MaxAttempts >= 2 {
		h.Set(HeaderMaxAttempts, strconv.Itoa(opts.MaxAttempts))
	}
	if opts.BackoffSpec != "" {
		h.Set(HeaderBackoff, opts.BackoffSpec)
	}
	if opts.TimeoutPerAttemptMs > 0 {
		h.Set(HeaderTimeoutPerAttempt, strconv.FormatInt(opts.TimeoutPerAttemptMs, 10))
	}
	if len(opts.RetryPolicies) > 0 {
		names := make([]string, len(opts.RetryPolicies))
		for i, p := range opts.RetryPolicies {
			names[i] = string(p)
		}
		h.Set(HeaderRetryPolicies, strings.Join(names, ","))
	}
	for _, so := range opts.HTTPStatusOptions {
		h.Add(HeaderHTTPStatusOptions, encodeHTTPStatusOption(so))
	}
	if opts.RetryAfterStrategy != "" {
		h.Set(HeaderRetryAfterStrategy, string(opts.RetryAfterStrategy))
	}
	if totalTimeoutMs != nil {
		h.Set(HeaderResponseTimeout, strconv.FormatInt(*totalTimeoutMs, 10))
	}
	return h
}

func encodeHTTPStatusOption(so push.HTTPStatusOption) string {
	statuses := make([]string, len(so.Statuses))
	for i, s := range so.Statuses {
		statuses[i] = strconv.Itoa(s)
	}
	var b strings.Builder
	b.WriteString("statuses=")
	b.WriteString(strings.Join(statuses, ","))
	if so.Backoff != "" {
		b.WriteString("&backoff=")
		b.WriteString(so.Backoff)
	}
	b.WriteString("&noRetry=")
	b.WriteString(strconv.FormatBool(so.NoRetry))
	return b.String()
}

// DecodeHeaders parses the relay header set back into overrides. Invalid
// individual fields are silently dropped; a header set with no valid
// field yields (nil, nil, nil) ("no override"), per spec.md §6.
func DecodeHeaders(h http.Header) (*push.RetryOptions, *int64, error) {
	var opts push.RetryOptions
	any := false

	if v := h.Get(HeaderMaxAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			opts.MaxAttempts = n
			any = true
		}
	}
	if v := h.Get(HeaderBackoff); v != "" {
		if _, err := ParseBackoffSpec(v); err == nil {
			opts.BackoffSpec = v
			any = true
		}
	}
	if v := h.Get(HeaderTimeoutPerAttempt); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			opts.TimeoutPerAttemptMs = n
			any = true
		}
	}
	if v := h.Get(HeaderRetryPolicies); v != "" {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if p := parsePolicy(name); p != "" {
				opts.RetryPolicies = append(opts.RetryPolicies, p)
				any = true
			}
		}
	}
	for _, v := range h.Values(HeaderHTTPStatusOptions) {
		if so, ok := decodeHTTPStatusOption(v); ok {
			opts.HTTPStatusOptions = append(opts.HTTPStatusOptions, so)
			any = true
		}
	}
	if v := h.Get(HeaderRetryAfterStrategy); v != "" {
		switch push.RetryAfterStrategy(v) {
		case push.RetryAfterNoRetry, push.RetryAfterIgnore, push.RetryAfterComply:
			opts.RetryAfterStrategy = push.RetryAfterStrategy(v)
			any = true
		}
	}

	var totalTimeoutMs *int64
	if v := h.Get(HeaderResponseTimeout); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			totalTimeoutMs = &n
		}
	}

	if !any {
		return nil, totalTimeoutMs, nil
	}
	return &opts, totalTimeoutMs, nil
}

func parsePolicy(name string) push.Policy {
	switch push.Policy(name) {
	case push.PolicyClientError, push.PolicyServerError, push.PolicyTimeout,
		push.PolicyOnException, push.PolicyOnUnprocessed, push.PolicyFCMDefault:
		return push.Policy(name)
	default:
		return ""
	}
}

func decodeHTTPStatusOption(v string) (push.HTTPStatusOption, bool) {
	var so push.HTTPStatusOption
	haveStatuses := false
	for _, field := range strings.Split(v, "&") {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "statuses":
			for _, s := range strings.Split(val, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(s))
				if err == nil {
					so.Statuses = append(so.Statuses, n)
					haveStatuses = true
				}
			}
		case "backoff":
			if _, err := ParseBackoffSpec(val); err == nil {
				so.Backoff = val
			}
		case "noRetry":
			if b, err := strconv.ParseBool(val); err == nil {
				so.NoRetry = b
			}
		}
	}
	if !haveStatuses {
		return push.HTTPStatusOption{}, false
	}
	return so, true
}
