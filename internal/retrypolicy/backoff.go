package retrypolicy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ParseBackoffSpec parses the small expression language spec.md §4.5
// defines: "fixed=<ms>" or "exponential=<init>:<max>:<factor>" with an
// optional ",jitter=<ratio>" suffix. An empty spec yields the engine's
// default exponential backoff.
func ParseBackoffSpec(spec string) (backoff.BackOff, error) {
	if spec == "" {
		return DefaultBackoff(), nil
	}

	parts := strings.Split(spec, ",")
	head := parts[0]
	jitterRatio := 0.0
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 2 && strings.TrimSpace(kv[0]) == "jitter" {
			ratio, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
			if err != nil {
				return nil, fmt.Errorf("retrypolicy: invalid jitter ratio %q: %w", kv[1], err)
			}
			jitterRatio = ratio
		}
	}

	kv := strings.SplitN(head, "=", 2)
	if len(kv) != 2 {
		return nil, fmt.Errorf("retrypolicy: malformed backoff spec %q", spec)
	}
	kind, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])

	switch kind {
	case "fixed":
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("retrypolicy: invalid fixed backoff %q", value)
		}
		return applyJitter(&backoff.ConstantBackOff{Interval: time.Duration(ms) * time.Millisecond}, jitterRatio), nil
	case "exponential":
		fields := strings.Split(value, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("retrypolicy: invalid exponential backoff %q", value)
		}
		initMs, err1 := strconv.ParseInt(fields[0], 10, 64)
		maxMs, err2 := strconv.ParseInt(fields[1], 10, 64)
		factor, err3 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil || err3 != nil || initMs < 0 || maxMs < initMs || factor <= 1 {
			return nil, fmt.Errorf("retrypolicy: invalid exponential backoff %q", value)
		}
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = time.Duration(initMs) * time.Millisecond
		eb.MaxInterval = time.Duration(maxMs) * time.Millisecond
		eb.Multiplier = factor
		eb.RandomizationFactor = jitterRatio
		eb.MaxElapsedTime = 0
		eb.Reset()
		return eb, nil
	default:
		return nil, fmt.Errorf("retrypolicy: unknown backoff kind %q", kind)
	}
}

// applyJitter wraps a constant backoff with a randomization ratio;
// backoff.ConstantBackOff has none natively, unlike ExponentialBackOff.
func applyJitter(b *backoff.ConstantBackOff, ratio float64) backoff.BackOff {
	if ratio <= 0 {
		return b
	}
	return &jitteredConstantBackOff{base: b.Interval, ratio: ratio}
}

type jitteredConstantBackOff struct {
	base  time.Duration
	ratio float64
}

func (j *jitteredConstantBackOff) NextBackOff() time.Duration {
	delta := float64(j.base) * j.ratio
	min := float64(j.base) - delta
	max := float64(j.base) + delta
	return time.Duration(min + (max-min)*randFloat())
}

func (j *jitteredConstantBackOff) Reset() {}

// DefaultBackoff is the engine default used when a per-status option has
// an empty backoff spec: exponential, 500ms initial, 10s cap, factor 2.
func DefaultBackoff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 10 * time.Second
	eb.Multiplier = 2.0
	eb.MaxElapsedTime = 0
	return eb
}
