// Package endpoint implements C4: a DNS-refresh-aware endpoint pool with
// per-endpoint circuit breakers, age-based rotation, and retry-aware
// selection.
package endpoint

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Options configures one Group. Zero values are replaced by spec.md §4.4's
// documented defaults in NewGroup.
type Options struct {
	MaxNumEndpoints          int
	MaxEndpointAge           time.Duration
	CircuitOpenWindow        time.Duration
	SelectionTimeout         time.Duration
	FailFastOnAllCircuitOpen bool
	FailureRateThreshold     float64
	Strategy                 StrategyKind
	StrategyWeights          map[string]int
}

func (o Options) withDefaults() Options {
	if o.MaxNumEndpoints <= 0 {
		o.MaxNumEndpoints = 4
	}
	if o.MaxEndpointAge <= 0 {
		o.MaxEndpointAge = 5 * time.Minute
	}
	if o.CircuitOpenWindow <= 0 {
		o.CircuitOpenWindow = 10 * time.Second
	}
	if o.SelectionTimeout <= 0 {
		o.SelectionTimeout = 2 * time.Second
	}
	if o.FailureRateThreshold <= 0 {
		o.FailureRateThreshold = 0.5
	}
	return o
}

type endpointContext struct {
	addr       string
	breaker    *gobreaker.TwoStepCircuitBreaker
	admittedAt time.Time
	expiresAt  time.Time
}

type badEndpoint struct {
	evictAt time.Time
}

// Group is a live, refreshing pool of endpoints for one profile.
type Group struct {
	resolver Resolver
	opts     Options
	strategy Strategy

	mu           sync.Mutex
	active       map[string]*endpointContext
	bad          map[string]*badEndpoint
	recentlyAged map[string]time.Time
	updated      chan struct{}

	cancel context.CancelFunc
}

// NewGroup builds a Group backed by resolver. Call Start to begin the
// background refresh loop.
func NewGroup(resolver Resolver, opts Options) *Group {
	opts = opts.withDefaults()
	return &Group{
		resolver:     resolver,
		opts:         opts,
		strategy:     NewStrategy(opts.Strategy, opts.StrategyWeights),
		active:       make(map[string]*endpointContext),
		bad:          make(map[string]*badEndpoint),
		recentlyAged: make(map[string]time.Time),
		updated:      make(chan struct{}),
	}
}

// Start begins the refresh loop; it stops when ctx is cancelled or Close
// is called.
func (g *Group) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	go g.refreshLoop(ctx)
}

// Close stops the refresh loop.
func (g *Group) Close() {
	if g.cancel != nil {
		g.cancel()
	}
}

func (g *Group) refreshLoop(ctx context.Context) {
	g.refreshOnce(ctx)
	for {
		delay := g.nextRefreshDelay()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			g.refreshOnce(ctx)
		}
	}
}

func (g *Group) nextRefreshDelay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.active) == 0 {
		return 100 * time.Millisecond
	}
	earliest := time.Time{}
	now := time.Now()
	for _, ec := range g.active {
		if earliest.IsZero() || ec.expiresAt.Before(earliest) {
			earliest = ec.expiresAt
		}
	}
	delay := earliest.Sub(now)
	if delay < 500*time.Millisecond {
		delay = 500 * time.Millisecond
	}
	return delay
}

func (g *Group) refreshOnce(ctx context.Context) {
	resolved, err := g.resolver.Resolve(ctx)
	if err != nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()

	resolvedSet := make(map[string]bool, len(resolved))
	for _, addr := range resolved {
		resolvedSet[addr] = true
	}

	// Age out expired active endpoints first, recording them in
	// recentlyAged so they are readmitted ahead of new endpoints. A
	// readmitted endpoint gets a new context: its breaker starts over
	// CLOSED with zero counts.
	for addr, ec := range g.active {
		if now.After(ec.expiresAt) {
			delete(g.active, addr)
			g.recentlyAged[addr] = now
		}
	}

	if len(g.active) < g.opts.MaxNumEndpoints {
		// Prefer readmitting aged endpoints the resolver still reports.
		for addr := range g.recentlyAged {
			if len(g.active) >= g.opts.MaxNumEndpoints {
				break
			}
			if resolvedSet[addr] && !g.isBad(addr) {
				g.active[addr] = g.newEndpointContext(addr)
				delete(g.recentlyAged, addr)
			}
		}
	}

	if len(g.active) < g.opts.MaxNumEndpoints {
		for _, addr := range resolved {
			if len(g.active) >= g.opts.MaxNumEndpoints {
				break
			}
			if _, exists := g.active[addr]; exists {
				continue
			}
			if g.isBad(addr) {
				continue
			}
			g.active[addr] = g.newEndpointContext(addr)
			delete(g.recentlyAged, addr)
		}
	}

	g.broadcastUpdateLocked()
}

func (g *Group) isBad(addr string) bool {
	_, bad := g.bad[addr]
	return bad
}

func (g *Group) newEndpointContext(addr string) *endpointContext {
	jitter := time.Duration(rand.Int63n(int64(g.opts.MaxEndpointAge) / 5))
	breaker := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        addr,
		MaxRequests: 1,
		Timeout:     g.opts.CircuitOpenWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= g.opts.FailureRateThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if from == gobreaker.StateClosed && to != gobreaker.StateClosed {
				g.markBad(name)
			}
		},
	})
	return &endpointContext{
		addr:       addr,
		breaker:    breaker,
		admittedAt: time.Now(),
		expiresAt:  time.Now().Add(g.opts.MaxEndpointAge + jitter),
	}
}

func (g *Group) markBad(addr string) {
	g.mu.Lock()
	delete(g.active, addr)
	g.bad[addr] = &badEndpoint{evictAt: time.Now().Add(g.opts.CircuitOpenWindow)}
	g.broadcastUpdateLocked()
	g.mu.Unlock()

	time.AfterFunc(g.opts.CircuitOpenWindow, func() {
		g.mu.Lock()
		if b, ok := g.bad[addr]; ok && !time.Now().Before(b.evictAt) {
			delete(g.bad, addr)
		}
		g.mu.Unlock()
	})
}

func (g *Group) broadcastUpdateLocked() {
	close(g.updated)
	g.updated = make(chan struct{})
}

// Select returns one endpoint, preferring ones absent from excluded
// (endpoints already tried by sibling attempts in this retry chain). If
// every active endpoint is excluded, it falls back to reuse rather than
// returning ErrNoEndpoint, per spec.md §4.4's "try up to 3 alternatives
// then fall back to reuse."
func (g *Group) Select(excluded map[string]bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selectLocked(excluded)
}

func (g *Group) selectLocked(excluded map[string]bool) (string, error) {
	candidates := g.candidateList(excluded)
	if len(candidates) == 0 {
		candidates = g.candidateList(nil)
	}
	if len(candidates) > 0 {
		idx := g.strategy.Pick(candidates)
		return candidates[idx], nil
	}
	return g.selectBadFallbackLocked()
}

func (g *Group) candidateList(excluded map[string]bool) []string {
	out := make([]string, 0, len(g.active))
	for addr := range g.active {
		if excluded != nil && excluded[addr] {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// selectBadFallbackLocked implements the "all circuits open" path. A race
// is possible between reading g.bad and another goroutine evicting the
// chosen entry; spec.md §4.4's known quirk says to retry the selection
// once rather than treating that as an error.
func (g *Group) selectBadFallbackLocked() (string, error) {
	if g.opts.FailFastOnAllCircuitOpen || len(g.bad) == 0 {
		return "", ErrNoEndpoint
	}
	pick := g.randomBadLocked()
	if pick == "" {
		return "", ErrNoEndpoint
	}
	if _, stillBad := g.bad[pick]; !stillBad {
		pick = g.randomBadLocked()
	}
	if pick == "" {
		return "", ErrNoEndpoint
	}
	return pick, nil
}

func (g *Group) randomBadLocked() string {
	if len(g.bad) == 0 {
		return ""
	}
	addrs := make([]string, 0, len(g.bad))
	for addr := range g.bad {
		addrs = append(addrs, addr)
	}
	return addrs[rand.Intn(len(addrs))]
}

// SelectWithWait blocks until an endpoint is available, the group
// publishes an update, or ctx/selectionTimeout elapses.
func (g *Group) SelectWithWait(ctx context.Context, excluded map[string]bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.SelectionTimeout)
	defer cancel()

	for {
		g.mu.Lock()
		addr, err := g.selectLocked(excluded)
		waitCh := g.updated
		g.mu.Unlock()

		if err == nil {
			return addr, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("endpoint: %w: %v", ErrNoEndpoint, ctx.Err())
		case <-waitCh:
		}
	}
}

// Allow gates a dispatch attempt against addr's breaker, returning a
// callback the caller must invoke exactly once with the outcome.
func (g *Group) Allow(addr string) (func(success bool), error) {
	g.mu.Lock()
	ec, ok := g.active[addr]
	g.mu.Unlock()
	if !ok {
		// Bad-endpoint fallback path: no breaker tracked for addr anymore,
		// allow the single trial request unconditionally.
		return func(bool) {}, nil
	}
	done, err := ec.breaker.Allow()
	if err != nil {
		return nil, fmt.Errorf("endpoint: breaker rejected %s: %w", addr, err)
	}
	return done, nil
}

// IsSuccess implements the breaker's success predicate from spec.md
// §4.4: any status in [200,500) is a success.
func IsSuccess(status int) bool {
	return status >= 200 && status < 500
}
