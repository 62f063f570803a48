package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGroup(t *testing.T, endpoints []string, opts Options) *Group {
	t.Helper()
	resolver := &StaticResolver{Endpoints: endpoints}
	g := NewGroup(resolver, opts)
	g.refreshOnce(context.Background())
	return g
}

func TestGroup_NeverExceedsMaxActive(t *testing.T) {
	g := newTestGroup(t, []string{"a:1", "b:1", "c:1", "d:1", "e:1"}, Options{MaxNumEndpoints: 2})
	assert.LessOrEqual(t, len(g.active), 2)
}

func TestGroup_BreakerOpenMovesToBad(t *testing.T) {
	g := newTestGroup(t, []string{"a:1"}, Options{MaxNumEndpoints: 1, CircuitOpenWindow: 50 * time.Millisecond})

	ec := g.active["a:1"]
	require.NotNil(t, ec)
	// Five failures reach ReadyToTrip's minimum request count at a 100%
	// failure rate; the breaker opens on the fifth and rejects any further
	// Allow.
	for i := 0; i < 5; i++ {
		done, err := ec.breaker.Allow()
		require.NoError(t, err)
		done(false)
	}

	g.mu.Lock()
	_, stillActive := g.active["a:1"]
	_, isBad := g.bad["a:1"]
	g.mu.Unlock()
	assert.False(t, stillActive)
	assert.True(t, isBad)
}

func TestGroup_BadEndpointReeligibleAfterWindow(t *testing.T) {
	g := newTestGroup(t, []string{"a:1"}, Options{MaxNumEndpoints: 1, CircuitOpenWindow: 20 * time.Millisecond})
	g.markBad("a:1")

	g.mu.Lock()
	_, isBad := g.bad["a:1"]
	g.mu.Unlock()
	assert.True(t, isBad)

	time.Sleep(60 * time.Millisecond)

	g.mu.Lock()
	_, stillBad := g.bad["a:1"]
	g.mu.Unlock()
	assert.False(t, stillBad)
}

func TestGroup_SelectAvoidsSiblings(t *testing.T) {
	g := newTestGroup(t, []string{"a:1", "b:1", "c:1"}, Options{MaxNumEndpoints: 3})

	excluded := map[string]bool{"a:1": true, "b:1": true}
	addr, err := g.Select(excluded)
	require.NoError(t, err)
	assert.Equal(t, "c:1", addr)
}

func TestGroup_SelectFallsBackToReuseWhenAllExcluded(t *testing.T) {
	g := newTestGroup(t, []string{"a:1"}, Options{MaxNumEndpoints: 1})

	addr, err := g.Select(map[string]bool{"a:1": true})
	require.NoError(t, err)
	assert.Equal(t, "a:1", addr)
}

func TestGroup_AllBadFallbackReturnsOneOfTheBadEndpoints(t *testing.T) {
	g := newTestGroup(t, []string{"a:1", "b:1"}, Options{MaxNumEndpoints: 2})
	g.markBad("a:1")
	g.markBad("b:1")

	addr, err := g.Select(nil)
	require.NoError(t, err)
	assert.Contains(t, []string{"a:1", "b:1"}, addr)
}

func TestGroup_FailFastReturnsNoEndpointWhenAllOpen(t *testing.T) {
	g := newTestGroup(t, []string{"a:1"}, Options{MaxNumEndpoints: 1, FailFastOnAllCircuitOpen: true})
	g.markBad("a:1")

	_, err := g.Select(nil)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}
