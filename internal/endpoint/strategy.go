package endpoint

import "math/rand"

// Strategy picks an index into a slice of candidate endpoints. Callers
// filter the active set down to eligible candidates (excluding sibling
// reuse) before calling Pick.
type Strategy interface {
	Pick(candidates []string) int
}

// StrategyKind names the three selection strategies spec.md §4.4 lists.
type StrategyKind string

const (
	RoundRobin         StrategyKind = "ROUND_ROBIN"
	WeightedRoundRobin StrategyKind = "WEIGHTED_ROUND_ROBIN"
	RampingUp          StrategyKind = "RAMPING_UP"
)

// NewStrategy builds the Strategy implementation for kind. Weights is only
// consulted by WeightedRoundRobin, keyed by endpoint string; endpoints
// absent from the map get weight 1.
func NewStrategy(kind StrategyKind, weights map[string]int) Strategy {
	switch kind {
	case WeightedRoundRobin:
		return &weightedRoundRobinStrategy{weights: weights}
	case RampingUp:
		return &rampingUpStrategy{}
	default:
		return &roundRobinStrategy{}
	}
}

// roundRobinStrategy cycles through candidates in order, tracking a
// monotonic counter so repeated calls don't collapse to index 0.
type roundRobinStrategy struct {
	next int
}

func (s *roundRobinStrategy) Pick(candidates []string) int {
	if len(candidates) == 0 {
		return -1
	}
	idx := s.next % len(candidates)
	s.next++
	return idx
}

// weightedRoundRobinStrategy picks proportionally to configured weight,
// defaulting unweighted endpoints to weight 1.
type weightedRoundRobinStrategy struct {
	weights map[string]int
}

func (s *weightedRoundRobinStrategy) Pick(candidates []string) int {
	if len(candidates) == 0 {
		return -1
	}
	total := 0
	w := make([]int, len(candidates))
	for i, c := range candidates {
		weight := 1
		if s.weights != nil {
			if cw, ok := s.weights[c]; ok && cw > 0 {
				weight = cw
			}
		}
		w[i] = weight
		total += weight
	}
	r := rand.Intn(total)
	for i, weight := range w {
		if r < weight {
			return i
		}
		r -= weight
	}
	return len(candidates) - 1
}

// rampingUpStrategy favors endpoints that have served fewer requests so
// far, so a freshly admitted endpoint doesn't take a full traffic share
// immediately. Tracked by a simple per-endpoint request counter.
type rampingUpStrategy struct {
	served map[string]int
}

func (s *rampingUpStrategy) Pick(candidates []string) int {
	if len(candidates) == 0 {
		return -1
	}
	if s.served == nil {
		s.served = make(map[string]int)
	}
	best := 0
	bestCount := s.served[candidates[0]]
	for i, c := range candidates[1:] {
		if n := s.served[c]; n < bestCount {
			best = i + 1
			bestCount = n
		}
	}
	s.served[candidates[best]]++
	return best
}
