package registry

import (
	"sync"

	"github.com/dialcraft/callcoord/internal/types"
)

// DefaultResultCap is how many recent results the backend retains for
// dashboard snapshots.
const DefaultResultCap = 10

// ResultRing keeps the most recent call results, newest first
type ResultRing struct {
	results []types.CallResult
	cap     int
	mu      sync.RWMutex
}

// NewResultRing creates a ring bounded at capacity
func NewResultRing(capacity int) *ResultRing {
	if capacity <= 0 {
		capacity = DefaultResultCap
	}
	return &ResultRing{
		results: make([]types.CallResult, 0, capacity),
		cap:     capacity,
	}
}

// Add pushes a result to the front, evicting the oldest beyond capacity.
// A result for an already-present call replaces the stale entry.
func (r *ResultRing) Add(result types.CallResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.results {
		if existing.CallID == result.CallID {
			r.results = append(r.results[:i], r.results[i+1:]...)
			break
		}
	}

	r.results = append([]types.CallResult{result}, r.results...)
	if len(r.results) > r.cap {
		r.results = r.results[:r.cap]
	}
}

// Results returns a copy of the ring, newest first
func (r *ResultRing) Results() []types.CallResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.CallResult, len(r.results))
	copy(out, r.results)
	return out
}

// Len returns the number of retained results
func (r *ResultRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results)
}
