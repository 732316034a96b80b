package dashboard

import (
	"sync"

	"github.com/dialcraft/callcoord/internal/types"
)

// RecentResultCap bounds the recent-results ring kept client side
const RecentResultCap = 10

// tombstoneCap bounds the tombstone set. Oldest tombstones are evicted
// first; by then any straggler frame for that call is long past.
const tombstoneCap = 256

// Reconciler maintains an eventually consistent local view of the
// backend's live state from the event stream and snapshots. All methods
// are idempotent: replayed or duplicated events converge to the same
// state.
type Reconciler struct {
	mu         sync.RWMutex
	active     map[string]types.RegistryEntry
	ended      map[string]bool // tombstones for terminated calls
	endedOrder []string        // tombstone call IDs, oldest first
	results    []types.CallResult
}

// NewReconciler creates an empty reconciler
func NewReconciler() *Reconciler {
	return &Reconciler{
		active: make(map[string]types.RegistryEntry),
		ended:  make(map[string]bool),
	}
}

// Apply folds one live event into the local state
func (r *Reconciler) Apply(event types.CallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case types.EventCallStarted:
		// A started frame arriving after the call's terminal frame must
		// not resurrect the entry
		if r.ended[event.CallID] {
			return
		}
		r.active[event.CallID] = types.RegistryEntry{
			CallID:    event.CallID,
			LeadName:  event.LeadName,
			Campaign:  event.Campaign,
			StartedAt: event.Timestamp,
		}

	case types.EventCallResult:
		entry, ok := r.active[event.CallID]
		campaign := entry.Campaign
		if !ok {
			campaign = event.Campaign
		}
		r.addResult(event.Result(campaign))

	case types.EventCallEnded, types.EventCallError:
		delete(r.active, event.CallID)
		r.tombstone(event.CallID)
	}
}

// tombstone records a terminated call, evicting the oldest entry once
// the set is full. Caller holds the lock.
func (r *Reconciler) tombstone(callID string) {
	if r.ended[callID] {
		return
	}
	r.ended[callID] = true
	r.endedOrder = append(r.endedOrder, callID)
	if len(r.endedOrder) > tombstoneCap {
		delete(r.ended, r.endedOrder[0])
		r.endedOrder = r.endedOrder[1:]
	}
}

// ApplySnapshot replaces the active set and seeds recent results from a
// backend snapshot. Local tombstones survive so frames delivered out of
// order around the snapshot cannot resurrect finished calls.
func (r *Reconciler) ApplySnapshot(snapshot types.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = make(map[string]types.RegistryEntry, len(snapshot.ActiveCalls))
	for _, entry := range snapshot.ActiveCalls {
		if r.ended[entry.CallID] {
			continue
		}
		r.active[entry.CallID] = entry
	}

	// Snapshot results are newest-first; fold oldest-first so local
	// ordering matches
	for i := len(snapshot.RecentResults) - 1; i >= 0; i-- {
		r.addResult(snapshot.RecentResults[i])
	}
}

// addResult pushes newest-first, dedups by call and trims to cap.
// Caller holds the lock.
func (r *Reconciler) addResult(result types.CallResult) {
	for i, existing := range r.results {
		if existing.CallID == result.CallID {
			r.results = append(r.results[:i], r.results[i+1:]...)
			break
		}
	}
	r.results = append([]types.CallResult{result}, r.results...)
	if len(r.results) > RecentResultCap {
		r.results = r.results[:RecentResultCap]
	}
}

// ActiveCalls returns a copy of the live call entries
func (r *Reconciler) ActiveCalls() []types.RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.RegistryEntry, 0, len(r.active))
	for _, entry := range r.active {
		out = append(out, entry)
	}
	return out
}

// RecentResults returns a copy of the retained results, newest first
func (r *Reconciler) RecentResults() []types.CallResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.CallResult, len(r.results))
	copy(out, r.results)
	return out
}

// ActiveCount returns the number of live calls
func (r *Reconciler) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
