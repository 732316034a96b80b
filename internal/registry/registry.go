package registry

import (
	"sort"
	"sync"

	"github.com/dialcraft/callcoord/internal/storage"
	"github.com/dialcraft/callcoord/internal/types"
)

// Registry is the backend's live view of in-progress call sessions.
// Entries exist only while a session is non-terminal; the persisted store
// remains the source of truth and the registry is rebuilt from it on start.
type Registry struct {
	entries map[string]types.RegistryEntry
	mu      sync.RWMutex
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		entries: make(map[string]types.RegistryEntry),
	}
}

// Put adds or refreshes an entry. A duplicate put for a known call keeps
// the original start time, so replayed call_started events are harmless.
func (r *Registry) Put(entry types.RegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[entry.CallID]; ok {
		entry.StartedAt = existing.StartedAt
	}
	r.entries[entry.CallID] = entry
}

// Remove deletes an entry; removing an unknown call is a no-op
func (r *Registry) Remove(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[callID]; !ok {
		return false
	}
	delete(r.entries, callID)
	return true
}

// Get returns the entry for a call, if present
func (r *Registry) Get(callID string) (types.RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[callID]
	return entry, ok
}

// Entries returns all live entries, oldest first
func (r *Registry) Entries() []types.RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]types.RegistryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedAt.Before(entries[j].StartedAt)
	})
	return entries
}

// Count returns the number of live entries
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Rebuild replaces the registry contents with all non-terminal sessions
// from the store. Called once on process start.
func (r *Registry) Rebuild(store storage.Store) error {
	sessions, err := store.ListActiveSessions()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]types.RegistryEntry, len(sessions))
	for _, session := range sessions {
		// Sessions still dialing have no engine confirmation yet and are
		// not shown as live calls
		if session.Status == types.StatusDialing {
			continue
		}
		r.entries[session.CallID] = types.RegistryEntry{
			CallID:    session.CallID,
			LeadName:  session.LeadName,
			Campaign:  session.Campaign,
			StartedAt: session.StartedAt,
		}
	}
	return nil
}
