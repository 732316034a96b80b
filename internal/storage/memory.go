package storage

import (
	"sync"

	"github.com/dialcraft/callcoord/internal/types"
)

// MemoryStore is an in-memory Store used when DynamoDB is disabled and in
// tests. Sessions and results are kept for the lifetime of the process.
type MemoryStore struct {
	sessions map[string]types.CallSession
	results  map[string]types.CallResult
	order    []string // result call IDs in insertion order
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]types.CallSession),
		results:  make(map[string]types.CallResult),
	}
}

func (s *MemoryStore) SaveSession(session types.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.CallID] = session
	return nil
}

func (s *MemoryStore) GetSession(callID string) (*types.CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[callID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *MemoryStore) ListSessions() ([]types.CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]types.CallSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *MemoryStore) ListActiveSessions() ([]types.CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []types.CallSession
	for _, session := range s.sessions {
		if !session.Status.Terminal() {
			active = append(active, session)
		}
	}
	return active, nil
}

func (s *MemoryStore) SaveResult(result types.CallResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.CallID]; !exists {
		s.order = append(s.order, result.CallID)
	}
	s.results[result.CallID] = result
	return nil
}

func (s *MemoryStore) GetResult(callID string) (*types.CallResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[callID]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

func (s *MemoryStore) ListResults() ([]types.CallResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]types.CallResult, 0, len(s.order))
	for _, callID := range s.order {
		results = append(results, s.results[callID])
	}
	return results, nil
}

func (s *MemoryStore) CountSessions(status types.SessionStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status == "" {
		return len(s.sessions), nil
	}
	count := 0
	for _, session := range s.sessions {
		if session.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountSessionsByCampaign(campaign types.CampaignType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, session := range s.sessions {
		if session.Campaign == campaign {
			count++
		}
	}
	return count, nil
}
