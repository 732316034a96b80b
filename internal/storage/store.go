package storage

import "github.com/dialcraft/callcoord/internal/types"

// Store is the persisted source of truth for call sessions and results.
// The active-call registry is rebuilt from it on process restart.
type Store interface {
	SaveSession(session types.CallSession) error
	GetSession(callID string) (*types.CallSession, error)
	ListSessions() ([]types.CallSession, error)
	ListActiveSessions() ([]types.CallSession, error)

	SaveResult(result types.CallResult) error
	GetResult(callID string) (*types.CallResult, error)
	ListResults() ([]types.CallResult, error)

	CountSessions(status types.SessionStatus) (int, error)
	CountSessionsByCampaign(campaign types.CampaignType) (int, error)
}
