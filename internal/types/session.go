package types

import (
	"fmt"
	"time"
)

// SessionStatus represents the backend's lifecycle state of a call session
type SessionStatus string

const (
	StatusDialing        SessionStatus = "dialing"         // dial requested, engine not yet connected
	StatusActive         SessionStatus = "active"          // call_started received
	StatusResultCaptured SessionStatus = "result_captured" // call_result received
	StatusCompleted      SessionStatus = "completed"       // terminal, clean end
	StatusFailed         SessionStatus = "failed"          // terminal, call_error
)

// Terminal reports whether the status is final; terminal sessions are read-only
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseSessionStatus validates a status string, e.g. from a query filter
func ParseSessionStatus(raw string) (SessionStatus, error) {
	switch status := SessionStatus(raw); status {
	case StatusDialing, StatusActive, StatusResultCaptured, StatusCompleted, StatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("unknown session status %q", raw)
	}
}

// CallSession is the backend's record of one outbound call attempt,
// from dial request to termination. Owned by the backend; the engine and
// dashboard only reference it by CallID.
type CallSession struct {
	CallID          string        `json:"call_id"`
	LeadID          int           `json:"lead_id"`
	LeadName        string        `json:"lead_name"`
	Campaign        CampaignType  `json:"campaign_type"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	EndReason       string        `json:"end_reason,omitempty"`
	DurationSeconds int           `json:"duration_seconds,omitempty"`
}

// CallResult holds the outcome the AI engine reported for one call.
// At most one exists per session.
type CallResult struct {
	CallID      string       `json:"call_id"`
	Campaign    CampaignType `json:"campaign_type"`
	Disposition Disposition  `json:"disposition"`
	CXScore     int          `json:"cx_score"`
	Summary     string       `json:"summary"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Lead is the minimal view of a contact needed to place a call.
// Lead CRUD lives elsewhere; the trigger API only resolves by ID.
type Lead struct {
	ID         int          `json:"id"`
	Name       string       `json:"name"`
	Phone      string       `json:"phone"`
	Campaign   CampaignType `json:"campaign_type"`
	DropStage  string       `json:"drop_stage,omitempty"`  // registration-recovery context
	LastActive string       `json:"last_active,omitempty"` // dormant-reactivation context
}

// DialContext is the payload handed to the call engine when a dial is
// requested. The engine passes it through to the scenario runtime.
type DialContext struct {
	CallID     string       `json:"call_id"`
	LeadID     int          `json:"lead_id"`
	LeadName   string       `json:"lead_name"`
	Phone      string       `json:"phone"`
	Campaign   CampaignType `json:"campaign_type"`
	DropStage  string       `json:"drop_stage,omitempty"`
	LastActive string       `json:"last_active,omitempty"`
}

// Validate checks the fields the scenario runtime requires before answering
func (d DialContext) Validate() error {
	if d.CallID == "" {
		return errMissing("call_id")
	}
	if d.LeadID == 0 {
		return errMissing("lead_id")
	}
	if d.LeadName == "" {
		return errMissing("lead_name")
	}
	if _, err := ParseCampaignType(string(d.Campaign)); err != nil {
		return err
	}
	return nil
}

// RegistryEntry is the ephemeral live view of one in-progress session
type RegistryEntry struct {
	CallID    string       `json:"call_id"`
	LeadName  string       `json:"lead_name"`
	Campaign  CampaignType `json:"campaign_type"`
	StartedAt time.Time    `json:"started_at"`
}

// Snapshot is the backlog-recovery payload sent to dashboard clients on
// (re)connect and served by the snapshot pull endpoint.
type Snapshot struct {
	Type          string          `json:"type"` // always "snapshot"
	Timestamp     time.Time       `json:"timestamp"`
	ActiveCalls   []RegistryEntry `json:"active_calls"`
	RecentResults []CallResult    `json:"recent_results"`
}
