package types

import (
	"fmt"
	"time"
)

// EventType identifies a lifecycle event pushed by the scenario runtime
type EventType string

const (
	EventCallStarted EventType = "call_started"
	EventCallResult  EventType = "call_result"
	EventCallEnded   EventType = "call_ended"
	EventCallError   EventType = "call_error"
)

// Terminal reports whether the event ends its call's lifecycle
func (t EventType) Terminal() bool {
	return t == EventCallEnded || t == EventCallError
}

// CallEvent is the webhook envelope pushed from the scenario runtime to the
// backend and relayed verbatim to dashboard clients. Events are immutable
// once emitted; ordering is causal per call_id only.
type CallEvent struct {
	Type   EventType `json:"type"`
	CallID string    `json:"call_id"`

	// call_started fields
	LeadID    int          `json:"lead_id,omitempty"`
	LeadName  string       `json:"lead_name,omitempty"`
	Campaign  CampaignType `json:"campaign_type,omitempty"`
	Timestamp time.Time    `json:"timestamp,omitempty"`

	// call_result fields
	Disposition Disposition `json:"disposition,omitempty"`
	CXScore     int         `json:"cx_score,omitempty"`
	Summary     string      `json:"summary,omitempty"`

	// call_ended fields
	DurationSeconds int `json:"duration_seconds,omitempty"`

	// call_error fields
	Error string `json:"error,omitempty"`
}

// Validate checks the envelope's schema. Campaign-specific disposition
// membership needs the session's campaign and is enforced at ingest.
func (e CallEvent) Validate() error {
	if e.CallID == "" {
		return errMissing("call_id")
	}
	switch e.Type {
	case EventCallStarted:
		if e.LeadName == "" {
			return errMissing("lead_name")
		}
		if _, err := ParseCampaignType(string(e.Campaign)); err != nil {
			return err
		}
	case EventCallResult:
		if e.Disposition == "" {
			return errMissing("disposition")
		}
		if !ValidCXScore(e.CXScore) {
			return fmt.Errorf("cx_score %d out of range [%d,%d]", e.CXScore, MinCXScore, MaxCXScore)
		}
	case EventCallEnded:
		// no required fields beyond call_id
	case EventCallError:
		if e.Error == "" {
			return errMissing("error")
		}
	default:
		return fmt.Errorf("unknown event type: %q", e.Type)
	}
	return nil
}

// Result extracts the CallResult carried by a call_result event
func (e CallEvent) Result(campaign CampaignType) CallResult {
	return CallResult{
		CallID:      e.CallID,
		Campaign:    campaign,
		Disposition: e.Disposition,
		CXScore:     e.CXScore,
		Summary:     e.Summary,
		CreatedAt:   time.Now(),
	}
}

func errMissing(field string) error {
	return fmt.Errorf("missing required field %s", field)
}
