package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dialcraft/callcoord/internal/metrics"
	"github.com/dialcraft/callcoord/internal/storage"
	"github.com/dialcraft/callcoord/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dialer places outbound calls via the call engine
type Dialer interface {
	Dial(ctx context.Context, dial types.DialContext) error
}

// TriggerRequest is the body of POST /api/calls/trigger
type TriggerRequest struct {
	LeadID int `json:"lead_id"`
}

// TriggerResponse acknowledges an accepted dial request
type TriggerResponse struct {
	CallID string              `json:"call_id"`
	Status types.SessionStatus `json:"status"`
}

// CallHandler provides REST endpoints for triggering calls and reading
// session state
type CallHandler struct {
	store  storage.Store
	leads  LeadSource
	dialer Dialer
	logger zerolog.Logger
}

// NewCallHandler creates a new CallHandler
func NewCallHandler(store storage.Store, leads LeadSource, dialer Dialer, logger zerolog.Logger) *CallHandler {
	return &CallHandler{
		store:  store,
		leads:  leads,
		dialer: dialer,
		logger: logger.With().Str("component", "call_handler").Logger(),
	}
}

// Trigger handles POST /api/calls/trigger. It resolves the lead, creates
// a session in dialing state and asks the engine to place the call. The
// response is an acknowledgement; progress arrives over the webhook.
func (h *CallHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.LeadID == 0 {
		http.Error(w, "lead_id is required", http.StatusBadRequest)
		return
	}

	lead, err := h.leads.GetLead(req.LeadID)
	if err != nil {
		h.logger.Error().Err(err).Int("lead_id", req.LeadID).Msg("lead lookup failed")
		http.Error(w, "lead lookup failed", http.StatusInternalServerError)
		return
	}
	if lead == nil {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}

	// One in-flight call per lead
	active, err := h.store.ListActiveSessions()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list active sessions")
		http.Error(w, "failed to check active sessions", http.StatusInternalServerError)
		return
	}
	for _, session := range active {
		if session.LeadID == lead.ID {
			http.Error(w, "lead already has a call in progress", http.StatusConflict)
			return
		}
	}

	session := types.CallSession{
		CallID:    uuid.New().String(),
		LeadID:    lead.ID,
		LeadName:  lead.Name,
		Campaign:  lead.Campaign,
		Status:    types.StatusDialing,
		StartedAt: time.Now().UTC(),
	}
	if err := h.store.SaveSession(session); err != nil {
		h.logger.Error().Err(err).Str("call_id", session.CallID).Msg("failed to save session")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	dial := types.DialContext{
		CallID:     session.CallID,
		LeadID:     lead.ID,
		LeadName:   lead.Name,
		Phone:      lead.Phone,
		Campaign:   lead.Campaign,
		DropStage:  lead.DropStage,
		LastActive: lead.LastActive,
	}
	if err := h.dialer.Dial(r.Context(), dial); err != nil {
		h.logger.Error().Err(err).Str("call_id", session.CallID).Msg("engine dial failed")
		now := time.Now().UTC()
		session.Status = types.StatusFailed
		session.EndedAt = &now
		session.EndReason = "dial request failed"
		if saveErr := h.store.SaveSession(session); saveErr != nil {
			h.logger.Error().Err(saveErr).Str("call_id", session.CallID).Msg("failed to mark session failed")
		}
		metrics.Get().RecordCallEnded(true)
		http.Error(w, "call engine unavailable", http.StatusBadGateway)
		return
	}

	h.logger.Info().
		Str("call_id", session.CallID).
		Int("lead_id", lead.ID).
		Str("campaign", string(lead.Campaign)).
		Msg("dial accepted")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(TriggerResponse{CallID: session.CallID, Status: session.Status})
}

// GetCall returns the session record for a call
// GET /api/calls/{callId}
func (h *CallHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	if callID == "" {
		http.Error(w, "callId is required", http.StatusBadRequest)
		return
	}

	session, err := h.store.GetSession(callID)
	if err != nil {
		h.logger.Error().Err(err).Str("call_id", callID).Msg("failed to get session")
		http.Error(w, "failed to retrieve call", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// GetResult returns the captured outcome for a call
// GET /api/calls/{callId}/result
func (h *CallHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	if callID == "" {
		http.Error(w, "callId is required", http.StatusBadRequest)
		return
	}

	result, err := h.store.GetResult(callID)
	if err != nil {
		h.logger.Error().Err(err).Str("call_id", callID).Msg("failed to get result")
		http.Error(w, "failed to retrieve result", http.StatusInternalServerError)
		return
	}
	if result == nil {
		http.Error(w, "result not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// defaultCallListLimit bounds GET /api/calls when no limit is given
const defaultCallListLimit = 50

// ListCalls returns the call history, newest first, optionally filtered
// by status and campaign
// GET /api/calls?status=&campaign=&limit=
func (h *CallHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	var status types.SessionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := types.ParseSessionStatus(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status = parsed
	}

	var campaign types.CampaignType
	if raw := r.URL.Query().Get("campaign"); raw != "" {
		parsed, err := types.ParseCampaignType(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		campaign = parsed
	}

	limit := defaultCallListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	sessions, err := h.store.ListSessions()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list sessions")
		http.Error(w, "failed to retrieve calls", http.StatusInternalServerError)
		return
	}

	filtered := make([]types.CallSession, 0, len(sessions))
	for _, session := range sessions {
		if status != "" && session.Status != status {
			continue
		}
		if campaign != "" && session.Campaign != campaign {
			continue
		}
		filtered = append(filtered, session)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(filtered)
}

// ListLeads returns the configured lead pool
// GET /api/leads
func (h *CallHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.leads.ListLeads()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list leads")
		http.Error(w, "failed to retrieve leads", http.StatusInternalServerError)
		return
	}
	if leads == nil {
		leads = []types.Lead{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(leads)
}
