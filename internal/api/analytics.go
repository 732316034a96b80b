package api

import (
	"encoding/json"
	"net/http"

	"github.com/dialcraft/callcoord/internal/storage"
	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

// AnalyticsSummary aggregates session and result statistics
type AnalyticsSummary struct {
	TotalCalls     int                        `json:"total_calls"`
	ActiveCalls    int                        `json:"active_calls"`
	CompletedCalls int                        `json:"completed_calls"`
	FailedCalls    int                        `json:"failed_calls"`
	ByCampaign     map[types.CampaignType]int `json:"by_campaign"`
	ByDisposition  map[types.Disposition]int  `json:"by_disposition"`
	AverageCXScore float64                    `json:"average_cx_score"`
}

// AnalyticsHandler serves aggregate reporting
type AnalyticsHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(store storage.Store, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		store:  store,
		logger: logger.With().Str("component", "analytics_handler").Logger(),
	}
}

// GetSummary handles GET /api/analytics/summary
func (h *AnalyticsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.buildSummary()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build analytics summary")
		http.Error(w, "failed to build summary", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func (h *AnalyticsHandler) buildSummary() (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{
		ByCampaign:    make(map[types.CampaignType]int),
		ByDisposition: make(map[types.Disposition]int),
	}

	var err error
	if summary.TotalCalls, err = h.store.CountSessions(""); err != nil {
		return nil, err
	}
	if summary.ActiveCalls, err = h.store.CountSessions(types.StatusActive); err != nil {
		return nil, err
	}
	if summary.CompletedCalls, err = h.store.CountSessions(types.StatusCompleted); err != nil {
		return nil, err
	}
	if summary.FailedCalls, err = h.store.CountSessions(types.StatusFailed); err != nil {
		return nil, err
	}

	for _, campaign := range []types.CampaignType{types.CampaignRegistrationRecovery, types.CampaignDormantReactivation} {
		count, err := h.store.CountSessionsByCampaign(campaign)
		if err != nil {
			return nil, err
		}
		summary.ByCampaign[campaign] = count
	}

	results, err := h.store.ListResults()
	if err != nil {
		return nil, err
	}
	scoreSum := 0
	for _, result := range results {
		summary.ByDisposition[result.Disposition]++
		scoreSum += result.CXScore
	}
	if len(results) > 0 {
		summary.AverageCXScore = float64(scoreSum) / float64(len(results))
	}

	return summary, nil
}
