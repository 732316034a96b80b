package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dialcraft/callcoord/internal/engine"
	"github.com/dialcraft/callcoord/internal/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// API is the call engine's HTTP control surface. The backend triggers
// dials here; everything else flows back over the webhook.
type API struct {
	manager   *engine.Manager
	logger    zerolog.Logger
	startedAt time.Time
}

// NewAPI creates a new control API
func NewAPI(manager *engine.Manager, logger zerolog.Logger) *API {
	return &API{
		manager:   manager,
		logger:    logger.With().Str("component", "control_api").Logger(),
		startedAt: time.Now(),
	}
}

// SetupRoutes configures HTTP routes
func (api *API) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", api.healthHandler).Methods("GET")
	router.HandleFunc("/status", api.statusHandler).Methods("GET")
	router.HandleFunc("/stats", api.statsHandler).Methods("GET")
	router.HandleFunc("/dial", api.dialHandler).Methods("POST")
}

// healthHandler returns service health
func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// statusHandler returns the engine's runtime status
func (api *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"active_sessions": api.manager.ActiveCount(),
		"uptime_seconds":  int(time.Since(api.startedAt).Seconds()),
	})
}

// statsHandler returns lifetime session counters
func (api *API) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.manager.Stats())
}

// dialHandler starts a call session for the posted dial context
// POST /dial
func (api *API) dialHandler(w http.ResponseWriter, r *http.Request) {
	var dial types.DialContext
	if err := json.NewDecoder(r.Body).Decode(&dial); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := dial.Validate(); err != nil {
		api.logger.Warn().Err(err).Str("call_id", dial.CallID).Msg("rejected dial request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := api.manager.StartCall(dial); err != nil {
		api.logger.Warn().Err(err).Str("call_id", dial.CallID).Msg("failed to start session")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"call_id": dial.CallID,
		"status":  "dialing",
	})
}
