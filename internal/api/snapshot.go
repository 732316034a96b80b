package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dialcraft/callcoord/internal/registry"
	"github.com/dialcraft/callcoord/internal/types"
	"github.com/rs/zerolog"
)

// SnapshotHandler builds the live-state snapshot served to dashboards,
// both over the pull endpoint and as the first frame of every WebSocket
// connection.
type SnapshotHandler struct {
	registry *registry.Registry
	results  *registry.ResultRing
	logger   zerolog.Logger
}

// NewSnapshotHandler creates a new SnapshotHandler
func NewSnapshotHandler(reg *registry.Registry, results *registry.ResultRing, logger zerolog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		registry: reg,
		results:  results,
		logger:   logger.With().Str("component", "snapshot_handler").Logger(),
	}
}

// Build assembles the current snapshot. Active calls are oldest-first,
// recent results newest-first.
func (h *SnapshotHandler) Build() types.Snapshot {
	active := h.registry.Entries()
	if active == nil {
		active = []types.RegistryEntry{}
	}
	recent := h.results.Results()
	if recent == nil {
		recent = []types.CallResult{}
	}
	return types.Snapshot{
		Type:          "snapshot",
		Timestamp:     time.Now().UTC(),
		ActiveCalls:   active,
		RecentResults: recent,
	}
}

// GetSnapshot handles GET /api/snapshot
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Build())
}
