package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/dialcraft/callcoord/internal/config"
	"github.com/dialcraft/callcoord/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser origin checks are handled by the CORS layer in front
		return true
	},
}

// SnapshotFunc supplies the current registry view sent to a client as its
// first frame, before any live event reaches it.
type SnapshotFunc func() types.Snapshot

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub      *Hub
	config   *config.Config
	snapshot SnapshotFunc
	logger   zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, cfg *config.Config, snapshot SnapshotFunc, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		config:   cfg,
		snapshot: snapshot,
		logger:   logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	// Create new client
	client := NewClient(h.hub, conn, h.config, h.logger)

	// Queue the snapshot before registering so it is the first frame the
	// client sees, ahead of any concurrent broadcast
	if h.snapshot != nil {
		data, err := json.Marshal(h.snapshot())
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to marshal snapshot")
		} else {
			client.send <- data
		}
	}

	// Register client with hub
	h.hub.register <- client

	// Start client pumps
	client.Start()
}
