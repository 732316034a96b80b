package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dialcraft/callcoord/internal/api"
	"github.com/dialcraft/callcoord/internal/config"
	"github.com/dialcraft/callcoord/internal/dialer"
	"github.com/dialcraft/callcoord/internal/ingest"
	"github.com/dialcraft/callcoord/internal/metrics"
	"github.com/dialcraft/callcoord/internal/registry"
	"github.com/dialcraft/callcoord/internal/storage"
	"github.com/dialcraft/callcoord/internal/websocket"
	"github.com/dialcraft/callcoord/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("engine_url", cfg.EngineURL).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("starting coordination backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create session store
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Rebuild the active-call registry from persisted sessions
	reg := registry.New()
	if err := reg.Rebuild(store); err != nil {
		log.Warn().Err(err).Msg("registry rebuild failed, starting empty")
	}
	results := registry.NewResultRing(registry.DefaultResultCap)
	if persisted, err := store.ListResults(); err == nil {
		for _, result := range persisted {
			results.Add(result)
		}
	}

	// Create WebSocket hub
	hub := websocket.NewHub(log.Logger)
	go hub.Run()

	// Snapshot builder feeds both the pull endpoint and new sockets
	snapshotHandler := api.NewSnapshotHandler(reg, results, log.Logger)
	wsHandler := websocket.NewHandler(hub, cfg, snapshotHandler.Build, log.Logger)

	// Webhook ingest from the call engine
	receiver := ingest.NewReceiver(store, reg, results, hub, log.Logger)

	// Lead directory and trigger API
	leads, err := api.NewStaticLeadSource(cfg.LeadsFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.LeadsFile).Msg("failed to load leads")
	}
	engineClient := dialer.NewClient(cfg.EngineURL)
	callHandler := api.NewCallHandler(store, leads, engineClient, log.Logger)
	analyticsHandler := api.NewAnalyticsHandler(store, log.Logger)

	// Create router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Engine-facing webhook
	r.Route("/webhook", func(r chi.Router) {
		r.Post("/engine", receiver.HandleEvent)
		r.Get("/engine/stats", receiver.GetStats)
	})

	// Dashboard-facing API
	r.Route("/api", func(r chi.Router) {
		r.Post("/calls/trigger", callHandler.Trigger)
		r.Get("/calls", callHandler.ListCalls)
		r.Get("/calls/{callId}", callHandler.GetCall)
		r.Get("/calls/{callId}/result", callHandler.GetResult)
		r.Get("/leads", callHandler.ListLeads)
		r.Get("/snapshot", snapshotHandler.GetSnapshot)
		r.Get("/analytics/summary", analyticsHandler.GetSummary)
	})

	r.Get("/ws", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
