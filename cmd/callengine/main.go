package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dialcraft/callcoord/internal/control"
	"github.com/dialcraft/callcoord/internal/engine"
	"github.com/dialcraft/callcoord/internal/engine/webhook"
	"github.com/dialcraft/callcoord/internal/simulation"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// CLI flags
	var (
		controlPort    = flag.String("control-port", "8081", "Control API port")
		webhookURL     = flag.String("webhook-url", "http://localhost:8080/webhook/engine", "Backend webhook endpoint")
		connectTimeout = flag.Duration("connect-timeout", 15*time.Second, "AI connect timeout per call")
		graceDelay     = flag.Duration("grace-delay", 4*time.Second, "Closing remark grace delay")
		logLevel       = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Str("service", "callengine").
		Logger()

	logger.Info().Msg("starting call engine")

	cfg := engine.SessionConfig{
		ConnectTimeout: *connectTimeout,
		GraceDelay:     *graceDelay,
	}
	sender := webhook.NewSender(*webhookURL, logger)
	platform := simulation.NewPlatform(simulation.DefaultProfile(), logger)
	manager := engine.NewManager(platform, sender, cfg, logger)

	// Control API
	api := control.NewAPI(manager, logger)
	router := mux.NewRouter()
	api.SetupRoutes(router)

	srv := &http.Server{
		Addr:         ":" + *controlPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("control API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("control API stopped")
		}
	}()

	logger.Info().
		Str("control_api", fmt.Sprintf("http://localhost:%s", *controlPort)).
		Str("webhook_url", *webhookURL).
		Msg("call engine ready")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down call engine")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	// Terminate sessions, then let queued webhooks drain
	manager.Shutdown()
	sender.Flush()
	logger.Info().Msg("call engine stopped")
}
