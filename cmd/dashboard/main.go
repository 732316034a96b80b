package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dialcraft/callcoord/pkg/dashboard"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		backendURL = flag.String("backend-url", "http://localhost:8080", "Coordination backend URL")
		logLevel   = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	subscriber := dashboard.NewSubscriber(*backendURL, dashboard.NewReconciler(), logger)
	subscriber.OnChange(func() { render(subscriber.Reconciler()) })

	ctx, cancel := context.WithCancel(context.Background())
	go subscriber.Run(ctx)

	fmt.Printf("watching %s (ctrl-c to quit)\n", *backendURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	cancel()
	subscriber.Close()
}

func render(r *dashboard.Reconciler) {
	fmt.Print("\033[H\033[2J") // clear screen

	active := r.ActiveCalls()
	fmt.Printf("ACTIVE CALLS (%d)\n", len(active))
	for _, call := range active {
		fmt.Printf("  %-36s  %-20s  %-22s  since %s\n",
			call.CallID, call.LeadName, call.Campaign, call.StartedAt.Format("15:04:05"))
	}

	results := r.RecentResults()
	fmt.Printf("\nRECENT RESULTS (%d)\n", len(results))
	for _, result := range results {
		fmt.Printf("  %-36s  %-24s  cx=%2d  %s\n",
			result.CallID, result.Disposition, result.CXScore, result.Summary)
	}
}
