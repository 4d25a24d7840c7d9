// Command gateway runs the HTTP ingestion surface: it validates incoming
// domain event payloads and appends them to the durable event log.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/eventlog"
	"github.com/akiraliebert/event-driven-notification-system/internal/httpapi"
	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New("info")
	if err != nil {
		panic(err)
	}

	durableLog, err := eventlog.NewKafkaLog(cfg.EventLog.Brokers, log)
	if err != nil {
		log.Error("failed to connect to event log", "error", err)
		os.Exit(1)
	}
	defer durableLog.Close()

	server := httpapi.New(durableLog, cfg.EventLog.Topic, log)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("ingestion gateway listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down ingestion gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
