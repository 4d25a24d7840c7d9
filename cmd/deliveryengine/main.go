// Command deliveryengine drains the work queue and drives each
// notification through its delivery state machine (C8), with a periodic
// sweeper backstop for notifications stranded without a work item.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/deliveryengine"
	"github.com/akiraliebert/event-driven-notification-system/internal/eventlog"
	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
	"github.com/akiraliebert/event-driven-notification-system/internal/provider"
	"github.com/akiraliebert/event-driven-notification-system/internal/ratelimiter"
	"github.com/akiraliebert/event-driven-notification-system/internal/statuspublisher"
	"github.com/akiraliebert/event-driven-notification-system/internal/store"
	"github.com/akiraliebert/event-driven-notification-system/internal/sweeper"
	"github.com/akiraliebert/event-driven-notification-system/internal/workqueue"
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

	pgStore, err := store.Open(cfg.Store)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.WorkQueue.RedisAddr, DB: cfg.WorkQueue.RedisDB})
	defer redisClient.Close()
	queue := workqueue.NewRedisQueue(redisClient)

	limiter := ratelimiter.NewRedisLimiter(redisClient, cfg.RateLimit, log)

	durableLog, err := eventlog.NewKafkaLog(cfg.EventLog.Brokers, log)
	if err != nil {
		log.Error("failed to connect to event log", "error", err)
		os.Exit(1)
	}
	defer durableLog.Close()
	status := statuspublisher.New(durableLog, cfg.EventLog.StatusTopic)

	registry := provider.NewRegistry()
	registry.Register(config.ChannelEmail, provider.NewSMTPSender(provider.SMTPConfig(cfg.Provider.SMTP)))
	registry.Register(config.ChannelSMS, provider.NewHTTPGatewaySender(provider.HTTPGatewayConfig(cfg.Provider.SMS)))
	registry.Register(config.ChannelPush, provider.NewHTTPGatewaySender(provider.HTTPGatewayConfig(cfg.Provider.Push)))

	engine := deliveryengine.New(pgStore, queue, limiter, registry, status, cfg.Delivery, log)
	sweep := sweeper.New(pgStore, queue, cfg.Sweeper.Schedule, cfg.Sweeper.StalenessThreshold, cfg.Sweeper.BatchLimit, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler()}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		log.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		defer wg.Done()
		log.Info("delivery engine starting")
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("delivery engine stopped with error", "error", err)
		}
	}()

	go func() {
		defer wg.Done()
		log.Info("sweeper starting", "schedule", cfg.Sweeper.Schedule)
		if err := sweep.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error("sweeper stopped with error", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down delivery engine")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", "error", err)
	}

	wg.Wait()
}
