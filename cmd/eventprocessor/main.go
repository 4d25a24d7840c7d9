// Command eventprocessor consumes domain events off the durable log and
// fans each one out into per-channel notifications (C7).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/eventlog"
	"github.com/akiraliebert/event-driven-notification-system/internal/eventprocessor"
	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
	"github.com/akiraliebert/event-driven-notification-system/internal/rendertemplate"
	"github.com/akiraliebert/event-driven-notification-system/internal/statuspublisher"
	"github.com/akiraliebert/event-driven-notification-system/internal/store"
	"github.com/akiraliebert/event-driven-notification-system/internal/workqueue"
	"github.com/redis/go-redis/v9"
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

	durableLog, err := eventlog.NewKafkaLog(cfg.EventLog.Brokers, log)
	if err != nil {
		log.Error("failed to connect to event log", "error", err)
		os.Exit(1)
	}
	defer durableLog.Close()

	status := statuspublisher.New(durableLog, cfg.EventLog.StatusTopic)
	renderer := rendertemplate.New()

	processor := eventprocessor.New(pgStore, queue, renderer, status, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("event processor starting", "topic", cfg.EventLog.Topic, "group", cfg.EventLog.ConsumerGroup)

	// poisonPill tracks consecutive retryable failures per partition key
	// (the record's key, same as the partition key — bytes of the
	// recipient user_id). A transient store/log failure that never
	// resolves would otherwise stall that partition forever since the
	// message is never committed; past the threshold it is logged and
	// committed past anyway rather than blocking every later event keyed
	// to the same user.
	const poisonPillThreshold = 3
	consecutiveFailures := make(map[string]int)

	err = durableLog.Consume(ctx, cfg.EventLog.Topic, cfg.EventLog.ConsumerGroup, func(ctx context.Context, rec eventlog.Record) error {
		if err := processor.Process(ctx, rec.Value); err != nil {
			if eventprocessor.IsNonRetryable(err) {
				delete(consecutiveFailures, rec.Key)
				return nil
			}
			consecutiveFailures[rec.Key]++
			if consecutiveFailures[rec.Key] >= poisonPillThreshold {
				log.Error("poison pill threshold reached, committing past record",
					"key", rec.Key, "attempts", consecutiveFailures[rec.Key], "error", err)
				delete(consecutiveFailures, rec.Key)
				return nil
			}
			return err
		}
		delete(consecutiveFailures, rec.Key)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Error("event processor stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("event processor shut down")
}
