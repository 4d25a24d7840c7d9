// Package sweeper implements the periodic pending-notification backstop
// spec.md §9 calls for: when the event processor commits notifications but
// the subsequent work-queue enqueue fails, those notifications are stuck in
// pending with no work item. The sweeper periodically requeues anything
// pending (or due for retry) past a staleness threshold.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
	"github.com/akiraliebert/event-driven-notification-system/internal/store"
	"github.com/akiraliebert/event-driven-notification-system/internal/workqueue"
)

// Sweeper periodically scans store.PendingRetries and re-enqueues anything
// found, the fallback spec.md §9 describes for when a work-queue enqueue
// is lost after a notification has already committed.
type Sweeper struct {
	store      store.Store
	queue      workqueue.Queue
	schedule   string
	batchLimit int
	staleness  time.Duration
	log        logging.Logger

	cron *cron.Cron
}

// New builds a Sweeper. schedule is a robfig/cron expression (standard
// five-field or the "@every" shorthand); staleness is how far in the past
// created_at must be before a pending notification is considered stuck
// rather than merely in flight.
func New(st store.Store, q workqueue.Queue, schedule string, staleness time.Duration, batchLimit int, log logging.Logger) *Sweeper {
	return &Sweeper{
		store:      st,
		queue:      q,
		schedule:   schedule,
		batchLimit: batchLimit,
		staleness:  staleness,
		log:        log,
		cron:       cron.New(),
	}
}

// Start schedules the sweep and blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.sweep(ctx); err != nil {
			s.log.Error("sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

func (s *Sweeper) sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.staleness)
	notifications, err := s.store.PendingRetries(ctx, cutoff, s.batchLimit)
	if err != nil {
		return err
	}
	if len(notifications) == 0 {
		return nil
	}

	requeued := 0
	for _, n := range notifications {
		item := workqueue.Item{NotificationID: n.ID, Priority: n.Priority}
		if err := s.queue.Enqueue(ctx, item, time.Now()); err != nil {
			s.log.Error("sweeper failed to requeue notification", "notification_id", n.ID, "error", err)
			continue
		}
		requeued++
	}
	s.log.Info("sweeper requeued stale pending notifications", "found", len(notifications), "requeued", requeued)
	return nil
}
