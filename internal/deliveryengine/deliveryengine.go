// Package deliveryengine implements C8: draining the work queue and driving
// each notification through PENDING -> SENDING -> DELIVERED/FAILED, gated by
// the rate limiter and retried with backoff on provider failure.
package deliveryengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
	"github.com/akiraliebert/event-driven-notification-system/internal/metrics"
	"github.com/akiraliebert/event-driven-notification-system/internal/provider"
	"github.com/akiraliebert/event-driven-notification-system/internal/ratelimiter"
	"github.com/akiraliebert/event-driven-notification-system/internal/statuspublisher"
	"github.com/akiraliebert/event-driven-notification-system/internal/store"
	"github.com/akiraliebert/event-driven-notification-system/internal/workqueue"
)

// Adaptive polling bounds for the dequeue loop: back off when every priority
// is empty, snap back to the minimum the moment any work is found.
const (
	minPollInterval = 50 * time.Millisecond
	maxPollInterval = 2 * time.Second
	pollBackoffRate = 1.5
)

// Engine is C8. One Engine instance owns a pool of worker goroutines that
// drain workqueue.Queue in priority order and a separate goroutine that
// promotes delayed (quiet-hours, backoff) items as their eta elapses.
type Engine struct {
	store    store.Store
	queue    workqueue.Queue
	limiter  ratelimiter.Limiter
	registry *provider.Registry
	status   *statuspublisher.Publisher
	cfg      config.DeliveryConfig
	log      logging.Logger

	concurrency         int
	batchSize           int
	delayedPollInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu           sync.Mutex
	pollInterval time.Duration
	running      bool
}

// Option configures non-required Engine fields.
type Option func(*Engine)

// WithConcurrency sets the number of worker goroutines draining the queue.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithBatchSize sets how many items each Dequeue call pulls per priority.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithDelayedPollInterval sets how often the delayed-promotion loop runs.
func WithDelayedPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delayedPollInterval = d
		}
	}
}

// New builds an Engine from its collaborators.
func New(st store.Store, q workqueue.Queue, limiter ratelimiter.Limiter, registry *provider.Registry,
	status *statuspublisher.Publisher, cfg config.DeliveryConfig, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:               st,
		queue:               q,
		limiter:             limiter,
		registry:            registry,
		status:              status,
		cfg:                 cfg,
		log:                 log,
		concurrency:         4,
		batchSize:           10,
		delayedPollInterval: time.Second,
		stopCh:              make(chan struct{}),
		pollInterval:        minPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drains the queue until ctx is cancelled. It blocks; callers run it in
// its own goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("delivery engine already running")
	}
	e.running = true
	e.mu.Unlock()

	itemCh := make(chan workqueue.Item, e.batchSize*2)

	for i := 0; i < e.concurrency; i++ {
		e.wg.Add(1)
		go e.workLoop(ctx, itemCh)
	}

	e.wg.Add(1)
	go e.promoteLoop(ctx)

	defer func() {
		close(e.stopCh)
		e.wg.Wait()
		close(itemCh)
	}()

	timer := time.NewTimer(e.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			found := false
			for _, priority := range workqueue.Priorities() {
				items, err := e.queue.Dequeue(ctx, priority, e.batchSize)
				if err != nil {
					e.log.Error("dequeue failed", "priority", priority, "error", err)
					continue
				}
				if len(items) > 0 {
					found = true
				}
				for _, item := range items {
					select {
					case itemCh <- item:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			e.adaptPollInterval(found)
			timer.Reset(e.pollInterval)
		}
	}
}

func (e *Engine) adaptPollInterval(hasWork bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if hasWork {
		e.pollInterval = minPollInterval
		return
	}
	next := time.Duration(float64(e.pollInterval) * pollBackoffRate)
	if next > maxPollInterval {
		next = maxPollInterval
	}
	e.pollInterval = next
}

func (e *Engine) workLoop(ctx context.Context, itemCh <-chan workqueue.Item) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-itemCh:
			if !ok {
				return
			}
			if err := e.deliver(ctx, item.NotificationID); err != nil {
				e.log.Error("delivery attempt failed", "notification_id", item.NotificationID, "error", err)
			}
		}
	}
}

func (e *Engine) promoteLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.delayedPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.queue.PromoteDelayed(ctx, time.Now())
			if err != nil {
				e.log.Error("promoting delayed work items failed", "error", err)
				continue
			}
			if n > 0 {
				e.log.Info("promoted delayed work items", "count", n)
			}
		}
	}
}

// deliver is the per-notification state machine, ported from the original
// Celery task's send_notification: idempotency skip, SENDING transition,
// rate-limit gate, provider call, and success/retry/permanent-failure paths.
func (e *Engine) deliver(ctx context.Context, id uuid.UUID) error {
	n, err := e.store.GetByID(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			e.log.Warn("notification not found, skipping", "notification_id", id)
			return nil
		}
		return fmt.Errorf("loading notification %s: %w", id, err)
	}

	logCtx := []interface{}{"notification_id", id, "channel", n.Channel, "attempt", n.Attempts}

	if n.Status == store.StatusDelivered {
		e.log.Info("already delivered, skipping", logCtx...)
		return nil
	}
	if n.Status == store.StatusFailed && n.Attempts >= n.MaxAttempts {
		e.log.Info("already permanently failed, skipping", logCtx...)
		return nil
	}

	if err := e.store.UpdateStatus(ctx, id, store.StatusUpdate{Status: store.StatusSending}); err != nil {
		return fmt.Errorf("transitioning %s to sending: %w", id, err)
	}

	allowed, err := e.limiter.Acquire(ctx, n.Channel)
	if err != nil {
		e.log.Error("rate limiter error, treating as rate limited", append(logCtx, "error", err)...)
		allowed = false
	}
	if !allowed {
		e.log.Info("rate limited, rescheduling", logCtx...)
		if err := e.store.UpdateStatus(ctx, id, store.StatusUpdate{Status: store.StatusPending}); err != nil {
			return fmt.Errorf("reverting %s to pending after rate limit: %w", id, err)
		}
		return e.queue.Enqueue(ctx, workqueue.Item{NotificationID: id, Priority: n.Priority},
			time.Now().Add(time.Duration(e.cfg.RateLimitRetrySeconds)*time.Second))
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	result, err := e.registry.Send(sendCtx, n)
	cancel()
	if err != nil {
		e.log.Error("provider error", append(logCtx, "error", err)...)
		result = provider.Result{Success: false, Details: err.Error(), Retryable: true}
	}

	if result.Success {
		now := time.Now().UTC()
		if err := e.store.UpdateStatus(ctx, id, store.StatusUpdate{Status: store.StatusDelivered, DeliveredAt: &now}); err != nil {
			return fmt.Errorf("marking %s delivered: %w", id, err)
		}
		e.log.Info("delivery succeeded", append(logCtx, "details", result.Details)...)
		metrics.Delivery.WithLabelValues(string(n.Channel), "delivered").Inc()
		return e.publishStatus(ctx, n, store.StatusDelivered)
	}

	return e.handleFailure(ctx, n, result)
}

func (e *Engine) handleFailure(ctx context.Context, n store.Notification, result provider.Result) error {
	logCtx := []interface{}{"notification_id", n.ID, "channel", n.Channel}
	newAttempts := n.Attempts + 1
	reason := result.Details

	if result.Retryable && newAttempts < n.MaxAttempts {
		backoff := e.cfg.BackoffFor(newAttempts)
		retryAt := time.Now().UTC().Add(backoff)
		if err := e.store.UpdateStatus(ctx, n.ID, store.StatusUpdate{
			Status:            store.StatusPending,
			NextRetryAt:       &retryAt,
			IncrementAttempts: true,
		}); err != nil {
			return fmt.Errorf("scheduling retry for %s: %w", n.ID, err)
		}
		e.log.Warn("delivery failed, scheduling retry",
			append(logCtx, "attempt", newAttempts, "backoff", backoff, "reason", reason)...)
		metrics.Retries.WithLabelValues(string(n.Channel)).Inc()
		return e.queue.Enqueue(ctx, workqueue.Item{NotificationID: n.ID, Priority: n.Priority}, retryAt)
	}

	if err := e.store.UpdateStatus(ctx, n.ID, store.StatusUpdate{
		Status:            store.StatusFailed,
		FailedReason:       &reason,
		IncrementAttempts: true,
	}); err != nil {
		return fmt.Errorf("marking %s permanently failed: %w", n.ID, err)
	}
	e.log.Error("delivery permanently failed", append(logCtx, "attempt", newAttempts, "reason", reason)...)
	metrics.Delivery.WithLabelValues(string(n.Channel), "failed").Inc()
	return e.publishStatus(ctx, n, store.StatusFailed)
}

func (e *Engine) publishStatus(ctx context.Context, n store.Notification, status store.Status) error {
	return e.status.Publish(ctx, statuspublisher.StatusRecord{
		NotificationID: n.ID,
		Status:         string(status),
		EventType:      n.SourceEventType,
		Channel:        n.Channel,
		UserID:         n.UserID,
	})
}
