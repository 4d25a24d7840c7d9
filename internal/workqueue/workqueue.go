// Package workqueue is the delayed-dispatch work queue the event processor
// (C7) enqueues delivery work items into and the delivery engine (C8) draws
// them from. Items are partitioned by priority (spec.md §9 glossary: a
// routing label used to partition work-queue capacity) and support a
// not-before ETA for quiet-hours deferral and retry backoff.
package workqueue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
)

// Item is one unit of delivery work: a notification to attempt.
type Item struct {
	NotificationID uuid.UUID
	Priority       domainevent.Priority
}

// Queue is the work-queue contract. Enqueue places an item not visible to
// Dequeue until eta (use time.Now() for immediate visibility). Dequeue never
// blocks and removes the items it returns; there is no acknowledgement step.
// Callers poll with their own backoff. The delivery engine takes up to its
// batch size per priority in one call and buffers them for its workers, so
// it is not limited to one held item per worker.
type Queue interface {
	Enqueue(ctx context.Context, item Item, eta time.Time) error
	Dequeue(ctx context.Context, priority domainevent.Priority, limit int) ([]Item, error)

	// PromoteDelayed moves items whose eta has elapsed into the ready
	// queue for their priority, returning the count promoted across all
	// priorities. Callers run this on a short interval.
	PromoteDelayed(ctx context.Context, now time.Time) (int, error)

	// Remove drops an item from both the ready and delayed sets for its
	// priority. The delivery engine does not call it: its idempotency gate
	// skips items whose notification is already terminal.
	Remove(ctx context.Context, item Item) error

	Close() error
}

// Priorities lists every routing label, highest first — the order the
// delivery engine's worker pool drains queues in.
func Priorities() []domainevent.Priority {
	return []domainevent.Priority{
		domainevent.PriorityCritical,
		domainevent.PriorityHigh,
		domainevent.PriorityNormal,
		domainevent.PriorityLow,
	}
}
