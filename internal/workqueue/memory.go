package workqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
)

type delayedEntry struct {
	item Item
	eta  time.Time
}

// MemoryQueue is an in-process Queue for tests, mirroring RedisQueue's
// semantics (per-priority ready/delayed sets, FIFO within a priority) on
// plain Go maps and slices instead of Redis sorted sets.
type MemoryQueue struct {
	mu      sync.Mutex
	ready   map[domainevent.Priority][]Item
	delayed map[domainevent.Priority][]delayedEntry
}

// NewMemoryQueue builds an empty in-memory work queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		ready:   make(map[domainevent.Priority][]Item),
		delayed: make(map[domainevent.Priority][]delayedEntry),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, item Item, eta time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !eta.After(time.Now()) {
		q.ready[item.Priority] = append(q.ready[item.Priority], item)
		return nil
	}
	q.delayed[item.Priority] = append(q.delayed[item.Priority], delayedEntry{item: item, eta: eta})
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, priority domainevent.Priority, limit int) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.ready[priority]
	if len(items) == 0 {
		return nil, nil
	}
	if limit > len(items) {
		limit = len(items)
	}
	out := make([]Item, limit)
	copy(out, items[:limit])
	q.ready[priority] = items[limit:]
	return out, nil
}

func (q *MemoryQueue) PromoteDelayed(ctx context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := 0
	for _, p := range Priorities() {
		entries := q.delayed[p]
		if len(entries) == 0 {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].eta.Before(entries[j].eta) })

		var remaining []delayedEntry
		for _, e := range entries {
			if !e.eta.After(now) {
				q.ready[p] = append(q.ready[p], e.item)
				total++
			} else {
				remaining = append(remaining, e)
			}
		}
		q.delayed[p] = remaining
	}
	return total, nil
}

func (q *MemoryQueue) Remove(ctx context.Context, item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ready[item.Priority] = removeItem(q.ready[item.Priority], item)

	entries := q.delayed[item.Priority]
	filtered := entries[:0]
	for _, e := range entries {
		if e.item.NotificationID != item.NotificationID {
			filtered = append(filtered, e)
		}
	}
	q.delayed[item.Priority] = filtered
	return nil
}

func removeItem(items []Item, target Item) []Item {
	filtered := items[:0]
	for _, it := range items {
		if it.NotificationID != target.NotificationID {
			filtered = append(filtered, it)
		}
	}
	return filtered
}

func (q *MemoryQueue) Close() error { return nil }
