package workqueue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
)

func TestMemoryQueue_EnqueueDequeue_Immediate(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	item := Item{NotificationID: uuid.New(), Priority: domainevent.PriorityHigh}

	require.NoError(t, q.Enqueue(ctx, item, time.Now()))

	items, err := q.Dequeue(ctx, domainevent.PriorityHigh, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.NotificationID, items[0].NotificationID)

	items, err = q.Dequeue(ctx, domainevent.PriorityHigh, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryQueue_DelayedItemNotVisibleUntilPromoted(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	item := Item{NotificationID: uuid.New(), Priority: domainevent.PriorityLow}

	require.NoError(t, q.Enqueue(ctx, item, time.Now().Add(time.Hour)))

	items, err := q.Dequeue(ctx, domainevent.PriorityLow, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	promoted, err := q.PromoteDelayed(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	items, err = q.Dequeue(ctx, domainevent.PriorityLow, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestMemoryQueue_DequeueRespectsLimit(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, Item{NotificationID: uuid.New(), Priority: domainevent.PriorityNormal}, time.Now()))
	}

	items, err := q.Dequeue(ctx, domainevent.PriorityNormal, 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestMemoryQueue_Remove(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	item := Item{NotificationID: uuid.New(), Priority: domainevent.PriorityCritical}
	require.NoError(t, q.Enqueue(ctx, item, time.Now()))

	require.NoError(t, q.Remove(ctx, item))

	items, err := q.Dequeue(ctx, domainevent.PriorityCritical, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPriorities_OrderedHighestFirst(t *testing.T) {
	assert.Equal(t, []domainevent.Priority{
		domainevent.PriorityCritical,
		domainevent.PriorityHigh,
		domainevent.PriorityNormal,
		domainevent.PriorityLow,
	}, Priorities())
}
