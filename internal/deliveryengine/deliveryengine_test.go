package deliveryengine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
	"github.com/akiraliebert/event-driven-notification-system/internal/eventlog"
	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
	"github.com/akiraliebert/event-driven-notification-system/internal/provider"
	"github.com/akiraliebert/event-driven-notification-system/internal/ratelimiter"
	"github.com/akiraliebert/event-driven-notification-system/internal/statuspublisher"
	"github.com/akiraliebert/event-driven-notification-system/internal/store"
	"github.com/akiraliebert/event-driven-notification-system/internal/workqueue"
)

type fakeSender struct{ result provider.Result }

func (f fakeSender) Send(context.Context, store.Notification) provider.Result { return f.result }

func testDeliveryConfig() config.DeliveryConfig {
	return config.DeliveryConfig{
		ProviderTimeout:       5 * time.Second,
		RetryBackoffSeconds:   []int{1, 2, 4},
		RateLimitRetrySeconds: 5,
	}
}

func seedNotification(t *testing.T, st *store.SQLiteStore, mutate func(*store.Notification)) store.Notification {
	t.Helper()
	n := store.Notification{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Channel:         config.ChannelEmail,
		Priority:        domainevent.PriorityNormal,
		Status:          store.StatusPending,
		SourceEventID:   uuid.New(),
		SourceEventType: domainevent.TypeUserRegistered,
		Content:         map[string]string{"body": "hi"},
		MaxAttempts:     3,
		CreatedAt:       time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&n)
	}
	tx, err := st.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.CreateNotification(context.Background(), n))
	require.NoError(t, tx.Commit())
	return n
}

func newEngine(t *testing.T, result provider.Result, limiterCfg config.RateLimitConfig) (*Engine, *store.SQLiteStore, *workqueue.MemoryQueue) {
	t.Helper()
	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	q := workqueue.NewMemoryQueue()
	limiter := ratelimiter.NewInMemoryLimiter(limiterCfg)
	registry := provider.NewRegistry()
	registry.Register(config.ChannelEmail, fakeSender{result: result})
	status := statuspublisher.New(eventlog.NewMemoryLog(0), "notification.status")

	e := New(st, q, limiter, registry, status, testDeliveryConfig(), logging.NewNop())
	return e, st, q
}

func allowAllLimiter() config.RateLimitConfig {
	return config.RateLimitConfig{WindowSeconds: 60, LimitPerMinute: map[config.Channel]int{config.ChannelEmail: 1000}}
}

func TestDeliver_Success_MarksDelivered(t *testing.T) {
	e, st, _ := newEngine(t, provider.Result{Success: true, Details: "sent"}, allowAllLimiter())
	n := seedNotification(t, st, nil)

	require.NoError(t, e.deliver(context.Background(), n.ID))

	got, err := st.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)
}

func TestDeliver_RetryableFailure_ReschedulesWithBackoff(t *testing.T) {
	e, st, q := newEngine(t, provider.Result{Success: false, Details: "timeout", Retryable: true}, allowAllLimiter())
	n := seedNotification(t, st, nil)

	require.NoError(t, e.deliver(context.Background(), n.ID))

	got, err := st.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.NextRetryAt)
	assert.True(t, got.NextRetryAt.After(time.Now()))

	promoted, err := q.PromoteDelayed(context.Background(), got.NextRetryAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)
}

func TestDeliver_NonRetryableFailure_MarksPermanentlyFailed(t *testing.T) {
	e, st, _ := newEngine(t, provider.Result{Success: false, Details: "bounced", Retryable: false}, allowAllLimiter())
	n := seedNotification(t, st, nil)

	require.NoError(t, e.deliver(context.Background(), n.ID))

	got, err := st.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	require.NotNil(t, got.FailedReason)
	assert.Equal(t, "bounced", *got.FailedReason)
}

func TestDeliver_RetryableFailure_PermanentOnceMaxAttemptsReached(t *testing.T) {
	e, st, _ := newEngine(t, provider.Result{Success: false, Details: "timeout", Retryable: true}, allowAllLimiter())
	n := seedNotification(t, st, func(n *store.Notification) {
		n.Attempts = 2
		n.MaxAttempts = 3
	})

	require.NoError(t, e.deliver(context.Background(), n.ID))

	got, err := st.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status, "third attempt must exhaust retries even though the error is retryable")
}

func TestDeliver_RateLimited_RevertsToPendingAndReschedules(t *testing.T) {
	denyAll := config.RateLimitConfig{WindowSeconds: 60, LimitPerMinute: map[config.Channel]int{config.ChannelEmail: 0}}
	e, st, q := newEngine(t, provider.Result{Success: true}, denyAll)
	n := seedNotification(t, st, nil)

	require.NoError(t, e.deliver(context.Background(), n.ID))

	got, err := st.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, got.Status)
	assert.Zero(t, got.Attempts, "a rate-limit defer must not count as a delivery attempt")

	items, err := q.Dequeue(context.Background(), domainevent.PriorityNormal, 10)
	require.NoError(t, err)
	assert.Empty(t, items, "rate-limited retry is delayed, not immediately ready")
}

func TestDeliver_AlreadyDelivered_IsANoOp(t *testing.T) {
	e, st, _ := newEngine(t, provider.Result{Success: false, Details: "should not be called"}, allowAllLimiter())
	n := seedNotification(t, st, func(n *store.Notification) { n.Status = store.StatusDelivered })

	require.NoError(t, e.deliver(context.Background(), n.ID))

	got, err := st.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDelivered, got.Status)
}
