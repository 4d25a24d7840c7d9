package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_CreateAndGetByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := Notification{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Channel:         config.ChannelEmail,
		Priority:        domainevent.PriorityNormal,
		Status:          StatusPending,
		SourceEventID:   uuid.New(),
		SourceEventType: domainevent.TypeUserRegistered,
		Content:         map[string]string{"body": "hello"},
		Attempts:        0,
		MaxAttempts:     3,
		CreatedAt:       time.Now().UTC(),
	}

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateNotification(ctx, n))
	require.NoError(t, tx.Commit())

	got, err := s.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.UserID, got.UserID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "hello", got.Content["body"])
}

func TestSQLiteStore_CreateNotification_DuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	eventID := uuid.New()
	n := Notification{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Channel:         config.ChannelEmail,
		Priority:        domainevent.PriorityNormal,
		Status:          StatusPending,
		SourceEventID:   eventID,
		SourceEventType: domainevent.TypeUserRegistered,
		Content:         map[string]string{},
		MaxAttempts:     3,
		CreatedAt:       time.Now().UTC(),
	}

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateNotification(ctx, n))
	require.NoError(t, tx.Commit())

	dup := n
	dup.ID = uuid.New()
	tx2, err := s.BeginTx(ctx)
	require.NoError(t, err)
	err = tx2.CreateNotification(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicate)
	tx2.Rollback()
}

func TestSQLiteStore_GetByID_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CreateDefaultUserPreference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	pref, err := tx.CreateDefaultUserPreference(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.True(t, pref.Channels[config.ChannelEmail])
	assert.True(t, pref.Channels[config.ChannelSMS])
	assert.True(t, pref.Channels[config.ChannelPush])
	assert.Equal(t, "UTC", pref.Timezone)

	tx2, err := s.BeginTx(ctx)
	require.NoError(t, err)
	reloaded, err := tx2.GetUserPreference(ctx, userID)
	require.NoError(t, err)
	tx2.Commit()
	assert.Equal(t, pref.Channels, reloaded.Channels)
}

func TestSQLiteStore_UpdateStatus_IncrementsAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := Notification{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Channel:         config.ChannelEmail,
		Priority:        domainevent.PriorityNormal,
		Status:          StatusPending,
		SourceEventID:   uuid.New(),
		SourceEventType: domainevent.TypeUserRegistered,
		Content:         map[string]string{},
		MaxAttempts:     3,
		CreatedAt:       time.Now().UTC(),
	}
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateNotification(ctx, n))
	require.NoError(t, tx.Commit())

	retryAt := time.Now().UTC().Add(time.Minute)
	require.NoError(t, s.UpdateStatus(ctx, n.ID, StatusUpdate{
		Status:            StatusPending,
		NextRetryAt:       &retryAt,
		IncrementAttempts: true,
	}))

	got, err := s.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.NextRetryAt)
}

func TestSQLiteStore_PendingRetries_MatchesNullNextRetryPastStaleness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := Notification{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Channel:         config.ChannelEmail,
		Priority:        domainevent.PriorityNormal,
		Status:          StatusPending,
		SourceEventID:   uuid.New(),
		SourceEventType: domainevent.TypeUserRegistered,
		Content:         map[string]string{},
		MaxAttempts:     3,
		CreatedAt:       time.Now().UTC().Add(-time.Hour),
	}
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateNotification(ctx, stale))
	require.NoError(t, tx.Commit())

	pending, err := s.PendingRetries(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stale.ID, pending[0].ID)
}

func TestSQLiteStore_PendingRetries_ExcludesNotYetDue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	n := Notification{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Channel:         config.ChannelEmail,
		Priority:        domainevent.PriorityNormal,
		Status:          StatusPending,
		SourceEventID:   uuid.New(),
		SourceEventType: domainevent.TypeUserRegistered,
		Content:         map[string]string{},
		MaxAttempts:     3,
		NextRetryAt:     &future,
		CreatedAt:       time.Now().UTC(),
	}
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateNotification(ctx, n))
	require.NoError(t, tx.Commit())

	pending, err := s.PendingRetries(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
