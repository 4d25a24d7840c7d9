package statuspublisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
	"github.com/akiraliebert/event-driven-notification-system/internal/eventlog"
)

func TestPublish_EncodesAsCloudEventKeyedByNotificationID(t *testing.T) {
	log := eventlog.NewMemoryLog(0)
	pub := New(log, "notification.status")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	notificationID := uuid.New()
	userID := uuid.New()

	received := make(chan eventlog.Record, 1)
	go func() {
		_ = log.Consume(ctx, "notification.status", "test-consumer", func(_ context.Context, rec eventlog.Record) error {
			received <- rec
			cancel()
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	err := pub.Publish(ctx, StatusRecord{
		NotificationID: notificationID,
		Status:         "delivered",
		EventType:      domainevent.TypeUserRegistered,
		Channel:        config.ChannelEmail,
		UserID:         userID,
	})
	require.NoError(t, err)

	select {
	case rec := <-received:
		assert.Equal(t, notificationID.String(), rec.Key)

		var ce cloudevents.Event
		require.NoError(t, json.Unmarshal(rec.Value, &ce))
		assert.Equal(t, "notification.status", ce.Type())

		var out StatusRecord
		require.NoError(t, json.Unmarshal(ce.Data(), &out))
		assert.Equal(t, notificationID, out.NotificationID)
		assert.Equal(t, "delivered", out.Status)
		assert.Equal(t, config.ChannelEmail, out.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published status record")
	}
}
