package provider

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/store"
)

type fakeSender struct {
	result Result
}

func (f fakeSender) Send(ctx context.Context, n store.Notification) Result { return f.result }

func TestRegistry_Send_UnknownChannel(t *testing.T) {
	r := NewRegistry()
	_, err := r.Send(context.Background(), store.Notification{Channel: config.ChannelEmail})
	assert.ErrorAs(t, err, &ErrUnknownChannel{})
}

func TestRegistry_Send_Success(t *testing.T) {
	r := NewRegistry()
	r.Register(config.ChannelEmail, fakeSender{result: Result{Success: true, Details: "sent"}})

	res, err := r.Send(context.Background(), store.Notification{ID: uuid.New(), Channel: config.ChannelEmail})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "sent", res.Details)
}

func TestRegistry_Send_FailurePreservesRetryableClassification(t *testing.T) {
	r := NewRegistry()
	r.Register(config.ChannelSMS, fakeSender{result: Result{Success: false, Details: "hard bounce", Retryable: false}})

	res, err := r.Send(context.Background(), store.Notification{ID: uuid.New(), Channel: config.ChannelSMS})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.Retryable)
	assert.Equal(t, "hard bounce", res.Details)
}

func TestRegistry_Send_FailurePreservesRetryableTrue(t *testing.T) {
	r := NewRegistry()
	r.Register(config.ChannelPush, fakeSender{result: Result{Success: false, Details: "timeout", Retryable: true}})

	res, err := r.Send(context.Background(), store.Notification{ID: uuid.New(), Channel: config.ChannelPush})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Retryable)
}
