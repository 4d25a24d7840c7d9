package domainevent

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord(t *testing.T, eventType Type, payload string) []byte {
	t.Helper()
	return []byte(`{
		"metadata": {
			"event_id": "` + uuid.New().String() + `",
			"event_type": "` + string(eventType) + `",
			"occurred_at": "` + time.Now().UTC().Format(time.RFC3339) + `",
			"version": 1
		},
		"payload": ` + payload + `
	}`)
}

func TestParse_UserRegistered(t *testing.T) {
	userID := uuid.New()
	raw := validRecord(t, TypeUserRegistered, `{"user_id":"`+userID.String()+`","email":"a@example.com"}`)

	ev, err := Parse(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.UserRegistered)
	assert.Equal(t, userID, ev.UserID())
	assert.Equal(t, "a@example.com", ev.UserRegistered.Email)
}

func TestParse_OrderCompleted(t *testing.T) {
	userID, orderID := uuid.New(), uuid.New()
	raw := validRecord(t, TypeOrderCompleted, `{"user_id":"`+userID.String()+`","order_id":"`+orderID.String()+`","total_amount":"19.99"}`)

	ev, err := Parse(raw)
	require.NoError(t, err)
	require.NotNil(t, ev.OrderCompleted)
	assert.Equal(t, PriorityHigh, PriorityFor(ev.Metadata.EventType))
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParse_MissingEventID(t *testing.T) {
	raw := []byte(`{"metadata":{"event_type":"user.registered"},"payload":{}}`)
	_, err := Parse(raw)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParse_UnknownType(t *testing.T) {
	raw := validRecord(t, Type("something.else"), `{}`)
	_, err := Parse(raw)
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestParse_InvalidPayload_MissingRequiredField(t *testing.T) {
	raw := validRecord(t, TypeUserRegistered, `{"email":"a@example.com"}`)
	_, err := Parse(raw)
	assert.True(t, errors.Is(err, ErrInvalidPayload))
}

func TestParse_InvalidPayload_WrongShape(t *testing.T) {
	raw := validRecord(t, TypePaymentFailed, `"not an object"`)
	_, err := Parse(raw)
	assert.True(t, errors.Is(err, ErrInvalidPayload))
}

func TestKnownTypes_Sorted(t *testing.T) {
	types := KnownTypes()
	assert.Equal(t, []string{"order.completed", "payment.failed", "user.registered"}, types)
}

func TestToCloudEvent_RoundTrip(t *testing.T) {
	userID := uuid.New()
	raw := validRecord(t, TypeUserRegistered, `{"user_id":"`+userID.String()+`","email":"a@example.com"}`)

	ce, err := ToCloudEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, string(TypeUserRegistered), ce.Type())

	back, err := FromCloudEvent(ce)
	require.NoError(t, err)

	ev, err := Parse(back)
	require.NoError(t, err)
	assert.Equal(t, userID, ev.UserID())
}
