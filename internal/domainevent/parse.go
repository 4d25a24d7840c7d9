package domainevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// ErrMalformed marks a raw record that failed to deserialize at all — a
// non-retryable, commit-past-it condition (spec.md §4.7 step 1, §7).
var ErrMalformed = errors.New("malformed event record")

// ErrUnknownType marks a record with a well-formed envelope but an
// event_type outside the known registry — also non-retryable.
var ErrUnknownType = errors.New("unknown event type")

// ErrInvalidPayload marks a record whose event_type is known but whose
// payload fails shape validation — also non-retryable per spec.md §4.7.
var ErrInvalidPayload = errors.New("invalid event payload")

// rawRecord is the wire shape from spec.md §6: a metadata envelope plus a
// payload whose shape depends on metadata.event_type.
type rawRecord struct {
	Metadata struct {
		EventID    uuid.UUID `json:"event_id"`
		EventType  Type      `json:"event_type"`
		OccurredAt time.Time `json:"occurred_at"`
		Version    int       `json:"version"`
	} `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

// Parse decodes a raw UTF-8 JSON log record into a typed Event.
//
// Returns an error wrapping ErrMalformed, ErrUnknownType, or ErrInvalidPayload
// so callers (the event processor's poison-pill handling) can tell
// non-retryable classification failures apart from anything else.
func Parse(raw []byte) (Event, error) {
	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if rec.Metadata.EventID == uuid.Nil {
		return Event{}, fmt.Errorf("%w: missing metadata.event_id", ErrMalformed)
	}
	if rec.Metadata.EventType == "" {
		return Event{}, fmt.Errorf("%w: missing metadata.event_type", ErrMalformed)
	}

	meta := Metadata{
		EventID:    rec.Metadata.EventID,
		EventType:  rec.Metadata.EventType,
		OccurredAt: rec.Metadata.OccurredAt,
		Version:    rec.Metadata.Version,
	}

	switch meta.EventType {
	case TypeUserRegistered:
		var p UserRegisteredPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.UserID == uuid.Nil || p.Email == "" {
			return Event{}, fmt.Errorf("%w: user_id and email are required", ErrInvalidPayload)
		}
		return Event{Metadata: meta, UserRegistered: &p}, nil

	case TypeOrderCompleted:
		var p OrderCompletedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.UserID == uuid.Nil || p.OrderID == uuid.Nil || p.TotalAmount == "" {
			return Event{}, fmt.Errorf("%w: user_id, order_id, and total_amount are required", ErrInvalidPayload)
		}
		return Event{Metadata: meta, OrderCompleted: &p}, nil

	case TypePaymentFailed:
		var p PaymentFailedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.UserID == uuid.Nil || p.PaymentID == uuid.Nil {
			return Event{}, fmt.Errorf("%w: user_id and payment_id are required", ErrInvalidPayload)
		}
		return Event{Metadata: meta, PaymentFailed: &p}, nil

	default:
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownType, meta.EventType)
	}
}

// ToCloudEvent encodes a raw record's bytes as a CloudEvents 1.0 envelope.
// The durable log itself carries the raw JSON record, not this envelope.
func ToCloudEvent(raw []byte) (cloudevents.Event, error) {
	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return cloudevents.Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ce := cloudevents.NewEvent()
	ce.SetID(rec.Metadata.EventID.String())
	ce.SetType(string(rec.Metadata.EventType))
	ce.SetSource("event-gateway")
	ce.SetTime(rec.Metadata.OccurredAt)
	ce.SetExtension("version", rec.Metadata.Version)
	if err := ce.SetData(cloudevents.ApplicationJSON, rec.Payload); err != nil {
		return cloudevents.Event{}, fmt.Errorf("encoding cloudevent data: %w", err)
	}
	return ce, nil
}

// FromCloudEvent reconstructs the raw wire record bytes from a CloudEvents
// envelope, the inverse of ToCloudEvent. The event processor does not call
// it: it parses the raw log record with Parse.
func FromCloudEvent(ce cloudevents.Event) ([]byte, error) {
	id, err := uuid.Parse(ce.ID())
	if err != nil {
		return nil, fmt.Errorf("%w: event id is not a uuid: %v", ErrMalformed, err)
	}
	var version int
	if v, ok := ce.Extensions()["version"]; ok {
		switch n := v.(type) {
		case int:
			version = n
		case int32:
			version = int(n)
		case int64:
			version = int(n)
		case float64:
			version = int(n)
		case string:
			fmt.Sscanf(n, "%d", &version)
		}
	}

	rec := rawRecord{
		Payload: json.RawMessage(ce.Data()),
	}
	rec.Metadata.EventID = id
	rec.Metadata.EventType = Type(ce.Type())
	rec.Metadata.OccurredAt = ce.Time()
	rec.Metadata.Version = version

	return json.Marshal(rec)
}
