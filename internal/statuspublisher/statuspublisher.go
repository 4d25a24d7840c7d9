// Package statuspublisher implements C6: publishing a notification's status
// transitions to a downstream topic, partitioned by notification_id so a
// single notification's statuses are always observed in order.
package statuspublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
	"github.com/akiraliebert/event-driven-notification-system/internal/eventlog"
)

// StatusRecord is the payload spec.md §4.6 specifies.
type StatusRecord struct {
	NotificationID uuid.UUID            `json:"notification_id"`
	Status         string               `json:"status"`
	EventType      domainevent.Type     `json:"event_type"`
	Channel        config.Channel       `json:"channel"`
	UserID         uuid.UUID            `json:"user_id"`
}

// Publisher publishes StatusRecords onto the status topic of a durable log.
// Delivery is at-least-once; the spec requires only that downstream
// consumers deduplicate, not that this component does.
type Publisher struct {
	log   eventlog.Log
	topic string
}

// New builds a Publisher writing to topic on log.
func New(log eventlog.Log, topic string) *Publisher {
	return &Publisher{log: log, topic: topic}
}

// Publish encodes rec as a CloudEvents envelope and appends it keyed by
// notification id, guaranteeing a single notification's statuses are
// delivered to the same partition in order.
func (p *Publisher) Publish(ctx context.Context, rec StatusRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding status record: %w", err)
	}

	ce := cloudevents.NewEvent()
	ce.SetID(uuid.New().String())
	ce.SetType("notification.status")
	ce.SetSource("event-processor")
	ce.SetTime(time.Now())
	if err := ce.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return fmt.Errorf("encoding cloudevent: %w", err)
	}

	envelope, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("marshaling cloudevent envelope: %w", err)
	}

	return p.log.Append(ctx, p.topic, eventlog.Record{
		Key:   rec.NotificationID.String(),
		Value: envelope,
	})
}
