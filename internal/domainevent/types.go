// Package domainevent defines the closed set of domain event types the
// notification pipeline understands, and the typed-union parsing of a raw
// log record (a JSON object with "metadata" and "payload") into one of them.
//
// This replaces the dynamically-typed payload dispatch of the original
// Python implementation (a dict keyed by event_type) with a discriminated
// sum type: parsing is fallible and returns either a typed event or a
// classified error, per the design note in spec.md §9.
package domainevent

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the shape of an event's payload.
type Type string

const (
	TypeUserRegistered Type = "user.registered"
	TypeOrderCompleted Type = "order.completed"
	TypePaymentFailed  Type = "payment.failed"
)

// KnownTypes lists every type the processor accepts, sorted, for use in the
// HTTP ingestion surface's 422 "supported" response body (spec.md §6).
func KnownTypes() []string {
	return []string{
		string(TypeOrderCompleted),
		string(TypePaymentFailed),
		string(TypeUserRegistered),
	}
}

// Priority is the routing label assigned to notifications created from an
// event, per the static event-type -> priority table in spec.md §4.7.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// priorityByType is the static event-type -> priority assignment table.
var priorityByType = map[Type]Priority{
	TypeUserRegistered: PriorityNormal,
	TypeOrderCompleted: PriorityHigh,
	TypePaymentFailed:  PriorityCritical,
}

// PriorityFor returns the static priority for a known event type. Callers
// must only invoke this after Parse has confirmed the type is known.
func PriorityFor(t Type) Priority {
	return priorityByType[t]
}

// Metadata is the envelope metadata carried on every domain event record.
type Metadata struct {
	EventID     uuid.UUID `json:"event_id"`
	EventType   Type      `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	Version     int       `json:"version"`
}

// UserRegisteredPayload is the payload shape for user.registered.
type UserRegisteredPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// OrderCompletedPayload is the payload shape for order.completed.
type OrderCompletedPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	OrderID     uuid.UUID `json:"order_id"`
	TotalAmount string    `json:"total_amount"`
}

// PaymentFailedPayload is the payload shape for payment.failed.
type PaymentFailedPayload struct {
	UserID    uuid.UUID `json:"user_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
}

// Event is the typed union of every known domain event. Exactly one of the
// payload fields is non-nil, selected by Metadata.EventType.
type Event struct {
	Metadata Metadata

	UserRegistered *UserRegisteredPayload
	OrderCompleted *OrderCompletedPayload
	PaymentFailed  *PaymentFailedPayload
}

// UserID extracts the recipient user id from whichever payload is set.
// Parse guarantees exactly one payload field is populated, so this never
// returns the zero UUID for a successfully parsed event.
func (e Event) UserID() uuid.UUID {
	switch {
	case e.UserRegistered != nil:
		return e.UserRegistered.UserID
	case e.OrderCompleted != nil:
		return e.OrderCompleted.UserID
	case e.PaymentFailed != nil:
		return e.PaymentFailed.UserID
	default:
		return uuid.UUID{}
	}
}

// PayloadMap returns the payload as a string-keyed map suitable as template
// rendering context (C2 requires string-coerced context values).
func (e Event) PayloadMap() map[string]interface{} {
	switch {
	case e.UserRegistered != nil:
		return map[string]interface{}{
			"user_id": e.UserRegistered.UserID.String(),
			"email":   e.UserRegistered.Email,
		}
	case e.OrderCompleted != nil:
		return map[string]interface{}{
			"user_id":      e.OrderCompleted.UserID.String(),
			"order_id":     e.OrderCompleted.OrderID.String(),
			"total_amount": e.OrderCompleted.TotalAmount,
		}
	case e.PaymentFailed != nil:
		return map[string]interface{}{
			"user_id":    e.PaymentFailed.UserID.String(),
			"payment_id": e.PaymentFailed.PaymentID.String(),
			"reason":     e.PaymentFailed.Reason,
		}
	default:
		return nil
	}
}
