// Package store implements C5, the Notification/NotificationTemplate/
// UserPreference persistence layer, on raw database/sql against Postgres in
// production (github.com/lib/pq) and SQLite in tests
// (modernc.org/sqlite) — no ORM, mirroring the teacher's DatabaseService.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
	"github.com/akiraliebert/event-driven-notification-system/internal/quiethours"
)

// Status is a Notification's lifecycle state (spec.md §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Notification is the spec.md §3 Notification entity.
type Notification struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Channel         config.Channel
	Priority        domainevent.Priority
	Status          Status
	SourceEventID   uuid.UUID
	SourceEventType domainevent.Type
	Content         map[string]string
	Attempts        int
	MaxAttempts     int
	NextRetryAt     *time.Time
	CreatedAt       time.Time
	DeliveredAt     *time.Time
	FailedReason    *string
}

// Template is the spec.md §3 NotificationTemplate entity.
type Template struct {
	ID              uuid.UUID
	EventType       domainevent.Type
	Channel         config.Channel
	SubjectTemplate *string
	BodyTemplate    string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserPreference is the spec.md §3 UserPreference entity.
type UserPreference struct {
	UserID          uuid.UUID
	Channels        map[config.Channel]bool
	QuietHoursStart *quiethours.ClockTime
	QuietHoursEnd   *quiethours.ClockTime
	Timezone        string
}

// ErrDuplicate is returned by CreateNotification when (source_event_id, channel)
// already exists — the idempotency foundation spec.md §3 requires.
var ErrDuplicate = errors.New("notification already exists for event and channel")

// ErrNotFound is returned by point lookups that find nothing.
var ErrNotFound = errors.New("not found")

// StatusUpdate carries the optional fields update_status may set, per
// spec.md §4.5. IncrementAttempts adds one to attempts atomically with the
// rest of the update.
type StatusUpdate struct {
	Status            Status
	FailedReason       *string
	DeliveredAt        *time.Time
	NextRetryAt        *time.Time
	IncrementAttempts  bool
}

// Tx is a unit-of-work handed to callers that need to persist several
// notifications atomically (C7's single-transaction fan-out requirement).
type Tx interface {
	CreateNotification(ctx context.Context, n Notification) error
	GetChannelsForEvent(ctx context.Context, sourceEventID uuid.UUID) (map[config.Channel]bool, error)
	GetUserPreference(ctx context.Context, userID uuid.UUID) (UserPreference, error)
	CreateDefaultUserPreference(ctx context.Context, userID uuid.UUID) (UserPreference, error)
	GetActiveTemplatesForEvent(ctx context.Context, eventType domainevent.Type) ([]Template, error)
	Commit() error
	Rollback() error
}

// Store is the C5 contract.
type Store interface {
	// BeginTx opens a transaction-scoped Tx for the event processor's
	// fan-out write.
	BeginTx(ctx context.Context) (Tx, error)

	GetByID(ctx context.Context, id uuid.UUID) (Notification, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) error
	PendingRetries(ctx context.Context, now time.Time, limit int) ([]Notification, error)

	Close() error
}
