// Package eventprocessor implements C7: turning one durable domain event
// into N per-channel notification records, idempotently, with template
// rendering, preference filtering, priority assignment, and quiet-hours
// deferral.
package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
	"github.com/akiraliebert/event-driven-notification-system/internal/quiethours"
	"github.com/akiraliebert/event-driven-notification-system/internal/rendertemplate"
	"github.com/akiraliebert/event-driven-notification-system/internal/statuspublisher"
	"github.com/akiraliebert/event-driven-notification-system/internal/store"
	"github.com/akiraliebert/event-driven-notification-system/internal/workqueue"
)

// Processor is C7. It is constructed once per process with its
// collaborators injected explicitly — no package-level state — per the
// design note in spec.md §9 on replacing global framework singletons.
type Processor struct {
	store    store.Store
	queue    workqueue.Queue
	renderer *rendertemplate.Renderer
	status   *statuspublisher.Publisher
	log      logging.Logger
}

// New builds a Processor from its collaborators.
func New(st store.Store, q workqueue.Queue, renderer *rendertemplate.Renderer, status *statuspublisher.Publisher, log logging.Logger) *Processor {
	return &Processor{store: st, queue: q, renderer: renderer, status: status, log: log}
}

// classificationError marks a failure spec.md §4.7 step 1 calls
// non-retryable: the processor logs and commits past the record instead of
// leaving it for redelivery.
type classificationError struct {
	err error
}

func (c classificationError) Error() string { return c.err.Error() }
func (c classificationError) Unwrap() error { return c.err }

// IsNonRetryable reports whether err represents a malformed record or
// unknown/invalid event that the caller should commit past rather than
// redeliver.
func IsNonRetryable(err error) bool {
	_, ok := err.(classificationError)
	return ok
}

// Process handles one raw log record end to end: parse & validate,
// idempotency check, preference read, template read, render, quiet-hours,
// persist N notifications in one transaction, enqueue N work items, publish
// initial statuses (spec.md §4.7).
func (p *Processor) Process(ctx context.Context, raw []byte) error {
	event, err := domainevent.Parse(raw)
	if err != nil {
		p.log.Warn("event record rejected, committing past it", "error", err)
		return classificationError{err}
	}

	userID := event.UserID()
	priority := domainevent.PriorityFor(event.Metadata.EventType)
	payload := event.PayloadMap()

	logCtx := []interface{}{
		"event_id", event.Metadata.EventID,
		"event_type", event.Metadata.EventType,
		"user_id", userID,
	}

	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	existingChannels, err := tx.GetChannelsForEvent(ctx, event.Metadata.EventID)
	if err != nil {
		return fmt.Errorf("loading existing channels: %w", err)
	}
	if len(existingChannels) > 0 {
		p.log.Info("partial reprocessing, some channels already handled", append(logCtx, "existing_channels", existingChannels)...)
	}

	preferences, err := tx.GetUserPreference(ctx, userID)
	if err != nil {
		if err == store.ErrNotFound {
			preferences, err = tx.CreateDefaultUserPreference(ctx, userID)
			if err != nil {
				return fmt.Errorf("creating default preferences: %w", err)
			}
			p.log.Info("created default preferences", logCtx...)
		} else {
			return fmt.Errorf("loading preferences: %w", err)
		}
	}

	templates, err := tx.GetActiveTemplatesForEvent(ctx, event.Metadata.EventType)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	type created struct {
		notification store.Notification
		eta          time.Time
	}
	var createdNotifications []created

	for _, tpl := range templates {
		if existingChannels[tpl.Channel] {
			continue
		}
		if !preferences.Channels[tpl.Channel] {
			p.log.Info("channel disabled by user preference", append(logCtx, "channel", tpl.Channel)...)
			continue
		}

		content, err := p.renderContent(tpl, payload)
		if err != nil {
			p.log.Warn("template rendering failed, skipping channel", append(logCtx, "channel", tpl.Channel, "error", err)...)
			continue
		}

		eta, deferred, err := quiethours.ComputeETA(preferences.QuietHoursStart, preferences.QuietHoursEnd, preferences.Timezone, time.Now().UTC())
		if err != nil {
			p.log.Warn("quiet hours calculation failed, delivering immediately", append(logCtx, "channel", tpl.Channel, "error", err)...)
			eta, deferred = time.Time{}, false
		}
		if !deferred {
			eta = time.Now()
		}

		n := store.Notification{
			ID:              uuid.New(),
			UserID:          userID,
			Channel:         tpl.Channel,
			Priority:        priority,
			Status:          store.StatusPending,
			SourceEventID:   event.Metadata.EventID,
			SourceEventType: event.Metadata.EventType,
			Content:         content,
			MaxAttempts:     3,
			CreatedAt:       time.Now().UTC(),
		}

		if err := tx.CreateNotification(ctx, n); err != nil {
			return fmt.Errorf("creating notification for channel %s: %w", tpl.Channel, err)
		}
		createdNotifications = append(createdNotifications, created{notification: n, eta: eta})

		if deferred {
			p.log.Info("deferred delivery due to quiet hours", append(logCtx, "channel", tpl.Channel, "eta", eta)...)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true

	// Work-queue enqueue and status publish happen after commit and their
	// failures are only logged. A failed enqueue leaves the notification
	// pending with no work item, the open question spec.md §9 flags; the
	// sweeper backstop recovers them.
	for _, c := range createdNotifications {
		item := workqueue.Item{NotificationID: c.notification.ID, Priority: c.notification.Priority}
		if err := p.queue.Enqueue(ctx, item, c.eta); err != nil {
			p.log.Error("failed to enqueue work item, relying on sweeper backstop",
				append(logCtx, "notification_id", c.notification.ID, "error", err)...)
		}

		if err := p.status.Publish(ctx, statuspublisher.StatusRecord{
			NotificationID: c.notification.ID,
			Status:         string(c.notification.Status),
			EventType:      c.notification.SourceEventType,
			Channel:        c.notification.Channel,
			UserID:         c.notification.UserID,
		}); err != nil {
			p.log.Error("failed to publish initial status", append(logCtx, "notification_id", c.notification.ID, "error", err)...)
		}
	}

	p.log.Info("event processed", append(logCtx, "notifications_created", len(createdNotifications))...)
	return nil
}

func (p *Processor) renderContent(tpl store.Template, payload map[string]interface{}) (map[string]string, error) {
	body, err := p.renderer.Render(string(tpl.Channel)+".body", tpl.BodyTemplate, payload)
	if err != nil {
		return nil, fmt.Errorf("rendering body: %w", err)
	}
	content := map[string]string{"body": body}

	if tpl.SubjectTemplate != nil && *tpl.SubjectTemplate != "" {
		subject, err := p.renderer.Render(string(tpl.Channel)+".subject", *tpl.SubjectTemplate, payload)
		if err != nil {
			return nil, fmt.Errorf("rendering subject: %w", err)
		}
		content["subject"] = subject
	}
	return content, nil
}
