package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
	"github.com/akiraliebert/event-driven-notification-system/internal/quiethours"
)

// PostgresStore implements Store on a *sql.DB opened with lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// Open connects to cfg.DSN and applies the configured pool limits, the same
// shape as the teacher's DatabaseService.Connect.
func Open(cfg config.StoreConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if err := Migrate(db, "postgres"); err != nil {
		return nil, fmt.Errorf("migrating postgres schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (Notification, error) {
	return scanNotification(s.db.QueryRowContext(ctx, selectNotificationByID, id))
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) error {
	attemptsExpr := "attempts"
	if upd.IncrementAttempts {
		attemptsExpr = "attempts + 1"
	}
	query := fmt.Sprintf(`
		UPDATE notifications
		SET status = $1,
		    failed_reason = COALESCE($2, failed_reason),
		    delivered_at = COALESCE($3, delivered_at),
		    next_retry_at = COALESCE($4, next_retry_at),
		    attempts = %s
		WHERE id = $5`, attemptsExpr)

	res, err := s.db.ExecContext(ctx, query, upd.Status, upd.FailedReason, upd.DeliveredAt, upd.NextRetryAt, id)
	if err != nil {
		return fmt.Errorf("updating notification %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) PendingRetries(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, selectPendingRetries, now, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending retries: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanNotificationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// pgTx implements Tx over a single *sql.Tx, used for C7's one-transaction
// fan-out: N notification creates, a preference read-or-create, and a
// template read all share this unit of work.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Commit() error   { return t.tx.Commit() }
func (t *pgTx) Rollback() error { return t.tx.Rollback() }

func (t *pgTx) CreateNotification(ctx context.Context, n Notification) error {
	content, err := json.Marshal(n.Content)
	if err != nil {
		return fmt.Errorf("encoding content: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, insertNotification,
		n.ID, n.UserID, string(n.Channel), string(n.Priority), string(n.Status),
		n.SourceEventID, string(n.SourceEventType), content, n.Attempts, n.MaxAttempts,
		n.NextRetryAt, n.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (t *pgTx) GetChannelsForEvent(ctx context.Context, sourceEventID uuid.UUID) (map[config.Channel]bool, error) {
	rows, err := t.tx.QueryContext(ctx, selectChannelsForEvent, sourceEventID)
	if err != nil {
		return nil, fmt.Errorf("querying channels for event %s: %w", sourceEventID, err)
	}
	defer rows.Close()

	out := make(map[config.Channel]bool)
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, err
		}
		out[config.Channel(ch)] = true
	}
	return out, rows.Err()
}

func (t *pgTx) GetUserPreference(ctx context.Context, userID uuid.UUID) (UserPreference, error) {
	var (
		channelsJSON                   string
		quietStart, quietEnd           sql.NullString
		timezone                       string
	)
	row := t.tx.QueryRowContext(ctx, selectUserPreference, userID)
	if err := row.Scan(&channelsJSON, &quietStart, &quietEnd, &timezone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserPreference{}, ErrNotFound
		}
		return UserPreference{}, fmt.Errorf("loading preferences for %s: %w", userID, err)
	}

	var channelList []string
	if err := json.Unmarshal([]byte(channelsJSON), &channelList); err != nil {
		return UserPreference{}, fmt.Errorf("decoding channels for %s: %w", userID, err)
	}
	channels := make(map[config.Channel]bool, len(channelList))
	for _, c := range channelList {
		channels[config.Channel(c)] = true
	}

	pref := UserPreference{UserID: userID, Channels: channels, Timezone: timezone}
	if start, err := parseClockTime(quietStart); err == nil {
		pref.QuietHoursStart = start
	}
	if end, err := parseClockTime(quietEnd); err == nil {
		pref.QuietHoursEnd = end
	}
	return pref, nil
}

func parseClockTime(ns sql.NullString) (*quiethours.ClockTime, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var h, m int
	if _, err := fmt.Sscanf(ns.String, "%d:%d", &h, &m); err != nil {
		return nil, err
	}
	return &quiethours.ClockTime{Hour: h, Minute: m}, nil
}

func (t *pgTx) CreateDefaultUserPreference(ctx context.Context, userID uuid.UUID) (UserPreference, error) {
	channels := []string{string(config.ChannelEmail), string(config.ChannelSMS), string(config.ChannelPush)}
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return UserPreference{}, err
	}

	_, err = t.tx.ExecContext(ctx, insertDefaultUserPreference, userID, string(channelsJSON), "UTC")
	if err != nil {
		return UserPreference{}, fmt.Errorf("creating default preferences for %s: %w", userID, err)
	}

	return UserPreference{
		UserID: userID,
		Channels: map[config.Channel]bool{
			config.ChannelEmail: true,
			config.ChannelSMS:   true,
			config.ChannelPush:  true,
		},
		Timezone: "UTC",
	}, nil
}

func (t *pgTx) GetActiveTemplatesForEvent(ctx context.Context, eventType domainevent.Type) ([]Template, error) {
	rows, err := t.tx.QueryContext(ctx, selectActiveTemplatesForEvent, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("querying templates for %s: %w", eventType, err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var tpl Template
		var eventTypeStr, channelStr string
		var subject sql.NullString
		if err := rows.Scan(&tpl.ID, &eventTypeStr, &channelStr, &subject, &tpl.BodyTemplate,
			&tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, err
		}
		tpl.EventType = domainevent.Type(eventTypeStr)
		tpl.Channel = config.Channel(channelStr)
		if subject.Valid {
			tpl.SubjectTemplate = &subject.String
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func scanNotification(row *sql.Row) (Notification, error) {
	var n Notification
	var channel, priority, status, sourceEventType string
	var content []byte
	var failedReason sql.NullString
	var nextRetryAt, deliveredAt sql.NullTime

	err := row.Scan(&n.ID, &n.UserID, &channel, &priority, &status, &n.SourceEventID, &sourceEventType,
		&content, &n.Attempts, &n.MaxAttempts, &nextRetryAt, &n.CreatedAt, &deliveredAt, &failedReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, fmt.Errorf("scanning notification: %w", err)
	}
	return finishNotification(n, channel, priority, status, sourceEventType, content, nextRetryAt, deliveredAt, failedReason)
}

func scanNotificationRow(rows *sql.Rows) (Notification, error) {
	var n Notification
	var channel, priority, status, sourceEventType string
	var content []byte
	var failedReason sql.NullString
	var nextRetryAt, deliveredAt sql.NullTime

	err := rows.Scan(&n.ID, &n.UserID, &channel, &priority, &status, &n.SourceEventID, &sourceEventType,
		&content, &n.Attempts, &n.MaxAttempts, &nextRetryAt, &n.CreatedAt, &deliveredAt, &failedReason)
	if err != nil {
		return Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}
	return finishNotification(n, channel, priority, status, sourceEventType, content, nextRetryAt, deliveredAt, failedReason)
}

func finishNotification(n Notification, channel, priority, status, sourceEventType string, content []byte,
	nextRetryAt, deliveredAt sql.NullTime, failedReason sql.NullString) (Notification, error) {
	n.Channel = config.Channel(channel)
	n.Priority = domainevent.Priority(priority)
	n.Status = Status(status)
	n.SourceEventType = domainevent.Type(sourceEventType)

	if len(content) > 0 {
		if err := json.Unmarshal(content, &n.Content); err != nil {
			return Notification{}, fmt.Errorf("decoding content: %w", err)
		}
	}
	if nextRetryAt.Valid {
		n.NextRetryAt = &nextRetryAt.Time
	}
	if deliveredAt.Valid {
		n.DeliveredAt = &deliveredAt.Time
	}
	if failedReason.Valid {
		n.FailedReason = &failedReason.String
	}
	return n, nil
}

const notificationColumns = `id, user_id, channel, priority, status, source_event_id, source_event_type,
	content, attempts, max_attempts, next_retry_at, created_at, delivered_at, failed_reason`

var selectNotificationByID = strings.ReplaceAll(`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, "\n\t", " ")

// selectPendingRetries backs the sweeper's backstop, its only caller
// (spec.md §9); the delivery engine schedules retries through the work
// queue's delayed set instead. A row qualifies either
// because its scheduled retry has come due, or because it was created
// before $1 with no retry scheduled at all, the state a notification is
// left in when the work-queue enqueue fails right after commit.
var selectPendingRetries = strings.ReplaceAll(`
	SELECT `+notificationColumns+`
	FROM notifications
	WHERE status IN ('pending', 'failed')
	  AND attempts < max_attempts
	  AND ((next_retry_at IS NOT NULL AND next_retry_at <= $1)
	       OR (next_retry_at IS NULL AND created_at <= $1))
	ORDER BY created_at ASC
	LIMIT $2`, "\n\t", " ")

const insertNotification = `
	INSERT INTO notifications
		(id, user_id, channel, priority, status, source_event_id, source_event_type,
		 content, attempts, max_attempts, next_retry_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const selectChannelsForEvent = `SELECT channel FROM notifications WHERE source_event_id = $1`

const selectUserPreference = `
	SELECT channels, quiet_hours_start, quiet_hours_end, timezone
	FROM user_preferences WHERE user_id = $1`

const insertDefaultUserPreference = `
	INSERT INTO user_preferences (user_id, channels, timezone)
	VALUES ($1, $2, $3)`

const selectActiveTemplatesForEvent = `
	SELECT id, event_type, channel, subject_template, body_template, is_active, created_at, updated_at
	FROM notification_templates
	WHERE event_type = $1 AND is_active = true
	ORDER BY channel`
