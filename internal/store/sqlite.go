package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
)

//go:embed migrations_sqlite/*.sql
var sqliteMigrationFiles embed.FS

// SQLiteStore implements Store on modernc.org/sqlite, the pure-Go driver
// used so tests run without a CGO toolchain or an external Postgres
// instance. Schema and query text differ from PostgresStore only in
// placeholder syntax and the absence of JSONB/UUID column types.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) a sqlite database at path and
// applies the sqlite-flavored migration set. Use ":memory:" for tests that
// need no persistence across the test's lifetime.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single connection avoids "database is locked" errors under the
	// sqlite driver's file-level locking when tests run concurrently
	// against the same in-memory handle.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(sqliteMigrationFiles)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("setting sqlite migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations_sqlite"); err != nil {
		return nil, fmt.Errorf("applying sqlite migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// SeedTemplate inserts tpl, with its own IsActive value, directly, bypassing any
// application-layer write path. Exists for test and BDD-scenario setup,
// where a template row must exist before a processor run can pick it up.
func (s *SQLiteStore) SeedTemplate(ctx context.Context, tpl Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_templates (id, event_type, channel, subject_template, body_template, is_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tpl.ID.String(), string(tpl.EventType), string(tpl.Channel), tpl.SubjectTemplate, tpl.BodyTemplate, tpl.IsActive)
	if err != nil {
		return fmt.Errorf("seeding template: %w", err)
	}
	return nil
}

func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id uuid.UUID) (Notification, error) {
	return scanNotification(s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id.String()))
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) error {
	attemptsExpr := "attempts"
	if upd.IncrementAttempts {
		attemptsExpr = "attempts + 1"
	}
	query := fmt.Sprintf(`
		UPDATE notifications
		SET status = ?,
		    failed_reason = COALESCE(?, failed_reason),
		    delivered_at = COALESCE(?, delivered_at),
		    next_retry_at = COALESCE(?, next_retry_at),
		    attempts = %s
		WHERE id = ?`, attemptsExpr)

	res, err := s.db.ExecContext(ctx, query, string(upd.Status), upd.FailedReason, upd.DeliveredAt, upd.NextRetryAt, id.String())
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

func (s *SQLiteStore) PendingRetries(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE status IN ('pending', 'failed')
		  AND attempts < max_attempts
		  AND ((next_retry_at IS NOT NULL AND next_retry_at <= ?)
		       OR (next_retry_at IS NULL AND created_at <= ?))
		ORDER BY created_at ASC
		LIMIT ?`, now, now, limit)
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

// sqliteTx implements Tx for SQLiteStore, mirroring pgTx's semantics.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

func (t *sqliteTx) CreateNotification(ctx context.Context, n Notification) error {
	content, err := json.Marshal(n.Content)
	if err != nil {
		return fmt.Errorf("encoding content: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO notifications
			(id, user_id, channel, priority, status, source_event_id, source_event_type,
			 content, attempts, max_attempts, next_retry_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.UserID.String(), string(n.Channel), string(n.Priority), string(n.Status),
		n.SourceEventID.String(), string(n.SourceEventType), content, n.Attempts, n.MaxAttempts,
		n.NextRetryAt, n.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("creating notification: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetChannelsForEvent(ctx context.Context, sourceEventID uuid.UUID) (map[config.Channel]bool, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT channel FROM notifications WHERE source_event_id = ?`, sourceEventID.String())
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

func (t *sqliteTx) GetUserPreference(ctx context.Context, userID uuid.UUID) (UserPreference, error) {
	var channelsJSON string
	var quietStart, quietEnd sql.NullString
	var timezone string

	row := t.tx.QueryRowContext(ctx,
		`SELECT channels, quiet_hours_start, quiet_hours_end, timezone FROM user_preferences WHERE user_id = ?`,
		userID.String())
	if err := row.Scan(&channelsJSON, &quietStart, &quietEnd, &timezone); err != nil {
		if err == sql.ErrNoRows {
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

func (t *sqliteTx) CreateDefaultUserPreference(ctx context.Context, userID uuid.UUID) (UserPreference, error) {
	channels := []string{string(config.ChannelEmail), string(config.ChannelSMS), string(config.ChannelPush)}
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return UserPreference{}, err
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, channels, timezone) VALUES (?, ?, ?)`,
		userID.String(), string(channelsJSON), "UTC")
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

func (t *sqliteTx) GetActiveTemplatesForEvent(ctx context.Context, eventType domainevent.Type) ([]Template, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, event_type, channel, subject_template, body_template, is_active, created_at, updated_at
		FROM notification_templates
		WHERE event_type = ? AND is_active = 1
		ORDER BY channel`, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("querying templates for %s: %w", eventType, err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var tpl Template
		var id, eventTypeStr, channelStr string
		var subject sql.NullString
		if err := rows.Scan(&id, &eventTypeStr, &channelStr, &subject, &tpl.BodyTemplate,
			&tpl.IsActive, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing template id %s: %w", id, err)
		}
		tpl.ID = parsed
		tpl.EventType = domainevent.Type(eventTypeStr)
		tpl.Channel = config.Channel(channelStr)
		if subject.Valid {
			tpl.SubjectTemplate = &subject.String
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}
