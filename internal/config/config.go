// Package config loads the pipeline's environment-driven configuration.
//
// Every subsystem gets its own struct populated from environment variables
// with golobby/cast doing the string-to-typed-value coercion, the same
// division of responsibility the teacher framework's env feeder uses for
// module configuration (env tag names the variable, cast converts it).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// Channel is a delivery medium. Defined here (rather than in a domain
// package) because rate limits are keyed by it in configuration.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// RateLimitConfig configures the cross-worker sliding-window limiter (C1).
type RateLimitConfig struct {
	WindowSeconds  int
	LimitPerMinute map[Channel]int
}

// LimitForChannel returns the configured per-minute limit for channel, or
// an error if the channel is not configured (a misconfiguration per spec).
func (c RateLimitConfig) LimitForChannel(ch Channel) (int, error) {
	limit, ok := c.LimitPerMinute[ch]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return limit, nil
}

// DeliveryConfig configures the delivery engine (C8).
type DeliveryConfig struct {
	ProviderTimeout       time.Duration
	RetryBackoffSeconds   []int
	RateLimitRetrySeconds int
	DefaultMaxAttempts    int
}

// BackoffFor returns the backoff duration for the given 1-based attempt
// number, clamped to the last entry of the configured schedule.
func (c DeliveryConfig) BackoffFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.RetryBackoffSeconds) {
		idx = len(c.RetryBackoffSeconds) - 1
	}
	return time.Duration(c.RetryBackoffSeconds[idx]) * time.Second
}

// EventLogConfig configures the durable domain-event log (Kafka).
type EventLogConfig struct {
	Brokers       []string
	Topic         string
	StatusTopic   string
	ConsumerGroup string
}

// StoreConfig configures the Postgres-backed notification store.
type StoreConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// WorkQueueConfig configures the Redis-backed delayed work queue.
type WorkQueueConfig struct {
	RedisAddr string
	RedisDB   int
}

// HTTPConfig configures the ingestion HTTP surface.
type HTTPConfig struct {
	Addr string
}

// MetricsConfig configures the Prometheus scrape endpoint served by the
// delivery engine process (cmd/deliveryengine).
type MetricsConfig struct {
	Addr string
}

// SweeperConfig configures the periodic pending-notification backstop.
type SweeperConfig struct {
	Schedule          string
	StalenessThreshold time.Duration
	BatchLimit        int
}

// SMTPProviderConfig configures the email channel's SMTP relay.
type SMTPProviderConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// GatewayProviderConfig configures a JSON-webhook channel provider (SMS, push).
type GatewayProviderConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// ProviderConfig configures C4's per-channel senders.
type ProviderConfig struct {
	SMTP SMTPProviderConfig
	SMS  GatewayProviderConfig
	Push GatewayProviderConfig
}

// Config is the root configuration object, constructed once at process
// startup and passed explicitly to every component — no global singleton,
// per the spec's design note on replacing global framework state with
// explicit dependency injection.
type Config struct {
	RateLimit RateLimitConfig
	Delivery  DeliveryConfig
	EventLog  EventLogConfig
	Store     StoreConfig
	WorkQueue WorkQueueConfig
	HTTP      HTTPConfig
	Metrics   MetricsConfig
	Sweeper   SweeperConfig
	Provider  ProviderConfig
}

// Load reads configuration from the process environment. It mirrors the
// env-var names spec.md §6 specifies (KAFKA_*, POSTGRES_*, REDIS_*,
// RATE_LIMIT_*, DELIVERY_*).
func Load() (Config, error) {
	var cfg Config
	var err error

	cfg.RateLimit.WindowSeconds, err = envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	if err != nil {
		return cfg, err
	}
	emailLimit, err := envIntDefault("RATE_LIMIT_EMAIL_PER_MINUTE", 100)
	if err != nil {
		return cfg, err
	}
	smsLimit, err := envIntDefault("RATE_LIMIT_SMS_PER_MINUTE", 50)
	if err != nil {
		return cfg, err
	}
	pushLimit, err := envIntDefault("RATE_LIMIT_PUSH_PER_MINUTE", 200)
	if err != nil {
		return cfg, err
	}
	cfg.RateLimit.LimitPerMinute = map[Channel]int{
		ChannelEmail: emailLimit,
		ChannelSMS:   smsLimit,
		ChannelPush:  pushLimit,
	}

	providerTimeoutSeconds, err := envIntDefault("DELIVERY_PROVIDER_TIMEOUT_SECONDS", 30)
	if err != nil {
		return cfg, err
	}
	cfg.Delivery.ProviderTimeout = time.Duration(providerTimeoutSeconds) * time.Second

	backoff, err := envIntListDefault("DELIVERY_RETRY_BACKOFF_SECONDS", []int{60, 300, 900})
	if err != nil {
		return cfg, err
	}
	cfg.Delivery.RetryBackoffSeconds = backoff
	cfg.Delivery.RateLimitRetrySeconds = 10
	cfg.Delivery.DefaultMaxAttempts = 3

	cfg.EventLog.Brokers = strings.Split(envDefault("KAFKA_BROKERS", "localhost:9092"), ",")
	cfg.EventLog.Topic = envDefault("KAFKA_EVENTS_TOPIC", "domain-events")
	cfg.EventLog.StatusTopic = envDefault("KAFKA_STATUS_TOPIC", "notification-status")
	cfg.EventLog.ConsumerGroup = envDefault("KAFKA_CONSUMER_GROUP", "notification-event-processor")

	cfg.Store.DSN = postgresDSN()
	cfg.Store.MaxOpenConns, err = envIntDefault("POSTGRES_MAX_OPEN_CONNS", 20)
	if err != nil {
		return cfg, err
	}
	cfg.Store.MaxIdleConns, err = envIntDefault("POSTGRES_MAX_IDLE_CONNS", 5)
	if err != nil {
		return cfg, err
	}
	cfg.Store.ConnMaxLifetime = 30 * time.Minute

	cfg.WorkQueue.RedisAddr = envDefault("REDIS_ADDR", "localhost:6379")
	cfg.WorkQueue.RedisDB, err = envIntDefault("REDIS_DB", 0)
	if err != nil {
		return cfg, err
	}

	cfg.HTTP.Addr = envDefault("HTTP_ADDR", ":8080")
	cfg.Metrics.Addr = envDefault("METRICS_ADDR", ":9090")

	cfg.Sweeper.Schedule = envDefault("SWEEPER_SCHEDULE", "@every 1m")
	staleMinutes, err := envIntDefault("SWEEPER_STALENESS_MINUTES", 5)
	if err != nil {
		return cfg, err
	}
	cfg.Sweeper.StalenessThreshold = time.Duration(staleMinutes) * time.Minute
	cfg.Sweeper.BatchLimit, err = envIntDefault("SWEEPER_BATCH_LIMIT", 100)
	if err != nil {
		return cfg, err
	}

	cfg.Provider.SMTP = SMTPProviderConfig{
		Host:     envDefault("SMTP_HOST", "localhost"),
		Port:     envDefault("SMTP_PORT", "587"),
		Username: envDefault("SMTP_USERNAME", ""),
		Password: envDefault("SMTP_PASSWORD", ""),
		From:     envDefault("SMTP_FROM", "notifications@example.com"),
	}

	smsTimeoutSeconds, err := envIntDefault("SMS_GATEWAY_TIMEOUT_SECONDS", 10)
	if err != nil {
		return cfg, err
	}
	cfg.Provider.SMS = GatewayProviderConfig{
		Endpoint: envDefault("SMS_GATEWAY_ENDPOINT", "http://localhost:9001/sms"),
		APIKey:   envDefault("SMS_GATEWAY_API_KEY", ""),
		Timeout:  time.Duration(smsTimeoutSeconds) * time.Second,
	}

	pushTimeoutSeconds, err := envIntDefault("PUSH_GATEWAY_TIMEOUT_SECONDS", 10)
	if err != nil {
		return cfg, err
	}
	cfg.Provider.Push = GatewayProviderConfig{
		Endpoint: envDefault("PUSH_GATEWAY_ENDPOINT", "http://localhost:9002/push"),
		APIKey:   envDefault("PUSH_GATEWAY_API_KEY", ""),
		Timeout:  time.Duration(pushTimeoutSeconds) * time.Second,
	}

	return cfg, nil
}

// postgresDSN assembles the store DSN from its component env vars
// (POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
// POSTGRES_DB, POSTGRES_SSLMODE), matching spec.md §6's "POSTGRES_* (store
// DSN components)" rather than a single opaque connection string.
// POSTGRES_DSN, if set, overrides the assembled value outright for
// deployments that already manage a full connection string.
func postgresDSN() string {
	if dsn, ok := os.LookupEnv("POSTGRES_DSN"); ok && dsn != "" {
		return dsn
	}
	host := envDefault("POSTGRES_HOST", "localhost")
	port := envDefault("POSTGRES_PORT", "5432")
	user := envDefault("POSTGRES_USER", "notifications")
	password := envDefault("POSTGRES_PASSWORD", "")
	db := envDefault("POSTGRES_DB", "notifications")
	sslmode := envDefault("POSTGRES_SSLMODE", "disable")

	userinfo := user
	if password != "" {
		userinfo = user + ":" + password
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", userinfo, host, port, db, sslmode)
}

func envDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntDefault(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := cast.ToInt(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func envIntListDefault(key string, fallback []int) ([]int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := cast.ToInt(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parsing %s entry %q as int: %w", key, p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
