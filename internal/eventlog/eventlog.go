// Package eventlog is the durable, partitioned log the event gateway writes
// domain events to and the event processor consumes them from. The
// production implementation is Kafka (github.com/IBM/sarama); an in-memory
// implementation backs tests and local development, grounded on the
// teacher's bounded-FIFO durable queue (modules/eventbus/durable_memory.go).
package eventlog

import "context"

// Record is a single log entry: a key (used for partition assignment so all
// records sharing a key are delivered to the same consumer in order) and the
// raw event bytes.
type Record struct {
	Key   string
	Value []byte
}

// Handler processes one record. A non-nil error leaves the record
// unacknowledged so it will be redelivered; callers distinguish retryable
// delivery failures from poison-pill records themselves (domainevent.Parse
// classification) before deciding whether to return an error here.
type Handler func(ctx context.Context, rec Record) error

// Log is the durable event log contract. Append is called by the ingestion
// surface; Consume is called once per process by the event processor and
// blocks until ctx is cancelled.
type Log interface {
	Append(ctx context.Context, topic string, rec Record) error
	Consume(ctx context.Context, topic, consumerGroup string, handler Handler) error
	Close() error
}
