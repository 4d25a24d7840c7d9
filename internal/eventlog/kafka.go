package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/akiraliebert/event-driven-notification-system/internal/logging"
)

// KafkaLog is the production Log backed by a Kafka cluster. Append uses a
// synchronous partitioned producer keyed by Record.Key so records for the
// same key (e.g. the same recipient user id) land on the same partition and
// are observed in order. Consume runs a sarama consumer group, retrying the
// group session on transient errors the way the pack's Kafka consumers do.
type KafkaLog struct {
	brokers  []string
	producer sarama.SyncProducer
	log      logging.Logger

	mu      sync.Mutex
	clients []sarama.ConsumerGroup
}

// NewKafkaLog dials brokers and prepares a synchronous producer. Consumer
// groups are created lazily per Consume call since each call names its own
// consumer group and topic.
func NewKafkaLog(brokers []string, log logging.Logger) (*KafkaLog, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	return &KafkaLog{brokers: brokers, producer: producer, log: log}, nil
}

// Append publishes rec to topic, keyed for partition affinity.
func (k *KafkaLog) Append(ctx context.Context, topic string, rec Record) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(rec.Key),
		Value: sarama.ByteEncoder(rec.Value),
	}
	_, _, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publishing to topic %s: %w", topic, err)
	}
	return nil
}

// Consume joins consumerGroup on topic and invokes handler for every
// message, blocking until ctx is cancelled. Session errors (rebalances,
// broker hiccups) are logged and retried rather than treated as fatal,
// matching the worker loop pattern used across the pack's Kafka consumers.
func (k *KafkaLog) Consume(ctx context.Context, topic, consumerGroup string, handler Handler) error {
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(k.brokers, consumerGroup, cfg)
	if err != nil {
		return fmt.Errorf("creating consumer group %s: %w", consumerGroup, err)
	}

	k.mu.Lock()
	k.clients = append(k.clients, group)
	k.mu.Unlock()

	go func() {
		for err := range group.Errors() {
			k.log.Warn("consumer group error", "group", consumerGroup, "topic", topic, "error", err)
		}
	}()

	consumerHandler := &consumerGroupHandler{handler: handler}
	for {
		if err := group.Consume(ctx, []string{topic}, consumerHandler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				return ctx.Err()
			}
			k.log.Warn("consumer group session ended, retrying", "group", consumerGroup, "topic", topic, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close releases the producer and any consumer groups created by Consume.
func (k *KafkaLog) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var errs []error
	for _, c := range k.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := k.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// consumerGroupHandler adapts a Handler to sarama.ConsumerGroupHandler.
// Messages are marked committed only after handler succeeds, so a crash or
// handler error redelivers the message on the next session.
type consumerGroupHandler struct {
	handler Handler
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			rec := Record{Key: string(msg.Key), Value: msg.Value}
			if err := h.handler(session.Context(), rec); err != nil {
				return fmt.Errorf("handling record at offset %d: %w", msg.Offset, err)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
