package workqueue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/akiraliebert/event-driven-notification-system/internal/domainevent"
)

func readyKey(p domainevent.Priority) string   { return "workqueue:ready:" + string(p) }
func delayedKey(p domainevent.Priority) string { return "workqueue:delayed:" + string(p) }

// RedisQueue implements Queue on a Redis sorted set per priority, adapted
// from the pack's notification delivery queue (ported from
// irfndi-meets-match's internal/notification.RedisQueue): ready items are
// scored by enqueue time for FIFO order within a priority, delayed items
// are scored by their eta so PromoteDelayed can pull everything due with
// ZRANGEBYSCORE.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue wraps an existing Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, item Item, eta time.Time) error {
	member := item.NotificationID.String()
	if !eta.After(time.Now()) {
		err := q.client.ZAdd(ctx, readyKey(item.Priority), redis.Z{
			Score:  float64(time.Now().UnixNano()),
			Member: member,
		}).Err()
		if err != nil {
			return fmt.Errorf("enqueueing %s to ready set: %w", member, err)
		}
		return nil
	}

	err := q.client.ZAdd(ctx, delayedKey(item.Priority), redis.Z{
		Score:  float64(eta.Unix()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueueing %s to delayed set: %w", member, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, priority domainevent.Priority, limit int) ([]Item, error) {
	key := readyKey(priority)

	results, err := q.client.ZRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("dequeuing priority %s: %w", priority, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	members := make([]string, 0, len(results))
	for _, z := range results {
		members = append(members, fmt.Sprint(z.Member))
	}
	if err := q.client.ZRem(ctx, key, toAny(members)...).Err(); err != nil {
		return nil, fmt.Errorf("removing dequeued items from priority %s: %w", priority, err)
	}

	items := make([]Item, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		items = append(items, Item{NotificationID: id, Priority: priority})
	}
	return items, nil
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (q *RedisQueue) PromoteDelayed(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for _, p := range Priorities() {
		n, err := q.promoteOne(ctx, p, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (q *RedisQueue) promoteOne(ctx context.Context, priority domainevent.Priority, now time.Time) (int, error) {
	dKey := delayedKey(priority)
	due, err := q.client.ZRangeByScore(ctx, dKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: 500,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scanning delayed set %s: %w", priority, err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	pipe := q.client.Pipeline()
	rKey := readyKey(priority)
	for _, member := range due {
		pipe.ZRem(ctx, dKey, member)
		pipe.ZAdd(ctx, rKey, redis.Z{Score: float64(time.Now().UnixNano()), Member: member})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("promoting delayed set %s: %w", priority, err)
	}
	return len(due), nil
}

func (q *RedisQueue) Remove(ctx context.Context, item Item) error {
	member := item.NotificationID.String()
	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, readyKey(item.Priority), member)
	pipe.ZRem(ctx, delayedKey(item.Priority), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing %s: %w", member, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
