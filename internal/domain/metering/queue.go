package metering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis keys for the cost verification queue.
const (
	QueueKey    = "billing:cost_verification"
	WakeChannel = "billing:verify_wake"
)

// VerificationQueue hands deferred-cost work items to the out-of-band
// verification consumer. Consumption must be idempotent: the same task may
// be delivered more than once.
type VerificationQueue interface {
	Enqueue(ctx context.Context, task VerificationTask) error
	Dequeue(ctx context.Context) (*VerificationTask, bool, error)
}

// RedisQueue implements VerificationQueue on a Redis list, with a pub/sub
// wake-up so the worker picks tasks up without waiting for its poll tick.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task VerificationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal verification task: %w", err)
	}

	if err := q.client.RPush(ctx, QueueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue verification task: %w", err)
	}

	// Wake-up is best-effort; the worker's poll ticker is the backstop.
	q.client.Publish(ctx, WakeChannel, task.ReservationID.String())

	return nil
}

// Dequeue pops one task. The second return is false when the queue is empty.
func (q *RedisQueue) Dequeue(ctx context.Context) (*VerificationTask, bool, error) {
	payload, err := q.client.LPop(ctx, QueueKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("dequeue verification task: %w", err)
	}

	var task VerificationTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, false, fmt.Errorf("unmarshal verification task: %w", err)
	}

	return &task, true, nil
}
