// Package queue is a durable redis-list queue with at-least-once
// delivery. Enqueue is a single LPUSH; consumers move entries onto a
// processing list and acknowledge after the work is applied, so a
// crashed worker's entries can be recovered and redelivered.
package queue

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tollgate/internal/backenderrors"
)

type Queue struct {
	client    *redis.Client
	key       string
	procKey   string
	opTimeout time.Duration
}

func New(client *redis.Client, name string, opTimeout time.Duration) *Queue {
	if name == "" {
		name = "report"
	}
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &Queue{
		client:    client,
		key:       "queue:" + name,
		procKey:   "queue:" + name + ":processing",
		opTimeout: opTimeout,
	}
}

func (q *Queue) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.opTimeout)
}

// Delivery is one dequeued entry. It stays on the processing list until
// Ack removes it; payloads must be unique (callers embed a job id).
type Delivery struct {
	Payload []byte
}

// Enqueue durably hands off a payload. Synchronous and fast; returns
// once redis acknowledged the push.
func (q *Queue) Enqueue(ctx context.Context, payload []byte) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return backenderrors.StorageUnavailable(err)
	}
	return nil
}

// Dequeue moves the oldest entry onto the processing list and returns
// it. Returns (nil, nil) when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Delivery, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	raw, err := q.client.LMove(ctx, q.key, q.procKey, "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, backenderrors.StorageUnavailable(err)
	}
	return &Delivery{Payload: []byte(raw)}, nil
}

// Ack removes a processed entry from the processing list.
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil {
		return nil
	}
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	if err := q.client.LRem(ctx, q.procKey, 1, string(d.Payload)).Err(); err != nil {
		return backenderrors.StorageUnavailable(err)
	}
	return nil
}

// Len reports the number of waiting entries.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, backenderrors.StorageUnavailable(err)
	}
	return n, nil
}

// RecoverProcessing requeues every unacknowledged entry, preserving
// oldest-first order. Called on startup to redeliver work a crashed
// consumer left behind; redelivery is what makes the queue
// at-least-once rather than exactly-once.
func (q *Queue) RecoverProcessing(ctx context.Context) (int64, error) {
	var moved int64
	for {
		opCtx, cancel := q.withTimeout(ctx)
		_, err := q.client.LMove(opCtx, q.procKey, q.key, "LEFT", "RIGHT").Result()
		cancel()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, backenderrors.StorageUnavailable(err)
		}
		moved++
	}
}
