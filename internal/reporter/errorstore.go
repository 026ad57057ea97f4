package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/smallbiznis/tollgate/internal/backenderrors"
)

// TransactionError is one rejected transaction, kept per service so
// integrators can inspect why their reports are not being counted.
type TransactionError struct {
	Code      backenderrors.Code `json:"code"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
}

// ErrorStore keeps a capped, newest-first collection of transaction
// errors per service. A full collection drops its oldest entries.
type ErrorStore struct {
	client    *redis.Client
	limit     int64
	opTimeout time.Duration
}

func NewErrorStore(client *redis.Client, limit int64, opTimeout time.Duration) *ErrorStore {
	if limit <= 0 {
		limit = 1000
	}
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &ErrorStore{client: client, limit: limit, opTimeout: opTimeout}
}

func errorListKey(serviceID string) string {
	return fmt.Sprintf("errors/service_id:%s", serviceID)
}

func (s *ErrorStore) Record(ctx context.Context, serviceID string, e TransactionError) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := errorListKey(serviceID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, s.limit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return backenderrors.StorageUnavailable(err)
	}
	return nil
}

// List returns up to n errors, newest first.
func (s *ErrorStore) List(ctx context.Context, serviceID string, n int64) ([]TransactionError, error) {
	if n <= 0 || n > s.limit {
		n = s.limit
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	raw, err := s.client.LRange(ctx, errorListKey(serviceID), 0, n-1).Result()
	if err != nil {
		return nil, backenderrors.StorageUnavailable(err)
	}
	out := make([]TransactionError, 0, len(raw))
	for _, item := range raw {
		var e TransactionError
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *ErrorStore) Count(ctx context.Context, serviceID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	n, err := s.client.LLen(ctx, errorListKey(serviceID)).Result()
	if err != nil {
		return 0, backenderrors.StorageUnavailable(err)
	}
	return n, nil
}

func (s *ErrorStore) Clear(ctx context.Context, serviceID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, errorListKey(serviceID)).Err(); err != nil {
		return backenderrors.StorageUnavailable(err)
	}
	return nil
}
