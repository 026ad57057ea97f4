package counter

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tollgate/internal/backenderrors"
)

// Store performs atomic counter operations against redis. Every
// operation is bounded by a per-attempt timeout; exceeding it surfaces
// as a storage_unavailable failure subject to the caller's retry policy.
type Store struct {
	client    *redis.Client
	opTimeout time.Duration
}

func NewStore(client *redis.Client, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &Store{client: client, opTimeout: opTimeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Increment atomically adds by to the counter bucket. Bounded windows
// expire one full window past their end; eternity counters persist for
// the lifetime of the application.
func (s *Store) Increment(ctx context.Context, key Key, by int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key.String(), by)
	if w := key.Window; w.Bounded() {
		margin := w.End.Sub(w.Start)
		pipe.ExpireAt(ctx, key.String(), w.End.Add(margin))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, backenderrors.StorageUnavailable(err)
	}
	return incr.Val(), nil
}

// Value reads one counter; a bucket that was never incremented reads as 0.
func (s *Store) Value(ctx context.Context, key Key) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, key.String()).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, backenderrors.StorageUnavailable(err)
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, backenderrors.StorageUnavailable(err)
	}
	return parsed, nil
}

// Values reads many counters in one round trip, preserving key order.
func (s *Store) Values(ctx context.Context, keys []Key) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	raw, err := s.client.MGet(ctx, names...).Result()
	if err != nil {
		return nil, backenderrors.StorageUnavailable(err)
	}

	values := make([]int64, len(keys))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, backenderrors.StorageUnavailable(err)
		}
		values[i] = parsed
	}
	return values, nil
}
