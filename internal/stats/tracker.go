// Package stats tracks which counter buckets changed since the last
// flush and which failed to flush. It knows nothing about counter
// semantics; it exists so the periodic flusher can discover and retry
// work without scanning the whole counter keyspace.
package stats

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tollgate/internal/backenderrors"
)

const (
	changedBucketsKey       = "stats:changed_keys"
	changedBucketsSeqKey    = "stats:changed_keys:seq"
	failedKey               = "stats:failed"
	failedAtLeastOnceKey    = "stats:failed_at_least_once"
	changedBucketKeysPrefix = "stats:changed_keys:"
)

// BucketFor returns the label of the flush bucket containing at, aligned
// to the configured bucket interval.
func BucketFor(at time.Time, interval time.Duration) string {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return at.UTC().Truncate(interval).Format("20060102150405")
}

type Tracker struct {
	client    *redis.Client
	opTimeout time.Duration
}

func NewTracker(client *redis.Client, opTimeout time.Duration) *Tracker {
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &Tracker{client: client, opTimeout: opTimeout}
}

func (t *Tracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.opTimeout)
}

func bucketKeysKey(bucket string) string {
	return changedBucketKeysPrefix + bucket
}

// MarkDirty records that subkey changed inside bucket. Idempotent:
// re-adding an existing pair is a no-op and insertion order of buckets
// is kept from first sight.
func (t *Tracker) MarkDirty(ctx context.Context, bucket, subkey string) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	seq, err := t.client.Incr(ctx, changedBucketsSeqKey).Result()
	if err != nil {
		return backenderrors.StorageUnavailable(err)
	}

	pipe := t.client.TxPipeline()
	pipe.ZAddNX(ctx, changedBucketsKey, redis.Z{Score: float64(seq), Member: bucket})
	pipe.SAdd(ctx, bucketKeysKey(bucket), subkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return backenderrors.StorageUnavailable(err)
	}
	return nil
}

// PendingBuckets lists dirty buckets awaiting flush, oldest first.
func (t *Tracker) PendingBuckets(ctx context.Context) ([]string, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	buckets, err := t.client.ZRange(ctx, changedBucketsKey, 0, -1).Result()
	if err != nil {
		return nil, backenderrors.StorageUnavailable(err)
	}
	return buckets, nil
}

func (t *Tracker) PendingBucketsSize(ctx context.Context) (int64, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	size, err := t.client.ZCard(ctx, changedBucketsKey).Result()
	if err != nil {
		return 0, backenderrors.StorageUnavailable(err)
	}
	return size, nil
}

// PendingKeysByBucket maps each pending bucket to its count of distinct
// changed sub-keys, used to size flush batches.
func (t *Tracker) PendingKeysByBucket(ctx context.Context) (map[string]int64, error) {
	buckets, err := t.PendingBuckets(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	out := make(map[string]int64, len(buckets))
	for _, bucket := range buckets {
		count, err := t.client.SCard(ctx, bucketKeysKey(bucket)).Result()
		if err != nil {
			return nil, backenderrors.StorageUnavailable(err)
		}
		out[bucket] = count
	}
	return out, nil
}

// ChangedKeys lists the sub-keys recorded for one bucket.
func (t *Tracker) ChangedKeys(ctx context.Context, bucket string) ([]string, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	keys, err := t.client.SMembers(ctx, bucketKeysKey(bucket)).Result()
	if err != nil {
		return nil, backenderrors.StorageUnavailable(err)
	}
	return keys, nil
}

// Clear drops a bucket and its sub-key set after a successful flush.
func (t *Tracker) Clear(ctx context.Context, bucket string) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	pipe := t.client.TxPipeline()
	pipe.ZRem(ctx, changedBucketsKey, bucket)
	pipe.Del(ctx, bucketKeysKey(bucket))
	if _, err := pipe.Exec(ctx); err != nil {
		return backenderrors.StorageUnavailable(err)
	}
	return nil
}

// MarkFailed records a failed flush attempt: the bucket joins the
// currently-failing set and, permanently, the at-least-once set.
func (t *Tracker) MarkFailed(ctx context.Context, bucket string) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	pipe := t.client.TxPipeline()
	pipe.SAdd(ctx, failedKey, bucket)
	pipe.SAdd(ctx, failedAtLeastOnceKey, bucket)
	if _, err := pipe.Exec(ctx); err != nil {
		return backenderrors.StorageUnavailable(err)
	}
	return nil
}

// ClearFailed removes a bucket from the currently-failing set after a
// successful retry. The at-least-once record is untouched.
func (t *Tracker) ClearFailed(ctx context.Context, bucket string) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	if err := t.client.SRem(ctx, failedKey, bucket).Err(); err != nil {
		return backenderrors.StorageUnavailable(err)
	}
	return nil
}

func (t *Tracker) FailedBuckets(ctx context.Context) ([]string, error) {
	return t.members(ctx, failedKey)
}

// FailedBucketsAtLeastOnce is the append-only audit record; it only
// shrinks through ResetFailedAtLeastOnce.
func (t *Tracker) FailedBucketsAtLeastOnce(ctx context.Context) ([]string, error) {
	return t.members(ctx, failedAtLeastOnceKey)
}

// ResetFailedAtLeastOnce is the explicit administrative reset.
func (t *Tracker) ResetFailedAtLeastOnce(ctx context.Context) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	if err := t.client.Del(ctx, failedAtLeastOnceKey).Err(); err != nil {
		return backenderrors.StorageUnavailable(err)
	}
	return nil
}

func (t *Tracker) members(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	members, err := t.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, backenderrors.StorageUnavailable(fmt.Errorf("smembers %s: %w", key, err))
	}
	return members, nil
}
