package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "report", time.Second)
}

func TestEnqueueDequeueAck_FIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, []byte("job-1")))
	require.NoError(t, q.Enqueue(ctx, []byte("job-2")))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	d1, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, d1)
	assert.Equal(t, "job-1", string(d1.Payload))

	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-2", string(d2.Payload))

	require.NoError(t, q.Ack(ctx, d1))
	require.NoError(t, q.Ack(ctx, d2))

	empty, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRecoverProcessing_RedeliversUnacked(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, []byte("job-1")))
	require.NoError(t, q.Enqueue(ctx, []byte("job-2")))
	require.NoError(t, q.Enqueue(ctx, []byte("job-3")))

	d1, err := q.Dequeue(ctx)
	require.NoError(t, err)
	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)

	// Worker finished job-1 but died holding job-2.
	require.NoError(t, q.Ack(ctx, d1))
	_ = d2

	moved, err := q.RecoverProcessing(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	// job-2 is redelivered before the untouched job-3.
	redelivered, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, "job-2", string(redelivered.Payload))

	next, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-3", string(next.Payload))
}

func TestRecoverProcessing_PreservesOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, []byte(p)))
	}
	for i := 0; i < 3; i++ {
		_, err := q.Dequeue(ctx)
		require.NoError(t, err)
	}

	moved, err := q.RecoverProcessing(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, moved)

	var got []string
	for {
		d, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if d == nil {
			break
		}
		got = append(got, string(d.Payload))
		require.NoError(t, q.Ack(ctx, d))
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
