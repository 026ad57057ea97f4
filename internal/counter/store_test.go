package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tollgate/internal/backenderrors"
	"github.com/smallbiznis/tollgate/internal/period"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(testInstant)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Second), mr
}

var testInstant = time.Date(2010, 5, 15, 13, 30, 0, 0, time.UTC)

func TestKeyString(t *testing.T) {
	day := For("1001", "app-1", "m1", period.Day, testInstant)
	assert.Equal(t, "stats/{service:1001}/cinstance:app-1/metric:m1/day:20100515", day.String())

	eternity := For("1001", "app-1", "m1", period.Eternity, testInstant)
	assert.Equal(t, "stats/{service:1001}/cinstance:app-1/metric:m1/eternity", eternity.String())
}

func TestForAllPeriods(t *testing.T) {
	keys := ForAllPeriods("1001", "app-1", "m1", testInstant)
	require.Len(t, keys, len(period.Kinds))

	seen := map[period.Kind]bool{}
	for _, k := range keys {
		seen[k.Window.Kind] = true
	}
	for _, kind := range period.Kinds {
		assert.True(t, seen[kind], string(kind))
	}
}

func TestIncrementAndValue(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := For("1001", "app-1", "m1", period.Day, testInstant)

	val, err := store.Value(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 0, val)

	val, err = store.Increment(ctx, key, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, val)

	val, err = store.Increment(ctx, key, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, val)

	val, err = store.Value(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 5, val)
}

func TestIncrement_Expiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	day := For("1001", "app-1", "m1", period.Day, testInstant)
	_, err := store.Increment(ctx, day, 1)
	require.NoError(t, err)
	assert.Greater(t, mr.TTL(day.String()), time.Duration(0))

	eternity := For("1001", "app-1", "m1", period.Eternity, testInstant)
	_, err = store.Increment(ctx, eternity, 1)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mr.TTL(eternity.String()))
}

func TestIncrement_ConcurrentAdditivity(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := For("1001", "app-1", "m1", period.Month, testInstant)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx, key, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	val, err := store.Value(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 40, val)
}

func TestValues_PreservesOrderAndMissingAsZero(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	day := For("1001", "app-1", "m1", period.Day, testInstant)
	month := For("1001", "app-1", "m1", period.Month, testInstant)
	year := For("1001", "app-1", "m1", period.Year, testInstant)

	_, err := store.Increment(ctx, day, 7)
	require.NoError(t, err)
	_, err = store.Increment(ctx, year, 9)
	require.NoError(t, err)

	values, err := store.Values(ctx, []Key{day, month, year})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 0, 9}, values)
}

func TestStorageUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.Value(context.Background(), For("1001", "a", "m", period.Day, testInstant))
	require.Error(t, err)
	assert.True(t, backenderrors.IsStorageUnavailable(err))
}
