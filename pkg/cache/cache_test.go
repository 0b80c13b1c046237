package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3ekko/flashguard/pkg/cache"
)

func TestMemoryCache(t *testing.T) {
	c := cache.NewMemoryCache()
	ctx := context.Background()

	// Test setting and getting a value
	err := c.SetString(ctx, "test-key", "test-value", time.Second)
	assert.NoError(t, err)

	val, err := c.GetString(ctx, "test-key")
	assert.NoError(t, err)
	assert.Equal(t, "test-value", val)

	// Test expiration
	err = c.SetString(ctx, "expiring-key", "expiring-value", 50*time.Millisecond)
	assert.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	_, err = c.GetString(ctx, "expiring-key")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	// Zero TTL never expires
	require.NoError(t, c.SetString(ctx, "forever", "v", 0))
	val, err = c.GetString(ctx, "forever")
	assert.NoError(t, err)
	assert.Equal(t, "v", val)

	_, err = c.GetString(ctx, "non-existent")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestMemoryCache_SweepsExpiredUnreadEntries(t *testing.T) {
	c := cache.NewMemoryCacheWithSweep(5 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, c.SetString(ctx, "pinned", "1", 0))
	for i := 0; i < 1000; i++ {
		require.NoError(t, c.SetString(ctx, fmt.Sprintf("txcount:0xabc:%d", i), "3", time.Millisecond))
	}
	assert.Equal(t, 1001, c.Len())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.SetString(ctx, "fresh", "2", time.Hour))

	assert.Equal(t, 2, c.Len())
	v, err := c.GetString(ctx, "pinned")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	v, err = c.GetString(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestRedisAdapter(t *testing.T) {
	db, mock := redismock.NewClientMock()
	adapter := cache.NewRedisAdapter(db)
	ctx := context.Background()

	mock.ExpectSet("key1", "value1", time.Minute).SetVal("OK")
	err := adapter.SetString(ctx, "key1", "value1", time.Minute)
	assert.NoError(t, err)

	mock.ExpectGet("key1").SetVal("value1")
	val, err := adapter.GetString(ctx, "key1")
	assert.NoError(t, err)
	assert.Equal(t, "value1", val)

	mock.ExpectGet("nonexistent").RedisNil()
	_, err = adapter.GetString(ctx, "nonexistent")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	mock.ExpectGet("broken").SetErr(errors.New("connection reset"))
	_, err = adapter.GetString(ctx, "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrNotFound)

	// Ensure all expectations were met
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error("there were unfulfilled expectations:", err)
	}
}
