package cache

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"thingdrop/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{RedisURL: "not-a-url://"})
	assert.ErrorContains(t, err, "invalid redis url")
}

func TestCachedStore_FallsBackWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	spy := NewSpyStore()
	store := NewCachedStore(spy, deadRedis(t), time.Hour)

	obj := core.NewBlob([]byte("fallback"), "txt")

	exists, err := store.Has(ctx, obj.Name())
	require.NoError(t, err, "Redis 故障不应该让请求失败")
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, obj))
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.putCount))

	exists, err = store.Has(ctx, obj.Name())
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Get(ctx, obj.Name())
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "fallback", string(data))
}

func TestCachedStore_Integration(t *testing.T) {
	client := requireRedis(t)
	ctx := context.Background()
	spy := NewSpyStore()
	cachedStore := NewCachedStore(spy, client, time.Hour)

	obj := core.NewBlob([]byte("fake data"), "png")

	// --- Step 1: Cache Miss ---
	exists, err := cachedStore.Has(ctx, obj.Name())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.hasCount), "Backend Has() should be called on miss")

	// --- Step 2: Put (Write-Through) ---
	require.NoError(t, cachedStore.Put(ctx, obj))
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.putCount), "Backend Put() should be called")

	redisVal, err := client.Exists(ctx, cachedStore.cacheKey(obj.Name())).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), redisVal, "Redis key should be set after Put")

	// --- Step 3: Cache Hit ---
	// Put 内部的预检调用了一次 Has，所以底层计数应停在 2
	exists, err = cachedStore.Has(ctx, obj.Name())
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int32(2), atomic.LoadInt32(&spy.hasCount), "Backend Has() should NOT be called on hit")

	// --- Step 4: 幂等 Put 不穿透 ---
	require.NoError(t, cachedStore.Put(ctx, obj))
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.putCount))
}
