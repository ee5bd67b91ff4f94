package cache

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"thingdrop/pkg/core"
	"thingdrop/pkg/meta"
	"thingdrop/pkg/storage"
	"thingdrop/pkg/types"

	"github.com/redis/go-redis/v9"
)

// -----------------------------------------------------------------------------
// SpyStore (间谍存储)
// 用于统计底层方法被调用的次数，验证请求是否穿透了缓存
// -----------------------------------------------------------------------------
type SpyStore struct {
	mu       sync.Mutex
	hasCount int32
	putCount int32
	objects  map[string][]byte
}

func NewSpyStore() *SpyStore {
	return &SpyStore{objects: make(map[string][]byte)}
}

func (s *SpyStore) Has(ctx context.Context, name string) (bool, error) {
	atomic.AddInt32(&s.hasCount, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[name]
	return ok, nil
}

func (s *SpyStore) Put(ctx context.Context, obj core.Object) error {
	atomic.AddInt32(&s.putCount, 1)
	rc, err := obj.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.Name()] = data
	return nil
}

func (s *SpyStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// -----------------------------------------------------------------------------
// SpyRegistry (间谍登记处)
// -----------------------------------------------------------------------------
type SpyRegistry struct {
	mu        sync.Mutex
	findCount int32
	items     map[types.Hash]meta.Item
	nextID    uint
}

func NewSpyRegistry() *SpyRegistry {
	return &SpyRegistry{items: make(map[types.Hash]meta.Item)}
}

func (r *SpyRegistry) Insert(ctx context.Context, item *meta.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.Digest]; ok {
		return meta.ErrDuplicateDigest
	}
	r.nextID++
	item.ID = r.nextID
	item.CreatedAt = time.Now()
	r.items[item.Digest] = *item
	return nil
}

func (r *SpyRegistry) Exists(ctx context.Context, digest types.Hash) (bool, error) {
	_, err := r.FindByDigest(ctx, digest)
	return err == nil, nil
}

func (r *SpyRegistry) FindByDigest(ctx context.Context, digest types.Hash) (*meta.Item, error) {
	atomic.AddInt32(&r.findCount, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[digest]
	if !ok {
		return nil, meta.ErrItemNotFound
	}
	return &item, nil
}

func (r *SpyRegistry) FindByName(ctx context.Context, name string) (*meta.Item, error) {
	return nil, meta.ErrItemNotFound
}

func (r *SpyRegistry) ListAll(ctx context.Context) ([]meta.Item, error) { return nil, nil }
func (r *SpyRegistry) Count(ctx context.Context) (int64, error)         { return 0, nil }

// -----------------------------------------------------------------------------
// Redis 客户端
// -----------------------------------------------------------------------------

const redisAddr = "localhost:6379"

// requireRedis 确保 Redis 在运行，否则跳过
func requireRedis(t *testing.T) *redis.Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", redisAddr, 1*time.Second)
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	conn.Close()

	client, err := Connect(context.Background(), Config{RedisURL: "redis://" + redisAddr + "/0"})
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	// 清理 Redis (防止上次测试残留)
	client.FlushDB(context.Background())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// deadRedis 返回一个指向不可达地址的客户端，用于验证降级逻辑
func deadRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}
