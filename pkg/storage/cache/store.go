package cache

import (
	"context"
	"io"
	"time"

	"thingdrop/pkg/core"
	"thingdrop/pkg/logger"
	"thingdrop/pkg/storage"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 存在性缓存
// 内容不可变且从不删除，所以一旦确认存在就可以长期缓存
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client
	ttl     time.Duration
}

var _ storage.Store = (*CachedStore)(nil)

func NewCachedStore(backend storage.Store, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     ttl,
	}
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(name string) string {
	return "drop:obj:" + name
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, name string) (bool, error) {
	if err := storage.ValidateName(name); err != nil {
		return false, err
	}
	key := s.cacheKey(name)

	// 1. 查 Redis
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 缓存故障降级为无缓存模式，直接查底层存储
		logger.FromContext(ctx).Warn("redis exists failed, falling back", "key", key, "error", err)
	} else if val > 0 {
		return true, nil
	}

	// 2. 缓存未命中，查底层存储
	found, err := s.backend.Has(ctx, name)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填 (只缓存正结果)
	if found {
		fill(s.client, key, "1", s.ttl)
	}
	return found, nil
}

// Put 利用 Has 的缓存能力进行预检
func (s *CachedStore) Put(ctx context.Context, obj core.Object) error {
	exists, err := s.Has(ctx, obj.Name())
	if err != nil {
		return err
	}
	if exists {
		return nil // 幂等性：已存在
	}

	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	// 只有底层写入成功了，才写 Redis; Set 错误不影响主流程
	if err := s.client.Set(ctx, s.cacheKey(obj.Name()), "1", s.ttl).Err(); err != nil {
		logger.FromContext(ctx).Warn("redis set failed", "name", obj.Name(), "error", err)
	}
	return nil
}

// Get 透传 - 不缓存媒体内容本身
func (s *CachedStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, name)
}
