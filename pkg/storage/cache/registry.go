package cache

import (
	"context"
	"errors"
	"time"

	"thingdrop/pkg/logger"
	"thingdrop/pkg/meta"
	"thingdrop/pkg/types"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// 记录在缓存中以 CBOR 编码
// 时间必须保留纳秒，否则回读的 CreatedAt 与数据库不一致
var itemEncOptions = cbor.EncOptions{
	Sort:    cbor.SortCanonical,
	Time:    cbor.TimeRFC3339Nano,
	TimeTag: cbor.EncTagNone,
}

var itemEnc, _ = itemEncOptions.EncMode()

var itemDec, _ = cbor.DecOptions{
	MaxArrayElements: 1000,
	MaxMapPairs:      1000,
	MaxNestedLevels:  16,
}.DecMode()

func encodeItem(item *meta.Item) ([]byte, error) {
	return itemEnc.Marshal(item)
}

func decodeItem(data []byte) (*meta.Item, error) {
	var item meta.Item
	if err := itemDec.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// CachedRegistry 为 meta.Registry 添加按 digest 的读缓存
// Item 插入后不可变，所以缓存永远不会过时
type CachedRegistry struct {
	backend meta.Registry
	client  *redis.Client
	ttl     time.Duration
}

var _ meta.Registry = (*CachedRegistry)(nil)

func NewCachedRegistry(backend meta.Registry, client *redis.Client, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		backend: backend,
		client:  client,
		ttl:     ttl,
	}
}

func (r *CachedRegistry) cacheKey(digest types.Hash) string {
	return "drop:item:" + digest.String()
}

// Insert 穿透到数据库，成功后写缓存
func (r *CachedRegistry) Insert(ctx context.Context, item *meta.Item) error {
	if err := r.backend.Insert(ctx, item); err != nil {
		return err
	}
	data, err := encodeItem(item)
	if err == nil {
		err = r.client.Set(ctx, r.cacheKey(item.Digest), data, r.ttl).Err()
	}
	if err != nil {
		logger.FromContext(ctx).Warn("item cache write failed", "digest", item.Digest, "error", err)
	}
	return nil
}

// Exists 命中缓存即返回 true; 否认结果不缓存
func (r *CachedRegistry) Exists(ctx context.Context, digest types.Hash) (bool, error) {
	n, err := r.client.Exists(ctx, r.cacheKey(digest)).Result()
	if err != nil {
		logger.FromContext(ctx).Warn("redis exists failed, falling back", "digest", digest, "error", err)
	} else if n > 0 {
		return true, nil
	}

	_, err = r.FindByDigest(ctx, digest)
	if errors.Is(err, meta.ErrItemNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *CachedRegistry) FindByDigest(ctx context.Context, digest types.Hash) (*meta.Item, error) {
	key := r.cacheKey(digest)

	// 1. 查 Redis
	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		item, decErr := decodeItem(data)
		if decErr == nil {
			return item, nil
		}
		logger.FromContext(ctx).Warn("corrupt cached item", "digest", digest, "error", decErr)
	case !errors.Is(err, redis.Nil):
		logger.FromContext(ctx).Warn("redis get failed, falling back", "digest", digest, "error", err)
	}

	// 2. 查数据库
	item, err := r.backend.FindByDigest(ctx, digest)
	if err != nil {
		return nil, err
	}

	// 3. 回填
	if encoded, err := encodeItem(item); err == nil {
		fill(r.client, key, encoded, r.ttl)
	}
	return item, nil
}

func (r *CachedRegistry) FindByName(ctx context.Context, name string) (*meta.Item, error) {
	return r.backend.FindByName(ctx, name)
}

// ListAll 透传, 列表会随插入变化
func (r *CachedRegistry) ListAll(ctx context.Context) ([]meta.Item, error) {
	return r.backend.ListAll(ctx)
}

func (r *CachedRegistry) Count(ctx context.Context) (int64, error) {
	return r.backend.Count(ctx)
}
