package meta

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"thingdrop/pkg/types"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrDuplicateDigest = errors.New("item with this digest already exists")
	ErrItemNotFound    = errors.New("item not found")
)

// Registry 是元数据登记处的抽象
// 只支持插入和读取; 唯一索引保证同一个 digest 只有一行
type Registry interface {
	Insert(ctx context.Context, item *Item) error
	Exists(ctx context.Context, digest types.Hash) (bool, error)
	FindByDigest(ctx context.Context, digest types.Hash) (*Item, error)
	FindByName(ctx context.Context, name string) (*Item, error)
	ListAll(ctx context.Context) ([]Item, error)
	Count(ctx context.Context) (int64, error)
}

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

var _ Registry = (*Repository)(nil)

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Insert 写入一条新记录, ID 和 CreatedAt 由数据库回填
// digest 冲突时返回 ErrDuplicateDigest
func (r *Repository) Insert(ctx context.Context, item *Item) error {
	if !item.Digest.IsValid() {
		return fmt.Errorf("invalid digest %q", item.Digest)
	}
	if err := r.db.GetConn().WithContext(ctx).Create(item).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateDigest, item.Digest)
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// Exists 检查 digest 是否已登记
func (r *Repository) Exists(ctx context.Context, digest types.Hash) (bool, error) {
	var count int64
	err := r.db.GetConn().WithContext(ctx).
		Model(&Item{}).
		Where("digest = ?", digest).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check digest: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) FindByDigest(ctx context.Context, digest types.Hash) (*Item, error) {
	return r.first(ctx, "digest = ?", digest)
}

// FindByName 按存储名或转码产物名查找
func (r *Repository) FindByName(ctx context.Context, name string) (*Item, error) {
	return r.first(ctx, "stored_name = ? OR derived_name = ?", name, name)
}

func (r *Repository) first(ctx context.Context, query string, args ...any) (*Item, error) {
	var item Item
	err := r.db.GetConn().WithContext(ctx).
		Where(query, args...).
		First(&item).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListAll 按插入时间倒序返回全部记录
func (r *Repository) ListAll(ctx context.Context) ([]Item, error) {
	var items []Item
	err := r.db.GetConn().WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetConn().WithContext(ctx).Model(&Item{}).Count(&count).Error
	return count, err
}

// isUniqueViolation 兼容不同数据库 (PG 与 SQLite) 的唯一约束错误
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
