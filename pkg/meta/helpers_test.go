package meta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"thingdrop/pkg/core"
	"thingdrop/pkg/types"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// -----------------------------------------------------------------------------

// mockHash 生成合法的测试用 Hash
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

// setupTestRepo 构建隔离的测试环境 (每个测试一个内存库)
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	metaDB := NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(&Item{}))

	return NewRepository(metaDB)
}

// newItem 构造一条图片记录
func newItem(content string) *Item {
	h := mockHash(content)
	return &Item{
		StoredName:   core.StoredName(h, "png"),
		OriginalName: content + ".png",
		Kind:         core.KindImage,
		MimeType:     "image/png",
		Digest:       h,
	}
}

// mustInsert 强制写入，失败则终止
func mustInsert(t *testing.T, repo *Repository, item *Item, msgAndArgs ...any) {
	t.Helper()
	err := repo.Insert(context.Background(), item)
	require.NoError(t, err, msgAndArgs...)
}
