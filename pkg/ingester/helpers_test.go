package ingester

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"thingdrop/pkg/core"
	"thingdrop/pkg/meta"
	"thingdrop/pkg/storage"
	"thingdrop/pkg/storage/disk"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeTranscoder 不调用 ffmpeg，而是把 "target:" 前缀加在输入内容前面存入存储
type fakeTranscoder struct {
	store storage.Store
	calls atomic.Int32
	fail  bool
}

func (f *fakeTranscoder) Convert(ctx context.Context, inputPath string, target core.Target) (string, error) {
	f.calls.Add(1)
	if f.fail {
		return "", errors.New("ffmpeg exited with status 1")
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return "", err
	}
	out := core.NewBlob(append([]byte(target.Ext.String()+":"), data...), target.Ext)
	if err := f.store.Put(ctx, out); err != nil {
		return "", err
	}
	return out.Name(), nil
}

// brokenStore 写入总是失败
type brokenStore struct{ storage.Store }

func (brokenStore) Put(ctx context.Context, obj core.Object) error {
	return errors.New("disk full")
}

type testEnv struct {
	ing        *Ingester
	store      *disk.Adapter
	repo       *meta.Repository
	transcoder *fakeTranscoder
	spoolDir   string
}

// setupEnv 组装真实的磁盘存储 + 内存 SQLite + 假转码器
func setupEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	metaDB := meta.NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(&meta.Item{}))
	repo := meta.NewRepository(metaDB)

	if opts.TempDir == "" {
		opts.TempDir = t.TempDir()
	}
	tc := &fakeTranscoder{store: store}
	return &testEnv{
		ing:        NewIngester(store, repo, tc, opts),
		store:      store,
		repo:       repo,
		transcoder: tc,
		spoolDir:   opts.TempDir,
	}
}

func (e *testEnv) upload(filename, content string) (*meta.Item, error) {
	return e.ing.Ingest(context.Background(), Upload{
		Filename: filename,
		Reader:   bytes.NewReader([]byte(content)),
	})
}

// mustUpload 上传，失败则终止
func (e *testEnv) mustUpload(t *testing.T, filename, content string) *meta.Item {
	t.Helper()
	item, err := e.upload(filename, content)
	require.NoError(t, err)
	return item
}

// storedFiles 返回存储根目录下的所有对象名 (不含 .tmp)
func (e *testEnv) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.store.Root())
	require.NoError(t, err)
	var names []string
	for _, en := range entries {
		if en.IsDir() {
			continue
		}
		names = append(names, en.Name())
	}
	return names
}

func (e *testEnv) readStored(t *testing.T, name string) []byte {
	t.Helper()
	rc, err := e.store.Get(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}
