package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"thingdrop/pkg/core"
	"thingdrop/pkg/ingester"
	"thingdrop/pkg/meta"
	"thingdrop/pkg/storage"
	"thingdrop/pkg/storage/disk"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeTranscoder 把 "ext:" 前缀加在输入内容前存入存储
type fakeTranscoder struct {
	store storage.Store
}

func (f *fakeTranscoder) Convert(ctx context.Context, inputPath string, target core.Target) (string, error) {
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

type testServer struct {
	handler   http.Handler
	store     *disk.Adapter
	repo      *meta.Repository
	staticDir string
}

func setupServer(t *testing.T, maxBytes int64) *testServer {
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

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "cj.svg"), []byte("<svg></svg>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, ".env"), []byte("SECRET=1"), 0644))

	ing := ingester.NewIngester(store, repo, &fakeTranscoder{store: store}, ingester.Options{
		TempDir:  store.TempDir(),
		MaxBytes: maxBytes,
	})

	srv, err := New(Config{StaticDir: staticDir, MaxUploadBytes: maxBytes}, Deps{
		Store:    store,
		Registry: repo,
		Uploader: ing,
	})
	require.NoError(t, err)

	return &testServer{handler: srv.Handler(), store: store, repo: repo, staticDir: staticDir}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	return ts.do(httptest.NewRequest(http.MethodGet, path, nil))
}

// multipartBody 构造上传请求体；filename 为空时不包含 file 字段
func multipartBody(t *testing.T, filename, content, metadata string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if metadata != "" {
		require.NoError(t, mw.WriteField("metadata", metadata))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, filename, content, "")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	return ts.do(req)
}

// mustUpload 上传并解析返回的 Item
func (ts *testServer) mustUpload(t *testing.T, filename, content string) meta.Item {
	t.Helper()
	rec := ts.upload(t, filename, content)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Success bool      `json:"success"`
		Data    meta.Item `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	return env.Data
}
