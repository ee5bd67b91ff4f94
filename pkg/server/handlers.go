package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"thingdrop/pkg/core"
	"thingdrop/pkg/ingester"
	"thingdrop/pkg/logger"
	"thingdrop/pkg/meta"
	"thingdrop/pkg/router"
	"thingdrop/pkg/storage"
)

// 与上传文件一起提交的 metadata 字段的大小上限
const maxMetadataBytes = 64 << 10

// multipart 头部等额外开销
const multipartOverhead = 1 << 20

// Uploader 是上传流水线的抽象
type Uploader interface {
	Ingest(ctx context.Context, up ingester.Upload) (*meta.Item, error)
}

// Handlers 持有处理器需要的全部依赖
type Handlers struct {
	store     storage.Store
	registry  meta.Registry
	uploader  Uploader
	render    *Renderer
	gzip      func(http.Handler) http.HandlerFunc
	staticDir string
	maxBytes  int64
}

// =============================================================================
// 1. GET / (画廊)
// =============================================================================

func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.registry.ListAll(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list items", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	things := make([]thingView, 0, len(items))
	for i := range items {
		view := newThingView(&items[i])
		if items[i].Kind == core.KindText {
			// 文本条目内联渲染；读不到或太大时只展示链接
			text, err := h.inlineText(ctx, items[i].StoredName)
			if err != nil {
				logger.FromContext(ctx).Warn("failed to inline text", "name", items[i].StoredName, "error", err)
			}
			view.Text = text
		}
		things = append(things, view)
	}

	var buf bytes.Buffer
	if err := h.render.Index(&buf, things); err != nil {
		logger.FromContext(ctx).Error("failed to render index", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeHTML(w, r, &buf)
}

// writeHTML 输出渲染好的页面, 只有这里和静态资源走 gzip
func (h *Handlers) writeHTML(w http.ResponseWriter, r *http.Request, page *bytes.Buffer) {
	h.gzip(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = page.WriteTo(w)
	})).ServeHTTP(w, r)
}

// =============================================================================
// 2. GET /static/{name}
// =============================================================================

func (h *Handlers) Static(w http.ResponseWriter, r *http.Request) {
	name := router.Param(r, 0)
	if storage.ValidateName(name) != nil {
		router.NotFound(w, r)
		return
	}
	f, err := os.Open(filepath.Join(h.staticDir, name))
	if err != nil {
		router.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		router.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// =============================================================================
// 3. GET /f/{name} (原始文件)
// =============================================================================

func (h *Handlers) File(w http.ResponseWriter, r *http.Request) {
	h.serveStored(w, r, router.Param(r, 0))
}

// serveStored 把存储中的对象原样回传
// 内容以哈希命名，永不改变，可以长期缓存
func (h *Handlers) serveStored(w http.ResponseWriter, r *http.Request, name string) {
	rc, err := h.store.Get(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", core.ContentType(name))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+name+`"`)

	// 磁盘后端返回 *os.File，支持 Range 请求
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, time.Time{}, rs)
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		logger.FromContext(r.Context()).Warn("stream interrupted", "name", name, "error", err)
	}
}

// =============================================================================
// 4. GET /p/{name} (永久链接)
// =============================================================================

func (h *Handlers) Perma(w http.ResponseWriter, r *http.Request) {
	name := router.Param(r, 0)
	if core.KindOf(core.ContentType(name)) != core.KindText {
		h.serveStored(w, r, name)
		return
	}

	src, fits, err := h.readText(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !fits {
		// 太大的文本不渲染, 原样回传
		h.serveStored(w, r, name)
		return
	}
	text, err := h.render.Markdown(src)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := h.render.Perma(&buf, text); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeHTML(w, r, &buf)
}

// readText 最多读取 maxInlineText 字节; fits 为 false 表示文件更大, src 不完整
func (h *Handlers) readText(ctx context.Context, name string) (src []byte, fits bool, err error) {
	rc, err := h.store.Get(ctx, name)
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()
	src, err = io.ReadAll(io.LimitReader(rc, maxInlineText+1))
	if err != nil {
		return nil, false, err
	}
	if len(src) > maxInlineText {
		return nil, false, nil
	}
	return src, true, nil
}

// inlineText 为画廊渲染文本条目, 超过上限时返回空
func (h *Handlers) inlineText(ctx context.Context, name string) (template.HTML, error) {
	src, fits, err := h.readText(ctx, name)
	if err != nil || !fits {
		return "", err
	}
	return h.render.Markdown(src)
}

// =============================================================================
// 5. POST /upload
// =============================================================================

func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w, http.MethodPost)
		return
	}
	log := logger.FromContext(r.Context())

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		Error(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}

	// 上传一旦开始就不随客户端断开而取消，保证流水线走完
	ctx := context.WithoutCancel(r.Context())

	var (
		item      *meta.Item
		sawFile   bool
		ingestErr error
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if sawFile {
				// 文件已经处理完，尾部格式问题不影响结果
				log.Warn("malformed multipart trailer", "error", err)
				break
			}
			h.fail(w, r, errors.Join(ingester.ErrReceive, err))
			return
		}

		switch part.FormName() {
		case "file":
			if sawFile {
				log.Warn("ignoring extra file part", "filename", part.FileName())
				break
			}
			sawFile = true
			item, ingestErr = h.uploader.Ingest(ctx, ingester.Upload{
				Filename: part.FileName(),
				Reader:   part,
			})
		case "metadata":
			logMetadata(log, part)
		}
		_ = part.Close()

		if ingestErr != nil {
			break
		}
	}

	if !sawFile {
		Error(w, http.StatusBadRequest, "missing file field")
		return
	}
	if ingestErr != nil {
		h.fail(w, r, ingestErr)
		return
	}
	log.Info("upload accepted", ingester.LogItem(item))
	OK(w, item)
}

// logMetadata 解析并记录 metadata 字段；它不参与任何决策
func logMetadata(log *slog.Logger, part *multipart.Part) {
	raw, err := io.ReadAll(io.LimitReader(part, maxMetadataBytes))
	if err != nil {
		log.Warn("failed to read metadata", "error", err)
		return
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		log.Warn("metadata is not valid JSON", "raw", string(raw), "error", err)
		return
	}
	log.Info("received metadata", "metadata", parsed)
}

// =============================================================================
// 错误映射
// =============================================================================

// statusFor 把领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, ingester.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingester.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ingester.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, meta.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingester.ErrReceive):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail 写出错误响应；5xx 不向客户端暴露内部细节
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound:
		router.NotFound(w, r)
	case http.StatusConflict:
		Error(w, status, "File already exists")
	case http.StatusInternalServerError:
		logger.FromContext(r.Context()).Error("request failed", "error", err)
		Error(w, status, "internal server error")
	default:
		Error(w, status, http.StatusText(status))
	}
}
