package ingester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"thingdrop/pkg/core"
	"thingdrop/pkg/logger"
	"thingdrop/pkg/meta"
	"thingdrop/pkg/storage"
	"thingdrop/pkg/transcode"
)

var (
	ErrDuplicate            = errors.New("file already exists")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrTranscode            = errors.New("transcode failed")
	ErrStoreWrite           = errors.New("store write failed")
	ErrTooLarge             = errors.New("upload too large")
	ErrReceive              = errors.New("failed to receive upload")
)

// State 是一次上传在流水线中的阶段，仅用于日志
type State string

const (
	StateReceived        State = "received"
	StateHashed          State = "hashed"
	StateDedupChecked    State = "dedup_checked"
	StateStored          State = "stored"
	StateMaybeTranscoded State = "maybe_transcoded"
	StateRegistered      State = "registered"
	StateDone            State = "done"
	StateRejected        State = "rejected"
	StateFailed          State = "failed"
)

// Upload 是一次上传的输入
type Upload struct {
	// Filename 是客户端给出的文件名，只用于推断类型和展示
	Filename string
	Reader   io.Reader
}

// Options 配置 Ingester
type Options struct {
	// TempDir 是上传暂存目录，默认为系统临时目录
	TempDir string
	// MaxBytes 是单个上传的字节上限，<= 0 表示不限制
	MaxBytes int64
}

// Ingester 是内容寻址的上传流水线：
// 哈希 -> 去重 -> 存储原件 -> (可选) 转码 -> 登记元数据
// 除了存储的原子 rename 和数据库唯一索引，不使用任何锁
type Ingester struct {
	store      storage.Store
	registry   meta.Registry
	transcoder transcode.Transcoder
	opts       Options
}

func NewIngester(store storage.Store, registry meta.Registry, transcoder transcode.Transcoder, opts Options) *Ingester {
	return &Ingester{
		store:      store,
		registry:   registry,
		transcoder: transcoder,
		opts:       opts,
	}
}

// Ingest 执行一次完整的上传流程并返回新登记的 Item
// 重复内容返回 ErrDuplicate，此时存储和数据库都不会被改动
func (ing *Ingester) Ingest(ctx context.Context, up Upload) (item *meta.Item, err error) {
	log := logger.FromContext(ctx).With("filename", up.Filename)
	transition := func(s State, args ...any) {
		log.Info("ingest", append([]any{"state", s}, args...)...)
	}

	defer func() {
		if err == nil {
			return
		}
		if isRejection(err) {
			transition(StateRejected, "reason", err.Error())
		} else {
			log.Error("ingest", "state", StateFailed, "error", err)
		}
	}()

	// 1. Received
	if up.Reader == nil {
		return nil, fmt.Errorf("%w: upload has no content", ErrReceive)
	}
	transition(StateReceived)

	// 2. Hashed: 边写临时文件边计算哈希
	spool, err := core.NewSpool(ing.opts.TempDir, up.Reader, ing.opts.MaxBytes)
	if err != nil {
		if errors.Is(err, core.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %v", ErrTooLarge, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrReceive, err)
	}
	// 任何退出路径都清理暂存文件
	defer spool.Remove()

	digest := spool.ID()
	log = log.With("digest", digest.Short())
	transition(StateHashed, "size", spool.Size())

	// 3. DedupChecked: 在任何存储变更之前检查
	exists, err := ing.registry.Exists(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to check digest: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, digest)
	}

	mimeType, err := core.DetectMime(up.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMediaType, err)
	}
	ext := core.ExtOf(up.Filename)
	kind := core.KindOf(mimeType)
	transition(StateDedupChecked, "mime", mimeType)

	// 4. Stored: 原件以 {digest}.{ext} 写入
	spool.WithExt(ext)
	if err := ing.store.Put(ctx, spool); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	transition(StateStored, "name", spool.Name())

	// 5. MaybeTranscoded: 失败时原件保留在存储中
	derived := ""
	if target, ok := core.TargetFor(kind, ext); ok {
		if ing.transcoder == nil {
			return nil, fmt.Errorf("%w: no transcoder configured for .%s", ErrTranscode, ext)
		}
		derived, err = ing.transcoder.Convert(ctx, spool.Path(), target)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTranscode, err)
		}
	}
	transition(StateMaybeTranscoded, "derived", derived)

	// 6. Registered: 唯一索引是并发上传的最终裁决
	item = &meta.Item{
		StoredName:   spool.Name(),
		OriginalName: filepath.Base(up.Filename),
		Kind:         kind,
		MimeType:     mimeType,
		Digest:       digest,
		DerivedName:  derived,
	}
	if err := ing.registry.Insert(ctx, item); err != nil {
		if errors.Is(err, meta.ErrDuplicateDigest) {
			log.Info("lost insert race", "digest", digest)
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, digest)
		}
		return nil, fmt.Errorf("failed to register item: %w", err)
	}
	transition(StateRegistered, "id", item.ID)

	// 7. Done
	transition(StateDone)
	return item, nil
}

func isRejection(err error) bool {
	return errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrUnsupportedMediaType) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrReceive)
}

// LogItem 返回 Item 的紧凑日志属性
func LogItem(item *meta.Item) slog.Attr {
	return slog.Group("item",
		slog.Uint64("id", uint64(item.ID)),
		slog.String("name", item.ServableName()),
		slog.String("kind", string(item.Kind)),
	)
}
