package disk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"thingdrop/pkg/core"
	"thingdrop/pkg/storage"
)

const tempDirName = ".tmp"

// Adapter 实现了 storage.Store 接口
// 布局: 一个扁平目录, 每个文件名为 {digest}.{ext}; 写入中的文件放在私有的 .tmp 子目录
type Adapter struct {
	rootPath string // 比如: ./.drop/files
	tempPath string // rootPath/.tmp, 与 rootPath 同一文件系统, 保证 rename 原子
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	tempPath := filepath.Join(root, tempDirName)
	// 确保根目录和临时目录存在
	if err := os.MkdirAll(tempPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root, tempPath: tempPath}, nil
}

// Root 返回存储根目录
func (s *Adapter) Root() string { return s.rootPath }

// TempDir 返回私有临时目录, 在这里生成的文件可以被原子 rename 进存储
func (s *Adapter) TempDir() string { return s.tempPath }

func (s *Adapter) layout(name string) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: %q", err, name)
	}
	return filepath.Join(s.rootPath, name), nil
}

func (s *Adapter) Put(ctx context.Context, obj core.Object) error {
	targetPath, err := s.layout(obj.Name())
	if err != nil {
		return err
	}

	// 1. 检查是否存在 (幂等性)
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 2. 可移动对象 (转码输出) 直接 rename 到位
	if m, ok := obj.(core.Movable); ok && m.Movable() {
		if err := m.MoveTo(targetPath); err == nil {
			return nil
		}
		// 跨文件系统等情况下 rename 失败, 退化为复制
	}

	// 3. 原子写入 (Atomic Write)
	// 先写到 .tmp 下的临时文件，校验哈希后再 Rename。
	// 这样读者要么看不到文件，要么看到完整的文件。
	return s.writeAtomic(obj, targetPath)
}

func (s *Adapter) writeAtomic(obj core.Object, targetPath string) error {
	src, err := obj.Open()
	if err != nil {
		return fmt.Errorf("failed to open object %s: %w", obj.Name(), err)
	}
	defer src.Close()

	tempFile, err := os.CreateTemp(s.tempPath, "put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	success := false
	defer func() {
		if !success {
			_ = tempFile.Close()
			_ = os.Remove(tempFile.Name())
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tempFile, h), src); err != nil {
		return fmt.Errorf("failed to write %s: %w", obj.Name(), err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != obj.ID().String() {
		return fmt.Errorf("%w: %s has %s", storage.ErrDigestMismatch, obj.Name(), got)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", obj.Name(), err)
	}
	// 必须先关闭才能 Rename
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", obj.Name(), err)
	}

	// 4. 移动到最终位置
	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		return fmt.Errorf("failed to commit %s: %w", obj.Name(), err)
	}
	success = true
	return nil
}

// Get 返回 *os.File, 调用方可以利用 io.Seeker 支持 Range 请求
func (s *Adapter) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	targetPath, err := s.layout(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(targetPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if info, err := f.Stat(); err != nil || info.IsDir() {
		f.Close()
		return nil, storage.ErrNotFound
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, name string) (bool, error) {
	targetPath, err := s.layout(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(targetPath)
	if err == nil {
		return !info.IsDir(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
