package core

import (
	"errors"
	"fmt"
	"io"
	"os"

	"thingdrop/pkg/types"
)

var (
	ErrTooLarge    = errors.New("payload exceeds size limit")
	ErrNotMovable  = errors.New("spool is not movable")
	ErrSpoolClosed = errors.New("spool already moved or removed")
)

// Spool 是落在本地临时文件中的对象
// 哈希总是基于实际写入磁盘的字节计算, 因此存储名与内容一致
type Spool struct {
	path    string
	hash    types.Hash
	ext     types.Ext
	size    int64
	movable bool
	gone    bool
}

// NewSpool 把 r 写入 dir 下的临时文件, 同时计算哈希
// maxBytes <= 0 表示不限制大小; 超出时返回 ErrTooLarge 且不留下临时文件
func NewSpool(dir string, r io.Reader, maxBytes int64) (*Spool, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create spool dir: %w", err)
		}
	}

	tempFile, err := os.CreateTemp(dir, "spool-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	tempPath := tempFile.Name()
	keep := false
	defer func() {
		_ = tempFile.Close()
		if !keep {
			_ = os.Remove(tempPath)
		}
	}()

	src := r
	if maxBytes > 0 {
		src = &io.LimitedReader{R: r, N: maxBytes + 1}
	}

	h := newHasher()
	written, err := io.Copy(io.MultiWriter(tempFile, h), src)
	if err != nil {
		return nil, fmt.Errorf("failed to spool payload: %w", err)
	}
	if maxBytes > 0 && written > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, maxBytes)
	}
	if err := tempFile.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync spool file: %w", err)
	}

	keep = true
	return &Spool{
		path: tempPath,
		hash: sumHex(h),
		size: written,
	}, nil
}

// SpoolFile 把一个已存在的文件包装为可移动的 Spool (用于转码输出)
func SpoolFile(path string, ext types.Ext) (*Spool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h, n, err := CalculateStreamHash(f)
	if err != nil {
		return nil, err
	}
	return &Spool{
		path:    path,
		hash:    h,
		ext:     ext,
		size:    n,
		movable: true,
	}, nil
}

// WithExt 设置存储扩展名 (哈希在扩展名确定之前就已算出)
func (s *Spool) WithExt(ext types.Ext) *Spool {
	s.ext = ext
	return s
}

func (s *Spool) ID() types.Hash { return s.hash }
func (s *Spool) Ext() types.Ext { return s.ext }
func (s *Spool) Name() string   { return StoredName(s.hash, s.ext) }
func (s *Spool) Size() int64    { return s.size }
func (s *Spool) Path() string   { return s.path }
func (s *Spool) Movable() bool  { return s.movable && !s.gone }

func (s *Spool) Open() (io.ReadCloser, error) {
	if s.gone {
		return nil, ErrSpoolClosed
	}
	return os.Open(s.path)
}

// MoveTo 将临时文件 rename 到 dst, 之后 Spool 不再持有文件
func (s *Spool) MoveTo(dst string) error {
	if !s.movable {
		return ErrNotMovable
	}
	if s.gone {
		return ErrSpoolClosed
	}
	if err := os.Rename(s.path, dst); err != nil {
		return err
	}
	s.gone = true
	return nil
}

// Remove 删除临时文件, 对已移动的 Spool 是空操作
func (s *Spool) Remove() error {
	if s.gone {
		return nil
	}
	s.gone = true
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
