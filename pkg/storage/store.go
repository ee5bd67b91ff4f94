package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"thingdrop/pkg/core"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrInvalidName    = errors.New("invalid object name")
	ErrDigestMismatch = errors.New("stored bytes do not match object digest")
)

// Store defines the interface for a content store.
// Objects are addressed by their stored name {digest}.{ext}; there is no delete or update.
type Store interface {
	// Put 将一个对象持久化到 obj.Name()
	// 幂等：名字已存在时直接返回，已有文件不会被改动
	Put(ctx context.Context, obj core.Object) error

	// Get 根据存储名读取原始数据
	// 注意：这里返回的是 io.ReadCloser 而不是 []byte, 媒体文件可能很大
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Has 检查对象是否存在
	Has(ctx context.Context, name string) (bool, error)
}

// ValidateName 拒绝任何可能逃逸出存储根目录或指向隐藏文件的名字
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidName
	case strings.HasPrefix(name, "."):
		return ErrInvalidName
	case strings.ContainsAny(name, "/\\\x00"):
		return ErrInvalidName
	}
	return nil
}
