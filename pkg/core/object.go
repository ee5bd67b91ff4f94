package core

import (
	"bytes"
	"io"

	"thingdrop/pkg/types"
)

// Object 是所有可以被内容存储持久化的对象的通用接口
type Object interface {
	// ID 返回内容的哈希值
	ID() types.Hash

	// Ext 返回存储时使用的扩展名
	Ext() types.Ext

	// Name 返回存储名 {hash}.{ext}
	Name() string

	// Size 返回字节数
	Size() int64

	// Open 打开一个新的只读流, 调用方负责关闭
	Open() (io.ReadCloser, error)
}

// Movable 由可以直接 rename 到目标路径的对象实现 (例如转码输出)
type Movable interface {
	Movable() bool
	MoveTo(dst string) error
}

// StoredName 构造存储名
func StoredName(h types.Hash, ext types.Ext) string {
	if ext == "" {
		return h.String()
	}
	return h.String() + "." + ext.String()
}

// Blob 是内存中的小对象, 主要用于测试和小文本
type Blob struct {
	hash types.Hash
	ext  types.Ext
	data []byte
}

// NewBlob 计算 data 的哈希并创建 Blob
func NewBlob(data []byte, ext types.Ext) *Blob {
	return &Blob{
		hash: CalculateBlobHash(data),
		ext:  ext,
		data: data,
	}
}

func (b *Blob) ID() types.Hash { return b.hash }
func (b *Blob) Ext() types.Ext { return b.ext }
func (b *Blob) Name() string   { return StoredName(b.hash, b.ext) }
func (b *Blob) Size() int64    { return int64(len(b.data)) }
func (b *Blob) Bytes() []byte  { return b.data }
func (b *Blob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}
