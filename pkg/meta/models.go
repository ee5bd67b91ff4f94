package meta

import (
	"time"

	"thingdrop/pkg/core"
	"thingdrop/pkg/types"
)

// Item 是一条上传记录，每个不同的内容哈希对应一行
// 记录只会插入和读取，从不更新
type Item struct {
	// ID 由数据库分配
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	// StoredName 是原始字节的存储名 {digest}.{ext}
	StoredName string `gorm:"type:varchar(255);not null;index" json:"storedName"`

	// OriginalName 是客户端给出的文件名，仅供展示
	OriginalName string `gorm:"type:varchar(1024)" json:"originalName"`

	Kind     core.Kind `gorm:"type:varchar(16);not null" json:"kind"`
	MimeType string    `gorm:"type:varchar(255);not null" json:"mimeType"`

	// Digest 是原始字节的 SHA-256，唯一索引是去重的最终裁决
	Digest types.Hash `gorm:"type:char(64);not null;uniqueIndex" json:"digest"`

	// DerivedName 是规范化转码产物的存储名，未转码时为空
	DerivedName string `gorm:"type:varchar(255);index" json:"derivedName,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// TableName 强制指定表名
func (Item) TableName() string {
	return "things"
}

// ServableName 返回对外展示时使用的文件: 有转码产物时优先使用产物
func (i *Item) ServableName() string {
	if i.DerivedName != "" {
		return i.DerivedName
	}
	return i.StoredName
}
