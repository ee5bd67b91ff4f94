// pkg/types/common.go
package types

import "strings"

// Hash 代表内容的唯一标识符 (SHA256 Hex String, 小写, 64 字符)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool { return h == "" }
func (h Hash) IsValid() bool {
	if len(h) != 64 {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Short 返回用于日志展示的短哈希
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Ext 是不带点的小写文件扩展名, 例如 "png"
type Ext string

// NormalizeExt 去掉前导点并转为小写
func NormalizeExt(s string) Ext {
	return Ext(strings.ToLower(strings.TrimPrefix(s, ".")))
}

func (e Ext) String() string { return string(e) }
