package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"thingdrop/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// sha256Hex 用标准库独立计算期望的哈希
func sha256Hex(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

// mustSpool 把字符串写入 dir 下的 Spool，如果失败直接终止测试
func mustSpool(t *testing.T, dir, content string) *Spool {
	t.Helper()
	s, err := NewSpool(dir, strings.NewReader(content), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Remove() })
	return s
}
