package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"thingdrop/pkg/types"
)

// CalculateBlobHash 计算原始数据块的 Hash
func CalculateBlobHash(data []byte) types.Hash {
	hashBytes := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(hashBytes[:]))
}

// CalculateStreamHash 流式计算 Reader 的 Hash, 返回哈希和读取的字节数
func CalculateStreamHash(r io.Reader) (types.Hash, int64, error) {
	h := newHasher()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("failed to hash stream: %w", err)
	}
	return sumHex(h), n, nil
}

func newHasher() hash.Hash { return sha256.New() }

func sumHex(h hash.Hash) types.Hash {
	return types.Hash(hex.EncodeToString(h.Sum(nil)))
}
