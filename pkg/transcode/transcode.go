// Package transcode 把音视频规范化为统一的格式并写入内容存储
package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"thingdrop/pkg/core"
	"thingdrop/pkg/logger"
	"thingdrop/pkg/storage"

	"github.com/google/uuid"
)

var ErrFailed = errors.New("transcode failed")

// Transcoder 把 inputPath 转成 target 格式，存入内容存储并返回产物的存储名
type Transcoder interface {
	Convert(ctx context.Context, inputPath string, target core.Target) (string, error)
}

// FFmpeg 通过外部 ffmpeg 进程转码
// 调用是阻塞的：只挂起发起请求的 goroutine，其它请求不受影响
type FFmpeg struct {
	bin     string
	tempDir string
	store   storage.Store
}

var _ Transcoder = (*FFmpeg)(nil)

// NewFFmpeg 创建转码器
// tempDir 应与存储位于同一文件系统 (disk.Adapter.TempDir)，这样产物可以被原子 rename
func NewFFmpeg(bin, tempDir string, store storage.Store) (*FFmpeg, error) {
	if bin == "" {
		bin = "ffmpeg"
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcode temp dir: %w", err)
	}
	return &FFmpeg{bin: bin, tempDir: tempDir, store: store}, nil
}

func (f *FFmpeg) Convert(ctx context.Context, inputPath string, target core.Target) (string, error) {
	log := logger.FromContext(ctx)

	// 1. 分配临时输出路径 {tempDir}/{uuid}.{ext}
	// 扩展名决定了 ffmpeg 的输出容器
	outPath := filepath.Join(f.tempDir, uuid.NewString()+"."+target.Ext.String())
	defer os.Remove(outPath) // 成功时文件已被移走，这里是空操作

	// 2. 运行 ffmpeg，等待进程退出
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", inputPath, outPath}
	cmd := exec.CommandContext(ctx, f.bin, args...)
	log.Debug("running transcoder", "bin", f.bin, "args", strings.Join(args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v: %s", ErrFailed, f.bin, err, strings.TrimSpace(string(output)))
	}
	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		return "", fmt.Errorf("%w: %s produced no output", ErrFailed, f.bin)
	}

	// 3. 对产物计算哈希并原子写入存储
	spool, err := core.SpoolFile(outPath, target.Ext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}
	defer spool.Remove()

	if err := f.store.Put(ctx, spool); err != nil {
		return "", fmt.Errorf("failed to store transcoded output: %w", err)
	}

	log.Info("transcoded", "input", filepath.Base(inputPath), "output", spool.Name())
	return spool.Name(), nil
}
