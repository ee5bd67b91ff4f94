package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"thingdrop/pkg/core"
	"thingdrop/pkg/ignore"
	"thingdrop/pkg/meta"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupIntegrationEnv 在临时目录里搭建 真实文件系统 + sqlite 文件数据库 的环境
func setupIntegrationEnv(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	chdir(t, tmpDir)

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("storage.path", filepath.Join(tmpDir, ".drop", "files"))
	viper.Set("database.path", filepath.Join(tmpDir, ".drop", "db.sqlite"))
	viper.Set("log.level", "error")
	return tmpDir
}

// run 执行一条 drop 命令并返回输出
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestIntegration_AddListCat(t *testing.T) {
	tmpDir := setupIntegrationEnv(t)

	// 1. 用户规则先写好, init 不会覆盖它
	writeFile(t, filepath.Join(tmpDir, ".dropignore"), "*.psd\n")

	out, err := run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized empty thingdrop")
	assert.DirExists(t, filepath.Join(tmpDir, ".drop", "files"))

	out, err = run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already initialized")

	// 2. 准备文件
	writeFile(t, filepath.Join(tmpDir, "photos", "cat.png"), "png-bytes")
	writeFile(t, filepath.Join(tmpDir, "photos", "copy.png"), "png-bytes") // 重复
	writeFile(t, filepath.Join(tmpDir, "notes.md"), "# hi")
	writeFile(t, filepath.Join(tmpDir, "README"), "no extension") // 不支持
	writeFile(t, filepath.Join(tmpDir, "draft.psd"), "ignored")
	writeFile(t, filepath.Join(tmpDir, "config.yaml"), "storage:\n  s3:\n    secret_key: hunter2\n")
	writeFile(t, filepath.Join(tmpDir, ".env"), "DROP_DATABASE_PASSWORD=hunter2")

	// 3. add
	out, err = run(t, "add", ".")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Added 2, skipped 2, failed 0")
	assert.NotContains(t, out, "draft.psd")
	assert.NotContains(t, out, "config.yaml")
	assert.NotContains(t, out, ".env")

	// 密钥文件不能进入存储
	_, err = run(t, "cat", core.StoredName(core.CalculateBlobHash([]byte("storage:\n  s3:\n    secret_key: hunter2\n")), "yaml"))
	assert.Error(t, err)

	// 再 add 一次全部是重复
	out, err = run(t, "add", "photos", "notes.md")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Added 0, skipped 3, failed 0")

	// 4. ls
	out, err = run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "DIGEST")
	assert.Contains(t, out, "notes.md")
	assert.Contains(t, out, string(core.KindImage))
	assert.Contains(t, out, string(core.KindText))
	assert.Contains(t, out, "2 things")

	// 5. cat 支持存储名和完整摘要
	digest := core.CalculateBlobHash([]byte("png-bytes"))
	out, err = run(t, "cat", digest.String())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", out)

	out, err = run(t, "cat", core.StoredName(core.CalculateBlobHash([]byte("# hi")), "md"))
	require.NoError(t, err)
	assert.Equal(t, "# hi", out)

	_, err = run(t, "cat", "missing.png")
	assert.Error(t, err)

	// 存储里有但未登记的文件不输出
	orphan := core.StoredName(core.CalculateBlobHash([]byte("orphan")), "png")
	writeFile(t, filepath.Join(tmpDir, ".drop", "files", orphan), "orphan")
	_, err = run(t, "cat", orphan)
	assert.ErrorIs(t, err, meta.ErrItemNotFound)
}

func TestIntegration_EmptyList(t *testing.T) {
	setupIntegrationEnv(t)

	out, err := run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "No things yet.")
}

func TestIgnored_RelativeAndAbsolutePaths(t *testing.T) {
	tmpDir := t.TempDir()
	chdir(t, tmpDir)
	writeFile(t, filepath.Join(tmpDir, ".dropignore"), "*.psd\n")

	wd, err := os.Getwd()
	require.NoError(t, err)
	matcher, err := ignore.NewMatcher(wd)
	require.NoError(t, err)

	outside := t.TempDir()

	tests := []struct {
		root, path string
		skip       bool
	}{
		{".", ".", false},
		{".", "config.yaml", true},
		{".", ".drop", true},
		{".", "photos/draft.psd", true},
		{".", "photos/cat.png", false},
		{"photos", "photos/.env", true},
		{wd, filepath.Join(wd, "config.yaml"), true},
		{wd, filepath.Join(wd, "cat.png"), false},
		// wd 之外: 相对参数根目录匹配
		{outside, filepath.Join(outside, ".env"), true},
		{outside, filepath.Join(outside, "a.psd"), true},
		{outside, filepath.Join(outside, "a.png"), false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			skip, err := ignored(matcher, wd, tt.root, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.skip, skip)
		})
	}
}

// chdir switches the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
