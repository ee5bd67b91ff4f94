package ignore

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是用户自定义忽略规则文件
const FileName = ".dropignore"

// defaultRules 总是生效, 无法被 .dropignore 取消
var defaultRules = []string{
	".drop", // 数据目录本身, 否则 add 会把已存储的文件再导入一遍
	".git",

	// 配置与密钥
	"config.yaml",
	".env",
	FileName,

	".DS_Store",
	"Thumbs.db",
}

// Matcher 判断批量导入时哪些路径应该跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 加载 rootPath 下的 .dropignore (如果存在) 并与默认规则合并
func NewMatcher(rootPath string) (*Matcher, error) {
	ignoreFile := filepath.Join(rootPath, FileName)

	if _, err := os.Stat(ignoreFile); err != nil {
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(defaultRules...)}, nil
	}

	ignorer, err := gitignore.CompileIgnoreFileAndLines(ignoreFile, defaultRules...)
	if err != nil {
		return nil, err
	}
	return &Matcher{ignorer: ignorer}, nil
}

// Matches 返回 true 表示跳过。path 是相对 rootPath 的路径, 使用 "/" 分隔
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(filepath.ToSlash(path))
}
