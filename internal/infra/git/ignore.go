package git

import (
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName はリポジトリ固有の除外設定ファイル名
const IgnoreFileName = ".kbignore"

// IgnoreFilter は .gitignore と .kbignore のパターンマッチングを提供する
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter は除外設定ファイルの内容と既定の除外パターンからフィルタを作る
func NewIgnoreFilter(files ...[]byte) *IgnoreFilter {
	var patterns []string
	for _, content := range files {
		patterns = append(patterns, parseIgnoreLines(content)...)
	}
	patterns = append(patterns, defaultIgnorePatterns...)

	return &IgnoreFilter{
		patterns: gitignore.CompileIgnoreLines(patterns...),
	}
}

// ShouldIgnore はパスが除外対象かどうかを判定する
func (f *IgnoreFilter) ShouldIgnore(path string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(path)
}

func parseIgnoreLines(content []byte) []string {
	var patterns []string
	for _, line := range strings.FieldsFunc(string(content), func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimRight(line, " \t")
		if line == "" || line[0] == '#' {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// 文書として取り込む価値のない生成物と機密ファイル
var defaultIgnorePatterns = []string{
	".git",
	".github",
	IgnoreFileName,

	"node_modules",
	"vendor",
	"third_party",
	"dist",
	"build",
	"target",

	".env",
	".env.*",
	"*.pem",
	"*.key",
	"secrets",

	// 静的サイトジェネレータの出力
	"site",
	"public",
	"_build",
	".docusaurus",
	"docs/.vuepress/dist",

	// ライセンス表記
	"LICENSE*",
	"NOTICE*",
}
