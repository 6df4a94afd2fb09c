package filesource

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName はディレクトリ処理で除外するパターンを書くファイル
const IgnoreFileName = ".cvextractignore"

// IgnoreFilter は除外パターンのマッチングを提供します
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter は dir 直下の .cvextractignore とデフォルトのパターンから IgnoreFilter を作成します
func NewIgnoreFilter(dir string) (*IgnoreFilter, error) {
	patterns := defaultIgnorePatterns()

	path := filepath.Join(dir, IgnoreFileName)
	if _, err := os.Stat(path); err == nil {
		extra, err := readIgnoreFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
		}
		patterns = append(patterns, extra...)
	}

	return &IgnoreFilter{patterns: gitignore.CompileIgnoreLines(patterns...)}, nil
}

// ShouldIgnore はパスが除外対象かどうかを判定します
func (f *IgnoreFilter) ShouldIgnore(path string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(path)
}

func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var patterns []string
	for _, line := range strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

func defaultIgnorePatterns() []string {
	return []string{
		".*",
		IgnoreFileName,
		// 出力ファイル
		"*.json",
		"*.jsonl",
		// 変換前の文書
		"*.pdf",
		"*.doc",
		"*.docx",
		"*.rtf",
		"*.odt",
		// 画像・アーカイブ
		"*.png",
		"*.jpg",
		"*.jpeg",
		"*.gif",
		"*.tif",
		"*.tiff",
		"*.zip",
		"*.gz",
		"*.tar",
	}
}
