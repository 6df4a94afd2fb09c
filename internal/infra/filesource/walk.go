package filesource

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
)

// Collect は dir 配下の処理対象ファイルをパス順に返します
func Collect(dir string) ([]string, error) {
	filter, err := NewIgnoreFilter(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if filter.ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	slices.Sort(files)
	return files, nil
}
