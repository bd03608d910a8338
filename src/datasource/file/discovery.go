package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ListFiles 返回目录下匹配 pattern 的文件(按文件名排序), exclude 中的路径不计入
func ListFiles(dir, pattern string, exclude ...string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingDirectory, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrMissingDirectory, dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	skip := make(map[string]bool, len(exclude))
	for _, p := range exclude {
		if p != "" {
			skip[absPath(p)] = true
		}
	}

	files := matches[:0]
	for _, m := range matches {
		if skip[absPath(m)] {
			continue
		}
		if st, err := os.Stat(m); err == nil && !st.IsDir() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoMatchingFiles, pattern, dir)
	}

	sort.Strings(files)
	return files, nil
}

// MatchPattern 判断文件名是否匹配 pattern
func MatchPattern(pattern, path string) bool {
	ok, err := filepath.Match(pattern, filepath.Base(path))
	return err == nil && ok
}

// absPath 清理后的绝对路径, 失败时退回 filepath.Clean
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
