package workspace

import (
	"io/fs"
	"path/filepath"
	"sort"
)

// EnumerateFiles walks the workspace root once and returns the
// relative paths of regular files matching any include pattern and no
// exclude pattern. Results are deduplicated and sorted so callers see
// a stable order regardless of filesystem traversal order.
func EnumerateFiles(root string, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = []string{"**/*"}
	}

	inc, err := NewPatternMatcher(include)
	if err != nil {
		return nil, err
	}

	var exc *PatternMatcher
	if len(exclude) > 0 {
		exc, err = NewPatternMatcher(exclude)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{})
	var files []string

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if exc != nil && exc.Match(rel) {
			return nil
		}
		if !inc.Match(rel) {
			return nil
		}
		if _, ok := seen[rel]; ok {
			return nil
		}
		seen[rel] = struct{}{}
		files = append(files, rel)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Strings(files)
	return files, nil
}
