package watcher

import (
	"path/filepath"
	"strings"
)

// IsBackupFile reports whether path names an editor backup file.
func IsBackupFile(path string) bool {
	return strings.HasSuffix(filepath.Base(path), "~")
}

// Within reports whether path is dir or lies below it.
func Within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// matchesIgnore reports whether any path segment matches one of the glob
// patterns.
func matchesIgnore(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == "" {
			continue
		}
		for _, pattern := range patterns {
			if ok, _ := filepath.Match(pattern, segment); ok {
				return true
			}
		}
	}
	return false
}
