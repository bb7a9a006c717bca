package util

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// CleanPath returns a slash-separated, cleaned absolute or relative path.
// An empty input stays empty.
func CleanPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return ""
	}
	return path.Clean(filepath.ToSlash(trimmed))
}

// WithTrailingSlash normalizes a directory to the form used as watch and prefix keys.
func WithTrailingSlash(dir string) string {
	dir = filepath.ToSlash(dir)
	if dir == "" || strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

// HasPathPrefix returns true when p equals prefix or is contained within prefix.
func HasPathPrefix(p, prefix string) bool {
	p = CleanPath(p)
	prefix = CleanPath(prefix)
	if p == "" || prefix == "" {
		return p == prefix
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/")
}

// IsChildOf reports whether p lies strictly below dir.
func IsChildOf(p, dir string) bool {
	return p != "" && CleanPath(p) != CleanPath(dir) && HasPathPrefix(p, dir)
}

// ResolvePath joins rel onto base unless rel is already absolute.
func ResolvePath(base, rel string) string {
	rel = filepath.ToSlash(rel)
	if rel == "" {
		return CleanPath(base)
	}
	if path.IsAbs(rel) || filepath.IsAbs(rel) {
		return CleanPath(rel)
	}
	return CleanPath(path.Join(filepath.ToSlash(base), rel))
}

// RemoveDuplicates keeps the first occurrence of every value.
func RemoveDuplicates(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SortedStringKeys returns the map's keys in sorted order.
func SortedStringKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// WriteFileWithDirs creates parent directories (0755) and writes the file with perm.
func WriteFileWithDirs(p string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(p)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(p, data, perm)
}
