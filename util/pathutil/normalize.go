package pathutil

import (
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizeForLookup returns the absolute, symlink-free form of path,
// lowercased on case-insensitive platforms. A path that does not exist yet
// is only made absolute.
func NormalizeForLookup(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		canonical = abs
	}
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return strings.ToLower(canonical), nil
	}
	return canonical, nil
}

// SamePath reports whether a and b name the same location.
func SamePath(a, b string) bool {
	na, err := NormalizeForLookup(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeForLookup(b)
	if err != nil {
		return false
	}
	return na == nb
}
