// Package pathutil resolves user-supplied paths.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Expand replaces a leading ~ with the user's home directory and expands
// $VAR and ${VAR} references. Relative paths stay relative.
func Expand(path string) string {
	if path == "" {
		return ""
	}
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
