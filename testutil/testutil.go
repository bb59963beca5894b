// Package testutil builds throwaway vaults and state directories for tests.
package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// IsolateHome points every superstate state directory at a fresh temp dir
// for the duration of the test.
func IsolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SUPERSTATE_HOME", home)
	return home
}

// WriteVault creates a vault in a temp dir holding files, keyed by slash
// separated relative path. A key ending in "/" creates an empty folder.
func WriteVault(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	WriteFiles(t, root, files)
	return root
}

// WriteFiles writes files below root, creating parent folders.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if name != "" && name[len(name)-1] == '/' {
			require.NoError(t, os.MkdirAll(full, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	}
}

// Note renders a markdown note with YAML frontmatter from props.
func Note(title string, props map[string]string) string {
	out := ""
	if len(props) > 0 {
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out = "---\n"
		for _, k := range keys {
			out += k + ": " + props[k] + "\n"
		}
		out += "---\n"
	}
	return out + "# " + title + "\n"
}
