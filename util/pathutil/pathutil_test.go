package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("VAULT_DIR", "/srv/notes")

	assert.Equal(t, filepath.Join(home, "notes"), Expand("~/notes"))
	assert.Equal(t, home, Expand("~"))
	assert.Equal(t, "/srv/notes/db", Expand("$VAULT_DIR/db"))
	assert.Equal(t, "/srv/notes/db", Expand("${VAULT_DIR}/db"))
	assert.Equal(t, "rel/path", Expand("rel/path"))
	assert.Equal(t, "", Expand(""))
}

func TestSamePathFollowsSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	assert.True(t, SamePath(link, target))
	assert.False(t, SamePath(link, dir))
	assert.True(t, SamePath(filepath.Join(dir, "missing"), filepath.Join(dir, "missing")))
}
