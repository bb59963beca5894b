package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/superstate/cli"
	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/collector"
	"github.com/grovetools/superstate/pkg/daemon"
	"github.com/grovetools/superstate/pkg/models"
	"github.com/grovetools/superstate/testutil"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Filter
		wantErr bool
	}{
		{in: "status:is:done", want: models.Filter{Field: "status", Fn: "is", Value: "done"}},
		{in: "due:before:2024-01-01T10:00", want: models.Filter{Field: "due", Fn: "before", Value: "2024-01-01T10:00"}},
		{in: "tags:is_empty", want: models.Filter{Field: "tags", Fn: "is_empty"}},
		{in: "tags:resembles:x", wantErr: true},
		{in: "status", wantErr: true},
		{in: ":is:x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFilter(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildView(t *testing.T) {
	var filters filterFlag
	require.NoError(t, filters.Set("status:is:done"))
	require.NoError(t, filters.Set("priority:gt:1"))
	assert.Error(t, filters.Set("priority"))
	assert.Equal(t, "[status:is:done,priority:gt:1]", filters.String())

	view, err := buildView(filters, []string{"priority:desc", "name"}, 5, true)
	require.NoError(t, err)
	assert.Equal(t, models.GroupAny, view.Filters.Type)
	assert.Len(t, view.Filters.Filters, 2)
	assert.Equal(t, []models.SortKey{{Field: "priority", Desc: true}, {Field: "name"}}, view.Sort)
	assert.Equal(t, 5, view.Limit)

	_, err = buildView(nil, []string{"name:sideways"}, 0, false)
	assert.Error(t, err)
	_, err = buildView(nil, nil, -1, false)
	assert.Error(t, err)
}

func TestSetFocus(t *testing.T) {
	focuses := []models.Focus{{Name: "a", Paths: []string{"/1.md"}}, {Name: "b", Paths: []string{"/2.md"}}}

	got := setFocus(focuses, models.Focus{Name: "a", Paths: []string{"/3.md"}})
	assert.Equal(t, []models.Focus{{Name: "a", Paths: []string{"/3.md"}}, {Name: "b", Paths: []string{"/2.md"}}}, got)

	got = setFocus(focuses, models.Focus{Name: "c", Paths: []string{"/4.md"}})
	assert.Len(t, got, 3)

	got = setFocus(focuses, models.Focus{Name: "a"})
	assert.Equal(t, []models.Focus{{Name: "b", Paths: []string{"/2.md"}}}, got)
}

func TestBuildMutation(t *testing.T) {
	m, err := buildMutation([]string{"renamed", "/new.md", "/old.md"}, "")
	require.NoError(t, err)
	assert.Equal(t, collector.Mutation{Kind: collector.MutationRenamed, Path: "/new.md", OldPath: "/old.md"}, m)

	_, err = buildMutation([]string{"renamed", "/new.md"}, "")
	assert.Error(t, err)
	_, err = buildMutation([]string{"declared", "spaces://x"}, "")
	assert.Error(t, err)
	_, err = buildMutation([]string{"definition", "spaces://x"}, "")
	assert.Error(t, err)

	def := filepath.Join(t.TempDir(), "def.json")
	require.NoError(t, os.WriteFile(def, []byte(`{"joins":[{"path":"/docs"}]}`), 0o644))
	m, err = buildMutation([]string{"definition", "spaces://x"}, def)
	require.NoError(t, err)
	require.NotNil(t, m.Definition)
	assert.Equal(t, "/docs", m.Definition.Joins[0].Path)
}

func TestCell(t *testing.T) {
	assert.Equal(t, "", cell(nil))
	assert.Equal(t, "a, b", cell([]interface{}{"a", "b"}))
	assert.Equal(t, "2", cell(float64(2)))
	assert.Equal(t, "true", cell(true))
}

// run executes c under a root carrying the standard flags.
func run(t *testing.T, c *cobra.Command, args ...string) string {
	t.Helper()
	root := cli.NewStandardCommand("superstate", "test")
	root.AddCommand(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func writeProject(t *testing.T) string {
	t.Helper()
	testutil.IsolateHome(t)
	dir := testutil.WriteVault(t, map[string]string{
		"superstate.yml": "persistence:\n  in_memory: true\n",
		"docs/a.md":      testutil.Note("A", map[string]string{"status": "done", "priority": "2"}),
		"docs/b.md":      testutil.Note("B", map[string]string{"status": "draft", "priority": "1"}),
	})
	return filepath.Join(dir, "superstate.yml")
}

func TestQueryCommandRunsLocally(t *testing.T) {
	cfgPath := writeProject(t)

	out := run(t, NewQueryCmd(), "query", "/docs", "--config", cfgPath, "--json", "--filter", "status:is:done")
	var rows []daemon.Row
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "/docs/a.md", rows[0][models.KeyColumn])

	out = run(t, NewQueryCmd(), "query", "/docs", "--config", cfgPath, "--sort", "priority")
	assert.Contains(t, out, "PATH")
	assert.NotContains(t, out, "\x1b[")
	assert.NotContains(t, out, "│")
	assert.Less(t, bytes.Index([]byte(out), []byte("/docs/b.md")), bytes.Index([]byte(out), []byte("/docs/a.md")))
}

func TestIndexCommand(t *testing.T) {
	cfgPath := writeProject(t)
	out := run(t, NewIndexCmd(), "index", "--config", cfgPath, "--json")
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.GreaterOrEqual(t, stats["paths"], float64(3))
}

func TestPathsCommand(t *testing.T) {
	testutil.IsolateHome(t)
	out := run(t, NewPathsCmd(), "paths")
	var p PathsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.NotEmpty(t, p.Socket)
	assert.NotEmpty(t, p.Database)
}

func TestConfigSchemaCommand(t *testing.T) {
	out := run(t, NewConfigCmd(), "config", "schema")
	assert.Contains(t, out, "superstate configuration")
}
