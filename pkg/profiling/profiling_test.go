package profiling

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderNestsSpans(t *testing.T) {
	r := NewRecorder()
	outer := r.Start("reindex")
	inner := r.Start("walk")
	inner.Stop()
	r.Start("settle").Stop()
	outer.Stop()
	r.Start("flush").Stop()

	var buf bytes.Buffer
	r.Summarize(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[1], "reindex "))
	assert.True(t, strings.HasPrefix(lines[2], "  walk "))
	assert.True(t, strings.HasPrefix(lines[3], "  settle "))
	assert.True(t, strings.HasPrefix(lines[4], "flush "))
	assert.True(t, strings.HasPrefix(lines[5], "total "))
}

func TestStopPopsUnstoppedChildren(t *testing.T) {
	r := NewRecorder()
	outer := r.Start("outer")
	r.Start("leaked")
	outer.Stop()
	r.Start("next").Stop()

	var buf bytes.Buffer
	r.Summarize(&buf)
	assert.Contains(t, buf.String(), "\nnext ")
	assert.Contains(t, buf.String(), "leaked")
	assert.Contains(t, buf.String(), "(open)")
}

func TestDisabledRecorder(t *testing.T) {
	var r Recorder
	r.Start("x").Stop()
	var buf bytes.Buffer
	r.Summarize(&buf)
	assert.Empty(t, buf.String())
}

func TestCobraProfilerWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.out")
	mem := filepath.Join(dir, "mem.out")

	root := &cobra.Command{Use: "x", RunE: func(cmd *cobra.Command, args []string) error { return nil }}
	NewCobraProfiler().AddFlags(root)
	var out bytes.Buffer
	root.SetErr(&out)
	root.SetArgs([]string{"--cpu-profile", cpu, "--mem-profile", mem})
	require.NoError(t, root.Execute())

	for _, p := range []string{cpu, mem} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
	assert.Contains(t, out.String(), "CPU profile written")
}
