package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/superstate/config"
)

func reset(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		loggersMu.Lock()
		configured = nil
		loggers = make(map[string]*logrus.Entry)
		loggersMu.Unlock()
	})
}

func TestNewLoggerCachesPerComponent(t *testing.T) {
	reset(t)
	require.NoError(t, Configure(nil))

	logger := NewLogger("engine")
	require.NotNil(t, logger)
	assert.Equal(t, "engine", logger.Data["component"])
	assert.Same(t, logger, NewLogger("engine"))
	assert.NotSame(t, logger, NewLogger("server"))
}

func TestConfigureFromLoadedConfig(t *testing.T) {
	reset(t)
	t.Setenv("SUPERSTATE_HOME", t.TempDir())
	t.Setenv("SUPERSTATE_LOG_LEVEL", "")
	logFile := filepath.Join(t.TempDir(), "logs", "superstate.log")

	cfg, err := config.LoadFromBytes([]byte(`
logging:
  level: warn
  file:
    enabled: true
    path: ` + logFile + `
  format:
    preset: json
    structured_to_stderr: never
`))
	require.NoError(t, err)
	require.NoError(t, Configure(cfg))

	logger := NewLogger("engine")
	assert.Equal(t, logrus.WarnLevel, logger.Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Logger.Formatter)

	logger.Info("dropped")
	logger.WithField("space", "/docs").Warn("kept")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"space":"/docs"`)
	assert.Contains(t, string(data), `"component":"engine"`)
}

func TestEnvironmentOverridesLevel(t *testing.T) {
	reset(t)
	t.Setenv("SUPERSTATE_LOG_LEVEL", "debug")
	t.Setenv("SUPERSTATE_LOG_CALLER", "true")
	require.NoError(t, Configure(nil))

	logger := NewLogger("env")
	assert.Equal(t, logrus.DebugLevel, logger.Logger.GetLevel())
	assert.True(t, logger.Logger.ReportCaller)
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		level   logrus.Level
		data    logrus.Fields
		want    []string
		notWant []string
	}{
		{
			name:   "component and sorted fields",
			level:  logrus.InfoLevel,
			data:   logrus.Fields{"component": "engine", "space": "/docs", "path": "/docs/a.md"},
			want:   []string{"[INFO]", "engine", "msg path=/docs/a.md space=/docs"},
		},
		{
			name:    "warning is shortened",
			level:   logrus.WarnLevel,
			want:    []string{"[WARN]"},
			notWant: []string{"WARNING"},
		},
		{
			name:    "component disabled",
			config:  FormatConfig{DisableComponent: true, DisableTimestamp: true},
			level:   logrus.ErrorLevel,
			data:    logrus.Fields{"component": "engine"},
			want:    []string{"[ERROR] msg"},
			notWant: []string{"engine"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := logrus.NewEntry(logrus.New())
			entry.Level = tt.level
			entry.Message = "msg"
			if tt.data != nil {
				entry.Data = tt.data
			}
			out, err := (&TextFormatter{Config: tt.config}).Format(entry)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(out), w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, string(out), nw)
			}
			assert.True(t, strings.HasSuffix(string(out), "\n"))
		})
	}
}

func TestNewTestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)
	logger.WithField("job", "parse_path").Debug("Job done")
	assert.Equal(t, "[DEBUG] [test] Job done job=parse_path\n", stripStyles(buf.String()))
}

func TestToStderr(t *testing.T) {
	assert.True(t, toStderr("always", false, true))
	assert.False(t, toStderr("never", true, false))
	assert.False(t, toStderr("auto", false, true))
	assert.True(t, toStderr("auto", true, true))
	assert.True(t, toStderr("auto", false, false))
}

func TestReopeningWriterFollowsRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.log")
	w := newReopeningWriter(path)
	defer w.Close()

	_, err := w.Write([]byte("one\n"))
	require.NoError(t, err)
	require.NoError(t, os.Rename(path, path+".1"))

	_, err = w.Write([]byte("two\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(data))
	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(rotated))
}

// stripStyles removes ANSI escapes lipgloss may add.
func stripStyles(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func TestPrettyLoggerPlainForBuffers(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)
	p.Success("indexed")
	p.Field("Paths", 3)
	p.Error("failed", assert.AnError)

	lines := strings.Split(strings.TrimSpace(stripStyles(buf.String())), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "✓ indexed", lines[0])
	assert.Equal(t, "Paths", strings.TrimSpace(lines[1][:14]))
	assert.True(t, strings.HasSuffix(lines[1], " 3"))
	assert.Equal(t, "✗ failed: "+assert.AnError.Error(), lines[2])
}

func TestComponentLevels(t *testing.T) {
	t.Setenv("SUPERSTATE_LOG_LEVEL", "")
	cfg := Config{Level: "warn", Components: map[string]string{"dispatcher": "debug"}}
	assert.Equal(t, logrus.DebugLevel, cfg.levelFor("dispatcher"))
	assert.Equal(t, logrus.WarnLevel, cfg.levelFor("engine"))
	assert.Equal(t, logrus.InfoLevel, Config{Level: "loud"}.levelFor("engine"))

	t.Setenv("SUPERSTATE_LOG_LEVEL", "error")
	assert.Equal(t, logrus.ErrorLevel, cfg.levelFor("dispatcher"))
}

func TestTablePlainForBuffers(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf).Headers("PATH", "STATUS").Row("/docs/a.md", "done").Row("/docs/b.md", "")
	lines := strings.Split(strings.TrimRight(table.Render(), "\n"), "\n")

	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "PATH"))
	assert.Contains(t, lines[0], "STATUS")
	assert.True(t, strings.HasPrefix(lines[1], "/docs/a.md"))
	assert.Contains(t, lines[1], "done")
	assert.NotContains(t, table.Render(), "\x1b[")
	assert.NotContains(t, table.Render(), "╭")
}
