package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config is the `logging` section of superstate.yml.
type Config struct {
	Level string `yaml:"level" json:"level,omitempty" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error"`

	// Components overrides Level per component, e.g. {dispatcher: debug}.
	Components map[string]string `yaml:"components" json:"components,omitempty"`

	ReportCaller bool           `yaml:"report_caller" json:"report_caller,omitempty"`
	File         FileSinkConfig `yaml:"file" json:"file,omitempty"`
	Format       FormatConfig   `yaml:"format" json:"format,omitempty"`
}

// FileSinkConfig enables the file sink. An empty Path writes to
// $XDG_STATE_HOME/superstate/logs/<component>-<date>.log.
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled,omitempty"`
	Path    string `yaml:"path" json:"path,omitempty"`
}

// FormatConfig controls how entries are rendered.
type FormatConfig struct {
	Preset             string `yaml:"preset" json:"preset,omitempty" jsonschema:"enum=default,enum=simple,enum=json"`
	DisableTimestamp   bool   `yaml:"disable_timestamp" json:"disable_timestamp,omitempty"`
	DisableComponent   bool   `yaml:"disable_component" json:"disable_component,omitempty"`
	StructuredToStderr string `yaml:"structured_to_stderr" json:"structured_to_stderr,omitempty" jsonschema:"enum=auto,enum=always,enum=never"`
}

// levelFor resolves the level of one component. SUPERSTATE_LOG_LEVEL wins,
// then the component override, then Level. Unknown names fall back to info.
func (c Config) levelFor(component string) logrus.Level {
	name := os.Getenv("SUPERSTATE_LOG_LEVEL")
	if name == "" {
		name = c.Components[component]
	}
	if name == "" {
		name = c.Level
	}
	level, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (c Config) stderrMode() string {
	if c.Format.StructuredToStderr == "" {
		return "auto"
	}
	return c.Format.StructuredToStderr
}
