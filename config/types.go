package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/grovetools/superstate/pkg/models"
	"github.com/grovetools/superstate/pkg/paths"
)

// VaultConfig locates the content store and selects the files it indexes.
type VaultConfig struct {
	Root    string   `yaml:"root,omitempty" jsonschema:"description=Vault root directory (default: the directory holding superstate.yml)"`
	Include []string `yaml:"include,omitempty" jsonschema:"description=Doublestar globs of indexed files (default: **/*.md)"`
	Exclude []string `yaml:"exclude,omitempty" jsonschema:"description=Doublestar globs of ignored files and folders"`
}

// IndexConfig tunes the indexing engine.
type IndexConfig struct {
	Workers        int   `yaml:"workers,omitempty" jsonschema:"minimum=1,maximum=64,description=Concurrent parse jobs (default: CPU count clamped to 1..8)"`
	DebounceMs     int   `yaml:"debounce_ms,omitempty" jsonschema:"minimum=0,description=Quiet period before file events are resolved (default: 150)"`
	SyncProperties *bool `yaml:"sync_properties,omitempty" jsonschema:"description=Add a column for every metadata key of a space's members (default: true)"`
	SlowJobMs      int   `yaml:"slow_job_ms,omitempty" jsonschema:"minimum=0,description=Jobs slower than this are logged (default: 500)"`
	WatchConfig    *bool `yaml:"watch_config,omitempty" jsonschema:"description=Reload declared spaces when config files change (default: true)"`
}

// PersistenceConfig selects where cached state survives restarts.
type PersistenceConfig struct {
	Path     string `yaml:"path,omitempty" jsonschema:"description=Database directory (default: $XDG_STATE_HOME/superstate/db)"`
	InMemory bool   `yaml:"in_memory,omitempty" jsonschema:"description=Keep cached state in memory only"`
}

// ServerConfig configures the daemon's local API.
type ServerConfig struct {
	Socket string `yaml:"socket,omitempty" jsonschema:"description=Unix socket path (default: $XDG_RUNTIME_DIR/superstate/superstate.sock)"`
}

// Config represents the superstate.yml configuration
type Config struct {
	Version     string                             `yaml:"version,omitempty" jsonschema:"oneof_type=string;number,description=Configuration version (e.g. 1.0)"`
	Vault       VaultConfig                        `yaml:"vault,omitempty" jsonschema:"description=Content store location and file selection"`
	Index       IndexConfig                        `yaml:"index,omitempty" jsonschema:"description=Indexing engine settings"`
	Persistence PersistenceConfig                  `yaml:"persistence,omitempty" jsonschema:"description=Cached state persistence"`
	Server      ServerConfig                       `yaml:"server,omitempty" jsonschema:"description=Daemon API settings"`
	Spaces      map[string]*models.SpaceDefinition `yaml:"spaces,omitempty" jsonschema:"description=Virtual spaces seeded at startup, keyed by name"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" jsonschema:"-"`

	// dir is the directory of the project file the config was loaded from.
	dir string
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Vault.Root == "" {
		c.Vault.Root = c.dir
	}
	if c.Vault.Root == "" {
		c.Vault.Root = "."
	}
	if len(c.Vault.Include) == 0 {
		c.Vault.Include = []string{"**/*.md"}
	}
	if c.Vault.Exclude == nil {
		c.Vault.Exclude = []string{".git/**", ".space/**"}
	}

	if c.Index.Workers == 0 {
		c.Index.Workers = runtime.NumCPU()
		if c.Index.Workers > 8 {
			c.Index.Workers = 8
		}
		if c.Index.Workers < 1 {
			c.Index.Workers = 1
		}
	}
	if c.Index.DebounceMs == 0 {
		c.Index.DebounceMs = 150
	}
	if c.Index.SyncProperties == nil {
		trueVal := true
		c.Index.SyncProperties = &trueVal
	}
	if c.Index.SlowJobMs == 0 {
		c.Index.SlowJobMs = 500
	}
	if c.Index.WatchConfig == nil {
		trueVal := true
		c.Index.WatchConfig = &trueVal
	}

	if c.Persistence.Path == "" && !c.Persistence.InMemory {
		c.Persistence.Path = paths.DatabasePath()
	}
	if c.Server.Socket == "" {
		c.Server.Socket = paths.SocketPath()
	}
}

// Dir returns the directory of the project configuration file, or "" when
// the configuration did not come from a file.
func (c *Config) Dir() string {
	return c.dir
}

// Debounce returns the watcher quiet period.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Index.DebounceMs) * time.Millisecond
}

// SlowJob returns the slow job threshold.
func (c *Config) SlowJob() time.Duration {
	return time.Duration(c.Index.SlowJobMs) * time.Millisecond
}

// SyncProperties reports whether metadata keys become table columns.
func (c *Config) SyncProperties() bool {
	return c.Index.SyncProperties == nil || *c.Index.SyncProperties
}

// WatchConfig reports whether configuration files are watched for changes.
func (c *Config) WatchConfig() bool {
	return c.Index.WatchConfig == nil || *c.Index.WatchConfig
}

// DeclaredSpaces returns the configured virtual spaces keyed by space path.
func (c *Config) DeclaredSpaces() map[string]*models.SpaceDefinition {
	out := make(map[string]*models.SpaceDefinition, len(c.Spaces))
	for name, def := range c.Spaces {
		if def == nil {
			def = &models.SpaceDefinition{}
		}
		out[models.SpacePrefix+name] = def.Clone()
	}
	return out
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded superstate.yml into the provided target struct. The target must be
// a pointer. A missing key leaves the target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// ConfigSource identifies the origin of a configuration layer.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceGlobal   ConfigSource = "global"
	SourceProject  ConfigSource = "project"
	SourceOverride ConfigSource = "override"
)

// OverrideSource holds a raw configuration from an override file and its path.
type OverrideSource struct {
	Path   string
	Config *Config
}

// LayeredConfig holds the raw configuration from each source file,
// as well as the final merged configuration, for analysis purposes.
type LayeredConfig struct {
	Default   *Config
	Global    *Config
	Project   *Config
	Overrides []OverrideSource
	Final     *Config
	FilePaths map[ConfigSource]string
}
