package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/pkg/paths"
	"github.com/grovetools/superstate/util/pathutil"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are the project file names, in precedence order.
var configNames = []string{
	"superstate.yml",
	"superstate.yaml",
	".superstate.yml",
	"superstate.toml",
}

var overrideNames = []string{
	"superstate.override.yml",
	"superstate.override.yaml",
	".superstate.override.yml",
	"superstate.override.toml",
}

// Load reads and parses a single superstate configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := parse(data, isTOML(path))
	if err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	return finish(cfg)
}

// LoadDefault finds and loads the configuration with hierarchical merging:
// 1. Global config (~/.config/superstate/superstate.yml) - base layer
// 2. Project config (superstate.yml) - overrides global
// 3. Local override (superstate.override.yml) - overrides all
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from the given directory
func LoadFrom(startDir string) (*Config, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return LoadFromWithLogger(startDir, logger)
}

// LoadFromWithLogger loads configuration with hierarchical merging and logging
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	layers, err := loadLayers(startDir, logger)
	if err != nil {
		return nil, err
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(layers.Final); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return layers.Final, nil
}

// LoadLayered finds and loads all configuration layers (global, project,
// overrides) without merging them, for analysis purposes. It also computes
// the final merged config.
func LoadLayered(startDir string) (*LayeredConfig, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return loadLayers(startDir, logger)
}

func loadLayers(startDir string, logger *logrus.Logger) (*LayeredConfig, error) {
	projectPath, err := FindConfigFile(startDir)
	if err != nil {
		return nil, err
	}

	layered := &LayeredConfig{
		Default:   Default(),
		FilePaths: make(map[ConfigSource]string),
	}

	// 1. Global config is optional and never fatal.
	globalPath := getXDGConfigPath()
	if globalPath != "" && globalPath != projectPath {
		if _, err := os.Stat(globalPath); err == nil {
			logger.WithField("path", globalPath).Debug("Loading global configuration")
			if cfg, err := readLayer(globalPath); err == nil {
				layered.Global = cfg
				layered.FilePaths[SourceGlobal] = globalPath
			} else {
				logger.WithError(err).Warn("Failed to parse global configuration, continuing without it")
			}
		}
	}

	// 2. Project config is required.
	logger.WithField("path", projectPath).Debug("Loading project configuration")
	project, err := readLayer(projectPath)
	if err != nil {
		return nil, err
	}
	layered.Project = project
	layered.FilePaths[SourceProject] = projectPath

	// 3. Overrides sit next to the project file.
	projectDir := filepath.Dir(projectPath)
	for _, name := range overrideNames {
		overridePath := filepath.Join(projectDir, name)
		if _, err := os.Stat(overridePath); err != nil {
			continue
		}
		logger.WithField("path", overridePath).Debug("Loading local override configuration")
		cfg, err := readLayer(overridePath)
		if err != nil {
			logger.WithError(err).Warn("Failed to parse override file, skipping")
			continue
		}
		layered.Overrides = append(layered.Overrides, OverrideSource{Path: overridePath, Config: cfg})
		if _, ok := layered.FilePaths[SourceOverride]; !ok {
			layered.FilePaths[SourceOverride] = overridePath
		}
	}

	final := &Config{}
	if layered.Global != nil {
		final = mergeConfigs(final, layered.Global)
	}
	final = mergeConfigs(final, layered.Project)
	for _, o := range layered.Overrides {
		final = mergeConfigs(final, o.Config)
	}
	final.dir = projectDir

	if layered.Final, err = finish(final); err != nil {
		return nil, err
	}
	return layered, nil
}

// LoadFromBytes parses YAML configuration from a byte array
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := parse(data, false)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// readLayer reads one file without applying defaults.
func readLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}
	cfg, err := parse(data, isTOML(path))
	if err != nil {
		if ie, ok := err.(*errors.IndexError); ok {
			return nil, ie.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// parse expands environment variables, validates the raw document against
// the schema and decodes it. TOML documents are normalised to YAML first so
// both formats share one set of field names.
func parse(data []byte, tomlDoc bool) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var raw map[string]interface{}
	if tomlDoc {
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
		converted, err := yaml.Marshal(raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to convert TOML configuration")
		}
		expanded = converted
	} else if err := yaml.Unmarshal(expanded, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
	}

	if raw != nil {
		validator, err := NewSchemaValidator()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
		}
		if err := validator.Validate(raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}
	return &cfg, nil
}

// finish applies defaults, anchors relative paths at the config directory
// and validates.
func finish(cfg *Config) (*Config, error) {
	cfg.SetDefaults()
	cfg.Vault.Root = pathutil.Expand(cfg.Vault.Root)
	if cfg.dir != "" && !filepath.IsAbs(cfg.Vault.Root) {
		cfg.Vault.Root = filepath.Join(cfg.dir, cfg.Vault.Root)
	}
	cfg.Persistence.Path = pathutil.Expand(cfg.Persistence.Path)
	cfg.Server.Socket = pathutil.Expand(cfg.Server.Socket)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile searches for superstate configuration files with the
// following precedence:
// 1. Current directory up to filesystem root
// 2. XDG config directory (~/.config/superstate/superstate.yml)
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if xdgConfigPath := getXDGConfigPath(); xdgConfigPath != "" {
		if info, err := os.Stat(xdgConfigPath); err == nil && !info.IsDir() {
			return xdgConfigPath, nil
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

func isTOML(path string) bool {
	return strings.HasSuffix(path, ".toml")
}

// getXDGConfigPath returns the path of the global superstate.yml
func getXDGConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "superstate.yml")
}

// MarshalJSON renders the configuration for `config show --json`.
func (c *Config) MarshalJSON() ([]byte, error) {
	type plain Config
	data, err := yaml.Marshal((*plain)(c))
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
