package config

import (
	"github.com/grovetools/superstate/pkg/models"
)

// mergeConfigs merges override configuration into base. Scalars in override
// win when set; lists replace; spaces and extensions merge by key.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}
	result.Vault = mergeVault(result.Vault, override.Vault)
	result.Index = mergeIndex(result.Index, override.Index)
	result.Persistence = mergePersistence(result.Persistence, override.Persistence)
	if override.Server.Socket != "" {
		result.Server.Socket = override.Server.Socket
	}

	if override.Spaces != nil {
		spaces := make(map[string]*models.SpaceDefinition, len(result.Spaces)+len(override.Spaces))
		for name, def := range result.Spaces {
			spaces[name] = def
		}
		for name, def := range override.Spaces {
			spaces[name] = def
		}
		result.Spaces = spaces
	}

	if override.Extensions != nil {
		extensions := make(map[string]interface{}, len(result.Extensions)+len(override.Extensions))
		for key, value := range result.Extensions {
			extensions[key] = value
		}
		for key, value := range override.Extensions {
			// If both base and override have the same extension key, merge them
			if baseMap, ok := extensions[key].(map[string]interface{}); ok {
				if overrideMap, ok := value.(map[string]interface{}); ok {
					merged := make(map[string]interface{}, len(baseMap)+len(overrideMap))
					for k, v := range baseMap {
						merged[k] = v
					}
					for k, v := range overrideMap {
						merged[k] = v
					}
					extensions[key] = merged
					continue
				}
			}
			extensions[key] = value
		}
		result.Extensions = extensions
	}

	return &result
}

func mergeVault(base, override VaultConfig) VaultConfig {
	result := base
	if override.Root != "" {
		result.Root = override.Root
	}
	if len(override.Include) > 0 {
		result.Include = override.Include
	}
	if override.Exclude != nil {
		result.Exclude = override.Exclude
	}
	return result
}

func mergeIndex(base, override IndexConfig) IndexConfig {
	result := base
	if override.Workers != 0 {
		result.Workers = override.Workers
	}
	if override.DebounceMs != 0 {
		result.DebounceMs = override.DebounceMs
	}
	if override.SyncProperties != nil {
		result.SyncProperties = override.SyncProperties
	}
	if override.SlowJobMs != 0 {
		result.SlowJobMs = override.SlowJobMs
	}
	if override.WatchConfig != nil {
		result.WatchConfig = override.WatchConfig
	}
	return result
}

func mergePersistence(base, override PersistenceConfig) PersistenceConfig {
	result := base
	if override.Path != "" {
		result.Path = override.Path
	}
	if override.InMemory {
		result.InMemory = true
	}
	return result
}
