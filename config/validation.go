package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/query"
	"github.com/grovetools/superstate/pkg/models"
)

var spaceNameRegex = regexp.MustCompile(`^[^#/\s][^/]*$`)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for _, pattern := range append(append([]string(nil), c.Vault.Include...), c.Vault.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return errors.ConfigInvalid(fmt.Sprintf("bad glob pattern %q", pattern)).
				WithDetail("pattern", pattern)
		}
	}
	if c.Index.Workers < 1 {
		return errors.ConfigInvalid("index.workers must be at least 1")
	}
	if c.Index.DebounceMs < 0 || c.Index.SlowJobMs < 0 {
		return errors.ConfigInvalid("index durations cannot be negative")
	}
	if c.Persistence.Path == "" && !c.Persistence.InMemory {
		return errors.ConfigInvalid("persistence.path is required unless persistence.in_memory is set")
	}

	for name, def := range c.Spaces {
		if err := validateSpace(name, def); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid space '%s'", name)).
				WithDetail("space", name)
		}
	}
	return nil
}

func validateSpace(name string, def *models.SpaceDefinition) error {
	if !spaceNameRegex.MatchString(name) {
		return fmt.Errorf("space names cannot be empty, start with '#' or contain '/'")
	}
	if def == nil {
		return nil
	}
	for _, j := range def.Joins {
		if j.Path != "" && !strings.HasPrefix(j.Path, "/") && !models.IsSpacePath(j.Path) {
			return fmt.Errorf("join path %q must be absolute", j.Path)
		}
		if err := validateGroup(j.Filters); err != nil {
			return err
		}
	}
	for _, s := range def.Sort {
		if s.Field == "" {
			return fmt.Errorf("sort keys need a field")
		}
	}
	return nil
}

func validateGroup(g models.FilterGroup) error {
	if g.Type != "" && g.Type != models.GroupAll && g.Type != models.GroupAny {
		return fmt.Errorf("unknown filter group type %q", g.Type)
	}
	for _, f := range g.Filters {
		if f.Field == "" {
			return fmt.Errorf("filters need a field")
		}
		if !query.KnownFn(f.Fn) {
			return fmt.Errorf("unknown filter function %q", f.Fn)
		}
	}
	for _, sub := range g.Groups {
		if err := validateGroup(sub); err != nil {
			return err
		}
	}
	return nil
}
