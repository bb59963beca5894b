package models

// SpaceKind identifies where a space's membership comes from.
type SpaceKind string

const (
	SpaceKindFolder  SpaceKind = "folder"
	SpaceKindTag     SpaceKind = "tag"
	SpaceKindVirtual SpaceKind = "virtual"
)

// Join is a declarative membership rule: every path below Path (direct
// children unless Recursive) that satisfies Filters belongs to the space.
// An empty Path matches the whole vault.
type Join struct {
	Path      string      `json:"path,omitempty" yaml:"path,omitempty"`
	Recursive bool        `json:"recursive,omitempty" yaml:"recursive,omitempty"`
	Filters   FilterGroup `json:"filters" yaml:"filters"`
}

// SpaceDefinition holds a space's membership rules and presentation.
type SpaceDefinition struct {
	Note     string    `json:"note,omitempty" yaml:"note,omitempty"`
	Links    []string  `json:"links,omitempty" yaml:"links,omitempty"`
	Joins    []Join    `json:"joins,omitempty" yaml:"joins,omitempty"`
	Sort     []SortKey `json:"sort,omitempty" yaml:"sort,omitempty"`
	Template string    `json:"template,omitempty" yaml:"template,omitempty"`
	Contexts []string  `json:"contexts,omitempty" yaml:"contexts,omitempty"`
}

// Clone returns a deep copy of the definition.
func (d *SpaceDefinition) Clone() *SpaceDefinition {
	if d == nil {
		return nil
	}
	c := *d
	c.Links = append([]string(nil), d.Links...)
	c.Sort = append([]SortKey(nil), d.Sort...)
	c.Contexts = append([]string(nil), d.Contexts...)
	c.Joins = make([]Join, len(d.Joins))
	for i, j := range d.Joins {
		c.Joins[i] = Join{Path: j.Path, Recursive: j.Recursive, Filters: j.Filters.Clone()}
	}
	return &c
}

// HasRules reports whether the definition contributes members beyond
// folder or tag membership.
func (d *SpaceDefinition) HasRules() bool {
	return d != nil && (len(d.Links) > 0 || len(d.Joins) > 0)
}

// SpaceState is the latest computed state of one space.
type SpaceState struct {
	Path           string                `json:"path"`
	Name           string                `json:"name"`
	Kind           SpaceKind             `json:"kind"`
	NotePath       string                `json:"note,omitempty"`
	Definition     *SpaceDefinition      `json:"definition,omitempty"`
	Contexts       []string              `json:"contexts"`
	Sortable       bool                  `json:"sortable"`
	PropertyTypes  map[string]ColumnType `json:"propertyTypes,omitempty"`
	PropertyValues map[string][]string   `json:"propertyValues,omitempty"`
	ReadOnly       bool                  `json:"readOnly,omitempty"`
}

// Clone returns a copy that can be modified without touching the original.
func (s *SpaceState) Clone() *SpaceState {
	if s == nil {
		return nil
	}
	c := *s
	c.Definition = s.Definition.Clone()
	c.Contexts = append([]string(nil), s.Contexts...)
	if s.PropertyTypes != nil {
		c.PropertyTypes = make(map[string]ColumnType, len(s.PropertyTypes))
		for k, v := range s.PropertyTypes {
			c.PropertyTypes[k] = v
		}
	}
	if s.PropertyValues != nil {
		c.PropertyValues = make(map[string][]string, len(s.PropertyValues))
		for k, v := range s.PropertyValues {
			c.PropertyValues[k] = append([]string(nil), v...)
		}
	}
	return &c
}

// Focus is a named, ordered list of paths pinned by the user.
type Focus struct {
	Name  string   `json:"name"`
	Paths []string `json:"paths"`
}
