package models

// GroupType selects how the members of a filter group combine.
type GroupType string

const (
	GroupAll GroupType = "all"
	GroupAny GroupType = "any"
)

// Filter is one field/operator/value triple.
type Filter struct {
	Field string `json:"field" yaml:"field"`
	Fn    string `json:"fn" yaml:"fn"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// FilterGroup combines filters and nested groups with AND (all) or OR (any).
// An empty group matches everything.
type FilterGroup struct {
	Type    GroupType     `json:"type,omitempty" yaml:"type,omitempty"`
	Filters []Filter      `json:"filters,omitempty" yaml:"filters,omitempty"`
	Groups  []FilterGroup `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Clone returns a deep copy of the group.
func (g FilterGroup) Clone() FilterGroup {
	c := FilterGroup{Type: g.Type, Filters: append([]Filter(nil), g.Filters...)}
	for _, sub := range g.Groups {
		c.Groups = append(c.Groups, sub.Clone())
	}
	return c
}

// IsEmpty reports whether the group has no filters at any depth.
func (g FilterGroup) IsEmpty() bool {
	if len(g.Filters) > 0 {
		return false
	}
	for _, sub := range g.Groups {
		if !sub.IsEmpty() {
			return false
		}
	}
	return true
}

// SortKey orders rows by one field.
type SortKey struct {
	Field string `json:"field" yaml:"field"`
	Desc  bool   `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// View is a filter plus an ordered list of sort keys.
type View struct {
	Filters FilterGroup `json:"filters" yaml:"filters"`
	Sort    []SortKey   `json:"sort,omitempty" yaml:"sort,omitempty"`
	Limit   int         `json:"limit,omitempty" yaml:"limit,omitempty"`
}
