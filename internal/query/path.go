package query

import (
	"strings"

	"github.com/grovetools/superstate/pkg/models"
)

// PathRecord exposes a PathState's attributes and metadata as fields.
type PathRecord struct {
	State *models.PathState
}

// Value resolves built-in attributes first, then metadata keys.
func (r PathRecord) Value(field string) models.Value {
	p := r.State
	if p == nil {
		return models.Empty()
	}
	switch field {
	case "path":
		return models.Text(p.Path)
	case "name":
		return models.Text(p.Name)
	case "parent":
		return models.Text(p.Parent)
	case "type":
		return models.Text(string(p.Type))
	case "subtype", "extension":
		return models.Text(p.SubType)
	case "tags":
		return models.FromNative(p.Tags)
	case "spaces":
		return models.FromNative(p.Spaces)
	case "links", "outlinks":
		return models.FromNative(p.Outlinks)
	case "rank":
		return models.Text(p.Rank)
	case "readOnly":
		return models.Bool(p.ReadOnly)
	case "sticker":
		return models.Text(p.Label.Sticker)
	case "color":
		return models.Text(p.Label.Color)
	}
	return models.FromNative(p.Metadata[field])
}

// PathTypes declares the types of PathRecord's built-in list fields.
var PathTypes = Types{
	"tags":     models.ColumnOption,
	"spaces":   models.ColumnOption,
	"links":    models.ColumnOption,
	"outlinks": models.ColumnOption,
	"readOnly": models.ColumnBoolean,
}

// RowRecord exposes a linked context row.
type RowRecord struct {
	Row models.LinkedRow
}

// Value returns the row's effective value for field.
func (r RowRecord) Value(field string) models.Value {
	return r.Row[field]
}

// MatchPath reports whether any join of def selects p. Virtual space
// paths never match.
func MatchPath(def *models.SpaceDefinition, p *models.PathState) bool {
	if def == nil || p == nil || models.IsSpacePath(p.Path) {
		return false
	}
	rec := PathRecord{State: p}
	for _, j := range def.Joins {
		if !inScope(j, p.Path) {
			continue
		}
		if Match(j.Filters, rec, PathTypes) {
			return true
		}
	}
	return false
}

func inScope(j models.Join, p string) bool {
	scope := strings.TrimSuffix(j.Path, "/")
	if scope == "" {
		return j.Recursive || j.Path == "" || models.ParentPath(p) == "/"
	}
	if p == scope {
		return false
	}
	if j.Recursive {
		return strings.HasPrefix(p, scope+"/")
	}
	return models.ParentPath(p) == scope
}
