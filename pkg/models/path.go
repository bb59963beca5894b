// Package models defines the cached entity types shared by the index:
// paths, spaces, context tables and the variant values stored in them.
package models

import (
	"path"
	"strings"
)

// PathType identifies what kind of content item a path is.
type PathType string

const (
	PathTypeFile   PathType = "file"
	PathTypeFolder PathType = "folder"
	PathTypeSpace  PathType = "space" // virtual space, no backing folder
	PathTypeTag    PathType = "tag"
)

// SpacePrefix marks virtual space paths; tag spaces live under SpacePrefix + "#tag".
const SpacePrefix = "spaces://"

// Label is the display decoration of a path.
type Label struct {
	Name    string `json:"name,omitempty" mapstructure:"name"`
	Sticker string `json:"sticker,omitempty" mapstructure:"sticker"`
	Color   string `json:"color,omitempty" mapstructure:"color"`
	Cover   string `json:"cover,omitempty" mapstructure:"cover"`
	Preview string `json:"preview,omitempty" mapstructure:"preview"`
}

// PathState is the latest computed state of one content item.
// Spaces, Tags and Outlinks always mirror the forward entries of the
// store's dependency maps once the state has been stored.
// A stored PathState is never mutated; writers build a new one.
type PathState struct {
	Path     string                 `json:"path"`
	Name     string                 `json:"name"`
	Parent   string                 `json:"parent"`
	Type     PathType               `json:"type"`
	SubType  string                 `json:"subtype,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Label    Label                  `json:"label"`
	Spaces   []string               `json:"spaces"`
	Tags     []string               `json:"tags"`
	Inlinks  []string               `json:"inlinks,omitempty"`
	Outlinks []string               `json:"outlinks"`
	ReadOnly bool                   `json:"readOnly"`
	Rank     string                 `json:"rank,omitempty"`
	Hidden   bool                   `json:"hidden,omitempty"`
}

// Clone returns a copy that can be modified without touching the original.
func (p *PathState) Clone() *PathState {
	if p == nil {
		return nil
	}
	c := *p
	c.Metadata = CloneMetadata(p.Metadata)
	c.Spaces = append([]string(nil), p.Spaces...)
	c.Tags = append([]string(nil), p.Tags...)
	c.Inlinks = append([]string(nil), p.Inlinks...)
	c.Outlinks = append([]string(nil), p.Outlinks...)
	return &c
}

// Title returns the metadata title when present, else the display name.
func (p *PathState) Title() string {
	if p == nil {
		return ""
	}
	if t, ok := p.Metadata["title"].(string); ok && t != "" {
		return t
	}
	if p.Label.Name != "" {
		return p.Label.Name
	}
	return p.Name
}

// CloneMetadata copies a metadata map one level deep.
func CloneMetadata(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if list, ok := v.([]interface{}); ok {
			v = append([]interface{}(nil), list...)
		}
		out[k] = v
	}
	return out
}

// ParentPath returns the containing folder of p ("/" for top level items).
func ParentPath(p string) string {
	if IsSpacePath(p) {
		return ""
	}
	dir := path.Dir(p)
	if dir == "." {
		return "/"
	}
	return dir
}

// BaseName returns the file name of p without its extension.
func BaseName(p string) string {
	if IsTagSpace(p) {
		return TagFromSpace(p)
	}
	base := path.Base(strings.TrimPrefix(p, SpacePrefix))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Extension returns the extension of p without the dot.
func Extension(p string) string {
	return strings.TrimPrefix(path.Ext(p), ".")
}

// IsSpacePath reports whether p is a virtual space path.
func IsSpacePath(p string) bool {
	return strings.HasPrefix(p, SpacePrefix)
}

// NormalizeTag lowercases a tag and ensures the leading '#'.
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return strings.ToLower(tag)
}

// TagSpacePath returns the backing space path of a tag.
func TagSpacePath(tag string) string {
	return SpacePrefix + NormalizeTag(tag)
}

// IsTagSpace reports whether p is the backing space of a tag.
func IsTagSpace(p string) bool {
	return strings.HasPrefix(p, SpacePrefix+"#")
}

// TagFromSpace returns the tag a tag space path stands for.
func TagFromSpace(p string) string {
	return strings.TrimPrefix(p, SpacePrefix)
}
