package indexer

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/query"
	"github.com/grovetools/superstate/pkg/models"
)

// resolver maps bare link names found in metadata onto known paths. The
// name table is built on first use and shared by every path of a job.
type resolver struct {
	snap  *store.Snapshot
	once  sync.Once
	names map[string]string
}

func newResolver(snap *store.Snapshot) *resolver {
	return &resolver{snap: snap}
}

func (r *resolver) resolve(from, raw string) string {
	target := models.StripLink(raw)
	if target == "" {
		return ""
	}
	if path.Ext(target) == "" {
		target += ".md"
	}
	if strings.HasPrefix(target, "/") {
		return path.Clean(target)
	}
	if strings.Contains(target, "/") {
		return path.Clean("/" + target)
	}
	r.once.Do(func() {
		r.names = make(map[string]string)
		if r.snap == nil {
			return
		}
		for _, p := range r.snap.Paths() {
			key := strings.ToLower(path.Base(p.Path))
			if cur, ok := r.names[key]; !ok || strings.Count(p.Path, "/") < strings.Count(cur, "/") {
				r.names[key] = p.Path
			}
		}
	})
	if p, ok := r.names[strings.ToLower(target)]; ok {
		return p
	}
	return path.Join(models.ParentPath(from), target)
}

// NotePath returns the canonical note of a folder space: the definition's
// note when set, else <folder>/<name>.md.
func NotePath(folder string, def *models.SpaceDefinition) string {
	if def != nil && def.Note != "" {
		return def.Note
	}
	return folder + "/" + path.Base(folder) + ".md"
}

// BuildPath parses p into a PathState. A path missing from storage yields
// nil without an error.
func (ix *Indexer) BuildPath(snap *store.Snapshot, res *resolver, p string) (*models.PathState, error) {
	pc, err := ix.adapter.ReadPathCache(p)
	if err != nil || pc == nil {
		return nil, err
	}

	st := &models.PathState{
		Path:     p,
		Name:     models.BaseName(p),
		Parent:   models.ParentPath(p),
		Type:     pc.Type,
		SubType:  pc.SubType,
		Metadata: models.CloneMetadata(pc.Metadata),
		ReadOnly: pc.ReadOnly,
	}
	tags := append([]string(nil), pc.Tags...)
	links := append([]string(nil), pc.Links...)

	if pc.Type == models.PathTypeFolder {
		var def *models.SpaceDefinition
		if snap != nil {
			if sp := snap.Space(p); sp != nil {
				def = sp.Definition
			}
		}
		note, err := ix.adapter.ReadPathCache(NotePath(p, def))
		if err != nil {
			return nil, err
		}
		if note != nil && note.Type == models.PathTypeFile {
			st.Metadata = models.CloneMetadata(note.Metadata)
			tags = append(tags, note.Tags...)
			links = append(links, note.Links...)
		}
	}

	if st.Metadata == nil {
		st.Metadata = map[string]interface{}{}
	}
	st.Label = ix.decodeLabel(st.Metadata)
	st.Tags = mergeTags(tags, st.Metadata["tags"])
	st.Outlinks = mergeLinks(links, st.Metadata, func(raw string) string { return res.resolve(p, raw) })
	if r, ok := st.Metadata["rank"]; ok {
		st.Rank = models.FromNative(r).String()
	}
	hidden, _ := st.Metadata["hidden"].(bool)
	st.Hidden = hidden || strings.HasPrefix(path.Base(p), ".")
	st.Spaces = Memberships(snap, st)
	return st, nil
}

func (ix *Indexer) decodeLabel(meta map[string]interface{}) models.Label {
	var label models.Label
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &label,
	})
	if err == nil {
		err = dec.Decode(meta)
	}
	if err != nil {
		ix.logger.WithError(err).Debug("Ignoring malformed label metadata")
		return models.Label{}
	}
	return label
}

// Memberships computes the spaces st belongs to: its parent folder space,
// its tag spaces, and every space whose definition links or joins it.
func Memberships(snap *store.Snapshot, st *models.PathState) []string {
	seen := make(map[string]struct{})
	if snap != nil {
		if parent := snap.Space(st.Parent); parent != nil && parent.Kind == models.SpaceKindFolder {
			seen[parent.Path] = struct{}{}
		}
	}
	for _, t := range st.Tags {
		seen[models.TagSpacePath(t)] = struct{}{}
	}
	if snap != nil {
		for _, sp := range snap.Spaces() {
			if sp.Path == st.Path || !sp.Definition.HasRules() {
				continue
			}
			if containsPath(sp.Definition.Links, st.Path) || query.MatchPath(sp.Definition, st) {
				seen[sp.Path] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func containsPath(list []string, p string) bool {
	for _, l := range list {
		if models.StripLink(l) == p {
			return true
		}
	}
	return false
}

func mergeTags(inline []string, meta interface{}) []string {
	seen := make(map[string]struct{})
	add := func(t string) {
		if t = models.NormalizeTag(t); t != "" && t != "#" {
			seen[t] = struct{}{}
		}
	}
	for _, t := range inline {
		add(t)
	}
	switch v := meta.(type) {
	case string:
		for _, t := range models.SplitList(v) {
			add(t)
		}
	case []interface{}:
		for _, t := range v {
			add(models.FromNative(t).String())
		}
	case []string:
		for _, t := range v {
			add(t)
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// mergeLinks combines body links with wiki links found in metadata values.
func mergeLinks(body []string, meta map[string]interface{}, resolve func(string) string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, l := range body {
		add(l)
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, item := range models.FromNative(meta[k]).Items() {
			s := strings.TrimSpace(item.String())
			if strings.HasPrefix(s, "[[") && strings.HasSuffix(s, "]]") {
				add(resolve(s))
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
