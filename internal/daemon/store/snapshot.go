package store

import (
	"sort"

	"github.com/grovetools/superstate/pkg/indexmap"
	"github.com/grovetools/superstate/pkg/models"
)

// Snapshot is an immutable copy of the caches handed to workers. States
// are shared with the store since stored states are never mutated.
type Snapshot struct {
	paths    map[string]*models.PathState
	spaces   map[string]*models.SpaceState
	contexts map[string]*models.ContextState

	spaceMap   *indexmap.Map
	tagMap     *indexmap.Map
	linkMap    *indexmap.Map
	contextMap *indexmap.Map

	SyncProperties bool
}

// Snapshot copies the current caches and dependency maps.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		paths:      make(map[string]*models.PathState, len(s.paths)),
		spaces:     make(map[string]*models.SpaceState, len(s.spaces)),
		contexts:   make(map[string]*models.ContextState, len(s.contexts)),
		spaceMap:   s.spaceMap.Clone(),
		tagMap:     s.tagMap.Clone(),
		linkMap:    s.linkMap.Clone(),
		contextMap: s.contextMap.Clone(),
	}
	for k, v := range s.paths {
		snap.paths[k] = v
	}
	for k, v := range s.spaces {
		snap.spaces[k] = v
	}
	for k, v := range s.contexts {
		snap.contexts[k] = v
	}
	return snap
}

func (s *Snapshot) Path(p string) *models.PathState { return s.paths[p] }

func (s *Snapshot) Space(p string) *models.SpaceState { return s.spaces[p] }

func (s *Snapshot) Context(space string) *models.ContextState { return s.contexts[space] }

func (s *Snapshot) SpacesOf(p string) []string { return s.spaceMap.Get(p).Sorted() }

func (s *Snapshot) Members(space string) []string { return s.spaceMap.GetInverse(space).Sorted() }

func (s *Snapshot) PathsWithTag(tag string) []string {
	return s.tagMap.GetInverse(models.NormalizeTag(tag)).Sorted()
}

func (s *Snapshot) Inlinks(p string) []string { return s.linkMap.GetInverse(p).Sorted() }

// Paths returns every path state ordered by path.
func (s *Snapshot) Paths() []*models.PathState {
	out := make([]*models.PathState, 0, len(s.paths))
	for _, p := range s.paths {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Spaces returns every space state ordered by path.
func (s *Snapshot) Spaces() []*models.SpaceState {
	out := make([]*models.SpaceState, 0, len(s.spaces))
	for _, sp := range s.spaces {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// WithPath returns a copy of the snapshot in which p replaces the cached
// state of its path. Used to link a row against a freshly parsed path.
func (s *Snapshot) WithPath(p *models.PathState) *Snapshot {
	c := *s
	c.paths = make(map[string]*models.PathState, len(s.paths)+1)
	for k, v := range s.paths {
		c.paths[k] = v
	}
	c.paths[p.Path] = p
	return &c
}

// WithContext returns a copy of the snapshot in which c replaces the cached
// table of its space.
func (s *Snapshot) WithContext(c *models.ContextState) *Snapshot {
	cp := *s
	cp.contexts = make(map[string]*models.ContextState, len(s.contexts)+1)
	for k, v := range s.contexts {
		cp.contexts[k] = v
	}
	cp.contexts[c.Space] = c
	return &cp
}
