package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/internal/persist"
	"github.com/grovetools/superstate/internal/search"
	"github.com/grovetools/superstate/pkg/indexmap"
	"github.com/grovetools/superstate/pkg/models"
)

// Store holds the latest computed state of every path, space and context
// table together with the dependency maps relating them.
// It is thread-safe. Stored states are never mutated; writers replace them.
type Store struct {
	mu       sync.RWMutex
	paths    map[string]*models.PathState
	spaces   map[string]*models.SpaceState
	contexts map[string]*models.ContextState
	focuses  []models.Focus
	search   *search.Index

	spaceMap   *indexmap.Map // path -> space
	tagMap     *indexmap.Map // path -> tag
	linkMap    *indexmap.Map // path -> outlink
	contextMap *indexmap.Map // space -> spaces its table reads

	busMu       sync.Mutex
	listeners   map[EventType][]registration
	all         []registration
	nextID      int
	subscribers map[chan Event]struct{}

	persist persist.Facade
	logger  *logrus.Entry
}

type registration struct {
	id int
	fn Listener
}

// New creates an empty Store.
func New(logger *logrus.Entry) *Store {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		paths:       make(map[string]*models.PathState),
		spaces:      make(map[string]*models.SpaceState),
		contexts:    make(map[string]*models.ContextState),
		spaceMap:    indexmap.New(),
		tagMap:      indexmap.New(),
		linkMap:     indexmap.New(),
		contextMap:  indexmap.New(),
		listeners:   make(map[EventType][]registration),
		subscribers: make(map[chan Event]struct{}),
		logger:      logger,
	}
}

// Path returns the cached state of p, or nil.
func (s *Store) Path(p string) *models.PathState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paths[p]
}

// PathWithLinks returns a copy of the cached state with Inlinks filled in.
func (s *Store) PathWithLinks(p string) *models.PathState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.paths[p]
	if st == nil {
		return nil
	}
	c := st.Clone()
	c.Inlinks = s.linkMap.GetInverse(p).Sorted()
	return c
}

// Space returns the cached state of a space, or nil.
func (s *Store) Space(path string) *models.SpaceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spaces[path]
}

// Context returns the cached context table of a space, or nil.
func (s *Store) Context(space string) *models.ContextState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contexts[space]
}

// Paths returns every cached path state ordered by path.
func (s *Store) Paths() []*models.PathState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.PathState, 0, len(s.paths))
	for _, p := range s.paths {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Spaces returns every cached space ordered by path.
func (s *Store) Spaces() []*models.SpaceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.SpaceState, 0, len(s.spaces))
	for _, sp := range s.spaces {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Contexts returns every cached context ordered by space.
func (s *Store) Contexts() []*models.ContextState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ContextState, 0, len(s.contexts))
	for _, c := range s.contexts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Space < out[j].Space })
	return out
}

// Members returns the paths belonging to space, sorted.
func (s *Store) Members(space string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spaceMap.GetInverse(space).Sorted()
}

// SpacesOf returns the spaces p belongs to, sorted.
func (s *Store) SpacesOf(p string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spaceMap.Get(p).Sorted()
}

// PathsWithTag returns the paths carrying tag, sorted.
func (s *Store) PathsWithTag(tag string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tagMap.GetInverse(models.NormalizeTag(tag)).Sorted()
}

// Tags returns every tag in use, sorted.
func (s *Store) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tagMap.Values()
}

// Inlinks returns the paths linking to p, sorted.
func (s *Store) Inlinks(p string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linkMap.GetInverse(p).Sorted()
}

// Dependents returns the spaces whose tables read space's table.
func (s *Store) Dependents(space string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contextMap.GetInverse(space).Sorted()
}

// PutPath stores a path state and replaces its forward entries in the
// space, tag and link maps in the same locked step.
func (s *Store) PutPath(p *models.PathState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[p.Path] = p
	s.spaceMap.Set(p.Path, p.Spaces)
	s.tagMap.Set(p.Path, p.Tags)
	s.linkMap.Set(p.Path, p.Outlinks)
}

// RemovePath drops a path and its forward relations.
func (s *Store) RemovePath(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paths, p)
	s.spaceMap.Delete(p)
	s.tagMap.Delete(p)
	s.linkMap.Delete(p)
}

// RenamePath moves a path's state and relations from oldPath to newPath.
// Paths linking to oldPath are rewritten to link to newPath.
func (s *Store) RenamePath(oldPath, newPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.paths[oldPath]; ok {
		c := st.Clone()
		c.Path = newPath
		c.Name = models.BaseName(newPath)
		c.Parent = models.ParentPath(newPath)
		delete(s.paths, oldPath)
		s.paths[newPath] = c
	}
	s.spaceMap.Rename(oldPath, newPath)
	s.tagMap.Rename(oldPath, newPath)
	s.linkMap.Rename(oldPath, newPath)

	for source := range s.linkMap.GetInverse(oldPath) {
		if st, ok := s.paths[source]; ok {
			c := st.Clone()
			c.Outlinks = replaceAll(c.Outlinks, oldPath, newPath)
			s.paths[source] = c
		}
	}
	s.linkMap.RenameInverse(oldPath, newPath)
}

// PutSpace stores a space state.
func (s *Store) PutSpace(sp *models.SpaceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces[sp.Path] = sp
}

// RemoveSpace drops a space and every membership pointing at it. Member
// path states are rewritten so their Spaces keep matching the map.
func (s *Store) RemoveSpace(space string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spaces, space)
	for member := range s.spaceMap.GetInverse(space) {
		if st, ok := s.paths[member]; ok {
			c := st.Clone()
			c.Spaces = removeAll(c.Spaces, space)
			s.paths[member] = c
		}
	}
	s.spaceMap.DeleteInverse(space)
}

// RenameSpace moves a space's state and memberships to a new identity.
func (s *Store) RenameSpace(oldSpace, newSpace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp, ok := s.spaces[oldSpace]; ok {
		c := sp.Clone()
		c.Path = newSpace
		c.Name = models.BaseName(newSpace)
		delete(s.spaces, oldSpace)
		s.spaces[newSpace] = c
	}
	for member := range s.spaceMap.GetInverse(oldSpace) {
		if st, ok := s.paths[member]; ok {
			c := st.Clone()
			c.Spaces = replaceAll(c.Spaces, oldSpace, newSpace)
			s.paths[member] = c
		}
	}
	s.spaceMap.RenameInverse(oldSpace, newSpace)
}

// PutContext stores a context table and records the spaces it reads.
func (s *Store) PutContext(c *models.ContextState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[c.Space] = c
	s.contextMap.Set(c.Space, c.Dependencies)
}

// RemoveContext drops a space's context table.
func (s *Store) RemoveContext(space string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, space)
	s.contextMap.Delete(space)
}

// RenameContext moves a context table and its dependency edges.
func (s *Store) RenameContext(oldSpace, newSpace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[oldSpace]; ok {
		nc := c.Clone()
		nc.Space = newSpace
		nc.Linked = c.Linked
		delete(s.contexts, oldSpace)
		s.contexts[newSpace] = nc
	}
	for dep := range s.contextMap.GetInverse(oldSpace) {
		if c, ok := s.contexts[dep]; ok {
			nc := c.Clone()
			nc.Linked = c.Linked
			nc.Dependencies = replaceAll(nc.Dependencies, oldSpace, newSpace)
			s.contexts[dep] = nc
		}
	}
	s.contextMap.Rename(oldSpace, newSpace)
	s.contextMap.RenameInverse(oldSpace, newSpace)
}

// SetFocuses replaces the focus lists and notifies subscribers.
func (s *Store) SetFocuses(focuses []models.Focus) {
	s.mu.Lock()
	s.focuses = cloneFocuses(focuses)
	s.mu.Unlock()
	s.Dispatch(Event{Type: EventFocusChanged, Source: "client", Payload: len(focuses)})
}

// Focuses returns a copy of the focus lists.
func (s *Store) Focuses() []models.Focus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneFocuses(s.focuses)
}

// SetSearchIndex replaces the search index.
func (s *Store) SetSearchIndex(idx *search.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = idx
}

// SearchIndex returns the current search index, or nil before the first build.
func (s *Store) SearchIndex() *search.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

// Children returns the cached paths below folder at any depth, sorted.
func (s *Store) Children(folder string) []string {
	prefix := strings.TrimSuffix(folder, "/") + "/"
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for p := range s.paths {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func cloneFocuses(in []models.Focus) []models.Focus {
	out := make([]models.Focus, len(in))
	for i, f := range in {
		out[i] = models.Focus{Name: f.Name, Paths: append([]string(nil), f.Paths...)}
	}
	return out
}

func replaceAll(list []string, from, to string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v == from {
			v = to
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func removeAll(list []string, drop string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
