package vault

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/pkg/models"
)

type memEntry struct {
	typ      models.PathType
	meta     map[string]interface{}
	tags     []string
	links    []string
	readOnly bool
	modTime  time.Time
}

// Memory is an in-process Adapter. Folders are created implicitly for every
// added file.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	tables  map[string]map[string]*models.Table
	defs    map[string]*models.SpaceDefinition
	saves   int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*memEntry),
		tables:  make(map[string]map[string]*models.Table),
		defs:    make(map[string]*models.SpaceDefinition),
	}
}

// AddFile stores a file with metadata, inline tags and resolved links.
func (m *Memory) AddFile(p string, meta map[string]interface{}, tags, links []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureParents(p)
	m.entries[p] = &memEntry{
		typ:     models.PathTypeFile,
		meta:    models.CloneMetadata(meta),
		tags:    append([]string(nil), tags...),
		links:   append([]string(nil), links...),
		modTime: time.Now(),
	}
}

// AddFolder stores a folder and its parents.
func (m *Memory) AddFolder(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureParents(p)
	if _, ok := m.entries[p]; !ok {
		m.entries[p] = &memEntry{typ: models.PathTypeFolder, modTime: time.Now()}
	}
}

// SetReadOnly marks a path read-only.
func (m *Memory) SetReadOnly(p string, ro bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[p]; ok {
		e.readOnly = ro
	}
}

// SetLinks replaces the links of a file.
func (m *Memory) SetLinks(p string, links []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[p]; ok {
		e.links = append([]string(nil), links...)
	}
}

// TableSaves counts successful SaveTable calls.
func (m *Memory) TableSaves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Metadata returns a copy of a path's stored metadata.
func (m *Memory) Metadata(p string) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[p]; ok {
		return models.CloneMetadata(e.meta)
	}
	return nil
}

func (m *Memory) ensureParents(p string) {
	for dir := models.ParentPath(p); dir != "/" && dir != "" && dir != "."; dir = models.ParentPath(dir) {
		if _, ok := m.entries[dir]; ok {
			return
		}
		m.entries[dir] = &memEntry{typ: models.PathTypeFolder, modTime: time.Now()}
	}
}

func (m *Memory) ReadPathCache(p string) (*PathCache, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[p]
	if !ok {
		return nil, nil
	}
	pc := &PathCache{
		Path:     p,
		Type:     e.typ,
		Metadata: models.CloneMetadata(e.meta),
		Tags:     append([]string(nil), e.tags...),
		Links:    append([]string(nil), e.links...),
		ReadOnly: e.readOnly,
		ModTime:  e.modTime,
	}
	if e.typ == models.PathTypeFile {
		pc.SubType = models.Extension(p)
	}
	return pc, nil
}

func (m *Memory) ReadAllTables(space string) (map[string]*models.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.tables[space]
	if !ok {
		return nil, nil
	}
	out := make(map[string]*models.Table, len(stored))
	for id, t := range stored {
		out[id] = t.Clone()
	}
	return out, nil
}

func (m *Memory) SaveTable(space string, table *models.Table, forceCreate bool) (bool, error) {
	if table == nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "nil table")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tables[space]
	if !ok {
		if !forceCreate {
			return false, nil
		}
		stored = make(map[string]*models.Table)
		m.tables[space] = stored
	}
	id := table.Schema.ID
	if id == "" {
		id = MainTable
	}
	stored[id] = table.Clone()
	m.saves++
	return true, nil
}

func (m *Memory) AllPaths(t models.PathType) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for p, e := range m.entries {
		if t == "" || e.typ == t {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) ContextInitiated(space string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[space]
	return ok
}

func (m *Memory) ReadSpaceDefinition(space string) (*models.SpaceDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defs[space].Clone(), nil
}

func (m *Memory) SaveSpaceDefinition(space string, def *models.SpaceDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if def == nil {
		delete(m.defs, space)
		return nil
	}
	m.defs[space] = def.Clone()
	return nil
}

func (m *Memory) SaveMetadata(p string, meta map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[p]
	if !ok {
		return errors.EntityNotFound("path", p)
	}
	e.meta = models.CloneMetadata(meta)
	e.modTime = time.Now()
	return nil
}

func (m *Memory) Create(p string, t models.PathType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[p]; ok {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("path '%s' already exists", p))
	}
	m.ensureParents(p)
	m.entries[p] = &memEntry{typ: t, modTime: time.Now()}
	return nil
}

// Rename moves a path, its descendants and any tables or definitions
// stored for them.
func (m *Memory) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[oldPath]; !ok {
		return errors.EntityNotFound("path", oldPath)
	}
	m.ensureParents(newPath)
	for _, p := range m.subtree(oldPath) {
		np := newPath + strings.TrimPrefix(p, oldPath)
		m.entries[np] = m.entries[p]
		delete(m.entries, p)
		if t, ok := m.tables[p]; ok {
			m.tables[np] = t
			delete(m.tables, p)
		}
		if d, ok := m.defs[p]; ok {
			m.defs[np] = d
			delete(m.defs, p)
		}
	}
	return nil
}

// Delete removes a path and its descendants. Virtual spaces only drop
// their tables and definition.
func (m *Memory) Delete(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	targets := m.subtree(p)
	if models.IsSpacePath(p) {
		targets = []string{p}
	}
	for _, t := range targets {
		delete(m.entries, t)
		delete(m.tables, t)
		delete(m.defs, t)
	}
	return nil
}

func (m *Memory) subtree(p string) []string {
	out := []string{p}
	prefix := strings.TrimSuffix(p, "/") + "/"
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
