// Package indexmap provides a thread-safe many-to-many relation kept in
// both directions.
package indexmap

import (
	"sort"
	"sync"
)

// Set is an unordered string set.
type Set map[string]struct{}

// NewSet builds a set from values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s Set) clone() Set {
	c := make(Set, len(s))
	for v := range s {
		c[v] = struct{}{}
	}
	return c
}

// Map relates keys to values (forward) and values to keys (inverse).
// For every key k and value v, v is in forward(k) exactly when k is in
// inverse(v). All mutations compute their changes first and apply them
// under one write lock, so readers never see the two sides disagree.
type Map struct {
	mu      sync.RWMutex
	forward map[string]Set
	inverse map[string]Set
}

// New returns an empty map.
func New() *Map {
	return &Map{
		forward: make(map[string]Set),
		inverse: make(map[string]Set),
	}
}

// edit is one pending change to a single entry of one side.
type edit struct {
	side   map[string]Set
	key    string
	value  string
	remove bool
}

// mutate runs plan under the write lock, then applies the planned edits.
// plan only reads; replace and edits cannot fail, so a mutation is
// either fully applied or not started.
func (m *Map) mutate(plan func() (edits []edit, replace func())) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edits, replace := plan()
	if replace != nil {
		replace()
	}
	for _, e := range edits {
		if e.remove {
			if set, ok := e.side[e.key]; ok {
				delete(set, e.value)
				if len(set) == 0 {
					delete(e.side, e.key)
				}
			}
			continue
		}
		set, ok := e.side[e.key]
		if !ok {
			set = make(Set)
			e.side[e.key] = set
		}
		set[e.value] = struct{}{}
	}
}

// Set replaces the forward set of key with values. An empty values list
// removes the key.
func (m *Map) Set(key string, values []string) {
	next := NewSet(values...)
	m.mutate(func() ([]edit, func()) {
		prev := m.forward[key]
		var edits []edit
		for v := range prev {
			if !next.Has(v) {
				edits = append(edits, edit{side: m.inverse, key: v, value: key, remove: true})
			}
		}
		for v := range next {
			if !prev.Has(v) {
				edits = append(edits, edit{side: m.inverse, key: v, value: key})
			}
		}
		return edits, func() {
			if len(next) == 0 {
				delete(m.forward, key)
				return
			}
			m.forward[key] = next
		}
	})
}

// Delete removes key and every relation it participates in.
func (m *Map) Delete(key string) {
	m.mutate(func() ([]edit, func()) {
		var edits []edit
		for v := range m.forward[key] {
			edits = append(edits, edit{side: m.inverse, key: v, value: key, remove: true})
		}
		return edits, func() { delete(m.forward, key) }
	})
}

// DeleteInverse removes value from every key's forward set.
func (m *Map) DeleteInverse(value string) {
	m.mutate(func() ([]edit, func()) {
		var edits []edit
		for k := range m.inverse[value] {
			edits = append(edits, edit{side: m.forward, key: k, value: value, remove: true})
		}
		return edits, func() { delete(m.inverse, value) }
	})
}

// Rename moves every relation of oldKey to newKey. When newKey already has
// relations the two sets are merged.
func (m *Map) Rename(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	m.mutate(func() ([]edit, func()) {
		var edits []edit
		for v := range m.forward[oldKey] {
			edits = append(edits,
				edit{side: m.inverse, key: v, value: oldKey, remove: true},
				edit{side: m.inverse, key: v, value: newKey},
				edit{side: m.forward, key: newKey, value: v},
			)
		}
		return edits, func() { delete(m.forward, oldKey) }
	})
}

// RenameInverse moves every relation pointing at oldValue to newValue.
func (m *Map) RenameInverse(oldValue, newValue string) {
	if oldValue == newValue {
		return
	}
	m.mutate(func() ([]edit, func()) {
		var edits []edit
		for k := range m.inverse[oldValue] {
			edits = append(edits,
				edit{side: m.forward, key: k, value: oldValue, remove: true},
				edit{side: m.forward, key: k, value: newValue},
				edit{side: m.inverse, key: newValue, value: k},
			)
		}
		return edits, func() { delete(m.inverse, oldValue) }
	})
}

// Get returns a copy of the forward set of key; never nil.
func (m *Map) Get(key string) Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forward[key].clone()
}

// GetInverse returns a copy of the keys related to value; never nil.
func (m *Map) GetInverse(value string) Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inverse[value].clone()
}

// Has reports whether key relates to value.
func (m *Map) Has(key, value string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forward[key].Has(value)
}

// Keys returns every key with at least one value, sorted.
func (m *Map) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.forward))
	for k := range m.forward {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Values returns every value related to at least one key, sorted.
func (m *Map) Values() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.inverse))
	for v := range m.inverse {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (m *Map) Clone() *Map {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := New()
	for k, s := range m.forward {
		c.forward[k] = s.clone()
	}
	for v, s := range m.inverse {
		c.inverse[v] = s.clone()
	}
	return c
}
