package store

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/persist"
	"github.com/grovetools/superstate/pkg/indexmap"
	"github.com/grovetools/superstate/pkg/models"
)

const focusKey = "focuses"

// Hydrate loads every persisted entry into the caches and keeps facade for
// later writes. Undecodable entries are logged and skipped.
func (s *Store) Hydrate(facade persist.Facade) error {
	s.mu.Lock()
	s.persist = facade
	s.mu.Unlock()

	paths, err := facade.LoadAll(persist.KindPath)
	if err != nil {
		return err
	}
	for _, e := range paths {
		var p models.PathState
		if err := json.Unmarshal(e.Data, &p); err != nil {
			s.logger.WithError(err).WithField("path", e.Path).Warn("Skipping undecodable path entry")
			continue
		}
		s.PutPath(&p)
	}

	spaces, err := facade.LoadAll(persist.KindSpace)
	if err != nil {
		return err
	}
	for _, e := range spaces {
		var sp models.SpaceState
		if err := json.Unmarshal(e.Data, &sp); err != nil {
			s.logger.WithError(err).WithField("space", e.Path).Warn("Skipping undecodable space entry")
			continue
		}
		s.PutSpace(&sp)
	}

	contexts, err := facade.LoadAll(persist.KindContext)
	if err != nil {
		return err
	}
	for _, e := range contexts {
		var c models.ContextState
		if err := json.Unmarshal(e.Data, &c); err != nil {
			s.logger.WithError(err).WithField("space", e.Path).Warn("Skipping undecodable context entry")
			continue
		}
		s.PutContext(&c)
	}

	focuses, err := facade.LoadAll(persist.KindFocus)
	if err != nil {
		return err
	}
	for _, e := range focuses {
		if e.Path != focusKey {
			continue
		}
		var fs []models.Focus
		if err := json.Unmarshal(e.Data, &fs); err == nil {
			s.mu.Lock()
			s.focuses = fs
			s.mu.Unlock()
		}
	}

	s.logger.WithFields(logrus.Fields{
		"paths":    len(paths),
		"spaces":   len(spaces),
		"contexts": len(contexts),
	}).Debug("Hydrated caches from persistence")
	return nil
}

func (s *Store) facade() persist.Facade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persist
}

func (s *Store) write(kind persist.Kind, key string, v interface{}) error {
	f := s.facade()
	if f == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.PersistenceFailed("encode", key, err)
	}
	return f.Store(key, data, kind)
}

// PersistPath writes the cached state of p, or removes it when absent.
func (s *Store) PersistPath(p string) error {
	if st := s.Path(p); st != nil {
		return s.write(persist.KindPath, p, st)
	}
	return s.Unpersist(persist.KindPath, p)
}

// PersistSpace writes the cached state of a space, or removes it.
func (s *Store) PersistSpace(space string) error {
	if sp := s.Space(space); sp != nil {
		return s.write(persist.KindSpace, space, sp)
	}
	return s.Unpersist(persist.KindSpace, space)
}

// PersistContext writes the cached context of a space, or removes it.
func (s *Store) PersistContext(space string) error {
	if c := s.Context(space); c != nil {
		return s.write(persist.KindContext, space, c)
	}
	return s.Unpersist(persist.KindContext, space)
}

// PersistFocuses writes the focus lists.
func (s *Store) PersistFocuses() error {
	return s.write(persist.KindFocus, focusKey, s.Focuses())
}

// Unpersist removes a stored entry.
func (s *Store) Unpersist(kind persist.Kind, key string) error {
	f := s.facade()
	if f == nil {
		return nil
	}
	return f.Remove(key, kind)
}

// Teardown drops every cache entry, closes channel subscriptions and
// closes the persistence facade. The store is empty but usable afterwards.
func (s *Store) Teardown() error {
	s.mu.Lock()
	s.paths = make(map[string]*models.PathState)
	s.spaces = make(map[string]*models.SpaceState)
	s.contexts = make(map[string]*models.ContextState)
	s.focuses = nil
	s.search = nil
	s.spaceMap = indexmap.New()
	s.tagMap = indexmap.New()
	s.linkMap = indexmap.New()
	s.contextMap = indexmap.New()
	f := s.persist
	s.persist = nil
	s.mu.Unlock()

	s.busMu.Lock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.listeners = make(map[EventType][]registration)
	s.all = nil
	s.busMu.Unlock()

	if f != nil {
		return f.Close()
	}
	return nil
}
