package engine

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/dispatcher"
	"github.com/grovetools/superstate/internal/opqueue"
	"github.com/grovetools/superstate/pkg/models"
)

// Initialize rebuilds every cache from the vault. Hydrated entries that no
// longer exist are dropped from the caches and from persistence.
func (e *Engine) Initialize(ctx context.Context) error {
	start := time.Now()
	e.store.Dispatch(store.Event{Type: store.EventReindexStarted, Source: "initialize"})

	if err := e.loadSpaces(); err != nil {
		return err
	}

	res, err := e.dispatcher.Run(ctx, dispatcher.NewRequest(dispatcher.KindParseAllPaths, "", nil))
	if err != nil {
		return err
	}
	states, _ := res.([]*models.PathState)
	seen := make(map[string]struct{}, len(states))
	for _, st := range states {
		seen[st.Path] = struct{}{}
		e.store.PutPath(st)
	}
	for _, st := range e.store.Paths() {
		if _, ok := seen[st.Path]; !ok {
			e.store.RemovePath(st.Path)
			e.persist("path", st.Path, e.store.PersistPath)
		}
	}
	e.ensureTagSpaces(e.store.Tags())
	e.pruneTagSpaces()

	res, err = e.dispatcher.Run(ctx, dispatcher.NewRequest(dispatcher.KindParseAllContexts, "", nil))
	if err != nil {
		return err
	}
	contexts, _ := res.([]*models.ContextState)
	var dependent []string
	for _, c := range contexts {
		if c.Outdated && c.Exists {
			if _, err := e.adapter.SaveTable(c.Space, c.Table, false); err != nil {
				e.logger.WithError(err).WithField("space", c.Space).Warn("Failed to save context table")
			} else {
				c.Outdated = false
			}
		}
		e.store.PutContext(c)
		e.syncSpaceProperties(c.Space, c.Table)
		if len(c.Dependencies) > 0 {
			dependent = append(dependent, c.Space)
		}
	}
	for _, c := range e.store.Contexts() {
		if e.store.Space(c.Space) == nil {
			e.store.RemoveContext(c.Space)
			e.persist("context", c.Space, e.store.PersistContext)
		}
	}

	// tables reading other tables were linked against the previous state
	var tickets []*opqueue.Ticket
	for _, s := range dependent {
		tickets = append(tickets, e.enqueueRefresh(s, "relink"))
	}
	if err := e.settle(ctx, tickets, dependent); err != nil {
		return err
	}

	if err := e.rebuildSearch(ctx); err != nil {
		return err
	}
	e.persistAll()

	counts := map[string]int{
		"paths":    len(e.store.Paths()),
		"spaces":   len(e.store.Spaces()),
		"contexts": len(e.store.Contexts()),
	}
	e.logger.WithFields(logrus.Fields{
		"paths":    counts["paths"],
		"spaces":   counts["spaces"],
		"contexts": counts["contexts"],
		"took":     time.Since(start).Round(time.Millisecond),
	}).Info("Index loaded")
	e.store.Dispatch(store.Event{Type: store.EventIndexFullyReady, Source: "initialize", Payload: counts})
	return nil
}

// loadSpaces registers a space for every folder, every declared space and
// every hydrated virtual space, and drops hydrated spaces that are gone.
func (e *Engine) loadSpaces() error {
	folders, err := e.adapter.AllPaths(models.PathTypeFolder)
	if err != nil {
		return err
	}
	wanted := make(map[string]struct{}, len(folders))
	for _, f := range folders {
		wanted[f] = struct{}{}
	}
	e.mu.Lock()
	for s := range e.declared {
		wanted[s] = struct{}{}
	}
	e.mu.Unlock()
	for _, sp := range e.store.Spaces() {
		switch sp.Kind {
		case models.SpaceKindVirtual:
			wanted[sp.Path] = struct{}{}
		case models.SpaceKindTag:
			continue
		default:
			if _, ok := wanted[sp.Path]; !ok {
				e.dropSpace(sp.Path, "initialize")
			}
		}
	}

	names := make([]string, 0, len(wanted))
	for s := range wanted {
		names = append(names, s)
	}
	sort.Strings(names)
	for _, s := range names {
		st, err := e.loadSpace(s)
		if err != nil {
			e.logger.WithError(err).WithField("space", s).Warn("Skipping space")
			continue
		}
		e.store.PutSpace(st)
	}
	return nil
}

func (e *Engine) persistAll() {
	for _, p := range e.store.Paths() {
		e.persist("path", p.Path, e.store.PersistPath)
	}
	for _, sp := range e.store.Spaces() {
		e.persist("space", sp.Path, e.store.PersistSpace)
	}
	for _, c := range e.store.Contexts() {
		e.persist("context", c.Space, e.store.PersistContext)
	}
	if err := e.store.PersistFocuses(); err != nil {
		e.logger.WithError(err).Warn("Failed to persist focus lists")
	}
}
