package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/dispatcher"
	"github.com/grovetools/superstate/internal/indexer"
	"github.com/grovetools/superstate/internal/opqueue"
	"github.com/grovetools/superstate/internal/search"
	"github.com/grovetools/superstate/pkg/models"
)

// reloadPath parses p and caches the result. A path missing from storage
// returns nil and leaves the cache alone.
func (e *Engine) reloadPath(ctx context.Context, p string) (*models.PathState, error) {
	e.setPhase(p, PhaseRecomputing)
	res, err := e.dispatcher.Run(ctx, dispatcher.NewRequest(dispatcher.KindParsePath, p, nil))
	if err != nil {
		e.setPhase(p, PhaseStale)
		return nil, err
	}
	st, _ := res.(*models.PathState)
	if st != nil {
		e.store.PutPath(st)
		e.persist("path", p, e.store.PersistPath)
	}
	e.setPhase(p, PhaseCurrent)
	return st, nil
}

func (e *Engine) rebuildSearch(ctx context.Context) error {
	res, err := e.dispatcher.Run(ctx, dispatcher.NewRequest(dispatcher.KindSearch, "", indexer.SearchOptions{}))
	if err != nil {
		return err
	}
	if idx, ok := res.(*search.Index); ok {
		e.store.SetSearchIndex(idx)
	}
	return nil
}

type spaceSet map[string]struct{}

func (s spaceSet) add(spaces ...string) {
	for _, sp := range spaces {
		s[sp] = struct{}{}
	}
}

func (s spaceSet) sorted() []string {
	out := make([]string, 0, len(s))
	for sp := range s {
		out = append(out, sp)
	}
	sort.Strings(out)
	return out
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PathCreated indexes a new path and adds it to the tables of every space
// it belongs to.
func (e *Engine) PathCreated(ctx context.Context, p string) error {
	st, err := e.reloadPath(ctx, p)
	if err != nil || st == nil {
		return err
	}
	log := e.logger.WithField("path", p)

	if st.Type == models.PathTypeFolder && e.store.Space(p) == nil {
		sp, err := e.loadSpace(p)
		if err != nil {
			return err
		}
		e.putSpace(sp, "create")
	}
	affected := spaceSet{}
	if owner := e.noteOwner(p); owner != "" {
		folder, err := e.reloadFolderSpace(ctx, owner)
		if err != nil {
			log.WithError(err).Warn("Failed to reload folder space")
		} else if folder != nil {
			affected.add(folder.Spaces...)
		}
	}
	e.ensureTagSpaces(st.Tags)
	e.store.Dispatch(store.Event{Type: store.EventPathCreated, Path: p, Source: "create"})

	affected.add(st.Spaces...)
	var tickets []*opqueue.Ticket
	for _, s := range affected.sorted() {
		tickets = append(tickets, e.enqueueRefresh(s, "insert"))
	}
	if err := e.settle(ctx, tickets, affected.sorted()); err != nil {
		return err
	}
	return e.rebuildSearch(ctx)
}

// PathRenamed moves a path, and everything below it when it is a folder,
// to a new location. Rows are rekeyed, link values rewritten and
// memberships recomputed at the new location.
func (e *Engine) PathRenamed(ctx context.Context, oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	if e.store.Path(oldPath) == nil {
		return e.PathCreated(ctx, newPath)
	}
	log := e.logger.WithFields(logrus.Fields{"from": oldPath, "to": newPath})

	renames := map[string]string{oldPath: newPath}
	for _, c := range e.store.Children(oldPath) {
		renames[c] = newPath + strings.TrimPrefix(c, oldPath)
	}
	order := sortedKeys(renames)
	oldOwner := e.noteOwner(oldPath)

	affected := spaceSet{}
	affected.add(e.referencing(renames)...)
	for _, o := range order {
		affected.add(e.store.SpacesOf(o)...)
	}

	var movedSpaces []string
	for _, o := range order {
		n := renames[o]
		if e.store.Space(o) == nil {
			continue
		}
		e.store.RenameSpace(o, n)
		e.store.RenameContext(o, n)
		e.persist("space", o, e.store.PersistSpace)
		e.persist("context", o, e.store.PersistContext)
		if _, ok := affected[o]; ok {
			delete(affected, o)
			affected.add(n)
		}
		movedSpaces = append(movedSpaces, n)
	}
	for _, o := range order {
		e.store.RenamePath(o, renames[o])
		e.persist("path", o, e.store.PersistPath)
		e.setPhase(o, PhaseCurrent)
	}
	e.rewriteDefinitionLinks(renames)
	e.rewriteFocuses(renames)

	for _, s := range movedSpaces {
		sp, err := e.loadSpace(s)
		if err != nil {
			log.WithError(err).WithField("space", s).Warn("Failed to reload moved space")
			continue
		}
		e.putSpace(sp, "rename")
	}
	for _, o := range order {
		st, err := e.reloadPath(ctx, renames[o])
		if err != nil {
			log.WithError(err).WithField("path", renames[o]).Warn("Failed to reload renamed path")
			continue
		}
		if st != nil {
			affected.add(st.Spaces...)
			e.ensureTagSpaces(st.Tags)
		}
	}
	for _, owner := range []string{oldOwner, e.noteOwner(newPath)} {
		if owner == "" || e.store.Space(owner) == nil {
			continue
		}
		if folder, err := e.reloadFolderSpace(ctx, owner); err == nil && folder != nil {
			affected.add(folder.Spaces...)
		}
	}
	e.store.Dispatch(store.Event{Type: store.EventPathRenamed, Path: newPath, OldPath: oldPath, Source: "rename"})

	var tickets []*opqueue.Ticket
	for _, s := range affected.sorted() {
		tickets = append(tickets, e.enqueueEdit(s, "rename", rekeyRows(renames)))
	}
	if err := e.settle(ctx, tickets, affected.sorted()); err != nil {
		return err
	}
	return e.rebuildSearch(ctx)
}

// PathDeleted forgets a path and everything below it, removing their rows
// and link values from every table.
func (e *Engine) PathDeleted(ctx context.Context, p string) error {
	if e.store.Path(p) == nil && e.store.Space(p) == nil {
		return nil
	}
	removed := map[string]string{p: ""}
	for _, c := range e.store.Children(p) {
		removed[c] = ""
	}
	order := sortedKeys(removed)
	owner := e.noteOwner(p)

	affected := spaceSet{}
	affected.add(e.referencing(removed)...)
	for _, x := range order {
		affected.add(e.store.SpacesOf(x)...)
	}
	for _, x := range order {
		if e.store.Space(x) != nil || e.store.Context(x) != nil {
			e.dropSpace(x, "delete")
		}
		delete(affected, x)
		e.store.RemovePath(x)
		e.persist("path", x, e.store.PersistPath)
		e.setPhase(x, PhaseCurrent)
	}
	e.rewriteDefinitionLinks(removed)
	e.rewriteFocuses(removed)

	if _, gone := removed[owner]; owner != "" && !gone {
		if folder, err := e.reloadFolderSpace(ctx, owner); err != nil {
			e.logger.WithError(err).WithField("space", owner).Warn("Failed to reload folder space")
		} else if folder != nil {
			affected.add(folder.Spaces...)
		}
	}
	e.pruneTagSpaces()
	e.store.Dispatch(store.Event{Type: store.EventPathDeleted, Path: p, Source: "delete"})

	var tickets []*opqueue.Ticket
	var touched []string
	for _, s := range affected.sorted() {
		if e.store.Space(s) == nil {
			continue
		}
		touched = append(touched, s)
		tickets = append(tickets, e.enqueueEdit(s, "delete", dropRows(removed)))
	}
	if err := e.settle(ctx, tickets, touched); err != nil {
		return err
	}
	return e.rebuildSearch(ctx)
}

// PathMetadataChanged reparses p, moves it between spaces when its
// membership changed and syncs its properties into every table it is in.
func (e *Engine) PathMetadataChanged(ctx context.Context, p string) error {
	before := e.store.SpacesOf(p)
	st, err := e.reloadPath(ctx, p)
	if err != nil {
		return err
	}
	if st == nil {
		return e.PathDeleted(ctx, p)
	}

	affected := spaceSet{}
	affected.add(before...)
	affected.add(st.Spaces...)
	if owner := e.noteOwner(p); owner != "" {
		folder, err := e.reloadFolderSpace(ctx, owner)
		if err != nil {
			e.logger.WithError(err).WithField("space", owner).Warn("Failed to reload folder space")
		} else if folder != nil {
			affected.add(folder.Spaces...)
		}
	}
	e.ensureTagSpaces(st.Tags)
	e.pruneTagSpaces()
	e.store.Dispatch(store.Event{Type: store.EventPathChanged, Path: p, Source: "metadata"})

	var tickets []*opqueue.Ticket
	var touched []string
	for _, s := range affected.sorted() {
		if e.store.Space(s) == nil {
			continue
		}
		touched = append(touched, s)
		tickets = append(tickets, e.enqueueRefresh(s, "sync"))
	}
	if err := e.settle(ctx, tickets, touched); err != nil {
		return err
	}
	return e.rebuildSearch(ctx)
}

// rewriteDefinitionLinks maps the links of every space definition through
// moves. An empty target drops the link.
func (e *Engine) rewriteDefinitionLinks(moves map[string]string) {
	for _, sp := range e.store.Spaces() {
		def := sp.Definition
		if def == nil || len(def.Links) == 0 {
			continue
		}
		nd := def.Clone()
		nd.Links = nd.Links[:0]
		changed := false
		for _, l := range def.Links {
			to, ok := moves[models.StripLink(l)]
			if !ok {
				nd.Links = append(nd.Links, l)
				continue
			}
			changed = true
			if to != "" {
				nd.Links = append(nd.Links, to)
			}
		}
		if !changed {
			continue
		}
		if err := e.adapter.SaveSpaceDefinition(sp.Path, nd); err != nil {
			e.logger.WithError(errors.StorageFailed("save definition", sp.Path, err)).Warn("Failed to rewrite space links")
			continue
		}
		e.mu.Lock()
		if _, ok := e.declared[sp.Path]; ok {
			e.declared[sp.Path] = nd.Clone()
		}
		e.mu.Unlock()
		c := sp.Clone()
		c.Definition = nd
		e.putSpace(c, "links")
	}
}

// rewriteFocuses maps focus list entries through moves. An empty target
// drops the entry.
func (e *Engine) rewriteFocuses(moves map[string]string) {
	focuses := e.store.Focuses()
	changed := false
	for i, f := range focuses {
		paths := f.Paths[:0]
		for _, p := range f.Paths {
			to, ok := moves[p]
			if !ok {
				paths = append(paths, p)
				continue
			}
			changed = true
			if to != "" {
				paths = append(paths, to)
			}
		}
		focuses[i].Paths = paths
	}
	if changed {
		e.SetFocuses(focuses)
	}
}
