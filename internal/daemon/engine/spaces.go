package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/indexer"
	"github.com/grovetools/superstate/internal/opqueue"
	"github.com/grovetools/superstate/internal/query"
	"github.com/grovetools/superstate/pkg/models"
)

// loadSpace builds the state of a space from its stored definition. A
// declared definition replaces the stored one.
func (e *Engine) loadSpace(space string) (*models.SpaceState, error) {
	def, err := e.adapter.ReadSpaceDefinition(space)
	if err != nil {
		return nil, errors.StorageFailed("read definition", space, err)
	}
	e.mu.Lock()
	if d, ok := e.declared[space]; ok {
		def = d.Clone()
	}
	e.mu.Unlock()
	return e.spaceState(space, def), nil
}

func (e *Engine) spaceState(space string, def *models.SpaceDefinition) *models.SpaceState {
	st := &models.SpaceState{
		Path:       space,
		Name:       models.BaseName(space),
		Definition: def,
		Contexts:   []string{},
		Sortable:   def == nil || len(def.Sort) == 0,
	}
	switch {
	case models.IsTagSpace(space):
		st.Kind = models.SpaceKindTag
	case models.IsSpacePath(space):
		st.Kind = models.SpaceKindVirtual
	default:
		st.Kind = models.SpaceKindFolder
		st.NotePath = indexer.NotePath(space, def)
		if p := e.store.Path(space); p != nil {
			st.ReadOnly = p.ReadOnly
		}
	}
	if def != nil {
		st.Contexts = append(st.Contexts, def.Contexts...)
	}
	if old := e.store.Space(space); old != nil {
		prev := old.Clone()
		st.PropertyTypes = prev.PropertyTypes
		st.PropertyValues = prev.PropertyValues
	}
	return st
}

// putSpace caches and persists a space and announces it.
func (e *Engine) putSpace(st *models.SpaceState, source string) {
	e.store.PutSpace(st)
	e.persist("space", st.Path, e.store.PersistSpace)
	e.store.Dispatch(store.Event{Type: store.EventSpaceChanged, Space: st.Path, Source: source})
}

// dropSpace forgets a space and its table.
func (e *Engine) dropSpace(space, source string) {
	if e.store.Space(space) == nil && e.store.Context(space) == nil {
		return
	}
	e.store.RemoveSpace(space)
	e.store.RemoveContext(space)
	e.persist("space", space, e.store.PersistSpace)
	e.persist("context", space, e.store.PersistContext)
	e.setPhase(contextKey(space), PhaseCurrent)
	e.store.Dispatch(store.Event{Type: store.EventSpaceDeleted, Space: space, Source: source})
}

// ensureTagSpaces registers a tag space for every tag that has none.
func (e *Engine) ensureTagSpaces(tags []string) {
	for _, t := range tags {
		space := models.TagSpacePath(t)
		if e.store.Space(space) != nil {
			continue
		}
		st, err := e.loadSpace(space)
		if err != nil {
			e.logger.WithError(err).WithField("space", space).Warn("Failed to load tag space")
			st = e.spaceState(space, nil)
		}
		e.putSpace(st, "tag")
	}
}

// pruneTagSpaces forgets tag spaces nothing is tagged with any more.
func (e *Engine) pruneTagSpaces() {
	for _, sp := range e.store.Spaces() {
		if sp.Kind != models.SpaceKindTag {
			continue
		}
		if len(e.store.PathsWithTag(models.TagFromSpace(sp.Path))) == 0 {
			e.dropSpace(sp.Path, "tag")
		}
	}
}

// reloadFolderSpace re-reads a folder space and the folder's own path
// after its note changed.
func (e *Engine) reloadFolderSpace(ctx context.Context, folder string) (*models.PathState, error) {
	st, err := e.loadSpace(folder)
	if err != nil {
		return nil, err
	}
	e.putSpace(st, "note")
	return e.reloadPath(ctx, folder)
}

// noteOwner returns the folder space whose canonical note is p, or "".
func (e *Engine) noteOwner(p string) string {
	for _, sp := range e.store.Spaces() {
		if sp.Kind == models.SpaceKindFolder && sp.NotePath == p {
			return sp.Path
		}
	}
	return ""
}

func ruleMatched(def *models.SpaceDefinition, paths []*models.PathState) map[string]struct{} {
	out := make(map[string]struct{})
	if !def.HasRules() {
		return out
	}
	links := make(map[string]struct{}, len(def.Links))
	for _, l := range def.Links {
		links[models.StripLink(l)] = struct{}{}
	}
	for _, p := range paths {
		if _, ok := links[p.Path]; ok || query.MatchPath(def, p) {
			out[p.Path] = struct{}{}
		}
	}
	return out
}

// SpaceDefinitionChanged stores a new definition for space and reloads the
// paths whose membership it changes. A nil definition clears the rules.
func (e *Engine) SpaceDefinitionChanged(ctx context.Context, space string, def *models.SpaceDefinition) error {
	log := e.logger.WithField("space", space)
	if err := e.adapter.SaveSpaceDefinition(space, def); err != nil {
		return errors.StorageFailed("save definition", space, err)
	}

	var oldDef *models.SpaceDefinition
	if old := e.store.Space(space); old != nil {
		oldDef = old.Definition
	}
	e.mu.Lock()
	if _, ok := e.declared[space]; ok {
		if def != nil {
			e.declared[space] = def.Clone()
		} else {
			delete(e.declared, space)
		}
	}
	e.mu.Unlock()
	st := e.spaceState(space, def.Clone())
	e.putSpace(st, "definition")

	paths := e.store.Paths()
	before := ruleMatched(oldDef, paths)
	after := ruleMatched(def, paths)
	var diff []string
	for p := range before {
		if _, ok := after[p]; !ok {
			diff = append(diff, p)
		}
	}
	for p := range after {
		if _, ok := before[p]; !ok {
			diff = append(diff, p)
		}
	}
	sort.Strings(diff)
	log.WithField("paths", len(diff)).Debug("Reloading paths for definition change")

	for _, p := range diff {
		if _, err := e.reloadPath(ctx, p); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to reload path")
			continue
		}
		e.store.Dispatch(store.Event{Type: store.EventPathChanged, Path: p, Source: "definition"})
	}

	if err := e.settle(ctx, []*opqueue.Ticket{e.enqueueRefresh(space, "definition")}, []string{space}); err != nil {
		return err
	}
	return e.rebuildSearch(ctx)
}

// Declare adds, replaces or, with a nil definition, retracts a configured
// virtual space.
func (e *Engine) Declare(ctx context.Context, space string, def *models.SpaceDefinition) error {
	if !models.IsSpacePath(space) || models.IsTagSpace(space) {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("'%s' is not a virtual space path", space))
	}
	if def != nil {
		e.mu.Lock()
		e.declared[space] = def.Clone()
		e.mu.Unlock()
		return e.SpaceDefinitionChanged(ctx, space, def)
	}

	e.mu.Lock()
	delete(e.declared, space)
	e.mu.Unlock()
	old := e.store.Space(space)
	if old == nil {
		return nil
	}
	members := ruleMatched(old.Definition, e.store.Paths())
	if err := e.adapter.SaveSpaceDefinition(space, nil); err != nil {
		e.logger.WithError(errors.StorageFailed("remove definition", space, err)).Warn("Failed to remove space definition")
	}
	if err := e.PathDeleted(ctx, space); err != nil {
		return err
	}
	for _, p := range sortedSet(members) {
		if _, err := e.reloadPath(ctx, p); err != nil {
			e.logger.WithError(err).WithField("path", p).Warn("Failed to reload path")
			continue
		}
		e.store.Dispatch(store.Event{Type: store.EventPathChanged, Path: p, Source: "definition"})
	}
	return nil
}

// RenameTag retags every path carrying old and moves the tag space's
// table to the new tag.
func (e *Engine) RenameTag(ctx context.Context, oldTag, newTag string) error {
	oldTag, newTag = models.NormalizeTag(oldTag), models.NormalizeTag(newTag)
	if oldTag == "" || newTag == "" || oldTag == newTag {
		return errors.New(errors.ErrCodeInvalidInput, "rename tag needs two different tags")
	}
	oldSpace, newSpace := models.TagSpacePath(oldTag), models.TagSpacePath(newTag)
	log := e.logger.WithFields(logrus.Fields{"from": oldTag, "to": newTag})

	paths := e.store.PathsWithTag(oldTag)
	for _, p := range paths {
		if err := e.retagMetadata(p, oldTag, newTag); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to rewrite tags")
		}
	}

	if e.adapter.ContextInitiated(oldSpace) {
		tables, err := e.adapter.ReadAllTables(oldSpace)
		if err != nil {
			return errors.StorageFailed("read tables", oldSpace, err)
		}
		for _, t := range tables {
			if _, err := e.adapter.SaveTable(newSpace, t, true); err != nil {
				return errors.StorageFailed("save table", newSpace, err)
			}
		}
		if err := e.adapter.Delete(oldSpace); err != nil {
			log.WithError(err).Warn("Failed to remove old tag space storage")
		}
	}

	if e.store.Context(oldSpace) != nil && e.store.Context(newSpace) == nil {
		e.store.RenameContext(oldSpace, newSpace)
	}
	if e.store.Space(newSpace) == nil {
		st, err := e.loadSpace(newSpace)
		if err != nil {
			return err
		}
		e.putSpace(st, "tag")
	}

	var tickets []*opqueue.Ticket
	touched := []string{newSpace}
	for _, s := range e.readingSpace(oldSpace) {
		if s == oldSpace {
			continue
		}
		touched = append(touched, s)
		tickets = append(tickets, e.enqueueEdit(s, "retarget", retargetColumns(oldSpace, newSpace)))
	}

	for _, p := range paths {
		if _, err := e.reloadPath(ctx, p); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to reload path")
			continue
		}
		e.store.Dispatch(store.Event{Type: store.EventPathChanged, Path: p, Source: "tag"})
	}
	e.dropSpace(oldSpace, "tag")
	tickets = append(tickets, e.enqueueRefresh(newSpace, "tag"))

	if err := e.settle(ctx, tickets, touched); err != nil {
		return err
	}
	return e.rebuildSearch(ctx)
}

// DeleteTag removes a tag from every path carrying it and drops its space.
// Columns reading the tag space become plain text.
func (e *Engine) DeleteTag(ctx context.Context, tag string) error {
	tag = models.NormalizeTag(tag)
	if tag == "" {
		return errors.New(errors.ErrCodeInvalidInput, "delete tag needs a tag")
	}
	space := models.TagSpacePath(tag)
	log := e.logger.WithField("tag", tag)

	paths := e.store.PathsWithTag(tag)
	for _, p := range paths {
		if err := e.retagMetadata(p, tag, ""); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to rewrite tags")
		}
	}
	if e.adapter.ContextInitiated(space) {
		if err := e.adapter.Delete(space); err != nil {
			log.WithError(err).Warn("Failed to remove tag space storage")
		}
	}

	var tickets []*opqueue.Ticket
	var touched []string
	for _, s := range e.readingSpace(space) {
		if s == space {
			continue
		}
		touched = append(touched, s)
		tickets = append(tickets, e.enqueueEdit(s, "neutralize", retargetColumns(space, "")))
	}
	for _, p := range paths {
		if _, err := e.reloadPath(ctx, p); err != nil {
			log.WithError(err).WithField("path", p).Warn("Failed to reload path")
			continue
		}
		e.store.Dispatch(store.Event{Type: store.EventPathChanged, Path: p, Source: "tag"})
	}
	e.dropSpace(space, "tag")

	if err := e.settle(ctx, tickets, touched); err != nil {
		return err
	}
	return e.rebuildSearch(ctx)
}

// retagMetadata rewrites the tags field of p's metadata, replacing from
// with to or dropping it when to is empty. Inline body tags are left as
// written.
func (e *Engine) retagMetadata(p, from, to string) error {
	st := e.store.Path(p)
	if st == nil {
		return nil
	}
	raw, ok := st.Metadata["tags"]
	if !ok {
		return nil
	}
	var items []string
	switch v := raw.(type) {
	case string:
		items = models.SplitList(v)
	default:
		for _, item := range models.FromNative(v).Items() {
			items = append(items, item.String())
		}
	}
	out := make([]interface{}, 0, len(items))
	changed := false
	for _, item := range items {
		if models.NormalizeTag(item) != from {
			out = append(out, item)
			continue
		}
		changed = true
		if to == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(item), "#") {
			out = append(out, to)
		} else {
			out = append(out, strings.TrimPrefix(to, "#"))
		}
	}
	if !changed {
		return nil
	}
	meta := models.CloneMetadata(st.Metadata)
	meta["tags"] = out
	target := p
	if st.Type == models.PathTypeFolder {
		if sp := e.store.Space(p); sp != nil && sp.NotePath != "" {
			target = sp.NotePath
		}
	}
	return e.adapter.SaveMetadata(target, meta)
}
