package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/dispatcher"
	"github.com/grovetools/superstate/internal/indexer"
	"github.com/grovetools/superstate/internal/opqueue"
	"github.com/grovetools/superstate/internal/vault"
	"github.com/grovetools/superstate/pkg/models"
)

func contextKey(space string) string { return "context:" + space }

// refreshContext rebuilds a space's table from the latest snapshot, saves
// it when it changed and a stored copy exists (or opts.Create asks for
// one), and caches the result.
func (e *Engine) refreshContext(ctx context.Context, space string, opts indexer.ContextOptions) error {
	key := contextKey(space)
	e.setPhase(key, PhaseRecomputing)
	res, err := e.dispatcher.Run(ctx, dispatcher.NewRequest(dispatcher.KindParseContext, space, opts))
	if err != nil {
		e.setPhase(key, PhaseStale)
		return err
	}
	st, _ := res.(*models.ContextState)
	if st == nil {
		if e.store.Context(space) != nil {
			e.store.RemoveContext(space)
			e.persist("context", space, e.store.PersistContext)
		}
		e.setPhase(key, PhaseCurrent)
		return nil
	}
	if st.Outdated && st.Exists {
		if _, err := e.adapter.SaveTable(space, st.Table, opts.Create); err != nil {
			e.setPhase(key, PhaseStale)
			return errors.StorageFailed("save table", space, err)
		}
		st.Outdated = false
	}
	e.store.PutContext(st)
	e.syncSpaceProperties(space, st.Table)
	e.persist("context", space, e.store.PersistContext)
	e.setPhase(key, PhaseCurrent)
	e.store.Dispatch(store.Event{Type: store.EventContextChanged, Space: space, Source: "sync"})
	return nil
}

// syncSpaceProperties mirrors the table's column types and option values
// onto the space state.
func (e *Engine) syncSpaceProperties(space string, t *models.Table) {
	sp := e.store.Space(space)
	if sp == nil {
		return
	}
	c := sp.Clone()
	c.PropertyTypes = t.ColumnTypes()
	c.PropertyValues = make(map[string][]string)
	for _, col := range t.Cols {
		if col.EffectiveType() != models.ColumnOption {
			continue
		}
		seen := make(map[string]struct{})
		for _, o := range col.Props.Options {
			seen[o] = struct{}{}
		}
		for _, r := range t.Rows {
			for _, item := range models.SplitList(r[col.Name]) {
				seen[item] = struct{}{}
			}
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		c.PropertyValues[col.Name] = values
	}
	e.store.PutSpace(c)
}

// editTable applies edit to the stored table of space (or the cached one
// when nothing is stored) and writes the result back to both.
func (e *Engine) editTable(space string, edit func(*models.Table) bool) error {
	exists := e.adapter.ContextInitiated(space)
	var table *models.Table
	if exists {
		tables, err := e.adapter.ReadAllTables(space)
		if err != nil {
			return errors.StorageFailed("read tables", space, err)
		}
		table = tables[vault.MainTable]
	}
	cached := e.store.Context(space)
	if table == nil && cached != nil {
		table = cached.Table
	}
	if table == nil {
		return nil
	}
	t := table.Clone()
	if !edit(t) {
		return nil
	}
	if exists {
		if _, err := e.adapter.SaveTable(space, t, false); err != nil {
			return errors.StorageFailed("save table", space, err)
		}
	}
	if cached != nil {
		c := cached.Clone()
		c.Linked = cached.Linked
		c.Table = t
		e.store.PutContext(c)
	}
	return nil
}

// enqueueRefresh queues a rebuild of a space's table.
func (e *Engine) enqueueRefresh(space, label string) *opqueue.Ticket {
	return e.queue(space).Enqueue(label, func(ctx context.Context) error {
		return e.refreshContext(ctx, space, indexer.ContextOptions{})
	})
}

// enqueueEdit queues an edit of a space's table followed by a rebuild.
func (e *Engine) enqueueEdit(space, label string, edit func(*models.Table) bool) *opqueue.Ticket {
	return e.queue(space).Enqueue(label, func(ctx context.Context) error {
		if err := e.editTable(space, edit); err != nil {
			return err
		}
		return e.refreshContext(ctx, space, indexer.ContextOptions{})
	})
}

// InitContext creates the stored table of a space, or rewrites it.
func (e *Engine) InitContext(ctx context.Context, space string) error {
	t := e.queue(space).Enqueue("init", func(ctx context.Context) error {
		return e.refreshContext(ctx, space, indexer.ContextOptions{Create: true})
	})
	return e.settle(ctx, []*opqueue.Ticket{t}, []string{space})
}

// settle waits for tickets, then relinks the tables that read any of the
// touched tables, repeating until no new dependents turn up. Task errors
// have already been dead-lettered and are not returned.
func (e *Engine) settle(ctx context.Context, tickets []*opqueue.Ticket, touched []string) error {
	visited := make(map[string]struct{}, len(touched))
	for _, s := range touched {
		visited[s] = struct{}{}
	}
	frontier := touched
	for {
		for _, t := range tickets {
			if err := t.Wait(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		tickets = nil
		var next []string
		for _, s := range frontier {
			for _, dep := range e.store.Dependents(s) {
				if _, ok := visited[dep]; ok {
					continue
				}
				visited[dep] = struct{}{}
				next = append(next, dep)
				tickets = append(tickets, e.enqueueRefresh(dep, "relink"))
			}
		}
		if len(next) == 0 {
			return nil
		}
		frontier = next
	}
}

// referencing lists the cached tables holding a row keyed by, or a link
// value pointing at, any of paths.
func (e *Engine) referencing(paths map[string]string) []string {
	var out []string
	for _, c := range e.store.Contexts() {
		if c.Table != nil && tableMentions(c.Table, paths) {
			out = append(out, c.Space)
		}
	}
	return out
}

func tableMentions(t *models.Table, paths map[string]string) bool {
	linkCols := linkColumns(t)
	for _, r := range t.Rows {
		if _, ok := paths[r.Key()]; ok {
			return true
		}
		for _, col := range linkCols {
			for _, item := range models.SplitList(r[col]) {
				if _, ok := paths[models.StripLink(item)]; ok {
					return true
				}
			}
		}
	}
	return false
}

func linkColumns(t *models.Table) []string {
	var out []string
	for _, c := range t.Cols {
		if c.Primary || c.Name == models.KeyColumn {
			continue
		}
		switch c.EffectiveType() {
		case models.ColumnLink, models.ColumnRelation:
			out = append(out, c.Name)
		}
	}
	return out
}

// rekeyRows moves rows keyed by an old path to the new path and rewrites
// link values. A row already keyed by the new path wins over the moved one.
func rekeyRows(renames map[string]string) func(*models.Table) bool {
	return func(t *models.Table) bool {
		changed := false
		present := make(map[string]struct{}, len(t.Rows))
		for _, r := range t.Rows {
			present[r.Key()] = struct{}{}
		}
		rows := t.Rows[:0]
		for _, r := range t.Rows {
			if to, ok := renames[r.Key()]; ok {
				changed = true
				if _, dup := present[to]; dup {
					continue
				}
				r[models.KeyColumn] = to
				present[to] = struct{}{}
			}
			rows = append(rows, r)
		}
		t.Rows = rows
		return rewriteLinks(t, func(p string) (string, bool) {
			to, ok := renames[p]
			return to, ok
		}) || changed
	}
}

// dropRows removes rows keyed by a removed path and drops link values
// pointing at one.
func dropRows(removed map[string]string) func(*models.Table) bool {
	return func(t *models.Table) bool {
		changed := false
		rows := t.Rows[:0]
		for _, r := range t.Rows {
			if _, ok := removed[r.Key()]; ok {
				changed = true
				continue
			}
			rows = append(rows, r)
		}
		t.Rows = rows
		return rewriteLinks(t, func(p string) (string, bool) {
			_, ok := removed[p]
			return "", ok
		}) || changed
	}
}

// rewriteLinks maps every link value through fn. An empty replacement
// drops the item.
func rewriteLinks(t *models.Table, fn func(string) (string, bool)) bool {
	changed := false
	for _, col := range linkColumns(t) {
		for _, r := range t.Rows {
			raw, ok := r[col]
			if !ok || raw == "" {
				continue
			}
			items := models.SplitList(raw)
			out := make([]string, 0, len(items))
			touched := false
			for _, item := range items {
				to, hit := fn(models.StripLink(item))
				if !hit {
					out = append(out, item)
					continue
				}
				touched = true
				if to == "" {
					continue
				}
				if strings.HasPrefix(strings.TrimSpace(item), "[[") {
					to = "[[" + to + "]]"
				}
				out = append(out, to)
			}
			if touched {
				changed = true
				if len(out) == 0 {
					delete(r, col)
				} else {
					r[col] = models.JoinList(out)
				}
			}
		}
	}
	return changed
}

// retargetColumns points relation and aggregate columns reading from one
// space at another. An empty target turns the column into plain text.
func retargetColumns(from, to string) func(*models.Table) bool {
	return func(t *models.Table) bool {
		changed := false
		for i, c := range t.Cols {
			if c.Props.Space != from {
				continue
			}
			switch c.EffectiveType() {
			case models.ColumnRelation, models.ColumnAggregate:
			default:
				continue
			}
			changed = true
			if to != "" {
				t.Cols[i].Props.Space = to
				continue
			}
			t.Cols[i].Type = models.ColumnText
			t.Cols[i].Props = models.ColumnProps{}
		}
		return changed
	}
}

// readingSpace lists cached tables with a column reading from space.
func (e *Engine) readingSpace(space string) []string {
	var out []string
	for _, c := range e.store.Contexts() {
		if c.Table == nil {
			continue
		}
		for _, s := range c.Table.ReferencedSpaces() {
			if s == space {
				out = append(out, c.Space)
				break
			}
		}
	}
	return out
}
