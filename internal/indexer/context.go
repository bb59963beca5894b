package indexer

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/linker"
	"github.com/grovetools/superstate/internal/vault"
	"github.com/grovetools/superstate/pkg/models"
)

// BuildContext materializes the context table of space: the stored table
// (or the cached one when nothing is stored yet) with rows pruned to the
// current members, a row appended for every new member, synced metadata
// columns refreshed, and every row linked. A space that is not cached
// yields nil.
func (ix *Indexer) BuildContext(snap *store.Snapshot, space string, opts ContextOptions) (*models.ContextState, error) {
	sp := snap.Space(space)
	if sp == nil {
		return nil, nil
	}
	tables, err := ix.adapter.ReadAllTables(space)
	if err != nil {
		return nil, err
	}
	exists := tables != nil

	var table *models.Table
	switch {
	case tables[vault.MainTable] != nil:
		table = tables[vault.MainTable].Clone()
	case snap.Context(space) != nil && snap.Context(space).Table != nil:
		table = snap.Context(space).Table.Clone()
	default:
		table = models.NewTable(sp.Name)
	}
	ensureKeyColumn(table)
	stored := table.Clone()

	members := snap.Members(space)
	ReconcileRows(table, members)
	if snap.SyncProperties {
		AddSyncedColumns(table, memberStates(snap, members))
	}
	SyncValues(table, snap.Path)

	state := &models.ContextState{
		Space:        space,
		Schemas:      schemas(tables, table),
		Table:        table,
		Contents:     members,
		Exists:       exists || opts.Create,
		Dependencies: dependencies(table, space),
	}
	// a table with no stored copy has nothing to fall behind
	state.Outdated = state.Exists && (!exists || !sameTable(stored, table))

	linked, err := linker.New(ix.eval, snap.WithContext(state), ix.logger).LinkTable(table)
	if err != nil {
		return nil, err
	}
	state.Linked = linked
	return state, nil
}

func ensureKeyColumn(t *models.Table) {
	if _, ok := t.Column(models.KeyColumn); ok {
		return
	}
	key := models.NewTable(t.Schema.Name).Cols[0]
	t.Cols = append([]models.Column{key}, t.Cols...)
}

// ReconcileRows drops rows whose key is not in members and appends an
// empty row for each member without one, keeping existing row order.
func ReconcileRows(t *models.Table, members []string) {
	want := make(map[string]struct{}, len(members))
	for _, m := range members {
		want[m] = struct{}{}
	}
	rows := make([]models.Row, 0, len(members))
	have := make(map[string]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		k := r.Key()
		if _, ok := want[k]; !ok {
			continue
		}
		if _, dup := have[k]; dup {
			continue
		}
		have[k] = struct{}{}
		rows = append(rows, r)
	}
	for _, m := range members {
		if _, ok := have[m]; !ok {
			rows = append(rows, models.Row{models.KeyColumn: m})
		}
	}
	t.Rows = rows
}

func memberStates(snap *store.Snapshot, members []string) []*models.PathState {
	out := make([]*models.PathState, 0, len(members))
	for _, m := range members {
		if p := snap.Path(m); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// AddSyncedColumns appends a synced column for every metadata key of the
// given paths that the table lacks. Column types are inferred from the
// first value seen.
func AddSyncedColumns(t *models.Table, paths []*models.PathState) {
	found := make(map[string]interface{})
	for _, p := range paths {
		for k, v := range p.Metadata {
			if v == nil || strings.EqualFold(k, models.KeyColumn) {
				continue
			}
			if _, ok := found[k]; !ok {
				found[k] = v
			}
		}
	}
	keys := make([]string, 0, len(found))
	for k := range found {
		if _, ok := t.Column(k); !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		typ, multi := inferType(found[k])
		t.Cols = append(t.Cols, models.Column{
			Name:   k,
			Schema: t.Schema.ID,
			Type:   typ,
			Props:  models.ColumnProps{Multi: multi},
			Synced: true,
		})
	}
}

func inferType(v interface{}) (models.ColumnType, bool) {
	switch t := v.(type) {
	case bool:
		return models.ColumnBoolean, false
	case int, int64, float64, float32, uint64:
		return models.ColumnNumber, false
	case time.Time:
		return models.ColumnDate, false
	case []interface{}, []string:
		for _, item := range models.FromNative(t).Items() {
			if isWikiLink(item.String()) {
				return models.ColumnLink, true
			}
		}
		return models.ColumnOption, true
	case string:
		if isWikiLink(t) {
			return models.ColumnLink, false
		}
		if _, ok := models.ParseDate(t); ok {
			return models.ColumnDate, false
		}
	}
	return models.ColumnText, false
}

func isWikiLink(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[[") && strings.HasSuffix(s, "]]")
}

// SyncValues copies each row's path metadata into the synced columns. A key
// missing from the metadata clears the cell.
func SyncValues(t *models.Table, lookup func(string) *models.PathState) {
	var synced []models.Column
	for _, c := range t.Cols {
		if c.Synced && !c.Primary {
			synced = append(synced, c)
		}
	}
	if len(synced) == 0 {
		return
	}
	for _, r := range t.Rows {
		p := lookup(r.Key())
		if p == nil {
			continue
		}
		for _, c := range synced {
			v, ok := p.Metadata[c.Name]
			if !ok || v == nil {
				delete(r, c.Name)
				continue
			}
			r[c.Name] = models.FromNative(v).String()
		}
	}
}

func schemas(tables map[string]*models.Table, main *models.Table) []models.TableSchema {
	if len(tables) == 0 {
		return []models.TableSchema{main.Schema}
	}
	ids := make([]string, 0, len(tables))
	for id := range tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.TableSchema, 0, len(ids))
	for _, id := range ids {
		out = append(out, tables[id].Schema)
	}
	return out
}

// dependencies lists the other spaces whose tables this one reads.
func dependencies(t *models.Table, self string) []string {
	var out []string
	for _, s := range t.ReferencedSpaces() {
		if s != self {
			out = append(out, s)
		}
	}
	return out
}

func sameTable(a, b *models.Table) bool {
	return a.Schema == b.Schema && reflect.DeepEqual(a.Cols, b.Cols) && reflect.DeepEqual(a.Rows, b.Rows)
}
