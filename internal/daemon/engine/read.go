package engine

import (
	"context"

	"github.com/grovetools/superstate/internal/dispatcher"
	"github.com/grovetools/superstate/internal/indexer"
	"github.com/grovetools/superstate/internal/query"
	"github.com/grovetools/superstate/internal/search"
	"github.com/grovetools/superstate/pkg/models"
)

// Query filters and sorts the linked rows of a space's table. An unknown
// space yields no rows.
func (e *Engine) Query(space string, view models.View) []models.LinkedRow {
	c := e.store.Context(space)
	if c == nil || c.Table == nil {
		return nil
	}
	recs := make([]query.Record, 0, len(c.Table.Rows))
	for _, r := range c.Table.Rows {
		row, ok := c.Linked[r.Key()]
		if !ok {
			continue
		}
		recs = append(recs, query.RowRecord{Row: row})
	}
	out := query.Run(recs, view, c.Table.ColumnTypes())
	rows := make([]models.LinkedRow, 0, len(out))
	for _, r := range out {
		rows = append(rows, r.(query.RowRecord).Row)
	}
	return rows
}

// Search ranks cached paths against text. The index is built on first use.
func (e *Engine) Search(ctx context.Context, text string, limit int) ([]search.Result, error) {
	if text == "" {
		return nil, nil
	}
	idx := e.store.SearchIndex()
	if idx == nil {
		if err := e.rebuildSearch(ctx); err != nil {
			return nil, err
		}
		idx = e.store.SearchIndex()
	}
	res, err := e.dispatcher.Run(ctx, dispatcher.NewRequest(dispatcher.KindSearch, "", indexer.SearchOptions{
		Text:  text,
		Limit: limit,
		Index: idx,
	}))
	if err != nil {
		return nil, err
	}
	hits, _ := res.([]search.Result)
	return hits, nil
}

// SetFocuses replaces the focus lists and persists them.
func (e *Engine) SetFocuses(focuses []models.Focus) {
	e.store.SetFocuses(focuses)
	if err := e.store.PersistFocuses(); err != nil {
		e.logger.WithError(err).Warn("Failed to persist focus lists")
	}
}

// Focuses returns the focus lists.
func (e *Engine) Focuses() []models.Focus {
	return e.store.Focuses()
}
