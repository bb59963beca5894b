// Package indexer holds the dispatcher job handlers. Handlers read the
// snapshot they are given and the storage adapter and return new states;
// merging them into the store is the engine's job.
package indexer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/dispatcher"
	"github.com/grovetools/superstate/internal/linker"
	"github.com/grovetools/superstate/internal/search"
	"github.com/grovetools/superstate/internal/vault"
	"github.com/grovetools/superstate/pkg/models"
)

// ContextOptions is the payload of parse_context jobs.
type ContextOptions struct {
	// Create marks the table for writing even if the store has none yet.
	Create bool
}

func (o ContextOptions) KeyFields() []string {
	return []string{"create=" + strconv.FormatBool(o.Create)}
}

// SearchOptions is the payload of search jobs. An empty Text builds a new
// index from the snapshot; otherwise Index is queried.
type SearchOptions struct {
	Text  string
	Limit int
	Index *search.Index `json:"-"`
}

func (o SearchOptions) KeyFields() []string {
	if o.Text == "" {
		return []string{"build"}
	}
	return []string{"query", o.Text, strconv.Itoa(o.Limit)}
}

// Indexer parses paths and context tables.
type Indexer struct {
	adapter vault.Adapter
	eval    linker.Evaluator
	logger  *logrus.Entry
	workers int
}

// New creates an Indexer. workers bounds the fan-out of bulk jobs.
func New(adapter vault.Adapter, eval linker.Evaluator, logger *logrus.Entry, workers int) *Indexer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if workers < 1 {
		workers = 1
	}
	return &Indexer{adapter: adapter, eval: eval, logger: logger, workers: workers}
}

// Register installs every handler on d.
func (ix *Indexer) Register(d *dispatcher.Dispatcher) {
	d.Register(dispatcher.KindParsePath, ix.parsePath)
	d.Register(dispatcher.KindParseAllPaths, ix.parseAllPaths)
	d.Register(dispatcher.KindParseContext, ix.parseContext)
	d.Register(dispatcher.KindParseAllContexts, ix.parseAllContexts)
	d.Register(dispatcher.KindSearch, ix.search)
}

func (ix *Indexer) parsePath(ctx context.Context, req dispatcher.Request, snap *store.Snapshot) (interface{}, error) {
	st, err := ix.BuildPath(snap, newResolver(snap), req.Target)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (ix *Indexer) parseAllPaths(ctx context.Context, req dispatcher.Request, snap *store.Snapshot) (interface{}, error) {
	paths, err := ix.adapter.AllPaths("")
	if err != nil {
		return nil, err
	}
	res := newResolver(snap)
	out := make([]*models.PathState, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, err := ix.BuildPath(snap, res, p)
			if err != nil {
				return fmt.Errorf("parse %s: %w", p, err)
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	states := out[:0]
	for _, st := range out {
		if st != nil {
			states = append(states, st)
		}
	}
	return states, nil
}

func (ix *Indexer) parseContext(ctx context.Context, req dispatcher.Request, snap *store.Snapshot) (interface{}, error) {
	opts, _ := req.Payload.(ContextOptions)
	st, err := ix.BuildContext(snap, req.Target, opts)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// parseAllContexts builds every space's table. A table that fails to build
// is logged and left out; the others are still returned.
func (ix *Indexer) parseAllContexts(ctx context.Context, req dispatcher.Request, snap *store.Snapshot) (interface{}, error) {
	spaces := snap.Spaces()
	out := make([]*models.ContextState, len(spaces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, sp := range spaces {
		i, space := i, sp.Path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, err := ix.BuildContext(snap, space, ContextOptions{})
			if err != nil {
				ix.logger.WithError(err).WithField("space", space).Warn("Skipping context table")
				return nil
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	states := out[:0]
	for _, st := range out {
		if st != nil {
			states = append(states, st)
		}
	}
	return states, nil
}

func (ix *Indexer) search(ctx context.Context, req dispatcher.Request, snap *store.Snapshot) (interface{}, error) {
	opts, _ := req.Payload.(SearchOptions)
	if opts.Text == "" {
		return search.Build(snap.Paths()), nil
	}
	if opts.Index == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "search index has not been built")
	}
	return opts.Index.Query(opts.Text, opts.Limit), nil
}
