// Package engine reconciles the caches with the vault. It turns observed
// mutations into dispatcher jobs and per-table queue tasks, and runs the
// collectors that observe the vault.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/internal/daemon/collector"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/dispatcher"
	"github.com/grovetools/superstate/internal/opqueue"
	"github.com/grovetools/superstate/internal/vault"
	"github.com/grovetools/superstate/pkg/models"
)

// Phase is the freshness of one cached entity.
type Phase string

const (
	PhaseStale       Phase = "stale"
	PhaseRecomputing Phase = "recomputing"
	PhaseCurrent     Phase = "current"
)

// Options configures an Engine. Store, Dispatcher and Adapter are required.
type Options struct {
	Store      *store.Store
	Dispatcher *dispatcher.Dispatcher
	Adapter    vault.Adapter
	Logger     *logrus.Entry

	// QueueMetrics is shared by every per-table queue. May be nil.
	QueueMetrics *opqueue.Metrics

	// Spaces are declared spaces keyed by space path. They are seeded on
	// Initialize and their definitions win over stored ones.
	Spaces map[string]*models.SpaceDefinition
}

// Engine manages the index lifecycle and all collectors.
type Engine struct {
	store      *store.Store
	dispatcher *dispatcher.Dispatcher
	adapter    vault.Adapter
	logger     *logrus.Entry
	metrics    *opqueue.Metrics
	declared   map[string]*models.SpaceDefinition
	collectors []collector.Collector

	mu     sync.Mutex
	queues map[string]*opqueue.Queue
	phases map[string]Phase
	loop   *applyLoop

	// applyMu serializes cascades. Run holds it per mutation, so callers
	// outside the loop never interleave with it.
	applyMu sync.Mutex

	deadLetters int64
}

// New creates a new Engine instance.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	declared := make(map[string]*models.SpaceDefinition, len(opts.Spaces))
	for k, v := range opts.Spaces {
		declared[k] = v.Clone()
	}
	return &Engine{
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		adapter:    opts.Adapter,
		logger:     logger,
		metrics:    opts.QueueMetrics,
		declared:   declared,
		queues:     make(map[string]*opqueue.Queue),
		phases:     make(map[string]Phase),
	}
}

// Snapshots returns the snapshot function dispatcher jobs are handed.
func Snapshots(st *store.Store, syncProperties bool) dispatcher.SnapshotFunc {
	return func() *store.Snapshot {
		snap := st.Snapshot()
		snap.SyncProperties = syncProperties
		return snap
	}
}

// Store returns the engine's state store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Register adds a collector to the engine.
func (e *Engine) Register(c collector.Collector) {
	e.collectors = append(e.collectors, c)
}

// Start runs all collectors and applies their mutations until ctx is
// cancelled.
func (e *Engine) Start(ctx context.Context) {
	mutations := make(chan collector.Mutation, 100)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Run(ctx, mutations)
	}()

	for _, c := range e.collectors {
		wg.Add(1)
		go func(col collector.Collector) {
			defer wg.Done()
			e.logger.WithField("collector", col.Name()).Info("Starting collector")
			if err := col.Run(ctx, e.store, mutations); err != nil {
				e.logger.WithField("collector", col.Name()).WithError(err).Error("Collector failed")
			}
		}(c)
	}

	wg.Wait()
}

type applyRequest struct {
	m    collector.Mutation
	done chan error
}

// applyLoop is the request side of a running Run.
type applyLoop struct {
	requests chan applyRequest
	stopped  chan struct{}
}

// Run applies mutations one at a time, in order, until ctx is cancelled or
// the channel is closed. Mutations handed to Submit while Run is active are
// applied by the same loop.
func (e *Engine) Run(ctx context.Context, mutations <-chan collector.Mutation) {
	loop := &applyLoop{requests: make(chan applyRequest), stopped: make(chan struct{})}
	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.loop == loop {
			e.loop = nil
		}
		e.mu.Unlock()
		close(loop.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-loop.requests:
			req.done <- e.Apply(ctx, req.m)
		case m, ok := <-mutations:
			if !ok {
				return
			}
			if err := e.Apply(ctx, m); err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"kind": m.Kind,
					"path": m.Path,
				}).Error("Failed to apply mutation")
			}
		}
	}
}

// Submit hands m to the running loop and waits for it to settle. Without a
// loop it applies m itself. Cancelling ctx stops the wait, never the
// cascade.
func (e *Engine) Submit(ctx context.Context, m collector.Mutation) error {
	e.mu.Lock()
	loop := e.loop
	e.mu.Unlock()
	if loop == nil {
		return e.Apply(context.WithoutCancel(ctx), m)
	}

	req := applyRequest{m: m, done: make(chan error, 1)}
	select {
	case loop.requests <- req:
	case <-loop.stopped:
		return e.Apply(context.WithoutCancel(ctx), m)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply routes one mutation to its cascade and waits for it to settle.
// Cascades never overlap.
func (e *Engine) Apply(ctx context.Context, m collector.Mutation) error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	switch m.Kind {
	case collector.MutationCreated:
		return e.PathCreated(ctx, m.Path)
	case collector.MutationRenamed:
		return e.PathRenamed(ctx, m.OldPath, m.Path)
	case collector.MutationDeleted:
		return e.PathDeleted(ctx, m.Path)
	case collector.MutationChanged:
		return e.PathMetadataChanged(ctx, m.Path)
	case collector.MutationDefinition:
		return e.SpaceDefinitionChanged(ctx, m.Path, m.Definition)
	case collector.MutationRenameTag:
		return e.RenameTag(ctx, m.OldPath, m.Path)
	case collector.MutationDeleteTag:
		return e.DeleteTag(ctx, m.Path)
	case collector.MutationDeclared:
		return e.Declare(ctx, m.Path, m.Definition)
	}
	return fmt.Errorf("unknown mutation kind %q", m.Kind)
}

// Phase reports how fresh the cached state of a path or space is. Entities
// the engine never touched are current.
func (e *Engine) Phase(key string) Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.phases[key]; ok {
		return p
	}
	return PhaseCurrent
}

func (e *Engine) setPhase(key string, p Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p == PhaseCurrent {
		delete(e.phases, key)
		return
	}
	e.phases[key] = p
}

// Stats summarises the engine for status reports.
type Stats struct {
	Paths       int              `json:"paths"`
	Spaces      int              `json:"spaces"`
	Contexts    int              `json:"contexts"`
	Queued      int              `json:"queued"`
	Stale       int              `json:"stale"`
	DeadLetters int              `json:"deadLetters"`
	Dispatcher  dispatcher.Stats `json:"dispatcher"`
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Paths:       len(e.store.Paths()),
		Spaces:      len(e.store.Spaces()),
		Contexts:    len(e.store.Contexts()),
		DeadLetters: e.DeadLetters(),
		Dispatcher:  e.dispatcher.Stats(),
	}
	for _, q := range e.allQueues() {
		s.Queued += q.Depth()
	}
	e.mu.Lock()
	s.Stale = len(e.phases)
	e.mu.Unlock()
	return s
}

// Declared returns a copy of the configured space definitions.
func (e *Engine) Declared() map[string]*models.SpaceDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*models.SpaceDefinition, len(e.declared))
	for k, v := range e.declared {
		out[k] = v.Clone()
	}
	return out
}

// DeadLetters returns how many queued table mutations have failed.
func (e *Engine) DeadLetters() int {
	return int(atomic.LoadInt64(&e.deadLetters))
}

// queue returns the operation queue of a space's table, creating it.
func (e *Engine) queue(space string) *opqueue.Queue {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[space]
	if !ok {
		q = opqueue.New(space, e.logger, e.metrics, e.deadLetter)
		e.queues[space] = q
	}
	return q
}

func (e *Engine) deadLetter(f opqueue.Failure) {
	atomic.AddInt64(&e.deadLetters, 1)
	e.store.Dispatch(store.Event{
		Type:    store.EventMutationFailed,
		Space:   f.Queue,
		Source:  f.Label,
		Error:   f.Err.Error(),
		Payload: map[string]interface{}{"id": f.ID, "at": f.At.Format(time.RFC3339Nano)},
	})
}

// Flush waits until every table queue is idle.
func (e *Engine) Flush(ctx context.Context) error {
	for _, q := range e.allQueues() {
		if err := q.Drain(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting table mutations and waits for queued ones.
func (e *Engine) Close(ctx context.Context) error {
	for _, q := range e.allQueues() {
		if err := q.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) allQueues() []*opqueue.Queue {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.queues))
	for n := range e.queues {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*opqueue.Queue, 0, len(names))
	for _, n := range names {
		out = append(out, e.queues[n])
	}
	return out
}

// persist writes through to the persistence facade. Failures are logged;
// the caches stay authoritative.
func (e *Engine) persist(what, key string, fn func(string) error) {
	if err := fn(key); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			what: key,
		}).Warn("Failed to persist entry")
	}
}
