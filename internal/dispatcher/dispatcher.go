// Package dispatcher runs indexing jobs on a bounded set of slots, folding
// identical in-flight requests into a single execution.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/store"
)

// Handler computes the result of a request from the snapshot taken when
// the job started. Handlers never write shared state.
type Handler func(ctx context.Context, req Request, snap *store.Snapshot) (interface{}, error)

// SnapshotFunc captures the caches handed to a starting job.
type SnapshotFunc func() *store.Snapshot

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Running   int `json:"running"`
	Queued    int `json:"queued"`
	Inflight  int `json:"inflight"`
	Executed  int `json:"executed"`
	Debounced int `json:"debounced"`
	Failed    int `json:"failed"`
}

// Call is the pending result of a submitted request. Every caller joined to
// the same key holds the same Call.
type Call struct {
	Request Request

	handler Handler
	done    chan struct{}
	resp    Response
	result  interface{}
	err     error
}

func newCall(req Request, h Handler) *Call {
	return &Call{Request: req, handler: h, done: make(chan struct{})}
}

func (c *Call) resolve(result interface{}, err error) {
	c.result = result
	c.err = err
	c.resp = Response{Kind: c.Request.Kind, Target: c.Request.Target, Key: c.Request.Key, Result: result}
	if err != nil {
		c.resp.Result = nil
		c.resp.Error = err.Error()
	}
	close(c.done)
}

// Done is closed once the job has a result.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the job finished or ctx ends.
func (c *Call) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Response returns the wire form of the result. Only valid after Done.
func (c *Call) Response() Response {
	<-c.done
	return c.resp
}

// Dispatcher schedules jobs onto at most size concurrent slots. A job
// whose key is already running or queued is not scheduled again; the
// caller joins the existing call.
type Dispatcher struct {
	size      int
	snapshots SnapshotFunc
	logger    *logrus.Entry
	metrics   *Metrics
	slow      time.Duration

	mu        sync.Mutex
	handlers  map[Kind]Handler
	inflight  map[string]*Call
	queue     []*Call
	running   int
	closed    bool
	executed  int
	debounced int
	failed    int
	wg        sync.WaitGroup
}

// New creates a dispatcher with size slots. snapshots may be nil for
// handlers that need no cache state.
func New(size int, snapshots SnapshotFunc, logger *logrus.Entry, metrics *Metrics) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		size:      size,
		snapshots: snapshots,
		logger:    logger,
		metrics:   metrics,
		handlers:  make(map[Kind]Handler),
		inflight:  make(map[string]*Call),
	}
}

// SetSlowThreshold logs a warning for jobs running longer than d. Zero
// disables the warning.
func (d *Dispatcher) SetSlowThreshold(dur time.Duration) {
	d.mu.Lock()
	d.slow = dur
	d.mu.Unlock()
}

// Register installs the handler for kind, replacing any previous one.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Submit schedules req, or joins the identical in-flight job.
func (d *Dispatcher) Submit(req Request) *Call {
	if req.Key == "" {
		req.Key = Key(req.Kind, req.Target, req.Payload)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		c := newCall(req, nil)
		c.resolve(nil, errors.New(errors.ErrCodeDispatcherClosed, "dispatcher is closed"))
		return c
	}
	if c, ok := d.inflight[req.Key]; ok {
		d.debounced++
		d.metrics.debounce(req.Kind)
		return c
	}
	h, ok := d.handlers[req.Kind]
	if !ok {
		c := newCall(req, nil)
		c.resolve(nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("no handler for job kind %q", req.Kind)))
		return c
	}

	c := newCall(req, h)
	d.inflight[req.Key] = c
	if d.running < d.size {
		d.startLocked(c)
	} else {
		d.queue = append(d.queue, c)
		d.metrics.setDepth(len(d.queue))
	}
	return c
}

// Run submits req and waits for its result.
func (d *Dispatcher) Run(ctx context.Context, req Request) (interface{}, error) {
	return d.Submit(req).Wait(ctx)
}

func (d *Dispatcher) startLocked(c *Call) {
	d.running++
	d.wg.Add(1)
	go d.execute(c)
}

func (d *Dispatcher) execute(c *Call) {
	defer d.wg.Done()

	var snap *store.Snapshot
	if d.snapshots != nil {
		snap = d.snapshots()
	}

	start := time.Now()
	result, err := d.invoke(c, snap)
	elapsed := time.Since(start)

	d.mu.Lock()
	delete(d.inflight, c.Request.Key)
	d.running--
	d.executed++
	if err != nil {
		d.failed++
	}
	if !d.closed && len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.metrics.setDepth(len(d.queue))
		d.startLocked(next)
	}
	slow := d.slow
	d.mu.Unlock()

	c.resolve(result, err)

	fields := logrus.Fields{
		"job":      c.Request.Kind,
		"target":   c.Request.Target,
		"duration": elapsed,
	}
	if err != nil {
		d.metrics.observe(c.Request.Kind, "failed", elapsed)
		d.logger.WithError(err).WithFields(fields).Error("Job failed")
		return
	}
	d.metrics.observe(c.Request.Kind, "ok", elapsed)
	if slow > 0 && elapsed > slow {
		d.logger.WithFields(fields).Warn("Slow job")
	} else {
		d.logger.WithFields(fields).Trace("Job finished")
	}
}

func (d *Dispatcher) invoke(c *Call, snap *store.Snapshot) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.JobFailed(string(c.Request.Kind), c.Request.Target, fmt.Errorf("panic: %v", r))
		}
	}()
	result, err = c.handler(context.Background(), c.Request, snap)
	if err != nil {
		return nil, errors.JobFailed(string(c.Request.Kind), c.Request.Target, err)
	}
	return result, nil
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Running:   d.running,
		Queued:    len(d.queue),
		Inflight:  len(d.inflight),
		Executed:  d.executed,
		Debounced: d.debounced,
		Failed:    d.failed,
	}
}

// Close rejects queued jobs with DISPATCHER_CLOSED and waits for running
// jobs to finish. Later submissions are rejected immediately.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	queued := d.queue
	d.queue = nil
	for _, c := range queued {
		delete(d.inflight, c.Request.Key)
	}
	d.metrics.setDepth(0)
	d.mu.Unlock()

	for _, c := range queued {
		c.resolve(nil, errors.New(errors.ErrCodeDispatcherClosed, "dispatcher closed before job started"))
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
