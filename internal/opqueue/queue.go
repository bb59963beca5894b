// Package opqueue runs context table mutations one at a time in
// submission order.
package opqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/errors"
)

// Task is one queued mutation.
type Task func(ctx context.Context) error

// Failure describes a task that returned an error or panicked. The queue
// moves on to the next task; failures are never retried.
type Failure struct {
	ID    string
	Queue string
	Label string
	Err   error
	At    time.Time
}

// FailureFunc is told about every failed task, after it ran.
type FailureFunc func(Failure)

// Ticket tracks one enqueued task.
type Ticket struct {
	ID    string
	Label string
	done  chan struct{}
	err   error
}

// Done is closed once the task has run.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task has run or ctx ends, and returns the task's
// error. Cancelling ctx does not cancel the task.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type item struct {
	ticket *Ticket
	fn     Task
}

// Queue is an ordered list of tasks with a single worker. The worker
// goroutine exists only while tasks are pending.
type Queue struct {
	name      string
	logger    *logrus.Entry
	metrics   *Metrics
	onFailure FailureFunc

	mu        sync.Mutex
	pending   []item
	running   bool
	closed    bool
	idle      chan struct{}
	processed int
	failures  int
}

// New creates an idle queue.
func New(name string, logger *logrus.Entry, metrics *Metrics, onFailure FailureFunc) *Queue {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		name:      name,
		logger:    logger.WithField("queue", name),
		metrics:   metrics,
		onFailure: onFailure,
		idle:      idle,
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue appends fn. It runs after every task enqueued before it has
// finished. A closed queue resolves the ticket with QUEUE_CLOSED.
func (q *Queue) Enqueue(label string, fn Task) *Ticket {
	t := &Ticket{ID: uuid.NewString(), Label: label, done: make(chan struct{})}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		t.err = errors.New(errors.ErrCodeQueueClosed, fmt.Sprintf("queue %s is closed", q.name))
		close(t.done)
		return t
	}
	q.pending = append(q.pending, item{ticket: t, fn: fn})
	q.metrics.setDepth(q.name, len(q.pending))
	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.work()
	}
	return t
}

func (q *Queue) work() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.metrics.setDepth(q.name, len(q.pending))
		q.mu.Unlock()

		err := q.run(next)

		q.mu.Lock()
		q.processed++
		if err != nil {
			q.failures++
		}
		q.mu.Unlock()

		next.ticket.err = err
		close(next.ticket.done)

		if err != nil {
			q.metrics.task("failed")
			q.logger.WithError(err).WithFields(logrus.Fields{
				"task": next.ticket.Label,
				"id":   next.ticket.ID,
			}).Error("Context mutation failed; continuing with next task")
			if q.onFailure != nil {
				q.onFailure(Failure{
					ID:    next.ticket.ID,
					Queue: q.name,
					Label: next.ticket.Label,
					Err:   err,
					At:    time.Now(),
				})
			}
		} else {
			q.metrics.task("ok")
		}
	}
}

func (q *Queue) run(it item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrCodeInternal, fmt.Sprintf("task %s panicked: %v", it.ticket.Label, r))
		}
	}()
	return it.fn(context.Background())
}

// Depth returns the number of tasks not yet started.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Failures returns how many tasks have failed so far.
func (q *Queue) Failures() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failures
}

// Processed returns how many tasks have run so far.
func (q *Queue) Processed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processed
}

// Drain waits until every task enqueued so far, and any enqueued while
// waiting, has run.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}

		q.mu.Lock()
		quiet := !q.running && len(q.pending) == 0
		q.mu.Unlock()
		if quiet {
			return nil
		}
	}
}

// Close stops accepting tasks and waits for pending ones to finish.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.Drain(ctx)
}
