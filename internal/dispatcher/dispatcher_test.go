package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type forceFlag bool

func (f forceFlag) KeyFields() []string { return []string{fmt.Sprint(bool(f))} }

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	require.NoError(t, d.Close(context.Background()))
}

func TestKeyCoversPayloadFields(t *testing.T) {
	a := Key(KindParsePath, "/a.md", nil)
	assert.Equal(t, a, Key(KindParsePath, "/a.md", struct{}{}))
	assert.NotEqual(t, a, Key(KindParsePath, "/b.md", nil))
	assert.NotEqual(t, a, Key(KindParseContext, "/a.md", nil))
	assert.NotEqual(t, Key(KindParseContext, "/s", forceFlag(true)), Key(KindParseContext, "/s", forceFlag(false)))

	req := NewRequest(KindSearch, "", nil)
	assert.Equal(t, Key(KindSearch, "", nil), req.Key)
}

func TestIdenticalRequestsExecuteOnce(t *testing.T) {
	d := New(4, nil, nil, NewMetrics(prometheus.NewRegistry()))
	defer closeDispatcher(t, d)

	release := make(chan struct{})
	var runs int32
	d.Register(KindParsePath, func(ctx context.Context, req Request, snap *store.Snapshot) (interface{}, error) {
		atomic.AddInt32(&runs, 1)
		<-release
		return "parsed " + req.Target, nil
	})

	calls := make([]*Call, 5)
	for i := range calls {
		calls[i] = d.Submit(NewRequest(KindParsePath, "/a.md", nil))
	}
	for _, c := range calls[1:] {
		assert.Same(t, calls[0], c)
	}
	other := d.Submit(NewRequest(KindParsePath, "/b.md", nil))
	assert.NotSame(t, calls[0], other)

	close(release)
	for _, c := range calls {
		res, err := c.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "parsed /a.md", res)
	}
	_, err := other.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
	stats := d.Stats()
	assert.Equal(t, 4, stats.Debounced)
	assert.Equal(t, 2, stats.Executed)
}

func TestFinishedKeyRunsAgain(t *testing.T) {
	d := New(1, nil, nil, nil)
	defer closeDispatcher(t, d)

	var runs int32
	d.Register(KindSearch, func(ctx context.Context, req Request, snap *store.Snapshot) (interface{}, error) {
		return atomic.AddInt32(&runs, 1), nil
	})
	first, err := d.Run(context.Background(), NewRequest(KindSearch, "", nil))
	require.NoError(t, err)
	second, err := d.Run(context.Background(), NewRequest(KindSearch, "", nil))
	require.NoError(t, err)
	assert.Equal(t, int32(1), first)
	assert.Equal(t, int32(2), second)
}

func TestQueuedJobsRunFIFOWithSendTimeSnapshot(t *testing.T) {
	s := store.New(nil)
	d := New(1, s.Snapshot, nil, nil)
	defer closeDispatcher(t, d)

	release := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	var order []string
	d.Register(KindParsePath, func(ctx context.Context, req Request, snap *store.Snapshot) (interface{}, error) {
		if req.Target == "/block.md" {
			close(started)
			<-release
		}
		mu.Lock()
		order = append(order, req.Target)
		mu.Unlock()
		return snap.Path("/late.md") != nil, nil
	})

	blocker := d.Submit(NewRequest(KindParsePath, "/block.md", nil))
	queued := []*Call{
		d.Submit(NewRequest(KindParsePath, "/1.md", nil)),
		d.Submit(NewRequest(KindParsePath, "/2.md", nil)),
		d.Submit(NewRequest(KindParsePath, "/3.md", nil)),
	}
	assert.Equal(t, 3, d.Stats().Queued)
	<-started

	// written after submission, before the queued jobs start
	s.PutPath(&models.PathState{Path: "/late.md", Name: "late"})
	close(release)

	seenBefore, err := blocker.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, false, seenBefore)
	for _, c := range queued {
		seen, err := c.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, true, seen)
	}
	assert.Equal(t, []string{"/block.md", "/1.md", "/2.md", "/3.md"}, order)
}

func TestFailureRejectsOnlyThatJob(t *testing.T) {
	d := New(2, nil, nil, nil)
	defer closeDispatcher(t, d)

	d.Register(KindParseContext, func(ctx context.Context, req Request, snap *store.Snapshot) (interface{}, error) {
		switch req.Target {
		case "/bad":
			return nil, fmt.Errorf("table unreadable")
		case "/panic":
			panic("nil column")
		}
		return "ok", nil
	})

	bad := d.Submit(NewRequest(KindParseContext, "/bad", nil))
	boom := d.Submit(NewRequest(KindParseContext, "/panic", nil))
	good := d.Submit(NewRequest(KindParseContext, "/good", nil))

	_, err := bad.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeJobFailed))
	assert.Contains(t, err.Error(), "table unreadable")

	_, err = boom.Wait(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeJobFailed))

	res, err := good.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	data, err := json.Marshal(bad.Response())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"$error"`)
	assert.Equal(t, 2, d.Stats().Failed)
}

func TestUnknownKind(t *testing.T) {
	d := New(1, nil, nil, nil)
	defer closeDispatcher(t, d)
	_, err := d.Run(context.Background(), NewRequest("bogus", "/x", nil))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestCloseRejectsQueuedJobs(t *testing.T) {
	d := New(1, nil, nil, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	d.Register(KindParseAllPaths, func(ctx context.Context, req Request, snap *store.Snapshot) (interface{}, error) {
		close(started)
		<-release
		return "done", nil
	})
	d.Register(KindParsePath, func(ctx context.Context, req Request, snap *store.Snapshot) (interface{}, error) {
		return "never", nil
	})

	running := d.Submit(NewRequest(KindParseAllPaths, "", nil))
	<-started
	queued := d.Submit(NewRequest(KindParsePath, "/a.md", nil))

	closed := make(chan error)
	go func() { closed <- d.Close(context.Background()) }()

	_, err := queued.Wait(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeDispatcherClosed))

	close(release)
	require.NoError(t, <-closed)
	res, err := running.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", res)

	_, err = d.Run(context.Background(), NewRequest(KindParsePath, "/b.md", nil))
	assert.True(t, errors.Is(err, errors.ErrCodeDispatcherClosed))
}
