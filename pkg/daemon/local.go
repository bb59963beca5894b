package daemon

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/config"
	"github.com/grovetools/superstate/errors"
	rt "github.com/grovetools/superstate/internal/daemon"
	"github.com/grovetools/superstate/internal/daemon/collector"
	"github.com/grovetools/superstate/internal/daemon/engine"
	"github.com/grovetools/superstate/internal/daemon/store"
	"github.com/grovetools/superstate/internal/search"
	"github.com/grovetools/superstate/pkg/models"
)

// LocalClient implements Client by indexing the vault in-process.
// This is used when the daemon is not running, providing the same API
// but executing all operations directly.
type LocalClient struct {
	runtime *rt.Runtime
}

// NewLocalClient opens and reindexes the vault described by cfg.
func NewLocalClient(ctx context.Context, cfg *config.Config, logger *logrus.Entry) (*LocalClient, error) {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		logger = logrus.NewEntry(l)
	}
	r, err := rt.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := r.Initialize(ctx); err != nil {
		_ = r.Close(context.Background())
		return nil, err
	}
	return &LocalClient{runtime: r}, nil
}

// Stats returns the engine counters.
func (c *LocalClient) Stats(ctx context.Context) (*engine.Stats, error) {
	s := c.runtime.Engine.Stats()
	return &s, nil
}

// Path returns the cached state of one path.
func (c *LocalClient) Path(ctx context.Context, p string) (*models.PathState, error) {
	st := c.runtime.Store.PathWithLinks(p)
	if st == nil {
		return nil, errors.EntityNotFound("path", p)
	}
	return st, nil
}

// Spaces returns every known space.
func (c *LocalClient) Spaces(ctx context.Context) ([]*models.SpaceState, error) {
	return c.runtime.Store.Spaces(), nil
}

// Query filters and sorts a space's table. Rows take their JSON form so
// both clients answer alike.
func (c *LocalClient) Query(ctx context.Context, space string, view models.View) ([]Row, error) {
	if c.runtime.Store.Context(space) == nil {
		return nil, errors.EntityNotFound("context", space)
	}
	data, err := json.Marshal(c.runtime.Engine.Query(space, view))
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Search ranks paths against text.
func (c *LocalClient) Search(ctx context.Context, text string, limit int) ([]search.Result, error) {
	return c.runtime.Engine.Search(ctx, text, limit)
}

// Focuses returns the focus lists.
func (c *LocalClient) Focuses(ctx context.Context) ([]models.Focus, error) {
	return c.runtime.Engine.Focuses(), nil
}

// SetFocuses replaces the focus lists.
func (c *LocalClient) SetFocuses(ctx context.Context, focuses []models.Focus) error {
	c.runtime.Engine.SetFocuses(focuses)
	return nil
}

// Apply runs a mutation's cascade in-process.
func (c *LocalClient) Apply(ctx context.Context, m collector.Mutation) error {
	if !m.Kind.Valid() {
		return errors.New(errors.ErrCodeInvalidInput, "unknown mutation kind "+string(m.Kind))
	}
	return c.runtime.Engine.Submit(ctx, m)
}

// StreamEvents is not supported by LocalClient.
func (c *LocalClient) StreamEvents(ctx context.Context) (<-chan store.Event, error) {
	return nil, errors.New(errors.ErrCodeInvalidInput, "event streaming requires the daemon")
}

// IsRunning always returns false for LocalClient since it doesn't use the daemon.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close drains pending work and closes persistence.
func (c *LocalClient) Close() error {
	return c.runtime.Close(context.Background())
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
